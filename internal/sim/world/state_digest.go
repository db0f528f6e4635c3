package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// stateDigest hashes every piece of state that affects future ticks. Two
// worlds with equal digests at a tick evolve identically from the same
// commands.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.nextUnit)
	digestWriteU64(h, &tmp, w.nextTrain)

	words := w.grid.Words()
	buf := make([]byte, 2*len(words))
	for i, v := range words {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	h.Write(buf)

	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		digestWriteU64(h, &tmp, uint64(p.ID))
		digestWriteI64(h, &tmp, p.Gold)
	}
	for _, k := range w.sortedStanceKeys() {
		digestWriteU64(h, &tmp, uint64(k[0])<<16|uint64(k[1]))
		h.Write([]byte{byte(w.stances[k])})
	}

	for _, id := range w.sortedBuildingIDs() {
		b := w.buildings[id]
		digestWriteU64(h, &tmp, uint64(b.Unit))
		digestWriteU64(h, &tmp, uint64(b.Station))
		digestWriteU64(h, &tmp, uint64(b.Tile))
		digestWriteU64(h, &tmp, uint64(b.Owner))
		h.Write([]byte{byte(b.Kind)})
	}

	w.digestNetwork(h, &tmp)
	w.digestTrains(h, &tmp)

	for _, s := range w.ships {
		digestWriteU64(h, &tmp, uint64(s.Unit))
		digestWriteU64(h, &tmp, uint64(s.Port))
		digestWriteU64(h, &tmp, s.Expires)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestNetwork(h hashWriter, tmp *[8]byte) {
	for _, id := range w.net.Stations() {
		st := w.net.Station(id)
		digestWriteU64(h, tmp, uint64(id))
		digestWriteU64(h, tmp, uint64(st.Tile))
		digestWriteU64(h, tmp, uint64(st.Owner))
		digestWriteU64(h, tmp, uint64(st.Cluster()))
		digestWriteU64(h, tmp, st.Seq())
		h.Write([]byte{byte(st.Kind)})
		for _, r := range st.RoutingTable() {
			digestWriteU64(h, tmp, uint64(r.Dest))
			digestWriteU64(h, tmp, uint64(r.NextHop))
			digestWriteU64(h, tmp, uint64(r.Hops))
			digestWriteU64(h, tmp, r.Seq)
			h.Write([]byte{boolByte(r.Organic)})
		}
	}
	for _, rr := range w.net.Railroads() {
		c := rr.Congestion()
		digestWriteU64(h, tmp, uint64(rr.ID))
		digestWriteU64(h, tmp, uint64(rr.From))
		digestWriteU64(h, tmp, uint64(rr.To))
		digestWriteU64(h, tmp, uint64(rr.Length()))
		digestWriteU64(h, tmp, uint64(rr.TrainCount()))
		digestWriteF64(h, tmp, c.EMA)
		digestWriteI64(h, tmp, c.PublishedFare)
	}
	for _, p := range w.net.PendingConnections() {
		digestWriteU64(h, tmp, uint64(p[0])<<32|uint64(uint32(p[1])))
	}
}

func (w *World) digestTrains(h hashWriter, tmp *[8]byte) {
	for _, id := range w.sortedTrainIDs() {
		tr := w.trains[id]
		digestWriteU64(h, tmp, id)
		h.Write([]byte{byte(tr.State()), boolByte(tr.Cargo())})
		digestWriteU64(h, tmp, uint64(tr.Station()))
		digestWriteU64(h, tmp, uint64(tr.Target()))
		digestWriteU64(h, tmp, uint64(tr.Position()))
		digestWriteU64(h, tmp, uint64(tr.Hops()))
		digestWriteU64(h, tmp, tr.RandState())
	}
}
