package world

import (
	"railnet.ai/internal/sim/logic/mathx"
	"railnet.ai/internal/sim/rail"
)

// dispatchFactoryTrains sends one train from every factory to a city or port
// in its cluster. The destination is a hash of the seed, tick and factory so
// the choice needs no stored state.
func (w *World) dispatchFactoryTrains(now uint64) {
	every := uint64(w.cfg.TrainSpawnEveryTicks)
	if every == 0 || now == 0 || now%every != 0 {
		return
	}
	for _, id := range w.sortedStructureIDs() {
		if len(w.trains) >= w.cfg.MaxTrains {
			return
		}
		s := w.structures[id]
		if s.Kind != rail.KindFactory || !w.net.StationActive(id) {
			continue
		}
		cands := w.dispatchCandidates(id)
		if len(cands) == 0 {
			continue
		}
		dst := cands[mathx.Hash2(w.cfg.Seed, int(now), int(id))%uint64(len(cands))]
		w.newTrain(s.Owner, id, dst)
	}
}

func (w *World) dispatchCandidates(factory rail.StationID) []rail.StationID {
	c, ok := w.net.ClusterOf(factory)
	if !ok {
		return nil
	}
	var out []rail.StationID
	for _, m := range c.Members() {
		if m == factory {
			continue
		}
		if st := w.net.Station(m); st != nil && st.Kind.Destination() {
			out = append(out, m)
		}
	}
	return out
}

// expireTradeShips pays out ships whose voyage is over. A ship whose home
// port was removed is lost.
func (w *World) expireTradeShips(now uint64) {
	kept := w.ships[:0]
	for _, s := range w.ships {
		if s.Expires > now {
			kept = append(kept, s)
			continue
		}
		w.DeleteUnit(s.Unit)
		if w.net.StationActive(s.Port) {
			w.AddGold(s.Owner, w.cfg.TradeShipReward)
		}
	}
	for i := len(kept); i < len(w.ships); i++ {
		w.ships[i] = nil
	}
	w.ships = kept
}
