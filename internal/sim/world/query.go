package world

import (
	"context"
	"errors"

	"railnet.ai/internal/persistence/snapshot"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
)

var (
	ErrOutOfBounds    = errors.New("position out of bounds")
	ErrUnknownStation = errors.New("unknown station")
)

// State returns a consistent view of the world taken between ticks.
func (w *World) State(ctx context.Context) (StateView, error) {
	var v StateView
	err := w.Do(ctx, func() { v = w.stateView() })
	return v, err
}

// Preview reports what placing a station at (x, y) would connect to.
func (w *World) Preview(ctx context.Context, x, y int, owner uint16) (PreviewView, error) {
	var (
		v   PreviewView
		bad bool
	)
	err := w.Do(ctx, func() {
		if !w.grid.InBounds(x, y) {
			bad = true
			return
		}
		v = w.preview(w.grid.Ref(x, y), terrain.PlayerID(owner))
	})
	if err == nil && bad {
		err = ErrOutOfBounds
	}
	return v, err
}

// Routes returns the routing table of an active station.
func (w *World) Routes(ctx context.Context, id int32) ([]RouteView, error) {
	var (
		out []RouteView
		bad bool
	)
	err := w.Do(ctx, func() {
		sid := rail.StationID(id)
		if !w.net.StationActive(sid) {
			bad = true
			return
		}
		st := w.net.Station(sid)
		out = []RouteView{}
		for _, e := range st.RoutingTable() {
			out = append(out, RouteView{
				Dest:    int32(e.Dest),
				NextHop: int32(e.NextHop),
				Hops:    e.Hops,
				Seq:     e.Seq,
				Updated: e.UpdatedTick,
				Organic: e.Organic,
			})
		}
	})
	if err == nil && bad {
		err = ErrUnknownStation
	}
	return out, err
}

func (w *World) EventsAfter(ctx context.Context, since uint64, limit int) ([]EventCursorItem, uint64, error) {
	var (
		items []EventCursorItem
		next  uint64
	)
	err := w.Do(ctx, func() { items, next = w.eventsAfter(since, limit) })
	return items, next, err
}

// RequestSnapshot exports the world at the last completed tick.
func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	var snap snapshot.SnapshotV1
	err := w.Do(ctx, func() {
		t := w.tick.Load()
		if t > 0 {
			t--
		}
		snap = w.ExportSnapshot(t)
	})
	return snap, err
}

func (w *World) stateView() StateView {
	now := w.tick.Load()
	v := StateView{
		Tick:      now,
		Players:   []PlayerView{},
		Stations:  []StationView{},
		Railroads: []RailroadView{},
		Trains:    []TrainView{},
		Clusters:  [][]int32{},
	}
	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		v.Players = append(v.Players, PlayerView{ID: uint16(p.ID), Name: p.Name, Gold: p.Gold})
	}
	decay := w.net.Config().HeatDecay
	for _, id := range w.net.Stations() {
		st := w.net.Station(id)
		sv := StationView{
			ID:        int32(id),
			X:         w.grid.X(st.Tile),
			Y:         w.grid.Y(st.Tile),
			Owner:     uint16(st.Owner),
			Kind:      st.Kind.String(),
			Cluster:   int32(st.Cluster()),
			Neighbors: []int32{},
			Routes:    len(st.RoutingTable()),
			Heat:      st.Heat(now, decay),
		}
		for _, nb := range st.Neighbors() {
			sv.Neighbors = append(sv.Neighbors, int32(nb))
		}
		v.Stations = append(v.Stations, sv)
	}
	for _, rr := range w.net.Railroads() {
		v.Railroads = append(v.Railroads, RailroadView{
			ID:     int32(rr.ID),
			From:   int32(rr.From),
			To:     int32(rr.To),
			Length: rr.Length(),
			Fare:   rr.Fare(),
			Trains: rr.TrainCount(),
			EMA:    rr.CongestionEMA(),
		})
	}
	for _, id := range w.sortedTrainIDs() {
		tr := w.trains[id]
		pos := tr.Position()
		v.Trains = append(v.Trains, TrainView{
			ID:     id,
			Owner:  uint16(tr.Owner),
			Src:    int32(tr.Src),
			Dst:    int32(tr.Dst),
			State:  tr.State().String(),
			At:     int32(tr.Station()),
			Target: int32(tr.Target()),
			X:      w.grid.X(pos),
			Y:      w.grid.Y(pos),
			Hops:   tr.Hops(),
			Cargo:  tr.Cargo(),
		})
	}
	for _, c := range w.net.Clusters() {
		var ms []int32
		for _, m := range c.Members() {
			ms = append(ms, int32(m))
		}
		v.Clusters = append(v.Clusters, ms)
	}
	return v
}

func (w *World) preview(t terrain.Tile, owner terrain.PlayerID) PreviewView {
	p := w.net.PreviewConnections(t, owner)
	var v PreviewView
	for _, s := range p.Snaps {
		v.Snaps = append(v.Snaps, PreviewSnap{
			Railroad: int32(s.Railroad),
			Index:    s.Index,
			X:        w.grid.X(s.Tile),
			Y:        w.grid.Y(s.Tile),
		})
	}
	for _, path := range p.Paths {
		v.Paths = append(v.Paths, PreviewPath{To: int32(path.To), Tiles: w.xy(path.Tiles)})
	}
	return v
}
