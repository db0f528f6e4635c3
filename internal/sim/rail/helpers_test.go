package rail

import (
	"testing"

	"golang.org/x/exp/slices"

	"railnet.ai/internal/sim/terrain"
)

type fakeGame struct {
	m      *terrain.Grid
	gold   map[terrain.PlayerID]int64
	allies map[[2]terrain.PlayerID]bool

	// net backs NearbyUnits: every station counts as a unit unless its
	// tile is hidden.
	net    *Network
	hidden map[terrain.Tile]bool
}

func newFakeGame(w, h int) *fakeGame {
	return &fakeGame{
		m:      terrain.NewGrid(w, h),
		gold:   map[terrain.PlayerID]int64{},
		allies: map[[2]terrain.PlayerID]bool{},
		hidden: map[terrain.Tile]bool{},
	}
}

func (g *fakeGame) Map() terrain.Map { return g.m }

func (g *fakeGame) NearbyUnits(t terrain.Tile, radius int, kinds ...StructureKind) []Unit {
	if g.net == nil {
		return nil
	}
	var out []Unit
	for _, id := range g.net.Stations() {
		st := g.net.Station(id)
		if g.hidden[st.Tile] || g.m.Manhattan(t, st.Tile) > radius {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, st.Kind) {
			continue
		}
		out = append(out, Unit{ID: UnitID(id), Kind: st.Kind, Owner: st.Owner, Tile: st.Tile})
	}
	return out
}

func (g *fakeGame) Relation(a, b terrain.PlayerID) Relation {
	switch {
	case a == b:
		return RelSelf
	case g.allies[[2]terrain.PlayerID{a, b}] || g.allies[[2]terrain.PlayerID{b, a}]:
		return RelAlly
	default:
		return RelNeutral
	}
}

func (g *fakeGame) AddGold(p terrain.PlayerID, n int64) { g.gold[p] += n }

func (g *fakeGame) RemoveGold(p terrain.PlayerID, n int64) int64 {
	if g.gold[p] < n {
		n = g.gold[p]
	}
	g.gold[p] -= n
	return n
}

type recorder struct {
	events []Event
}

func (r *recorder) RailEvent(e Event) { r.events = append(r.events, e) }

func (r *recorder) ofKind(k EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	c := DefaultConfig()
	c.Choice.RandomNeighborProbability = 0
	c.Choice.FollowRouteProbability = 1
	return c
}

func newTestNetwork(t *testing.T, w, h int, cfg Config) (*Network, *fakeGame, *recorder) {
	t.Helper()
	g := newFakeGame(w, h)
	rec := &recorder{}
	n := NewNetwork(cfg, g, Options{Sink: rec})
	g.net = n
	return n, g, rec
}

// lpath walks from (x0,y0) to (x1,y1) along x first, then y.
func lpath(m terrain.Map, x0, y0, x1, y1 int) []terrain.Tile {
	out := []terrain.Tile{m.Ref(x0, y0)}
	return append(out, spur(m, m.Ref(x0, y0), m.Ref(x1, y1))...)
}

func mustBuild(t *testing.T, n *Network, a, b StationID) RailroadID {
	t.Helper()
	m := n.game.Map()
	sa, sb := n.Station(a), n.Station(b)
	tiles := lpath(m, m.X(sa.Tile), m.Y(sa.Tile), m.X(sb.Tile), m.Y(sb.Tile))
	id, ok := n.BuildRailroad(a, b, tiles)
	if !ok {
		t.Fatalf("build %d-%d failed", a, b)
	}
	return id
}

func addCity(n *Network, x, y int, owner terrain.PlayerID) StationID {
	m := n.game.Map()
	id, _ := n.AddStation(m.Ref(x, y), owner, KindCity, 0)
	return id
}
