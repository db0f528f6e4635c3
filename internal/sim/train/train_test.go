package train

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
)

type fakeHost struct {
	m       *terrain.Grid
	gold    map[terrain.PlayerID]int64
	noBuild bool
	next    rail.UnitID
	units   map[rail.UnitID]terrain.Tile
	ships   []rail.StationID
}

func newFakeHost(w, h int) *fakeHost {
	return &fakeHost{
		m:     terrain.NewGrid(w, h),
		gold:  map[terrain.PlayerID]int64{1: 100_000},
		units: map[rail.UnitID]terrain.Tile{},
	}
}

func (h *fakeHost) Map() terrain.Map { return h.m }

func (h *fakeHost) NearbyUnits(terrain.Tile, int, ...rail.StructureKind) []rail.Unit { return nil }

func (h *fakeHost) Relation(a, b terrain.PlayerID) rail.Relation {
	if a == b {
		return rail.RelSelf
	}
	return rail.RelNeutral
}

func (h *fakeHost) AddGold(p terrain.PlayerID, n int64) { h.gold[p] += n }

func (h *fakeHost) RemoveGold(p terrain.PlayerID, n int64) int64 {
	if h.gold[p] < n {
		n = h.gold[p]
	}
	h.gold[p] -= n
	return n
}

func (h *fakeHost) CanBuild(terrain.PlayerID, terrain.Tile) bool { return !h.noBuild }

func (h *fakeHost) SpawnUnit(kind string, owner terrain.PlayerID, t terrain.Tile) rail.UnitID {
	h.next++
	h.units[h.next] = t
	return h.next
}

func (h *fakeHost) MoveUnit(id rail.UnitID, t terrain.Tile) { h.units[id] = t }
func (h *fakeHost) DeleteUnit(id rail.UnitID)               { delete(h.units, id) }

func (h *fakeHost) LaunchTradeShip(owner terrain.PlayerID, port rail.StationID) {
	h.ships = append(h.ships, port)
}

type line struct {
	h     *fakeHost
	net   *rail.Network
	ids   []rail.StationID
	rails []rail.RailroadID
}

// newLine lays stations of the given kinds ten tiles apart on row 2 and
// joins consecutive ones.
func newLine(t *testing.T, kinds ...rail.StructureKind) *line {
	t.Helper()
	h := newFakeHost(12*len(kinds)+4, 8)
	cfg := rail.DefaultConfig()
	cfg.Choice.RandomNeighborProbability = 0
	cfg.Choice.FollowRouteProbability = 1
	net := rail.NewNetwork(cfg, h, rail.Options{})
	l := &line{h: h, net: net}
	for i, k := range kinds {
		id, ok := net.AddStation(h.m.Ref(2+10*i, 2), 1, k, 0)
		if !ok {
			t.Fatalf("add station %d", i)
		}
		l.ids = append(l.ids, id)
	}
	for i := 1; i < len(l.ids); i++ {
		var tiles []terrain.Tile
		for x := 2 + 10*(i-1); x <= 2+10*i; x++ {
			tiles = append(tiles, h.m.Ref(x, 2))
		}
		rid, ok := net.BuildRailroad(l.ids[i-1], l.ids[i], tiles)
		if !ok {
			t.Fatalf("build %d", i)
		}
		l.rails = append(l.rails, rid)
	}
	return l
}

func run(tr *Execution, from, limit uint64) uint64 {
	now := from
	for ; now < limit && tr.Active(); now++ {
		tr.Tick(now)
	}
	return now
}

func TestTrain_ArrivesAlongLine(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity, rail.KindCity)
	var got []Outcome
	tr := New(1, 1, l.ids[0], l.ids[2], Config{}, l.net, l.h, 42, Options{Report: func(o Outcome) { got = append(got, o) }})

	run(tr, 1, 100)
	if tr.State() != Arrived {
		t.Fatalf("state=%s want ARRIVED", tr.State())
	}
	want := []Outcome{{
		Train: 1, Owner: 1, Src: l.ids[0], Dst: l.ids[2], State: Arrived,
		Hops: 2, Tick: 13, Fares: 1800, Income: 500, Visited: 2,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outcome (-want +got):\n%s", diff)
	}
	if len(l.h.units) != 0 {
		t.Fatalf("units left behind: %v", l.h.units)
	}
	if g := l.h.gold[1]; g != 100_000-1800+500 {
		t.Fatalf("gold=%d", g)
	}
	for _, rid := range l.rails {
		if n := l.net.Railroad(rid).TrainCount(); n != 0 {
			t.Fatalf("railroad %d still occupied by %d", rid, n)
		}
	}
	if l.net.Station(l.ids[1]).Heat(13, 1) == 0 {
		t.Fatalf("intermediate station not heated")
	}
}

func TestTrain_CancelledWhenSpawnBlocked(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	l.h.noBuild = true
	var got []Outcome
	tr := New(1, 1, l.ids[0], l.ids[1], Config{}, l.net, l.h, 1, Options{Report: func(o Outcome) { got = append(got, o) }})
	tr.Tick(1)
	if tr.State() != Cancelled || len(got) != 1 || got[0].State != Cancelled {
		t.Fatalf("state=%s outcomes=%v", tr.State(), got)
	}
	if l.h.next != 0 {
		t.Fatalf("spawned %d units", l.h.next)
	}
	tr.Tick(2)
	if len(got) != 1 {
		t.Fatalf("terminal train reported again")
	}
}

func TestTrain_StuckWithoutNeighbours(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	lonely, _ := l.net.AddStation(l.h.m.Ref(2, 6), 1, rail.KindCity, 0)
	tr := New(1, 1, lonely, l.ids[1], Config{}, l.net, l.h, 1, Options{})
	run(tr, 1, 10)
	if tr.State() != Stuck {
		t.Fatalf("state=%s want STUCK", tr.State())
	}
	if len(l.h.units) != 0 {
		t.Fatalf("units left behind")
	}
}

func TestTrain_HopLimit(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity, rail.KindCity)
	tr := New(1, 1, l.ids[0], l.ids[2], Config{MaxHops: 1}, l.net, l.h, 1, Options{})
	run(tr, 1, 100)
	if tr.State() != HopLimitExceeded || tr.Hops() != 1 {
		t.Fatalf("state=%s hops=%d", tr.State(), tr.Hops())
	}
	if tr.Station() != l.ids[1] {
		t.Fatalf("stopped at %d want %d", tr.Station(), l.ids[1])
	}
}

func TestTrain_TeardownWhenDestinationRemoved(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity, rail.KindCity)
	tr := New(1, 1, l.ids[0], l.ids[2], Config{Cars: 2}, l.net, l.h, 1, Options{})
	run(tr, 1, 4)
	if tr.State() != Travelling || tr.Occupied() != l.rails[0] {
		t.Fatalf("state=%s occupied=%d", tr.State(), tr.Occupied())
	}
	if l.net.Railroad(l.rails[0]).TrainCount() != 1 {
		t.Fatalf("occupancy not recorded")
	}

	l.net.RemoveStation(l.ids[2])
	tr.Tick(4)
	if tr.State() != Cancelled {
		t.Fatalf("state=%s want CANCELLED", tr.State())
	}
	if l.net.Railroad(l.rails[0]).TrainCount() != 0 {
		t.Fatalf("occupancy not released")
	}
	if len(l.h.units) != 0 {
		t.Fatalf("units left behind: %v", l.h.units)
	}
}

// snapCity drops a city on the track at x and snaps it in.
func (l *line) snapCity(t *testing.T, x int) rail.StationID {
	t.Helper()
	id, ok := l.net.AddStation(l.h.m.Ref(x, 2), 1, rail.KindCity, 0)
	if !ok {
		t.Fatalf("add station at x=%d", x)
	}
	if res := l.net.ConnectStation(id); len(res.Snapped) != 1 {
		t.Fatalf("station at x=%d did not snap: %+v", x, res)
	}
	return id
}

func successor(t *testing.T, net *rail.Network, old rail.RailroadID, from rail.StationID) rail.RailroadID {
	t.Helper()
	id, _, ok := net.Successor(old, from)
	if !ok {
		t.Fatalf("railroad %d has no successor from %d", old, from)
	}
	return id
}

func TestTrain_OccupancyFollowsSnapsAhead(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	a, b := l.ids[0], l.ids[1]
	var got Outcome
	tr := New(1, 1, a, b, Config{Speed: 1}, l.net, l.h, 1, Options{Report: func(o Outcome) { got = o }})
	run(tr, 1, 4)
	if x := l.h.m.X(tr.Position()); x != 3 {
		t.Fatalf("engine x=%d want 3", x)
	}

	z := l.snapCity(t, 6)
	first := successor(t, l.net, l.rails[0], a)
	second := successor(t, l.net, l.rails[0], b)
	tr.Tick(4)
	if tr.Occupied() != first {
		t.Fatalf("occupied=%d want first half %d", tr.Occupied(), first)
	}
	if c1, c2 := l.net.Railroad(first).TrainCount(), l.net.Railroad(second).TrainCount(); c1 != 1 || c2 != 0 {
		t.Fatalf("counts before the joint: first=%d second=%d", c1, c2)
	}

	// Split the half still ahead of the train once more.
	w := l.snapCity(t, 9)
	near := successor(t, l.net, second, z)
	far := successor(t, l.net, second, b)
	run(tr, 5, 11)
	if x := l.h.m.X(tr.Position()); x != 10 {
		t.Fatalf("engine x=%d want 10", x)
	}
	if tr.Occupied() != far {
		t.Fatalf("occupied=%d want %d", tr.Occupied(), far)
	}
	counts := map[rail.RailroadID]int{}
	for _, id := range []rail.RailroadID{l.rails[0], first, second, near, far} {
		counts[id] = l.net.Railroad(id).TrainCount()
	}
	want := map[rail.RailroadID]int{l.rails[0]: 0, first: 0, second: 0, near: 0, far: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("train counts (-want +got):\n%s", diff)
	}

	run(tr, 11, 100)
	if tr.State() != Arrived {
		t.Fatalf("state=%s want ARRIVED", tr.State())
	}
	// Snapped stations are passed through; the hop ends where it was aimed.
	if got.Hops != 1 || got.Visited != 1 {
		t.Fatalf("hops=%d visited=%d want 1,1", got.Hops, got.Visited)
	}
	for _, id := range []rail.StationID{z, w} {
		if l.net.Station(id).Heat(100, 1) != 0 {
			t.Fatalf("station %d heated by a pass-through", id)
		}
	}
	if n := l.net.Railroad(far).TrainCount(); n != 0 {
		t.Fatalf("last half still occupied by %d", n)
	}
}

func TestTrain_SnapBehindEngineMovesToSecondHalf(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	a, b := l.ids[0], l.ids[1]
	tr := New(1, 1, a, b, Config{Speed: 1}, l.net, l.h, 1, Options{})
	run(tr, 1, 8)
	if x := l.h.m.X(tr.Position()); x != 7 {
		t.Fatalf("engine x=%d want 7", x)
	}
	l.snapCity(t, 5)
	first := successor(t, l.net, l.rails[0], a)
	second := successor(t, l.net, l.rails[0], b)
	tr.Tick(8)
	if tr.Occupied() != second {
		t.Fatalf("occupied=%d want second half %d", tr.Occupied(), second)
	}
	if c1, c2 := l.net.Railroad(first).TrainCount(), l.net.Railroad(second).TrainCount(); c1 != 0 || c2 != 1 {
		t.Fatalf("counts: first=%d second=%d", c1, c2)
	}
	run(tr, 9, 100)
	if tr.State() != Arrived || l.net.Railroad(second).TrainCount() != 0 {
		t.Fatalf("state=%s second=%d", tr.State(), l.net.Railroad(second).TrainCount())
	}
}

func TestTrain_StuckWhenTrackRemovedUnderIt(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	var got []Outcome
	tr := New(1, 1, l.ids[0], l.ids[1], Config{Cars: 1}, l.net, l.h, 1, Options{Report: func(o Outcome) { got = append(got, o) }})
	run(tr, 1, 4)
	if tr.State() != Travelling {
		t.Fatalf("state=%s", tr.State())
	}
	l.net.RemoveRailroad(l.rails[0])
	tr.Tick(4)
	if tr.State() != Stuck || len(got) != 1 || got[0].State != Stuck {
		t.Fatalf("state=%s outcomes=%v", tr.State(), got)
	}
	if n := l.net.Railroad(l.rails[0]).TrainCount(); n != 0 {
		t.Fatalf("removed railroad still counts %d trains", n)
	}
	if len(l.h.units) != 0 {
		t.Fatalf("units left behind: %v", l.h.units)
	}
}

func TestTrain_CarsTrailEngine(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity)
	tr := New(1, 1, l.ids[0], l.ids[1], Config{Cars: 2, Spacing: 2}, l.net, l.h, 1, Options{})
	run(tr, 1, 6)

	m := l.h.m
	if x := m.X(tr.Position()); x != 8 {
		t.Fatalf("engine x=%d want 8", x)
	}
	cars := tr.Cars()
	if len(cars) != 2 {
		t.Fatalf("cars=%d", len(cars))
	}
	for i, want := range []int{6, 4} {
		if x := m.X(l.h.units[cars[i]]); x != want {
			t.Fatalf("car %d x=%d want %d", i, x, want)
		}
		if tr.CarTile(i) != l.h.units[cars[i]] {
			t.Fatalf("CarTile(%d) disagrees with host", i)
		}
	}
}

func TestTrain_LegacyRouting(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindCity, rail.KindCity, rail.KindCity)
	tr := New(1, 1, l.ids[0], l.ids[3], Config{Routing: RoutingLegacy}, l.net, l.h, 1, Options{})
	run(tr, 1, 200)
	if tr.State() != Arrived || tr.Hops() != 3 {
		t.Fatalf("state=%s hops=%d", tr.State(), tr.Hops())
	}
}

func TestTrain_FactoryCargoDoublesCityPayout(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindFactory, rail.KindCity)
	var got Outcome
	tr := New(1, 1, l.ids[0], l.ids[2], Config{}, l.net, l.h, 1, Options{Report: func(o Outcome) { got = o }})
	run(tr, 1, 100)
	if tr.State() != Arrived {
		t.Fatalf("state=%s", tr.State())
	}
	if got.Income != 500 {
		t.Fatalf("income=%d want 500", got.Income)
	}
	if tr.Cargo() {
		t.Fatalf("cargo not unloaded")
	}
}

func TestTrain_PortLaunchesTradeShip(t *testing.T) {
	l := newLine(t, rail.KindCity, rail.KindPort, rail.KindCity)
	tr := New(1, 1, l.ids[0], l.ids[2], Config{}, l.net, l.h, 1, Options{})
	run(tr, 1, 100)
	if diff := cmp.Diff([]rail.StationID{l.ids[1]}, l.h.ships); diff != "" {
		t.Fatalf("ships (-want +got):\n%s", diff)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	trace := func() ([]rail.StationID, uint64) {
		l := newLine(t, rail.KindCity, rail.KindCity, rail.KindCity, rail.KindCity)
		var stops []rail.StationID
		tr := New(7, 1, l.ids[1], l.ids[3], Config{MaxHops: 12}, l.net, l.h, 99, Options{
			Handlers: map[rail.StructureKind]StopHandler{
				rail.KindCity: func(e *Execution, st *rail.Station, now uint64) int64 {
					stops = append(stops, st.ID)
					return 0
				},
			},
		})
		run(tr, 1, 500)
		return stops, tr.RandState()
	}
	a, ra := trace()
	b, rb := trace()
	if diff := cmp.Diff(a, b); diff != "" || ra != rb {
		t.Fatalf("runs diverged (-a +b):\n%s rand %d vs %d", diff, ra, rb)
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Spawning, Travelling, AtStation} {
		if s.Terminal() {
			t.Fatalf("%s reported terminal", s)
		}
	}
	for _, s := range []State{Arrived, HopLimitExceeded, Stuck, Cancelled} {
		if !s.Terminal() {
			t.Fatalf("%s not terminal", s)
		}
	}
}
