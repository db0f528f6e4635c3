package rail

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"railnet.ai/internal/sim/logic/mathx"
	"railnet.ai/internal/sim/terrain"
)

func assertContiguous(t *testing.T, m terrain.Map, tiles []terrain.Tile) {
	t.Helper()
	for i := 1; i < len(tiles); i++ {
		if m.Manhattan(tiles[i-1], tiles[i]) != 1 {
			t.Fatalf("tiles not contiguous at %d", i)
		}
	}
}

func TestSnap_SplitsRailroadAtClosestTile(t *testing.T) {
	n, g, rec := newTestNetwork(t, 40, 10, testConfig())
	x := addCity(n, 0, 5, 1)
	y := addCity(n, 20, 5, 1)
	old := mustBuild(t, n, x, y)
	if n.Railroad(old).Length() != 20 {
		t.Fatalf("setup length=%d", n.Railroad(old).Length())
	}

	z := addCity(n, 8, 5, 1)
	res := n.ConnectStation(z)
	if !cmp.Equal(res.Snapped, []RailroadID{old}) || res.Queued != 0 {
		t.Fatalf("connect result=%+v", res)
	}
	if n.Railroad(old).Active() {
		t.Fatalf("original railroad still active")
	}

	snaps := rec.ofKind(EventRailroadSnapped)
	if len(snaps) != 1 {
		t.Fatalf("snap events=%d want 1", len(snaps))
	}
	ev := snaps[0]
	if ev.Railroad != old || ev.NewIDs[0] == ev.NewIDs[1] || ev.NewIDs[0] == old || ev.NewIDs[1] == old {
		t.Fatalf("snap event ids: %+v", ev)
	}
	a, b := n.Railroad(ev.NewIDs[0]), n.Railroad(ev.NewIDs[1])
	if a.Length() != 8 || b.Length() != 12 {
		t.Fatalf("split lengths=%d,%d want 8,12", a.Length(), b.Length())
	}
	if a.From != x || a.To != z || b.From != z || b.To != y {
		t.Fatalf("split endpoints: %d-%d, %d-%d", a.From, a.To, b.From, b.To)
	}
	if !cmp.Equal(ev.NewTiles[0], a.Tiles()) || !cmp.Equal(ev.NewTiles[1], b.Tiles()) {
		t.Fatalf("snap event tiles do not match new railroads")
	}
	if !cmp.Equal(n.Neighbors(z), []StationID{x, y}) {
		t.Fatalf("z neighbors=%v", n.Neighbors(z))
	}
	if n.Station(x).IsNeighbor(y) {
		t.Fatalf("x and y still directly adjacent")
	}
	if !n.SameCluster(x, z) || !n.SameCluster(z, y) {
		t.Fatalf("snapped station not in the railroad's cluster")
	}
	if got := n.Grid().Query(g.m.Ref(8, 5), 0); cmp.Equal(got, []RailroadID{old}) {
		t.Fatalf("grid still indexes the old railroad")
	}
	if len(rec.ofKind(EventRailroadConstructed)) != 1 {
		t.Fatalf("halves must be announced by the snap event only")
	}

	if id, at, ok := n.Successor(old, x); !ok || id != a.ID || at != 8 {
		t.Fatalf("successor from x = %d,%d,%v", id, at, ok)
	}
	if id, at, ok := n.Successor(old, y); !ok || id != b.ID || at != 12 {
		t.Fatalf("successor from y = %d,%d,%v", id, at, ok)
	}
}

func TestSnap_OffTrackStationGetsSpur(t *testing.T) {
	n, g, _ := newTestNetwork(t, 40, 10, testConfig())
	x := addCity(n, 0, 5, 1)
	y := addCity(n, 20, 5, 1)
	mustBuild(t, n, x, y)
	z := addCity(n, 8, 7, 1)
	res := n.ConnectStation(z)
	if len(res.Snapped) != 1 {
		t.Fatalf("expected snap, got %+v", res)
	}
	for _, rr := range n.Railroads() {
		o := rr.Orient(rr.From)
		if o.At(0) != n.Station(rr.From).Tile || o.At(o.Len()-1) != n.Station(rr.To).Tile {
			t.Fatalf("railroad %d endpoints do not match its stations", rr.ID)
		}
		assertContiguous(t, g.m, rr.Tiles())
	}
}

func TestSnap_EndpointFallsBackToConnect(t *testing.T) {
	n, _, _ := newTestNetwork(t, 40, 10, testConfig())
	x := addCity(n, 0, 5, 1)
	y := addCity(n, 20, 5, 1)
	mustBuild(t, n, x, y)
	z := addCity(n, 0, 7, 1)
	res := n.ConnectStation(z)
	if len(res.Snapped) != 0 {
		t.Fatalf("snapped onto an endpoint: %+v", res)
	}
	// x is closer than MinRange; only y qualifies.
	if res.Queued != 1 {
		t.Fatalf("queued=%d want 1", res.Queued)
	}
}

func TestConnect_CandidatesComeFromNearbyUnits(t *testing.T) {
	n, g, _ := newTestNetwork(t, 60, 10, testConfig())
	a := addCity(n, 2, 2, 1)
	addCity(n, 12, 2, 1)
	c := addCity(n, 22, 2, 1)
	g.hidden[g.m.Ref(12, 2)] = true

	res := n.ConnectStation(a)
	if res.Queued != 1 {
		t.Fatalf("queued=%d want 1", res.Queued)
	}
	if diff := cmp.Diff([][2]StationID{{a, c}}, n.PendingConnections()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}
}

func clusterSets(n *Network) [][]StationID {
	var out [][]StationID
	for _, c := range n.Clusters() {
		out = append(out, c.Members())
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func TestClusters_DisconnectAndSplit(t *testing.T) {
	n, _, _ := newTestNetwork(t, 30, 5, testConfig())
	a := addCity(n, 0, 0, 1)
	b := addCity(n, 10, 0, 1)
	c := addCity(n, 20, 0, 1)
	mustBuild(t, n, a, b)
	mustBuild(t, n, b, c)
	if !n.SameCluster(a, c) {
		t.Fatalf("line not merged into one cluster")
	}

	n.RemoveStation(b)
	if n.Stats().DirtyClusters != 1 {
		t.Fatalf("removal should only mark the cluster dirty")
	}
	n.ResolveDirtyClusters()
	if diff := cmp.Diff([][]StationID{{a}, {c}}, clusterSets(n)); diff != "" {
		t.Fatalf("clusters (-want +got):\n%s", diff)
	}
}

func TestClusters_BypassKeepsClusterWhole(t *testing.T) {
	n, g, _ := newTestNetwork(t, 30, 5, testConfig())
	a := addCity(n, 0, 0, 1)
	b := addCity(n, 10, 0, 1)
	c := addCity(n, 20, 0, 1)
	mustBuild(t, n, a, b)
	mustBuild(t, n, b, c)
	bypass := []terrain.Tile{g.m.Ref(0, 0)}
	bypass = append(bypass, lpath(g.m, 0, 1, 20, 1)...)
	bypass = append(bypass, g.m.Ref(20, 0))
	if _, ok := n.BuildRailroad(a, c, bypass); !ok {
		t.Fatalf("bypass build failed")
	}

	n.RemoveStation(b)
	if diff := cmp.Diff([][]StationID{{a, c}}, clusterSets(n)); diff != "" {
		t.Fatalf("clusters (-want +got):\n%s", diff)
	}
}

func TestClusters_PartitionInvariantUnderChurn(t *testing.T) {
	n, g, _ := newTestNetwork(t, 64, 64, testConfig())
	rng := mathx.NewRand(11, 0)
	free := func() (int, int) {
		for {
			x, y := rng.Intn(64), rng.Intn(64)
			if _, taken := n.StationAt(g.m.Ref(x, y)); !taken {
				return x, y
			}
		}
	}
	for i := 0; i < 12; i++ {
		x, y := free()
		addCity(n, x, y, 1)
	}

	for step := 0; step < 300; step++ {
		ids := n.Stations()
		switch op := rng.Intn(10); {
		case op < 5 && len(ids) >= 2:
			a, b := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
			if a != b {
				mustBuild(t, n, a, b)
			}
		case op < 7:
			if rrs := n.Railroads(); len(rrs) > 0 {
				n.RemoveRailroad(rrs[rng.Intn(len(rrs))].ID)
			}
		case op < 8 && len(ids) > 0:
			n.RemoveStation(ids[rng.Intn(len(ids))])
		default:
			x, y := free()
			addCity(n, x, y, 1)
		}

		ids = n.Stations()
		for _, a := range ids {
			reach := n.component(a)
			for _, b := range ids {
				_, connected := reach[b]
				if n.SameCluster(a, b) != connected {
					t.Fatalf("step %d: stations %d,%d sameCluster=%v reachable=%v",
						step, a, b, n.SameCluster(a, b), connected)
				}
			}
		}
	}
}

func lineNetwork(t *testing.T, cfg Config, count int) (*Network, []StationID) {
	t.Helper()
	n, _, _ := newTestNetwork(t, 10*count+10, 3, cfg)
	ids := make([]StationID, count)
	for i := range ids {
		ids[i] = addCity(n, 10*i, 0, 1)
	}
	for i := 1; i < count; i++ {
		mustBuild(t, n, ids[i-1], ids[i])
	}
	return n, ids
}

func routingConfig() Config {
	cfg := testConfig()
	cfg.Routing.BroadcastIntervalTicks = 10
	cfg.Routing.RouteStaleTicks = 40
	return cfg
}

func TestRouting_ConvergesAlongLine(t *testing.T) {
	n, s := lineNetwork(t, routingConfig(), 4)
	for now := uint64(1); now <= 40; now++ {
		n.Tick(now)
	}
	e, ok := n.Station(s[3]).Route(s[0])
	if !ok {
		t.Fatalf("no route D->A")
	}
	if e.NextHop != s[2] || e.Hops != 3 || e.Organic {
		t.Fatalf("route D->A = %+v", e)
	}
	e, ok = n.Station(s[0]).Route(s[3])
	if !ok || e.NextHop != s[1] || e.Hops != 3 {
		t.Fatalf("route A->D = %+v ok=%v", e, ok)
	}
}

func TestRouting_HopCountBound(t *testing.T) {
	cfg := routingConfig()
	cfg.Routing.MaxHops = 2
	n, s := lineNetwork(t, cfg, 5)
	for now := uint64(1); now <= 60; now++ {
		n.Tick(now)
		for _, id := range s {
			for _, e := range n.Station(id).RoutingTable() {
				if e.Hops > 2 {
					t.Fatalf("tick %d: station %d holds %+v", now, id, e)
				}
			}
		}
	}
	if _, ok := n.Station(s[3]).Route(s[0]); ok {
		t.Fatalf("route beyond MaxHops installed")
	}
	if _, ok := n.Station(s[2]).Route(s[0]); !ok {
		t.Fatalf("route within MaxHops missing")
	}
}

type routingState struct {
	Table []RouteEntry
	Seen  map[StationID]uint64
}

func snapshotRouting(st *Station) routingState {
	seen := map[StationID]uint64{}
	for k, v := range st.seqSeen {
		seen[k] = v
	}
	return routingState{Table: st.RoutingTable(), Seen: seen}
}

func TestRouting_StaleAdvertLeavesTableUnchanged(t *testing.T) {
	n, s := lineNetwork(t, routingConfig(), 4)
	for now := uint64(1); now <= 30; now++ {
		n.Tick(now)
	}
	b := n.Station(s[1])
	before := snapshotRouting(b)
	seen := b.SeqSeen(s[3])
	if seen == 0 {
		t.Fatalf("B never heard from D")
	}

	for _, seq := range []uint64{seen, seen - 1, 0} {
		if n.ReceiveAdvert(s[1], s[2], Advert{Dest: s[3], Hops: 0, Seq: seq}, 31) {
			t.Fatalf("seq %d accepted, seen=%d", seq, seen)
		}
	}
	// Loop back to self and non-neighbour senders are dropped as well.
	if n.ReceiveAdvert(s[1], s[2], Advert{Dest: s[1], Hops: 1, Seq: seen + 100}, 31) {
		t.Fatalf("advert for self accepted")
	}
	if n.ReceiveAdvert(s[1], s[3], Advert{Dest: s[3], Hops: 0, Seq: seen + 100}, 31) {
		t.Fatalf("advert from non-neighbour accepted")
	}
	if diff := cmp.Diff(before, snapshotRouting(b)); diff != "" {
		t.Fatalf("routing state changed (-before +after):\n%s", diff)
	}

	if !n.ReceiveAdvert(s[1], s[2], Advert{Dest: s[3], Hops: 1, Seq: seen + 1}, 31) {
		t.Fatalf("newer advert rejected")
	}
	if e, _ := b.Route(s[3]); e.Hops != 2 || e.Seq != seen+1 {
		t.Fatalf("installed %+v", e)
	}
}

func TestRouting_LostEdgeDropsRoutes(t *testing.T) {
	n, s := lineNetwork(t, routingConfig(), 3)
	for now := uint64(1); now <= 20; now++ {
		n.Tick(now)
	}
	rr, _ := n.RailroadBetween(s[0], s[1])
	n.RemoveRailroad(rr.ID)
	for _, e := range n.Station(s[0]).RoutingTable() {
		if e.NextHop == s[1] {
			t.Fatalf("route via lost neighbour kept: %+v", e)
		}
	}
}

func TestRouting_CleanupIsBoundedPerTick(t *testing.T) {
	cfg := routingConfig()
	cfg.Routing.CleanupSlice = 1
	n, s := lineNetwork(t, cfg, 2)
	st := n.Station(s[0])
	for d := StationID(100); d < 103; d++ {
		st.putRoute(RouteEntry{Dest: d, NextHop: s[1], Hops: 2, UpdatedTick: 0})
	}
	if removed := n.cleanupRoutes(st, 1000); removed != 1 {
		t.Fatalf("removed=%d want 1", removed)
	}
	if len(st.RoutingTable()) != 2 {
		t.Fatalf("table=%v", st.RoutingTable())
	}
	n.cleanupRoutes(st, 1000)
	n.cleanupRoutes(st, 1000)
	if len(st.RoutingTable()) != 0 || len(st.routeOrder) != 0 {
		t.Fatalf("stale entries survived: %v", st.RoutingTable())
	}
}

func TestRouting_ProtocolDisabled(t *testing.T) {
	cfg := routingConfig()
	cfg.Routing.ProtocolDisabled = true
	n, _ := lineNetwork(t, cfg, 4)
	for now := uint64(1); now <= 30; now++ {
		n.Tick(now)
	}
	if st := n.Stats(); st.Routes != 0 || st.Broadcasts != 0 {
		t.Fatalf("protocol ran while disabled: %+v", st)
	}
}

func TestOrganic_InstallsImprovingRoutesOnly(t *testing.T) {
	cfg := routingConfig()
	cfg.Routing.ProtocolDisabled = true
	n, s := lineNetwork(t, cfg, 4)
	a, b, c, d := s[0], s[1], s[2], s[3]

	if got := n.OfferExperience(c, []StationID{a, b}, 5); got != 2 {
		t.Fatalf("installed=%d want 2", got)
	}
	e, _ := n.Station(c).Route(a)
	if e.NextHop != b || e.Hops != 2 || !e.Organic {
		t.Fatalf("route c->a = %+v", e)
	}

	// Longer experience does not replace a shorter route.
	n.OfferExperience(c, []StationID{a, d, b}, 6)
	if e, _ := n.Station(c).Route(a); e.Hops != 2 || e.UpdatedTick != 5 {
		t.Fatalf("route c->a replaced by a longer one: %+v", e)
	}
	// Same length only replaces a staler entry.
	if got := n.OfferExperience(c, []StationID{a, b}, 7); got != 2 {
		t.Fatalf("equal but fresher experience installed %d want 2", got)
	}
	if got := n.OfferExperience(c, []StationID{a, b}, 7); got != 0 {
		t.Fatalf("equal and equally fresh experience installed %d", got)
	}
	// Organic entries are never advertised.
	n.cfg.Routing.ProtocolDisabled = false
	for _, adv := range n.collectBroadcast(n.Station(c), 10) {
		if adv.Dest != c {
			t.Fatalf("organic route advertised: %+v", adv)
		}
	}
}

func TestOrganic_SkipsNonDestinations(t *testing.T) {
	n, g, _ := newTestNetwork(t, 40, 3, routingConfig())
	a := addCity(n, 0, 0, 1)
	f, _ := n.AddStation(g.m.Ref(10, 0), 1, KindFactory, 0)
	c := addCity(n, 20, 0, 1)
	mustBuild(t, n, a, f)
	mustBuild(t, n, f, c)
	n.OfferExperience(c, []StationID{a, f}, 3)
	if _, ok := n.Station(c).Route(f); ok {
		t.Fatalf("factory learned as destination")
	}
	if _, ok := n.Station(c).Route(a); !ok {
		t.Fatalf("city not learned")
	}
}

// star builds s with neighbours p and q, and r reachable only through q.
func star(t *testing.T, cfg Config, qKind StructureKind) (n *Network, s, p, q, r StationID) {
	t.Helper()
	n, g, _ := newTestNetwork(t, 60, 3, cfg)
	p = addCity(n, 0, 0, 1)
	s = addCity(n, 10, 0, 1)
	q, _ = n.AddStation(g.m.Ref(20, 0), 1, qKind, 0)
	r = addCity(n, 40, 0, 1)
	mustBuild(t, n, p, s)
	mustBuild(t, n, s, q)
	mustBuild(t, n, q, r)
	return n, s, p, q, r
}

func TestChoose_RecencySuppressesImmediateBacktrack(t *testing.T) {
	cfg := testConfig()
	cfg.Choice.RecencyPenalty = 1
	for _, kind := range []StructureKind{KindCity, KindFactory} {
		n, s, p, q, r := star(t, cfg, kind)
		if got := n.ScoreNeighbor(s, p, Choice{Dest: r, Owner: 1, History: []StationID{p}}); got != 0 {
			t.Fatalf("decayed score of previous station=%v want 0", got)
		}
		for seed := int64(0); seed < 50; seed++ {
			got, ok := n.ChooseNextStation(s, Choice{
				Dest:    r,
				Owner:   1,
				History: []StationID{p},
				Rand:    mathx.NewRand(seed, 1),
			})
			if !ok || got != q {
				t.Fatalf("kind=%s seed=%d chose %d want %d", kind, seed, got, q)
			}
		}
	}
}

func TestChoose_RecencyDecaysWithAge(t *testing.T) {
	cfg := testConfig()
	cfg.Choice.RecencyPenalty = 0.8
	cfg.Choice.RecencyDecay = 0.5
	n, s, p, _, r := star(t, cfg, KindCity)
	fresh := n.ScoreNeighbor(s, p, Choice{Dest: r, Owner: 1})
	prev := -1.0
	for k := 1; k <= 5; k++ {
		hist := make([]StationID, k)
		hist[0] = p
		for i := 1; i < k; i++ {
			hist[i] = StationID(1000 + i)
		}
		got := n.ScoreNeighbor(s, p, Choice{Dest: r, Owner: 1, History: hist})
		if got <= prev || got >= fresh {
			t.Fatalf("k=%d score=%v prev=%v fresh=%v", k, got, prev, fresh)
		}
		prev = got
	}
}

func TestChoose_DirectDestinationAndRoutes(t *testing.T) {
	n, s, p, q, r := star(t, testConfig(), KindCity)
	rng := mathx.NewRand(1, 1)
	if got, _ := n.ChooseNextStation(s, Choice{Dest: p, Owner: 1, History: []StationID{q}, Rand: rng}); got != p {
		t.Fatalf("did not take direct neighbour destination")
	}
	// A known route is followed even against the score.
	n.Station(s).putRoute(RouteEntry{Dest: r, NextHop: p, Hops: 3, UpdatedTick: 0})
	if got, _ := n.ChooseNextStation(s, Choice{Dest: r, Owner: 1, Rand: rng}); got != p {
		t.Fatalf("route not followed, chose %d", got)
	}
}

func TestChoose_HeatDampsBusyStation(t *testing.T) {
	cfg := testConfig()
	cfg.Choice.HeatPenalty = 1
	n, _, _ := newTestNetwork(t, 60, 30, cfg)
	s := addCity(n, 20, 10, 1)
	a := addCity(n, 10, 10, 1)
	b := addCity(n, 30, 10, 1)
	r := addCity(n, 50, 25, 1)
	mustBuild(t, n, s, a)
	mustBuild(t, n, s, b)
	for i := 0; i < 5; i++ {
		n.Heat(a, 1)
	}
	got, _ := n.ChooseNextStation(s, Choice{Dest: r, Owner: 1, Rand: mathx.NewRand(3, 3), Now: 1})
	if got != b {
		t.Fatalf("chose busy station %d", got)
	}
}

func TestChoose_IsolatedStationIsStuck(t *testing.T) {
	n, _, _ := newTestNetwork(t, 20, 3, testConfig())
	s := addCity(n, 0, 0, 1)
	r := addCity(n, 10, 0, 1)
	if _, ok := n.ChooseNextStation(s, Choice{Dest: r, Rand: mathx.NewRand(1, 1)}); ok {
		t.Fatalf("expected no next hop")
	}
}

func TestConnect_BuildsTrackOverTicks(t *testing.T) {
	for _, hpa := range []bool{false, true} {
		cfg := testConfig()
		cfg.UseHPA = hpa
		cfg.HPAClusterSize = 8
		cfg.PathIterations = 20
		cfg.PathBudgetPerTick = 1
		cfg.PathMaxTries = 1000
		n, g, rec := newTestNetwork(t, 40, 30, cfg)
		for y := 0; y < 25; y++ {
			g.m.SetLand(g.m.Ref(15, y), false)
		}
		n.Invalidate()
		a := addCity(n, 2, 2, 1)
		b := addCity(n, 30, 20, 1)
		if res := n.ConnectStation(a); res.Queued != 1 {
			t.Fatalf("hpa=%v queued=%d", hpa, res.Queued)
		}
		now := uint64(0)
		for n.Stats().PendingConnections > 0 && now < 500 {
			now++
			n.Tick(now)
		}
		if now < 2 {
			t.Fatalf("hpa=%v search finished in one tick; budget not applied", hpa)
		}
		rr, ok := n.RailroadBetween(a, b)
		if !ok {
			t.Fatalf("hpa=%v no railroad built (stats %+v)", hpa, n.Stats())
		}
		tiles := rr.Orient(a).Tiles()
		if tiles[0] != g.m.Ref(2, 2) || tiles[len(tiles)-1] != g.m.Ref(30, 20) {
			t.Fatalf("hpa=%v endpoints wrong", hpa)
		}
		assertContiguous(t, g.m, tiles)
		for _, tt := range tiles {
			if !g.m.IsLand(tt) {
				t.Fatalf("hpa=%v track on water", hpa)
			}
		}
		if !n.SameCluster(a, b) {
			t.Fatalf("hpa=%v clusters not merged", hpa)
		}
		if len(rec.ofKind(EventRailroadConstructed)) != 1 {
			t.Fatalf("hpa=%v construction not announced", hpa)
		}
	}
}

func TestConnect_UnreachableAndOversized(t *testing.T) {
	cfg := testConfig()
	cfg.UseHPA = false
	n, g, _ := newTestNetwork(t, 40, 10, cfg)
	for y := 0; y < 10; y++ {
		g.m.SetLand(g.m.Ref(20, y), false)
	}
	a := addCity(n, 2, 2, 1)
	addCity(n, 30, 2, 1)
	n.ConnectStation(a)
	for now := uint64(1); now < 200 && n.Stats().PendingConnections > 0; now++ {
		n.Tick(now)
	}
	if st := n.Stats(); st.PathFailures != 1 || st.Railroads != 0 {
		t.Fatalf("stats=%+v", st)
	}

	cfg.MaxRailroadSize = 5
	n2, _, _ := newTestNetwork(t, 40, 10, cfg)
	c := addCity(n2, 2, 2, 1)
	addCity(n2, 12, 2, 1)
	n2.ConnectStation(c)
	for now := uint64(1); now < 200 && n2.Stats().PendingConnections > 0; now++ {
		n2.Tick(now)
	}
	if st := n2.Stats(); st.ConnectRejected != 1 || st.Railroads != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPreview_DoesNotMutate(t *testing.T) {
	n, g, rec := newTestNetwork(t, 40, 10, testConfig())
	x := addCity(n, 0, 5, 1)
	y := addCity(n, 20, 5, 1)
	old := mustBuild(t, n, x, y)
	events := len(rec.events)

	p := n.PreviewConnections(g.m.Ref(8, 5), 1)
	if len(p.Snaps) != 1 || p.Snaps[0].Railroad != old || p.Snaps[0].Index != 8 {
		t.Fatalf("preview=%+v", p)
	}
	p = n.PreviewConnections(g.m.Ref(30, 0), 1)
	if len(p.Paths) == 0 || p.Paths[0].To != y {
		t.Fatalf("preview paths=%+v", p.Paths)
	}
	if !n.Railroad(old).Active() || len(rec.events) != events || n.Stats().Stations != 2 {
		t.Fatalf("preview mutated the network")
	}
}

func TestStationPath_Legacy(t *testing.T) {
	n, g, _ := newTestNetwork(t, 30, 6, testConfig())
	a := addCity(n, 0, 0, 1)
	b := addCity(n, 10, 0, 1)
	c := addCity(n, 20, 0, 1)
	mustBuild(t, n, a, b)
	mustBuild(t, n, b, c)
	detour := []terrain.Tile{g.m.Ref(0, 0)}
	detour = append(detour, lpath(g.m, 0, 1, 0, 4)...)
	detour = append(detour, lpath(g.m, 1, 4, 20, 4)...)
	detour = append(detour, lpath(g.m, 20, 3, 20, 0)...)
	if _, ok := n.BuildRailroad(a, c, detour); !ok {
		t.Fatalf("detour build failed")
	}

	if got := n.StationPath(a, c); !cmp.Equal(got, []StationID{a, b, c}) {
		t.Fatalf("path=%v", got)
	}
	n.RemoveStation(b)
	if got := n.StationPath(a, c); !cmp.Equal(got, []StationID{a, c}) {
		t.Fatalf("path after removal=%v", got)
	}
	d := addCity(n, 25, 5, 1)
	if got := n.StationPath(a, d); got != nil {
		t.Fatalf("unreachable path=%v", got)
	}
}

func TestOccupancy_PublishesFareUpdates(t *testing.T) {
	n, _, rec := newTestNetwork(t, 30, 3, testConfig())
	a := addCity(n, 0, 0, 1)
	b := addCity(n, 10, 0, 1)
	id := mustBuild(t, n, a, b)
	n.Occupy(id, 1)
	n.Occupy(id, 1)
	for now := uint64(2); now < 50; now++ {
		n.Tick(now)
	}
	ups := rec.ofKind(EventFareUpdated)
	if len(ups) == 0 {
		t.Fatalf("no fare updates")
	}
	last := ups[len(ups)-1]
	if last.Railroad != id || last.Trains != 2 || last.Fare != n.Railroad(id).Fare() {
		t.Fatalf("last fare event=%+v", last)
	}
	n.Release(id, 50)
	n.Release(id, 50)
	n.Release(id, 50)
	if n.Railroad(id).TrainCount() != 0 {
		t.Fatalf("occupancy=%d", n.Railroad(id).TrainCount())
	}
}
