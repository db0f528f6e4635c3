package rail

import (
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"railnet.ai/internal/sim/terrain"
)

// RouteEntry is one row of a station's routing table. Seq is scoped to the
// destination station, which is the origin of the advert.
type RouteEntry struct {
	Dest        StationID
	NextHop     StationID
	Hops        int
	Seq         uint64
	UpdatedTick uint64
	// Organic entries were learned from train traffic and are never
	// advertised.
	Organic bool
}

// EdgeMetrics describe the best railroad to one direct neighbour.
type EdgeMetrics struct {
	Railroad     RailroadID
	Distance     int
	BaseDuration float64
}

type Station struct {
	ID    StationID
	Tile  terrain.Tile
	Owner terrain.PlayerID
	Kind  StructureKind
	Unit  UnitID

	active    bool
	railroads []RailroadID
	cluster   ClusterID
	edges     map[StationID]EdgeMetrics

	heat     float64
	heatTick uint64

	// Routing protocol state.
	routes     map[StationID]*RouteEntry
	routeOrder []StationID
	cursor     int
	seq        uint64
	seqSeen    map[StationID]uint64
	changed    map[StationID]struct{}
	dirtyTopo  bool
	lastBcast  uint64
}

func newStation(id StationID, tile terrain.Tile, owner terrain.PlayerID, kind StructureKind, unit UnitID) *Station {
	return &Station{
		ID:      id,
		Tile:    tile,
		Owner:   owner,
		Kind:    kind,
		Unit:    unit,
		active:  true,
		edges:   map[StationID]EdgeMetrics{},
		routes:  map[StationID]*RouteEntry{},
		seqSeen: map[StationID]uint64{},
		changed: map[StationID]struct{}{},
	}
}

func (s *Station) Active() bool            { return s.active }
func (s *Station) Cluster() ClusterID      { return s.cluster }
func (s *Station) Railroads() []RailroadID { return s.railroads }
func (s *Station) Seq() uint64             { return s.seq }

// Neighbors returns direct neighbours in ascending id order.
func (s *Station) Neighbors() []StationID {
	out := maps.Keys(s.edges)
	slices.Sort(out)
	return out
}

func (s *Station) IsNeighbor(id StationID) bool {
	_, ok := s.edges[id]
	return ok
}

func (s *Station) Edge(to StationID) (EdgeMetrics, bool) {
	e, ok := s.edges[to]
	return e, ok
}

// Heat returns the traffic signal decayed to now.
func (s *Station) Heat(now uint64, decay float64) float64 {
	if now <= s.heatTick || s.heat == 0 {
		return s.heat
	}
	return s.heat * math.Pow(decay, float64(now-s.heatTick))
}

func (s *Station) AddHeat(now uint64, amount, decay float64) {
	s.heat = s.Heat(now, decay) + amount
	s.heatTick = now
}

func (s *Station) Route(dest StationID) (RouteEntry, bool) {
	e, ok := s.routes[dest]
	if !ok {
		return RouteEntry{}, false
	}
	return *e, true
}

// RoutingTable copies the table in destination order.
func (s *Station) RoutingTable() []RouteEntry {
	keys := maps.Keys(s.routes)
	slices.Sort(keys)
	out := make([]RouteEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.routes[k])
	}
	return out
}

func (s *Station) SeqSeen(origin StationID) uint64 { return s.seqSeen[origin] }

func (s *Station) putRoute(e RouteEntry) {
	if _, ok := s.routes[e.Dest]; !ok {
		s.routeOrder = append(s.routeOrder, e.Dest)
	}
	cp := e
	s.routes[e.Dest] = &cp
}

func (s *Station) deleteRoute(dest StationID) {
	if _, ok := s.routes[dest]; !ok {
		return
	}
	delete(s.routes, dest)
	delete(s.changed, dest)
	if i := slices.Index(s.routeOrder, dest); i >= 0 {
		s.routeOrder = slices.Delete(s.routeOrder, i, i+1)
		if s.cursor > i {
			s.cursor--
		}
	}
}

// dropRoutesVia forgets every route whose next hop is nb.
func (s *Station) dropRoutesVia(nb StationID) {
	for _, d := range slices.Clone(s.routeOrder) {
		if e := s.routes[d]; e != nil && e.NextHop == nb {
			s.deleteRoute(d)
		}
	}
}

func (s *Station) addRailroad(id RailroadID) {
	if !slices.Contains(s.railroads, id) {
		s.railroads = append(s.railroads, id)
		slices.Sort(s.railroads)
	}
}

func (s *Station) removeRailroad(id RailroadID) {
	if i := slices.Index(s.railroads, id); i >= 0 {
		s.railroads = slices.Delete(s.railroads, i, i+1)
	}
}
