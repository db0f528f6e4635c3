package rail

import (
	"io"
	"log"

	"railnet.ai/internal/sim/pathfind"
	"railnet.ai/internal/sim/terrain"
)

type Options struct {
	Logger *log.Logger
	Sink   EventSink
}

type Stats struct {
	Stations           int
	Railroads          int
	Clusters           int
	DirtyClusters      int
	PendingConnections int
	Routes             int

	AdvertsAccepted int
	AdvertsDropped  int
	Broadcasts      int
	RoutesPruned    int
	OrganicInstalls int
	ClusterMerges   int
	ClusterSplits   int
	Snaps           int
	PathFailures    int
	ConnectRejected int
}

type snapRecord struct {
	halves  [2]RailroadID
	station StationID
	from    StationID
	at      int
	oldLen  int
}

// Network owns every station, railroad and cluster of one game instance.
// It is driven by a single goroutine: the simulation tick.
type Network struct {
	cfg  Config
	game Game
	log  *log.Logger
	sink EventSink

	reg       *Registry
	railroads []*Railroad

	clusters    map[ClusterID]*Cluster
	dirty       map[ClusterID]bool
	nextCluster ClusterID

	grid     *SpatialGrid
	tiles    *pathfind.TileGraph
	abstract *pathfind.AbstractGraph

	tasks   []*connectTask
	outbox  []routeMessage
	snapped map[RailroadID]snapRecord

	now   uint64
	stats Stats
}

func NewNetwork(cfg Config, game Game, opts Options) *Network {
	cfg.applyDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := game.Map()
	return &Network{
		cfg:       cfg,
		game:      game,
		log:       logger,
		sink:      opts.Sink,
		reg:       NewRegistry(),
		railroads: []*Railroad{nil},
		clusters:  map[ClusterID]*Cluster{},
		dirty:     map[ClusterID]bool{},
		grid:      NewSpatialGrid(m, cfg.SpatialCellSize),
		tiles:     pathfind.NewTileGraph(m, nil),
		snapped:   map[RailroadID]snapRecord{},
	}
}

func (n *Network) Config() Config      { return n.cfg }
func (n *Network) Registry() *Registry { return n.reg }
func (n *Network) Grid() *SpatialGrid  { return n.grid }
func (n *Network) Now() uint64         { return n.now }

func (n *Network) emit(e Event) {
	if n.sink == nil {
		return
	}
	if e.Tick == 0 {
		e.Tick = n.now
	}
	n.sink.RailEvent(e)
}

// station returns an active station or nil.
func (n *Network) station(id StationID) *Station {
	st := n.reg.Get(id)
	if st == nil || !st.active {
		return nil
	}
	return st
}

// Station returns any station ever registered, including removed ones.
func (n *Network) Station(id StationID) *Station { return n.reg.Get(id) }

func (n *Network) StationActive(id StationID) bool { return n.station(id) != nil }

func (n *Network) StationAt(t terrain.Tile) (*Station, bool) {
	id, ok := n.reg.AtTile(t)
	if !ok {
		return nil, false
	}
	st := n.station(id)
	return st, st != nil
}

func (n *Network) Stations() []StationID { return n.reg.Active() }

func (n *Network) Railroad(id RailroadID) *Railroad {
	if id <= 0 || int(id) >= len(n.railroads) {
		return nil
	}
	return n.railroads[id]
}

// Railroads returns active railroads in id order.
func (n *Network) Railroads() []*Railroad {
	var out []*Railroad
	for _, rr := range n.railroads {
		if rr != nil && rr.active {
			out = append(out, rr)
		}
	}
	return out
}

func (n *Network) Neighbors(id StationID) []StationID {
	st := n.station(id)
	if st == nil {
		return nil
	}
	return st.Neighbors()
}

// RailroadBetween returns the shortest railroad joining two neighbours.
func (n *Network) RailroadBetween(a, b StationID) (*Railroad, bool) {
	st := n.station(a)
	if st == nil {
		return nil, false
	}
	e, ok := st.edges[b]
	if !ok {
		return nil, false
	}
	return n.railroads[e.Railroad], true
}

// AddStation registers a station for a qualifying building and gives it a
// singleton cluster. A tile already holding a station returns that station.
func (n *Network) AddStation(tile terrain.Tile, owner terrain.PlayerID, kind StructureKind, unit UnitID) (StationID, bool) {
	if id, ok := n.reg.AtTile(tile); ok && n.station(id) != nil {
		return id, false
	}
	st := n.reg.add(tile, owner, kind, unit)
	n.newCluster(st.ID)
	n.emit(Event{Kind: EventStationAdded, Station: st.ID, Tiles: []terrain.Tile{tile}})
	return st.ID, true
}

// RemoveStation deletes every incident railroad and marks the station's
// cluster dirty; the split is resolved lazily on the next cluster query.
func (n *Network) RemoveStation(id StationID) bool {
	st := n.station(id)
	if st == nil {
		return false
	}
	for _, rid := range append([]RailroadID(nil), st.railroads...) {
		n.removeRailroad(rid, true)
	}
	n.detachFromCluster(st)
	st.active = false
	n.reg.remove(st)
	for _, other := range n.reg.stations {
		if other != nil && other.active {
			other.deleteRoute(id)
		}
	}
	n.emit(Event{Kind: EventStationRemoved, Station: id})
	return true
}

// BuildRailroad lays a railroad along tiles, which must run from the tile
// of from to the tile of to.
func (n *Network) BuildRailroad(from, to StationID, tiles []terrain.Tile) (RailroadID, bool) {
	a, b := n.station(from), n.station(to)
	if a == nil || b == nil || from == to || len(tiles) < 2 {
		return 0, false
	}
	if tiles[0] != a.Tile || tiles[len(tiles)-1] != b.Tile {
		return 0, false
	}
	rr := n.addRailroad(a, b, tiles, true)
	return rr.ID, true
}

func (n *Network) RemoveRailroad(id RailroadID) bool {
	rr := n.Railroad(id)
	if rr == nil || !rr.active {
		return false
	}
	n.removeRailroad(id, true)
	return true
}

func (n *Network) addRailroad(a, b *Station, tiles []terrain.Tile, announce bool) *Railroad {
	id := RailroadID(len(n.railroads))
	rr := NewRailroad(id, a.ID, b.ID, tiles, &n.cfg.Economics)
	n.railroads = append(n.railroads, rr)
	n.grid.Register(id, rr.tiles)

	for _, st := range []*Station{a, b} {
		st.addRailroad(id)
		n.refreshEdges(st)
		st.dirtyTopo = true
	}
	if a.cluster == 0 {
		n.newCluster(a.ID)
	}
	if b.cluster == 0 {
		n.newCluster(b.ID)
	}
	n.mergeClusters(a.cluster, b.cluster)

	if announce {
		n.emit(Event{
			Kind:     EventRailroadConstructed,
			Railroad: id,
			From:     a.ID,
			To:       b.ID,
			Tiles:    rr.tiles,
		})
	}
	return rr
}

func (n *Network) removeRailroad(id RailroadID, announce bool) {
	rr := n.railroads[id]
	rr.active = false
	n.grid.Unregister(id)
	for _, sid := range []StationID{rr.From, rr.To} {
		st := n.station(sid)
		if st == nil {
			continue
		}
		other := rr.Other(sid)
		st.removeRailroad(id)
		n.refreshEdges(st)
		if !st.IsNeighbor(other) {
			st.dropRoutesVia(other)
			st.dirtyTopo = true
		}
		if st.cluster != 0 {
			n.dirty[st.cluster] = true
		}
	}
	if announce {
		n.emit(Event{Kind: EventRailroadDestructed, Railroad: id})
	}
}

// refreshEdges rebuilds neighbour metrics from the incident railroads,
// keeping the shortest railroad per neighbour.
func (n *Network) refreshEdges(st *Station) {
	edges := make(map[StationID]EdgeMetrics, len(st.railroads))
	for _, rid := range st.railroads {
		rr := n.railroads[rid]
		if rr == nil || !rr.active {
			continue
		}
		nb := rr.Other(st.ID)
		if prev, ok := edges[nb]; ok && prev.Distance <= rr.Length() {
			continue
		}
		edges[nb] = EdgeMetrics{
			Railroad:     rid,
			Distance:     rr.Length(),
			BaseDuration: max(1, float64(rr.Length())/float64(n.cfg.NominalSpeed)),
		}
	}
	st.edges = edges
}

// Occupy and Release track trains on a railroad; both publish fare changes.
func (n *Network) Occupy(id RailroadID, now uint64) {
	rr := n.Railroad(id)
	if rr == nil || !rr.active {
		return
	}
	if rr.Enter(now) {
		n.emitFare(rr, now)
	}
}

func (n *Network) Release(id RailroadID, now uint64) {
	rr := n.Railroad(id)
	if rr == nil {
		return
	}
	if rr.Exit(now) && rr.active {
		n.emitFare(rr, now)
	}
}

func (n *Network) emitFare(rr *Railroad, now uint64) {
	n.emit(Event{Kind: EventFareUpdated, Tick: now, Railroad: rr.ID, Fare: rr.Fare(), Trains: rr.TrainCount()})
}

func (n *Network) ChargeFare(id RailroadID, payer terrain.PlayerID, now uint64) FareReceipt {
	rr := n.Railroad(id)
	if rr == nil || !rr.active {
		return FareReceipt{}
	}
	return rr.ChargeFare(n.game, payer, now)
}

// Successor reports which railroad replaced the part of a snapped railroad
// that touches from, and how many tiles from from the snapped station
// joined the old track.
func (n *Network) Successor(old RailroadID, from StationID) (RailroadID, int, bool) {
	rec, ok := n.snapped[old]
	if !ok {
		return 0, 0, false
	}
	if from == rec.from {
		return rec.halves[0], rec.at, true
	}
	return rec.halves[1], rec.oldLen - 1 - rec.at, true
}

// Heat increments a station's traffic signal.
func (n *Network) Heat(id StationID, now uint64) {
	if st := n.station(id); st != nil {
		st.AddHeat(now, n.cfg.HeatPerVisit, n.cfg.HeatDecay)
	}
}

// Invalidate drops the cached HPA abstraction after terrain changes.
func (n *Network) Invalidate() {
	n.abstract = nil
	n.tiles = pathfind.NewTileGraph(n.game.Map(), nil)
}

func (n *Network) abstractGraph() *pathfind.AbstractGraph {
	if n.abstract == nil {
		n.abstract = pathfind.BuildAbstractGraph(n.tiles, n.cfg.HPAClusterSize)
		n.log.Printf("hpa abstraction built: %d gateways", n.abstract.GatewayCount())
	}
	return n.abstract
}

// Tick advances pending connections, the routing protocol and congestion
// sampling by one simulation tick.
func (n *Network) Tick(now uint64) {
	n.now = now
	n.runConnectTasks(now)
	n.tickRouting(now)
	for _, rr := range n.railroads {
		if rr == nil || !rr.active {
			continue
		}
		if rr.trainCount == 0 && rr.congestionEMA < 0.01 {
			continue
		}
		if rr.Sample(now) {
			n.emitFare(rr, now)
		}
	}
}

func (n *Network) Stats() Stats {
	s := n.stats
	s.Stations = len(n.reg.Active())
	s.Railroads = len(n.Railroads())
	s.Clusters = len(n.clusters)
	s.DirtyClusters = len(n.dirty)
	s.PendingConnections = len(n.tasks)
	for _, st := range n.reg.stations {
		if st != nil && st.active {
			s.Routes += len(st.routes)
		}
	}
	return s
}
