// Package world hosts one rail network game: terrain, players, their
// structures and the trains running between them. A World is a
// single-threaded authoritative simulation; all state is owned by the world
// loop goroutine and reached from outside through channels.
package world

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"railnet.ai/internal/persistence/snapshot"
	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
	"railnet.ai/internal/sim/train"
)

type Options struct {
	Logger *log.Logger
}

type World struct {
	cfg WorldConfig
	log *log.Logger

	tick    atomic.Uint64
	metrics atomic.Value

	grid *terrain.Grid
	net  *rail.Network

	players    map[terrain.PlayerID]*Player
	stances    map[[2]terrain.PlayerID]rail.Relation
	units      map[rail.UnitID]*Unit
	structures map[rail.StationID]*Structure
	buildings  map[rail.UnitID]*Structure
	index      *buildingIndex
	trains     map[uint64]*train.Execution
	ships      []*tradeShip

	nextUnit  uint64
	nextTrain uint64

	// Per-tick buffers, reset at the start of each step.
	tickEvents []protocol.Event
	outcomes   []train.Outcome
	muted      bool

	backlog []EventCursorItem
	cursor  uint64

	totals outcomeTotals

	inbox    chan CommandEnvelope
	queries  chan func()
	stop     chan struct{}
	stopOnce sync.Once

	// Observer sessions (read-only).
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	eventLogger  EventLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

type outcomeTotals struct {
	arrived   uint64
	stuck     uint64
	cancelled uint64
	income    int64
	fares     int64
}

func New(cfg WorldConfig, opts Options) (*World, error) {
	cfg.applyDefaults()
	if cfg.Width*cfg.Height > 1<<24 {
		return nil, fmt.Errorf("map %dx%d too large", cfg.Width, cfg.Height)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:           cfg,
		log:           logger,
		grid:          terrain.NewGrid(cfg.Width, cfg.Height),
		players:       map[terrain.PlayerID]*Player{},
		stances:       map[[2]terrain.PlayerID]rail.Relation{},
		units:         map[rail.UnitID]*Unit{},
		structures:    map[rail.StationID]*Structure{},
		buildings:     map[rail.UnitID]*Structure{},
		trains:        map[uint64]*train.Execution{},
		inbox:         make(chan CommandEnvelope, 1024),
		queries:       make(chan func(), 64),
		stop:          make(chan struct{}),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
	}
	w.grid.Generate(cfg.Seed, cfg.WaterPermille)
	w.net = w.newNetwork()
	w.index = newBuildingIndex(w.grid, w.net.Config().SpatialCellSize)
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) newNetwork() *rail.Network {
	return rail.NewNetwork(w.cfg.Rail, w, rail.Options{
		Logger: w.log,
		Sink:   rail.SinkFunc(w.onRailEvent),
	})
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetEventLogger(l EventLogger)                  { w.eventLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Network and Grid expose simulation state. Callers outside the world loop
// must go through Do.
func (w *World) Network() *rail.Network { return w.net }
func (w *World) Grid() *terrain.Grid    { return w.grid }

var _ train.Host = (*World)(nil)

// rail.Game

func (w *World) Map() terrain.Map { return w.grid }

func stanceKey(a, b terrain.PlayerID) [2]terrain.PlayerID {
	if a > b {
		a, b = b, a
	}
	return [2]terrain.PlayerID{a, b}
}

func (w *World) Relation(a, b terrain.PlayerID) rail.Relation {
	if a == b {
		return rail.RelSelf
	}
	if r, ok := w.stances[stanceKey(a, b)]; ok {
		return r
	}
	return rail.RelNeutral
}

func (w *World) AddGold(p terrain.PlayerID, amount int64) {
	if pl := w.players[p]; pl != nil && amount > 0 {
		pl.Gold += amount
	}
}

func (w *World) RemoveGold(p terrain.PlayerID, amount int64) int64 {
	pl := w.players[p]
	if pl == nil || amount <= 0 {
		return 0
	}
	take := min(amount, pl.Gold)
	pl.Gold -= take
	return take
}

// train.Host

func (w *World) CanBuild(owner terrain.PlayerID, t terrain.Tile) bool {
	if !w.grid.IsLand(t) {
		return false
	}
	o := w.grid.Owner(t)
	return o == owner || w.Relation(owner, o) == rail.RelAlly
}

func (w *World) SpawnUnit(kind string, owner terrain.PlayerID, t terrain.Tile) rail.UnitID {
	w.nextUnit++
	id := rail.UnitID(w.nextUnit)
	w.units[id] = &Unit{ID: id, Kind: kind, Owner: owner, Tile: t}
	return id
}

func (w *World) MoveUnit(id rail.UnitID, t terrain.Tile) {
	if u := w.units[id]; u != nil {
		u.Tile = t
	}
}

func (w *World) DeleteUnit(id rail.UnitID) { delete(w.units, id) }

func (w *World) LaunchTradeShip(owner terrain.PlayerID, port rail.StationID) {
	st := w.net.Station(port)
	if st == nil {
		return
	}
	id := w.SpawnUnit(train.UnitTradeShip, owner, st.Tile)
	w.ships = append(w.ships, &tradeShip{
		Unit:    id,
		Owner:   owner,
		Port:    port,
		Expires: w.tick.Load() + uint64(w.cfg.TradeShipLifetimeTicks),
	})
}

func (w *World) newTrain(owner terrain.PlayerID, src, dst rail.StationID) *train.Execution {
	w.nextTrain++
	tr := train.New(w.nextTrain, owner, src, dst, w.cfg.Train, w.net, w, w.cfg.Seed, train.Options{
		Logger: w.log,
		Report: w.onTrainOutcome,
	})
	w.trains[tr.ID] = tr
	return tr
}

func (w *World) sortedTrainIDs() []uint64 {
	ids := make([]uint64, 0, len(w.trains))
	for id := range w.trains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) sortedPlayerIDs() []terrain.PlayerID {
	ids := make([]terrain.PlayerID, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) sortedStructureIDs() []rail.StationID {
	ids := make([]rail.StationID, 0, len(w.structures))
	for id := range w.structures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) sortedStanceKeys() [][2]terrain.PlayerID {
	keys := make([][2]terrain.PlayerID, 0, len(w.stances))
	for k := range w.stances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	return keys
}
