// Package train runs one train per Execution: spawn at a source station,
// hop station to station over the rail network, trade at stops, and tear
// down on arrival or on one of the failure outcomes.
package train

import (
	"io"
	"log"

	"railnet.ai/internal/sim/logic/mathx"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
)

type State uint8

const (
	Spawning State = iota
	Travelling
	AtStation
	Arrived
	HopLimitExceeded
	Stuck
	Cancelled
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "SPAWNING"
	case Travelling:
		return "TRAVELLING"
	case AtStation:
		return "AT_STATION"
	case Arrived:
		return "ARRIVED"
	case HopLimitExceeded:
		return "HOP_LIMIT_EXCEEDED"
	case Stuck:
		return "STUCK"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool { return s >= Arrived }

type Routing uint8

const (
	RoutingAdaptive Routing = iota
	// RoutingLegacy follows a precomputed shortest station path.
	RoutingLegacy
)

const (
	UnitEngine    = "TRAIN_ENGINE"
	UnitCar       = "TRAIN_CAR"
	UnitTradeShip = "TRADE_SHIP"
)

type Config struct {
	Speed       int
	Cars        int
	Spacing     int
	MaxHops     int
	HistorySize int
	// CargoMultiplier scales the city payout when a train delivers cargo.
	CargoMultiplier int64
	Routing         Routing
}

func (c *Config) applyDefaults() {
	if c.Speed <= 0 {
		c.Speed = 2
	}
	if c.Cars < 0 {
		c.Cars = 0
	}
	if c.Spacing <= 0 {
		c.Spacing = 2
	}
	if c.MaxHops <= 0 {
		c.MaxHops = 30
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 8
	}
	if c.CargoMultiplier <= 0 {
		c.CargoMultiplier = 2
	}
}

// Host is the game the train lives in.
type Host interface {
	rail.Game
	CanBuild(owner terrain.PlayerID, t terrain.Tile) bool
	SpawnUnit(kind string, owner terrain.PlayerID, t terrain.Tile) rail.UnitID
	MoveUnit(id rail.UnitID, t terrain.Tile)
	DeleteUnit(id rail.UnitID)
	LaunchTradeShip(owner terrain.PlayerID, port rail.StationID)
}

// Outcome is the telemetry recorded when a train reaches a terminal state.
type Outcome struct {
	Train   uint64
	Owner   terrain.PlayerID
	Src     rail.StationID
	Dst     rail.StationID
	State   State
	Hops    int
	Tick    uint64
	Fares   int64
	Income  int64
	Visited int
}

type Options struct {
	Logger   *log.Logger
	Handlers map[rail.StructureKind]StopHandler
	Report   func(Outcome)
}

// leg is a railroad on the current hop that the engine enters at path
// offset base, travelling from from to to.
type leg struct {
	rr   rail.RailroadID
	from rail.StationID
	to   rail.StationID
	base int
}

type Execution struct {
	ID    uint64
	Owner terrain.PlayerID
	Src   rail.StationID
	Dst   rail.StationID

	cfg      Config
	net      *rail.Network
	host     Host
	rng      *mathx.Rand
	log      *log.Logger
	handlers map[rail.StructureKind]StopHandler
	report   func(Outcome)

	state  State
	engine rail.UnitID
	cars   []rail.UnitID
	cargo  bool

	at      rail.StationID
	target  rail.StationID
	path    []terrain.Tile
	offset  int
	arrived bool

	// Occupancy is tracked separately from the tile path so a railroad
	// split under a moving train hands its count to the right half. ahead
	// holds the halves still in front of the engine, entered in order.
	occupied rail.RailroadID
	occFrom  rail.StationID
	occEnd   rail.StationID
	occBase  int
	ahead    []leg

	history []rail.StationID
	trail   []terrain.Tile
	hops    int
	visited int
	legacy  []rail.StationID

	fares  int64
	income int64
}

// New creates a train bound for dst. seed and id together seed the train's
// private random stream.
func New(id uint64, owner terrain.PlayerID, src, dst rail.StationID, cfg Config, net *rail.Network, host Host, seed int64, opts Options) *Execution {
	cfg.applyDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = DefaultHandlers()
	}
	return &Execution{
		ID:       id,
		Owner:    owner,
		Src:      src,
		Dst:      dst,
		cfg:      cfg,
		net:      net,
		host:     host,
		rng:      mathx.NewRand(seed, id),
		log:      logger,
		handlers: handlers,
		report:   opts.Report,
	}
}

func (e *Execution) State() State              { return e.state }
func (e *Execution) Active() bool              { return !e.state.Terminal() }
func (e *Execution) Hops() int                 { return e.hops }
func (e *Execution) Cargo() bool               { return e.cargo }
func (e *Execution) Engine() rail.UnitID       { return e.engine }
func (e *Execution) Cars() []rail.UnitID       { return e.cars }
func (e *Execution) Station() rail.StationID   { return e.at }
func (e *Execution) Target() rail.StationID    { return e.target }
func (e *Execution) History() []rail.StationID { return e.history }
func (e *Execution) Occupied() rail.RailroadID { return e.occupied }

// Position is the engine tile.
func (e *Execution) Position() terrain.Tile {
	if len(e.trail) == 0 {
		return 0
	}
	return e.trail[len(e.trail)-1]
}

// RandState exposes the private generator position for snapshots.
func (e *Execution) RandState() uint64 { return e.rng.State() }

func (e *Execution) Tick(now uint64) {
	if e.state.Terminal() {
		return
	}
	if !e.net.StationActive(e.Src) || !e.net.StationActive(e.Dst) {
		e.finish(Cancelled, now)
		return
	}
	switch e.state {
	case Spawning:
		e.spawn(now)
	case AtStation:
		e.depart(now)
	case Travelling:
		e.advance(now)
	}
}

func (e *Execution) spawn(now uint64) {
	src := e.net.Station(e.Src)
	if !e.host.CanBuild(e.Owner, src.Tile) {
		e.finish(Cancelled, now)
		return
	}
	e.engine = e.host.SpawnUnit(UnitEngine, e.Owner, src.Tile)
	for i := 0; i < e.cfg.Cars; i++ {
		e.cars = append(e.cars, e.host.SpawnUnit(UnitCar, e.Owner, src.Tile))
	}
	e.trail = []terrain.Tile{src.Tile}
	e.at = e.Src
	e.arrived = true
	if e.cfg.Routing == RoutingLegacy {
		e.legacy = e.net.StationPath(e.Src, e.Dst)
	}
	e.state = AtStation
}

func (e *Execution) nextHop(now uint64) (rail.StationID, bool) {
	if e.cfg.Routing == RoutingLegacy {
		return e.nextLegacyHop()
	}
	return e.net.ChooseNextStation(e.at, rail.Choice{
		Dest:    e.Dst,
		Owner:   e.Owner,
		History: e.history,
		Rand:    e.rng,
		Now:     now,
	})
}

func (e *Execution) nextLegacyHop() (rail.StationID, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		for i, id := range e.legacy {
			if id == e.at && i+1 < len(e.legacy) {
				nb := e.legacy[i+1]
				if e.net.Station(e.at).IsNeighbor(nb) {
					return nb, true
				}
			}
		}
		e.legacy = e.net.StationPath(e.at, e.Dst)
	}
	return rail.NoStation, false
}

func (e *Execution) depart(now uint64) {
	if e.at == e.Dst {
		e.finish(Arrived, now)
		return
	}
	if e.hops >= e.cfg.MaxHops {
		e.finish(HopLimitExceeded, now)
		return
	}
	next, ok := e.nextHop(now)
	if !ok {
		e.finish(Stuck, now)
		return
	}
	rr, ok := e.net.RailroadBetween(e.at, next)
	if !ok {
		e.finish(Stuck, now)
		return
	}
	seg := rr.Orient(e.at)
	e.path = seg.Tiles()
	e.offset = 0
	e.target = next

	e.net.Occupy(rr.ID, now)
	e.occupied, e.occFrom, e.occEnd, e.occBase = rr.ID, e.at, next, 0
	e.ahead = e.ahead[:0]
	rc := e.net.ChargeFare(rr.ID, e.Owner, now)
	e.fares += rc.Charged

	e.pushHistory(e.at)
	e.hops++
	e.arrived = false
	e.state = Travelling
}

func (e *Execution) pushHistory(id rail.StationID) {
	e.history = append(e.history, id)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
}

func (e *Execution) advance(now uint64) {
	if !e.followSnaps(now) {
		e.finish(Stuck, now)
		return
	}
	last := len(e.path) - 1
	for step := 0; step < e.cfg.Speed && e.offset < last; step++ {
		e.offset++
		e.recordTile(e.path[e.offset])
	}
	e.enterLegs(now)
	e.host.MoveUnit(e.engine, e.Position())
	e.placeCars()
	if e.offset < last {
		return
	}
	if e.occupied != 0 {
		e.net.Release(e.occupied, now)
		e.occupied = 0
	}
	e.at = e.target
	e.state = AtStation
	e.onArrival(now)
}

// followSnaps keeps occupancy and the legs ahead in step with railroads
// split while the train is on them. A station snapped in front of the
// engine is passed through without stopping; the hop ends at the station
// chosen on departure. It reports false when track under or ahead of the
// train was removed outright.
func (e *Execution) followSnaps(now uint64) bool {
	for e.occupied != 0 {
		if rr := e.net.Railroad(e.occupied); rr != nil && rr.Active() {
			break
		}
		near, at, ok := e.net.Successor(e.occupied, e.occFrom)
		if !ok {
			e.net.Release(e.occupied, now)
			e.occupied = 0
			return false
		}
		far, _, _ := e.net.Successor(e.occupied, e.occEnd)
		mid := e.net.Railroad(near).Other(e.occFrom)
		e.net.Release(e.occupied, now)
		if e.offset-e.occBase < at {
			e.ahead = append([]leg{{rr: far, from: mid, to: e.occEnd, base: e.occBase + at}}, e.ahead...)
			e.occEnd = mid
		} else {
			near = far
			e.occFrom = mid
			e.occBase += at
		}
		e.occupied = near
		e.net.Occupy(near, now)
	}
	for i := 0; i < len(e.ahead); {
		l := e.ahead[i]
		if rr := e.net.Railroad(l.rr); rr != nil && rr.Active() {
			i++
			continue
		}
		near, at, ok := e.net.Successor(l.rr, l.from)
		if !ok {
			return false
		}
		far, _, _ := e.net.Successor(l.rr, l.to)
		mid := e.net.Railroad(near).Other(l.from)
		e.ahead[i] = leg{rr: near, from: l.from, to: mid, base: l.base}
		e.ahead = append(e.ahead[:i+1], append([]leg{{rr: far, from: mid, to: l.to, base: l.base + at}}, e.ahead[i+1:]...)...)
	}
	return true
}

// enterLegs moves occupancy onto every leg whose start the engine has
// reached.
func (e *Execution) enterLegs(now uint64) {
	for len(e.ahead) > 0 && e.offset >= e.ahead[0].base {
		l := e.ahead[0]
		e.ahead = e.ahead[1:]
		if e.occupied != 0 {
			e.net.Release(e.occupied, now)
		}
		e.occupied, e.occFrom, e.occEnd, e.occBase = l.rr, l.from, l.to, l.base
		e.net.Occupy(l.rr, now)
	}
}

func (e *Execution) recordTile(t terrain.Tile) {
	e.trail = append(e.trail, t)
	keep := (e.cfg.Cars+1)*e.cfg.Spacing + 1
	if over := len(e.trail) - keep; over > 0 {
		e.trail = append(e.trail[:0], e.trail[over:]...)
	}
}

// placeCars puts car i Spacing*(i+1) tiles behind the engine, or at the
// oldest remembered tile while the trail is still short.
func (e *Execution) placeCars() {
	for i, id := range e.cars {
		idx := len(e.trail) - 1 - e.cfg.Spacing*(i+1)
		if idx < 0 {
			idx = 0
		}
		e.host.MoveUnit(id, e.trail[idx])
	}
}

// CarTile reports where car i currently sits.
func (e *Execution) CarTile(i int) terrain.Tile {
	idx := len(e.trail) - 1 - e.cfg.Spacing*(i+1)
	if idx < 0 {
		idx = 0
	}
	return e.trail[idx]
}

// onArrival runs once per station visit.
func (e *Execution) onArrival(now uint64) {
	if e.arrived {
		return
	}
	e.arrived = true
	st := e.net.Station(e.at)
	if st == nil || !st.Active() {
		e.finish(Stuck, now)
		return
	}
	e.visited++
	e.net.Heat(e.at, now)
	e.net.OfferExperience(e.at, e.history, now)
	if h := e.handlers[st.Kind]; h != nil {
		e.income += h(e, st, now)
	}
	if e.at == e.Dst {
		e.finish(Arrived, now)
	}
}

func (e *Execution) finish(s State, now uint64) {
	if e.occupied != 0 {
		e.net.Release(e.occupied, now)
		e.occupied = 0
	}
	if e.engine != 0 {
		e.host.DeleteUnit(e.engine)
	}
	for _, id := range e.cars {
		e.host.DeleteUnit(id)
	}
	e.cars = nil
	e.state = s
	if s != Arrived {
		e.log.Printf("tick=%d train=%d owner=%d %s after %d hops", now, e.ID, e.Owner, s, e.hops)
	}
	if e.report != nil {
		e.report(Outcome{
			Train:   e.ID,
			Owner:   e.Owner,
			Src:     e.Src,
			Dst:     e.Dst,
			State:   s,
			Hops:    e.hops,
			Tick:    now,
			Fares:   e.fares,
			Income:  e.income,
			Visited: e.visited,
		})
	}
}
