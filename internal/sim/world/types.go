package world

import (
	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
	"railnet.ai/internal/sim/train"
)

type Player struct {
	ID         terrain.PlayerID
	Name       string
	Gold       int64
	JoinedTick uint64
}

// Unit is anything placed on the map: structures, train engines and cars,
// trade ships.
type Unit struct {
	ID    rail.UnitID
	Kind  string
	Owner terrain.PlayerID
	Tile  terrain.Tile
}

// Structure is a building that wraps a rail station. Station is
// rail.NoStation while an OTHER building has no factory in range.
type Structure struct {
	Unit    rail.UnitID
	Station rail.StationID
	Kind    rail.StructureKind
	Owner   terrain.PlayerID
	Tile    terrain.Tile
}

type tradeShip struct {
	Unit    rail.UnitID
	Owner   terrain.PlayerID
	Port    rail.StationID
	Expires uint64
}

// CommandEnvelope carries one client command into the world loop. Resp, if
// set, receives the acknowledgement when the command is applied.
type CommandEnvelope struct {
	Cmd  protocol.CommandMsg
	Resp chan protocol.AckMsg
}

type RecordedCommand struct {
	Player uint16              `json:"player"`
	Cmd    protocol.CommandMsg `json:"cmd"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// EventLogger receives every rail and train event as it is emitted.
type EventLogger interface {
	WriteEvent(entry EventLogEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Outcomes []OutcomeV1       `json:"outcomes,omitempty"`
	Digest   string            `json:"digest"`
}

type EventLogEntry struct {
	Cursor uint64         `json:"cursor"`
	Tick   uint64         `json:"tick"`
	Event  protocol.Event `json:"event"`
}

// OutcomeV1 is the logged form of a finished train.
type OutcomeV1 struct {
	Train   uint64 `json:"train"`
	Owner   uint16 `json:"owner"`
	Src     int32  `json:"src"`
	Dst     int32  `json:"dst"`
	State   string `json:"state"`
	Hops    int    `json:"hops"`
	Tick    uint64 `json:"tick"`
	Fares   int64  `json:"fares"`
	Income  int64  `json:"income"`
	Visited int    `json:"visited"`
}

func outcomeV1(o train.Outcome) OutcomeV1 {
	return OutcomeV1{
		Train:   o.Train,
		Owner:   uint16(o.Owner),
		Src:     int32(o.Src),
		Dst:     int32(o.Dst),
		State:   o.State.String(),
		Hops:    o.Hops,
		Tick:    o.Tick,
		Fares:   o.Fares,
		Income:  o.Income,
		Visited: o.Visited,
	}
}

type EventCursorItem struct {
	Cursor uint64
	Event  protocol.Event
}

// ObserverJoinRequest registers a read-only session that receives one
// encoded TICK message per simulation tick on TickOut.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	Kinds     []string
	Network   bool
}

// ObserverSubscribeRequest replaces the filters of an existing session.
type ObserverSubscribeRequest struct {
	SessionID string
	Kinds     []string
	Network   bool
}

// StationView is a read-only copy of a station for HTTP and observers.
type StationView struct {
	ID        int32   `json:"id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Owner     uint16  `json:"owner"`
	Kind      string  `json:"kind"`
	Cluster   int32   `json:"cluster"`
	Neighbors []int32 `json:"neighbors"`
	Routes    int     `json:"routes"`
	Heat      float64 `json:"heat"`
}

type RouteView struct {
	Dest    int32  `json:"dest"`
	NextHop int32  `json:"next_hop"`
	Hops    int    `json:"hops"`
	Seq     uint64 `json:"seq"`
	Updated uint64 `json:"updated_tick"`
	Organic bool   `json:"organic,omitempty"`
}

type RailroadView struct {
	ID     int32   `json:"id"`
	From   int32   `json:"from"`
	To     int32   `json:"to"`
	Length int     `json:"length"`
	Fare   int64   `json:"fare"`
	Trains int     `json:"trains"`
	EMA    float64 `json:"congestion_ema"`
}

type TrainView struct {
	ID     uint64 `json:"id"`
	Owner  uint16 `json:"owner"`
	Src    int32  `json:"src"`
	Dst    int32  `json:"dst"`
	State  string `json:"state"`
	At     int32  `json:"at"`
	Target int32  `json:"target,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Hops   int    `json:"hops"`
	Cargo  bool   `json:"cargo,omitempty"`
}

type PlayerView struct {
	ID   uint16 `json:"id"`
	Name string `json:"name"`
	Gold int64  `json:"gold"`
}

// StateView is a consistent copy of the world taken between ticks.
type StateView struct {
	Tick      uint64         `json:"tick"`
	Players   []PlayerView   `json:"players"`
	Stations  []StationView  `json:"stations"`
	Railroads []RailroadView `json:"railroads"`
	Trains    []TrainView    `json:"trains"`
	Clusters  [][]int32      `json:"clusters"`
}

type PreviewView struct {
	Snaps []PreviewSnap `json:"snaps,omitempty"`
	Paths []PreviewPath `json:"paths,omitempty"`
}

type PreviewSnap struct {
	Railroad int32 `json:"railroad"`
	Index    int   `json:"index"`
	X        int   `json:"x"`
	Y        int   `json:"y"`
}

type PreviewPath struct {
	To    int32    `json:"to"`
	Tiles [][2]int `json:"tiles"`
}
