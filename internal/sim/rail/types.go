// Package rail maintains the player-built rail graph: stations, the track
// between them, connected-component clusters and the routing knowledge
// trains use to move through it.
//
// Stations and railroads live in arenas addressed by integer id. Nothing in
// the package holds a pointer cycle, and nothing is global: every game
// instance owns its own Network.
package rail

import "railnet.ai/internal/sim/terrain"

type StationID int32
type RailroadID int32
type ClusterID int32

// UnitID is the game's identifier for the building a station wraps.
type UnitID uint64

const NoStation StationID = 0

type StructureKind uint8

const (
	KindOther StructureKind = iota
	KindCity
	KindPort
	KindFactory
)

func (k StructureKind) String() string {
	switch k {
	case KindCity:
		return "CITY"
	case KindPort:
		return "PORT"
	case KindFactory:
		return "FACTORY"
	default:
		return "OTHER"
	}
}

// ParseKind is the inverse of String. Unknown names map to KindOther.
func ParseKind(s string) StructureKind {
	switch s {
	case "CITY":
		return KindCity
	case "PORT":
		return KindPort
	case "FACTORY":
		return KindFactory
	default:
		return KindOther
	}
}

// Destination reports whether trains count a visit here as meaningful for
// route learning.
func (k StructureKind) Destination() bool { return k == KindCity || k == KindPort }

type Relation uint8

const (
	RelNeutral Relation = iota
	RelSelf
	RelAlly
	RelEnemy
)

// Unit is a building reported by a nearby-unit query.
type Unit struct {
	ID    UnitID
	Kind  StructureKind
	Owner terrain.PlayerID
	Tile  terrain.Tile
}

// Game is the slice of the host game the network consumes.
type Game interface {
	Map() terrain.Map
	// NearbyUnits returns the buildings within Manhattan radius of t in
	// ascending id order, restricted to kinds when any are given.
	NearbyUnits(t terrain.Tile, radius int, kinds ...StructureKind) []Unit
	Relation(a, b terrain.PlayerID) Relation
	AddGold(p terrain.PlayerID, amount int64)
	// RemoveGold takes up to amount and returns what was actually taken.
	RemoveGold(p terrain.PlayerID, amount int64) int64
}

type EventKind string

const (
	EventRailroadConstructed EventKind = "RAILROAD_CONSTRUCTED"
	EventRailroadDestructed  EventKind = "RAILROAD_DESTRUCTED"
	EventRailroadSnapped     EventKind = "RAILROAD_SNAPPED"
	EventFareUpdated         EventKind = "FARE_UPDATED"
	EventStationAdded        EventKind = "STATION_ADDED"
	EventStationRemoved      EventKind = "STATION_REMOVED"
)

// Event carries enough geometry for a renderer to apply a topology change
// incrementally. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Tick     uint64
	Railroad RailroadID
	Station  StationID
	From     StationID
	To       StationID
	Tiles    []terrain.Tile

	NewIDs   [2]RailroadID
	NewTiles [2][]terrain.Tile

	Fare   int64
	Trains int
}

type EventSink interface {
	RailEvent(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) RailEvent(e Event) { f(e) }
