package protocol

// Command verbs carried in CommandMsg.Cmd.
const (
	CmdJoin       = "JOIN"
	CmdBuild      = "BUILD"
	CmdDestroy    = "DESTROY"
	CmdSpawnTrain = "SPAWN_TRAIN"
	CmdAlly       = "ALLY"
)

// Stances for CmdAlly.
const (
	StanceAlly    = "ALLY"
	StanceNeutral = "NEUTRAL"
	StanceEnemy   = "ENEMY"
)

// COMMAND (client -> server)
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Player          uint16 `json:"player"`
	Cmd             string `json:"cmd"`

	// BUILD
	Pos  [2]int `json:"pos"`
	Kind string `json:"kind,omitempty"`

	// DESTROY
	Station int32 `json:"station,omitempty"`

	// SPAWN_TRAIN
	Src int32 `json:"src,omitempty"`
	Dst int32 `json:"dst,omitempty"`

	// ALLY
	Target uint16 `json:"target,omitempty"`
	Stance string `json:"stance,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick"`

	Station int32  `json:"station,omitempty"`
	Train   uint64 `json:"train,omitempty"`
}

// Event is one rail or train event. Keys follow the event "type".
type Event map[string]any

// TICK (server -> observers): the events of one simulation tick.
type TickMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Digest          string      `json:"digest,omitempty"`
	Events          []Event     `json:"events"`
	Network         *NetworkObs `json:"network,omitempty"`
}

type NetworkObs struct {
	Stations           int `json:"stations"`
	Railroads          int `json:"railroads"`
	Clusters           int `json:"clusters"`
	Trains             int `json:"trains"`
	PendingConnections int `json:"pending_connections"`
	Routes             int `json:"routes"`
}

// SUBSCRIBE (observer -> server). An empty Kinds list means every event.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kinds           []string `json:"kinds,omitempty"`
	Network         bool     `json:"network,omitempty"`
}

type EventBatchItem struct {
	Cursor uint64 `json:"cursor"`
	Event  Event  `json:"event"`
}

// EVENT_BATCH (server -> client)
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
}
