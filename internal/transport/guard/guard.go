// Package guard validates and rate-limits COMMAND messages before they reach
// the world loop. The websocket and HTTP transports share one Guard so a
// player cannot double their budget by switching transports.
package guard

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"railnet.ai/internal/protocol"
)

type Config struct {
	// SchemaPath points at command.schema.json. Empty disables schema checks.
	SchemaPath string

	// CommandsPerSecond <= 0 disables rate limiting.
	CommandsPerSecond float64
	CommandBurst      int
}

type Guard struct {
	schema *jsonschema.Schema
	limit  rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[uint16]*rate.Limiter
}

func New(cfg Config) (*Guard, error) {
	g := &Guard{limiters: map[uint16]*rate.Limiter{}}
	if cfg.SchemaPath != "" {
		s, err := jsonschema.Compile(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", cfg.SchemaPath, err)
		}
		g.schema = s
	}
	if cfg.CommandsPerSecond > 0 {
		g.limit = rate.Limit(cfg.CommandsPerSecond)
		g.burst = cfg.CommandBurst
		if g.burst <= 0 {
			g.burst = 1
		}
	} else {
		g.limit = rate.Inf
	}
	return g, nil
}

// Decode parses a raw COMMAND, checks it against the schema and the sender's
// rate budget, and assigns an id when the client did not send one. On
// rejection the returned ack is ready to be sent back as-is.
func (g *Guard) Decode(raw []byte, serverTick uint64) (protocol.CommandMsg, *protocol.AckMsg) {
	var cmd protocol.CommandMsg
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, reject(cmd, serverTick, protocol.ErrProtoBadRequest, "malformed json")
	}
	if cmd.Type != protocol.TypeCommand {
		return cmd, reject(cmd, serverTick, protocol.ErrProtoBadRequest, "expected COMMAND")
	}
	if cmd.ProtocolVersion != protocol.Version {
		return cmd, reject(cmd, serverTick, protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	if g.schema != nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return cmd, reject(cmd, serverTick, protocol.ErrProtoBadRequest, "malformed json")
		}
		if err := g.schema.Validate(v); err != nil {
			return cmd, reject(cmd, serverTick, protocol.ErrProtoBadRequest, err.Error())
		}
	}
	if !g.Allow(cmd.Player) {
		return cmd, reject(cmd, serverTick, protocol.ErrRateLimit, "too many commands")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	return cmd, nil
}

// Allow spends one token from the player's bucket.
func (g *Guard) Allow(player uint16) bool {
	if g.limit == rate.Inf {
		return true
	}
	g.mu.Lock()
	l, ok := g.limiters[player]
	if !ok {
		l = rate.NewLimiter(g.limit, g.burst)
		g.limiters[player] = l
	}
	g.mu.Unlock()
	return l.Allow()
}

func reject(cmd protocol.CommandMsg, serverTick uint64, code, msg string) *protocol.AckMsg {
	return &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmd.ID,
		Accepted:        false,
		Code:            code,
		Message:         msg,
		ServerTick:      serverTick,
	}
}
