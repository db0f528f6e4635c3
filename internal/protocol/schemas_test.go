package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"railnet.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips a message through encoding/json so the schema sees
// exactly what goes on the wire.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_CommandMessages(t *testing.T) {
	s := compile(t, "command.schema.json")
	base := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Player: 3}

	valid := map[string]func(m *protocol.CommandMsg){
		"join":  func(m *protocol.CommandMsg) { m.Cmd = protocol.CmdJoin },
		"build": func(m *protocol.CommandMsg) { m.Cmd, m.Pos, m.Kind = protocol.CmdBuild, [2]int{10, 12}, "CITY" },
		"destroy": func(m *protocol.CommandMsg) {
			m.Cmd, m.Station = protocol.CmdDestroy, 4
		},
		"spawn": func(m *protocol.CommandMsg) { m.Cmd, m.Src, m.Dst = protocol.CmdSpawnTrain, 1, 2 },
		"ally":  func(m *protocol.CommandMsg) { m.Cmd, m.Target, m.Stance = protocol.CmdAlly, 5, protocol.StanceAlly },
	}
	for name, mut := range valid {
		m := base
		mut(&m)
		if err := s.Validate(asJSON(t, m)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	invalid := map[string]func(m *protocol.CommandMsg){
		"build without kind": func(m *protocol.CommandMsg) { m.Cmd = protocol.CmdBuild },
		"unknown verb":       func(m *protocol.CommandMsg) { m.Cmd = "TELEPORT" },
		"spawn without dst":  func(m *protocol.CommandMsg) { m.Cmd, m.Src = protocol.CmdSpawnTrain, 1 },
		"bad stance": func(m *protocol.CommandMsg) {
			m.Cmd, m.Target, m.Stance = protocol.CmdAlly, 5, "FRENEMY"
		},
	}
	for name, mut := range invalid {
		m := base
		mut(&m)
		if err := s.Validate(asJSON(t, m)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSchemas_ServerMessages(t *testing.T) {
	ack := compile(t, "ack.schema.json")
	if err := ack.Validate(asJSON(t, protocol.AckMsg{
		Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: "c1",
		Accepted: false, Code: protocol.ErrNoResource, Message: "not enough gold", ServerTick: 42,
	})); err != nil {
		t.Fatalf("ack: %v", err)
	}

	tick := compile(t, "tick.schema.json")
	msg := protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            7,
		Events: []protocol.Event{
			{"type": "STATION_ADDED", "tick": 7, "station": 3},
			{"type": "RAILROAD_SNAPPED", "tick": 7, "railroad": 1, "new_ids": []int{4, 5}},
			{"type": "TRAIN_FINISHED", "tick": 7, "train": 9, "state": "ARRIVED"},
		},
		Network: &protocol.NetworkObs{Stations: 3, Railroads: 2, Clusters: 1},
	}
	if err := tick.Validate(asJSON(t, msg)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msg.Events = append(msg.Events, protocol.Event{"type": "METEOR", "tick": 7})
	if err := tick.Validate(asJSON(t, msg)); err == nil {
		t.Fatalf("unknown event type accepted")
	}

	sub := compile(t, "subscribe.schema.json")
	if err := sub.Validate(asJSON(t, protocol.SubscribeMsg{
		Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Kinds: []string{"FARE_UPDATED"},
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"COMMAND","protocol_version":"1.0","cmd":"JOIN"}`))
	if err != nil || m.Type != protocol.TypeCommand || m.ProtocolVersion != protocol.Version {
		t.Fatalf("DecodeBase = %+v, %v", m, err)
	}
}
