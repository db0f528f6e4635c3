package guard

import (
	"path/filepath"
	"testing"

	"railnet.ai/internal/protocol"
)

var schemaPath = filepath.Join("..", "..", "..", "schemas", "command.schema.json")

func TestDecode_AssignsIDAndValidates(t *testing.T) {
	g, err := New(Config{SchemaPath: schemaPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cmd, rej := g.Decode([]byte(`{"type":"COMMAND","protocol_version":"1.0","player":2,"cmd":"JOIN"}`), 5)
	if rej != nil {
		t.Fatalf("rejected valid command: %+v", rej)
	}
	if cmd.ID == "" || cmd.Player != 2 || cmd.Cmd != protocol.CmdJoin {
		t.Fatalf("decoded %+v", cmd)
	}

	cmd, _ = g.Decode([]byte(`{"type":"COMMAND","protocol_version":"1.0","id":"mine","player":2,"cmd":"JOIN"}`), 5)
	if cmd.ID != "mine" {
		t.Fatalf("client id overwritten: %q", cmd.ID)
	}

	cases := map[string]string{
		"malformed":   `{"type":`,
		"wrong type":  `{"type":"ACK","protocol_version":"1.0"}`,
		"old version": `{"type":"COMMAND","protocol_version":"0.9","player":2,"cmd":"JOIN"}`,
		"no kind":     `{"type":"COMMAND","protocol_version":"1.0","id":"b1","player":2,"cmd":"BUILD","pos":[1,1]}`,
		"player zero": `{"type":"COMMAND","protocol_version":"1.0","player":0,"cmd":"JOIN"}`,
	}
	for name, raw := range cases {
		_, rej := g.Decode([]byte(raw), 9)
		if rej == nil {
			t.Fatalf("%s: accepted", name)
		}
		if rej.Code != protocol.ErrProtoBadRequest || rej.ServerTick != 9 || rej.Accepted {
			t.Fatalf("%s: ack %+v", name, rej)
		}
	}
	_, rej = g.Decode([]byte(cases["no kind"]), 9)
	if rej.AckFor != "b1" {
		t.Fatalf("ack_for=%q want b1", rej.AckFor)
	}
}

func TestAllow_PerPlayerBuckets(t *testing.T) {
	g, err := New(Config{CommandsPerSecond: 0.001, CommandBurst: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !g.Allow(1) || !g.Allow(1) {
		t.Fatalf("burst not honoured")
	}
	if g.Allow(1) {
		t.Fatalf("third command within burst window allowed")
	}
	if !g.Allow(2) {
		t.Fatalf("player 2 limited by player 1's bucket")
	}

	raw := []byte(`{"type":"COMMAND","protocol_version":"1.0","player":1,"cmd":"JOIN"}`)
	if _, rej := g.Decode(raw, 0); rej == nil || rej.Code != protocol.ErrRateLimit {
		t.Fatalf("Decode over budget = %+v", rej)
	}
}

func TestNew_Unlimited(t *testing.T) {
	g, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if !g.Allow(7) {
			t.Fatalf("unlimited guard refused command %d", i)
		}
	}
	if _, err := New(Config{SchemaPath: "does-not-exist.json"}); err == nil {
		t.Fatalf("expected compile error")
	}
}
