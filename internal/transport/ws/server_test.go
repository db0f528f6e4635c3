package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/world"
	"railnet.ai/internal/transport/guard"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.WorldConfig{
		ID:           "ws-test",
		TickRateHz:   200,
		Seed:         3,
		Width:        48,
		Height:       24,
		StartingGold: 50_000,
		ClaimRadius:  3,
		CityCost:     1_000,
		Rail:         rail.DefaultConfig(),
	}, world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, raw string) protocol.AckMsg {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ack protocol.AckMsg
	if err := json.Unmarshal(b, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Type != protocol.TypeAck {
		t.Fatalf("type=%q", ack.Type)
	}
	return ack
}

func TestServer_CommandsAreAcked(t *testing.T) {
	w := startWorld(t)
	g, err := guard.New(guard.Config{SchemaPath: filepath.Join("..", "..", "..", "schemas", "command.schema.json")})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	ts := httptest.NewServer(NewServer(w, g, nil).Handler())
	defer ts.Close()
	conn := dial(t, ts)

	ack := roundTrip(t, conn, `{"type":"COMMAND","protocol_version":"1.0","id":"j1","player":1,"cmd":"JOIN"}`)
	if !ack.Accepted || ack.AckFor != "j1" {
		t.Fatalf("join ack %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"COMMAND","protocol_version":"1.0","player":1,"cmd":"BUILD","pos":[5,5],"kind":"CITY"}`)
	if !ack.Accepted || ack.Station != 1 || ack.AckFor == "" {
		t.Fatalf("build ack %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"COMMAND","protocol_version":"1.0","id":"b2","player":1,"cmd":"BUILD","pos":[5,5]}`)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest || ack.AckFor != "b2" {
		t.Fatalf("schema reject ack %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"COMMAND","protocol_version":"1.0","id":"b3","player":1,"cmd":"BUILD","pos":[5,5],"kind":"CITY"}`)
	if ack.Accepted || ack.Code != protocol.ErrConflict {
		t.Fatalf("conflict ack %+v", ack)
	}
}

func TestServer_RateLimited(t *testing.T) {
	w := startWorld(t)
	g, err := guard.New(guard.Config{CommandsPerSecond: 0.001, CommandBurst: 1})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	ts := httptest.NewServer(NewServer(w, g, nil).Handler())
	defer ts.Close()
	conn := dial(t, ts)

	join := `{"type":"COMMAND","protocol_version":"1.0","player":4,"cmd":"JOIN"}`
	if ack := roundTrip(t, conn, join); !ack.Accepted {
		t.Fatalf("first join %+v", ack)
	}
	if ack := roundTrip(t, conn, join); ack.Accepted || ack.Code != protocol.ErrRateLimit {
		t.Fatalf("second join %+v", ack)
	}
}
