package world

import (
	"encoding/json"
	"testing"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:                     "test",
		Seed:                   7,
		Width:                  64,
		Height:                 32,
		StartingGold:           100_000,
		ClaimRadius:            3,
		CityCost:               1_000,
		PortCost:               1_500,
		FactoryCost:            2_000,
		TradeShipLifetimeTicks: 20,
		TradeShipReward:        700,
		Rail:                   rail.DefaultConfig(),
	}
}

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	w, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func cmd(player uint16, verb string) protocol.CommandMsg {
	return protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Player: player, Cmd: verb}
}

func build(player uint16, kind string, x, y int) protocol.CommandMsg {
	c := cmd(player, protocol.CmdBuild)
	c.Kind = kind
	c.Pos = [2]int{x, y}
	return c
}

func spawn(player uint16, src, dst int32) protocol.CommandMsg {
	c := cmd(player, protocol.CmdSpawnTrain)
	c.Src, c.Dst = src, dst
	return c
}

// apply runs one command through a full tick and returns its ack.
func apply(t *testing.T, w *World, c protocol.CommandMsg) protocol.AckMsg {
	t.Helper()
	env := CommandEnvelope{Cmd: c, Resp: make(chan protocol.AckMsg, 1)}
	w.stepInternal([]CommandEnvelope{env})
	return <-env.Resp
}

func mustAccept(t *testing.T, w *World, c protocol.CommandMsg) protocol.AckMsg {
	t.Helper()
	a := apply(t, w, c)
	if !a.Accepted {
		b, _ := json.Marshal(c)
		t.Fatalf("command %s rejected: %s %s", b, a.Code, a.Message)
	}
	return a
}

// stepUntil steps empty ticks until cond holds.
func stepUntil(t *testing.T, w *World, limit int, cond func() bool) {
	t.Helper()
	for i := 0; i < limit; i++ {
		if cond() {
			return
		}
		w.StepOnce(nil)
	}
	if !cond() {
		t.Fatalf("condition not reached after %d ticks (tick=%d)", limit, w.CurrentTick())
	}
}

func connected(w *World, a, b int32) func() bool {
	return func() bool {
		_, ok := w.net.RailroadBetween(rail.StationID(a), rail.StationID(b))
		return ok
	}
}

// twoCities joins player 1 and links two cities 20 tiles apart.
func twoCities(t *testing.T, w *World) (int32, int32) {
	t.Helper()
	mustAccept(t, w, cmd(1, protocol.CmdJoin))
	a := mustAccept(t, w, build(1, "CITY", 4, 10)).Station
	b := mustAccept(t, w, build(1, "CITY", 24, 10)).Station
	stepUntil(t, w, 200, connected(w, a, b))
	return a, b
}
