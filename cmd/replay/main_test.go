package main

import (
	"strings"
	"testing"

	persistlog "railnet.ai/internal/persistence/log"
	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/world"
)

func testConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:                   "replay-test",
		Seed:                 21,
		Width:                64,
		Height:               32,
		StartingGold:         100_000,
		ClaimRadius:          3,
		CityCost:             1_000,
		FactoryCost:          2_000,
		TrainSpawnEveryTicks: 10,
		Rail:                 rail.DefaultConfig(),
	}
}

func command(player uint16, verb string) protocol.CommandMsg {
	return protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Player: player, Cmd: verb}
}

func buildAt(player uint16, kind string, x, y int) protocol.CommandMsg {
	c := command(player, protocol.CmdBuild)
	c.Kind, c.Pos = kind, [2]int{x, y}
	return c
}

// record runs a short scripted game into a tick log under dir.
func record(t *testing.T, dir string, ticks uint64) *world.World {
	t.Helper()
	w, err := world.New(testConfig(), world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)
	script := map[uint64][]protocol.CommandMsg{
		0: {command(1, protocol.CmdJoin)},
		1: {buildAt(1, "CITY", 4, 10), buildAt(1, "FACTORY", 24, 10)},
		3: {buildAt(1, "CITY", 44, 10)},
	}
	for i := uint64(0); i < ticks; i++ {
		w.StepOnce(script[i])
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	return w
}

func TestReplay_GenesisMatchesDigests(t *testing.T) {
	dir := t.TempDir()
	live := record(t, dir, 80)
	snap := live.ExportSnapshot(live.CurrentTick() - 1)

	w, err := world.New(world.ConfigFromSnapshot(snap), world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	checked, err := replay(w, dir, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 80 || w.CurrentTick() != 80 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}

func TestReplay_StopsAtToTick(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, 30)
	w, err := world.New(testConfig(), world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	checked, err := replay(w, dir, 10, 19)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 10 || w.CurrentTick() != 20 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, 20)
	cfg := testConfig()
	cfg.StartingGold++
	w, err := world.New(cfg, world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	_, err = replay(w, dir, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 0") {
		t.Fatalf("err=%v", err)
	}
}
