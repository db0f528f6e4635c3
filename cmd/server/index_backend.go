package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"railnet.ai/internal/persistence/indexdb"
	"railnet.ai/internal/persistence/snapshot"
	"railnet.ai/internal/sim/tuning"
	"railnet.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.EventLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Dropped() uint64
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported RN_INDEX_BACKEND: %s", backend)
	}
}

// multiTickLogger fans a tick out to the durable log and the index. A nil
// side is skipped.
type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(entry world.EventLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteEvent(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(entry)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
