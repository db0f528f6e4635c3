package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"railnet.ai/internal/persistence/snapshot"
	"railnet.ai/internal/sim/tuning"
	"railnet.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over the JSONL logs and
// snapshots. Writes are queued and applied by a single goroutine in batched
// transactions; when the queue is full entries are dropped.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	event    world.EventLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Seed      int64
	Width     int
	Height    int
	Players   int
	Stations  int
	Railroads int
	Pending   int
	Ships     int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			outcomes INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player INTEGER NOT NULL,
			cmd TEXT NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_player_tick ON commands(player, tick);`,
		`CREATE TABLE IF NOT EXISTS train_outcomes (
			train INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			owner INTEGER NOT NULL,
			src INTEGER NOT NULL,
			dst INTEGER NOT NULL,
			state TEXT NOT NULL,
			hops INTEGER NOT NULL,
			fares INTEGER NOT NULL,
			income INTEGER NOT NULL,
			visited INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_train_outcomes_owner_tick ON train_outcomes(owner, tick);`,
		`CREATE TABLE IF NOT EXISTS rail_events (
			cursor INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			type TEXT NOT NULL,
			railroad INTEGER,
			station INTEGER,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rail_events_type_tick ON rail_events(type, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			players INTEGER NOT NULL,
			stations INTEGER NOT NULL,
			railroads INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			ships INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts entries discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) WriteEvent(entry world.EventLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqEvent, event: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Width:     snap.Width,
		Height:    snap.Height,
		Players:   len(snap.Players),
		Stations:  len(snap.Structures),
		Railroads: len(snap.Railroads),
		Pending:   len(snap.Pending),
		Ships:     len(snap.Ships),
	}})
}

// UpsertTuning stores the tuning values actually applied (canonical JSON).
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, tune.ProtocolVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func eventInt(ev map[string]any, key string) any {
	switch v := ev[key].(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return nil
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,outcomes,raw_json) VALUES(?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,player,cmd,cmd_json) VALUES(?,?,?,?,?)`)
	insertOutcome, _ := s.db.Prepare(`INSERT OR REPLACE INTO train_outcomes(train,tick,owner,src,dst,state,hops,fares,income,visited) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO rail_events(cursor,tick,type,railroad,station,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,width,height,players,stations,railroads,pending,ships) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertOutcome, insertEvent, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Commands), len(e.Outcomes), string(b)) {
				continue
			}
			for i, c := range e.Commands {
				cj, _ := json.Marshal(c.Cmd)
				if !exec(insertCommand, int64(e.Tick), i, int(c.Player), c.Cmd.Cmd, string(cj)) {
					break
				}
			}
			for _, o := range e.Outcomes {
				if !exec(insertOutcome, int64(o.Train), int64(o.Tick), int(o.Owner), o.Src, o.Dst, o.State, o.Hops, o.Fares, o.Income, o.Visited) {
					break
				}
			}

		case reqEvent:
			e := r.event
			typ, _ := e.Event["type"].(string)
			raw, _ := json.Marshal(e.Event)
			if !exec(insertEvent, int64(e.Cursor), int64(e.Tick), typ, eventInt(e.Event, "railroad"), eventInt(e.Event, "station"), string(raw)) {
				continue
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Width, sn.Height, sn.Players, sn.Stations, sn.Railroads, sn.Pending, sn.Ships) {
				continue
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
