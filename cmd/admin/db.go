package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] [-player P] [-type T] snapshots|ticks|commands|outcomes|events|summary"

type dbQuery struct {
	Limit  int
	Player int
	Type   string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	player := fs.Int("player", 0, "player filter (commands, outcomes)")
	kind := fs.String("type", "", "event type filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, dbQuery{Limit: *limit, Player: *player, Type: strings.ToUpper(*kind)}, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q string, opt dbQuery, out io.Writer) error {
	if opt.Limit <= 0 {
		opt.Limit = 20
	}
	switch q {
	case "snapshots":
		return printRows(out, db, `SELECT tick,path,seed,width,height,players,stations,railroads,pending,ships FROM snapshots ORDER BY tick DESC LIMIT ?`, opt.Limit)

	case "ticks":
		return printRows(out, db, `SELECT tick,digest,commands,outcomes FROM ticks ORDER BY tick DESC LIMIT ?`, opt.Limit)

	case "commands":
		if opt.Player > 0 {
			return printRows(out, db, `SELECT tick,seq,player,cmd,cmd_json FROM commands WHERE player=? ORDER BY tick DESC, seq DESC LIMIT ?`, opt.Player, opt.Limit)
		}
		return printRows(out, db, `SELECT tick,seq,player,cmd,cmd_json FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`, opt.Limit)

	case "outcomes":
		if opt.Player > 0 {
			return printRows(out, db, `SELECT train,tick,owner,src,dst,state,hops,fares,income,visited FROM train_outcomes WHERE owner=? ORDER BY tick DESC LIMIT ?`, opt.Player, opt.Limit)
		}
		return printRows(out, db, `SELECT train,tick,owner,src,dst,state,hops,fares,income,visited FROM train_outcomes ORDER BY tick DESC LIMIT ?`, opt.Limit)

	case "events":
		if opt.Type != "" {
			return printRows(out, db, `SELECT cursor,tick,type,railroad,station FROM rail_events WHERE type=? ORDER BY cursor DESC LIMIT ?`, opt.Type, opt.Limit)
		}
		return printRows(out, db, `SELECT cursor,tick,type,railroad,station FROM rail_events ORDER BY cursor DESC LIMIT ?`, opt.Limit)

	case "summary":
		// Per-owner train economics.
		return printRows(out, db, `SELECT owner,
			COUNT(*) AS trains,
			SUM(CASE WHEN state='ARRIVED' THEN 1 ELSE 0 END) AS arrived,
			SUM(CASE WHEN state='STUCK' THEN 1 ELSE 0 END) AS stuck,
			SUM(income) AS income,
			SUM(fares) AS fares,
			AVG(hops) AS avg_hops
			FROM train_outcomes GROUP BY owner ORDER BY owner LIMIT ?`, opt.Limit)

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

// printRows writes every row as one JSON object keyed by column name.
func printRows(out io.Writer, db *sql.DB, query string, args ...any) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
