package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "railnet.ai/internal/persistence/log"
	"railnet.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

type snapshotSummary struct {
	Path       string           `json:"path"`
	WorldID    string           `json:"world_id"`
	Tick       uint64           `json:"tick"`
	Seed       int64            `json:"seed"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Players    int              `json:"players"`
	Stations   map[string]int   `json:"stations"`
	Railroads  int              `json:"railroads"`
	TrackTiles int              `json:"track_tiles"`
	Pending    int              `json:"pending"`
	Ships      int              `json:"ships"`
	Gold       map[string]int64 `json:"gold"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:      path,
		WorldID:   snap.Header.WorldID,
		Tick:      snap.Header.Tick,
		Seed:      snap.Seed,
		Width:     snap.Width,
		Height:    snap.Height,
		Players:   len(snap.Players),
		Stations:  map[string]int{},
		Railroads: len(snap.Railroads),
		Pending:   len(snap.Pending),
		Ships:     len(snap.Ships),
		Gold:      map[string]int64{},
	}
	for _, st := range snap.Structures {
		s.Stations[st.Kind]++
	}
	for _, rr := range snap.Railroads {
		s.TrackTiles += len(rr.Tiles)
	}
	for _, p := range snap.Players {
		s.Gold[strconv.Itoa(int(p.ID))] = p.Gold
	}
	return s
}

// inspectCmd prints a summary of a snapshot without starting a world.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(path, snap))
}

// eventsCmd prints logged events, optionally filtered by type and tick.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	kind := fs.String("type", "", "event type filter (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	n, err := filterEvents(worldDir, strings.ToUpper(strings.TrimSpace(*kind)), *sinceTick, *toTick, func(line []byte) {
		fmt.Println(string(line))
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d events\n", n)
}

func filterEvents(worldDir, kind string, sinceTick, toTick uint64, emit func([]byte)) (int, error) {
	files, err := persistlog.ListFiles(worldDir, "events")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var e struct {
				Tick  uint64 `json:"tick"`
				Event struct {
					Type string `json:"type"`
				} `json:"event"`
			}
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if e.Tick < sinceTick || (toTick != 0 && e.Tick > toTick) {
				return nil
			}
			if kind != "" && e.Event.Type != kind {
				return nil
			}
			n++
			emit(line)
			return nil
		})
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
