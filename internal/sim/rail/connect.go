package rail

import (
	"sort"

	"railnet.ai/internal/sim/pathfind"
	"railnet.ai/internal/sim/terrain"
)

// connectTask is a resumable track-laying job between two stations.
type connectTask struct {
	from   StationID
	to     StationID
	search pathfind.Search
	tiles  func() []terrain.Tile
}

type ConnectResult struct {
	// Snapped lists the railroads the station was inserted into.
	Snapped []RailroadID
	Queued  int
}

// ConnectStation first tries to snap the station onto nearby track. If no
// track is close enough it queues path searches to the nearest stations in
// range; those complete over later ticks.
func (n *Network) ConnectStation(id StationID) ConnectResult {
	st := n.station(id)
	if st == nil {
		return ConnectResult{}
	}
	if snapped := n.snap(st); len(snapped) > 0 {
		return ConnectResult{Snapped: snapped}
	}
	queued := 0
	for _, o := range n.connectCandidates(st.Tile, st.Owner, st.ID) {
		n.tasks = append(n.tasks, n.newConnectTask(st, o))
		queued++
	}
	return ConnectResult{Queued: queued}
}

// connectCandidates returns up to MaxConnections stations within
// [MinRange, MaxRange] of tile, closest first. Candidates come from the
// host's nearby-unit query; units without a station are skipped.
func (n *Network) connectCandidates(tile terrain.Tile, owner terrain.PlayerID, self StationID) []*Station {
	m := n.game.Map()
	type cand struct {
		st *Station
		d  int
	}
	var cands []cand
	selfSt := n.station(self)
	for _, u := range n.game.NearbyUnits(tile, n.cfg.MaxRange) {
		o, ok := n.StationAt(u.Tile)
		if !ok || o.ID == self {
			continue
		}
		d := m.Manhattan(tile, o.Tile)
		if d < n.cfg.MinRange {
			continue
		}
		if n.game.Relation(owner, o.Owner) == RelEnemy {
			continue
		}
		if selfSt != nil && (selfSt.IsNeighbor(o.ID) || n.hasTask(self, o.ID)) {
			continue
		}
		cands = append(cands, cand{o, d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].d != cands[j].d {
			return cands[i].d < cands[j].d
		}
		return cands[i].st.ID < cands[j].st.ID
	})
	out := make([]*Station, 0, n.cfg.MaxConnections)
	for _, c := range cands {
		if len(out) == n.cfg.MaxConnections {
			break
		}
		out = append(out, c.st)
	}
	return out
}

func (n *Network) hasTask(a, b StationID) bool {
	for _, t := range n.tasks {
		if (t.from == a && t.to == b) || (t.from == b && t.to == a) {
			return true
		}
	}
	return false
}

func (n *Network) newConnectTask(from, to *Station) *connectTask {
	t := &connectTask{from: from.ID, to: to.ID}
	if n.cfg.UseHPA {
		h := pathfind.NewHPAStar(n.abstractGraph(), from.Tile, to.Tile, n.cfg.PathIterations, n.cfg.PathMaxTries)
		t.search, t.tiles = h, h.Tiles
		return t
	}
	s := pathfind.NewTileSearch(n.tiles, []terrain.Tile{from.Tile}, to.Tile, n.cfg.PathIterations, n.cfg.PathMaxTries)
	t.search = s
	t.tiles = func() []terrain.Tile { return pathfind.ToTiles(s.Path()) }
	return t
}

// runConnectTasks spends the per-tick search budget round-robin across
// pending connections.
func (n *Network) runConnectTasks(now uint64) {
	budget := n.cfg.PathBudgetPerTick
	for budget > 0 && len(n.tasks) > 0 {
		t := n.tasks[0]
		n.tasks = n.tasks[1:]
		from, to := n.station(t.from), n.station(t.to)
		if from == nil || to == nil {
			continue
		}
		budget--
		switch t.search.Compute() {
		case pathfind.Pending:
			n.tasks = append(n.tasks, t)
		case pathfind.PathNotFound:
			n.stats.PathFailures++
			n.log.Printf("tick=%d no track path station=%d -> station=%d", now, t.from, t.to)
		case pathfind.Completed:
			tiles := t.tiles()
			if len(tiles)-1 > n.cfg.MaxRailroadSize || from.IsNeighbor(to.ID) {
				n.stats.ConnectRejected++
				continue
			}
			n.addRailroad(from, to, tiles, true)
		}
	}
}

// closestIndex finds the track tile nearest to t; ties keep the lower index.
func closestIndex(m terrain.Map, tiles []terrain.Tile, t terrain.Tile) (int, int) {
	best, bestD := -1, 0
	for i, tt := range tiles {
		d := m.Manhattan(tt, t)
		if best < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// spur walks from a to b along x then y, excluding a.
func spur(m terrain.Map, a, b terrain.Tile) []terrain.Tile {
	x, y := m.X(a), m.Y(a)
	tx, ty := m.X(b), m.Y(b)
	var out []terrain.Tile
	for x != tx {
		x += sign(tx - x)
		out = append(out, m.Ref(x, y))
	}
	for y != ty {
		y += sign(ty - y)
		out = append(out, m.Ref(x, y))
	}
	return out
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

type snapCandidate struct {
	railroad RailroadID
	index    int
}

func (n *Network) snapCandidates(tile terrain.Tile, self StationID) []snapCandidate {
	m := n.game.Map()
	var out []snapCandidate
	for _, rid := range n.grid.Query(tile, n.cfg.SnapRadius) {
		rr := n.railroads[rid]
		if rr == nil || !rr.active || rr.From == self || rr.To == self {
			continue
		}
		idx, d := closestIndex(m, rr.tiles, tile)
		if d > n.cfg.SnapRadius || idx <= 0 || idx >= len(rr.tiles)-1 {
			continue
		}
		out = append(out, snapCandidate{railroad: rid, index: idx})
	}
	return out
}

// snap inserts st into every nearby railroad whose closest tile is strictly
// interior, replacing each with two railroads that meet at st.
func (n *Network) snap(st *Station) []RailroadID {
	var done []RailroadID
	for _, c := range n.snapCandidates(st.Tile, st.ID) {
		n.split(n.railroads[c.railroad], st, c.index)
		done = append(done, c.railroad)
	}
	return done
}

func (n *Network) split(rr *Railroad, st *Station, idx int) {
	m := n.game.Map()
	sp := spur(m, rr.tiles[idx], st.Tile)

	first := make([]terrain.Tile, 0, idx+1+len(sp))
	first = append(first, rr.tiles[:idx+1]...)
	first = append(first, sp...)

	second := make([]terrain.Tile, 0, len(sp)+len(rr.tiles)-idx)
	for i := len(sp) - 1; i >= 0; i-- {
		second = append(second, sp[i])
	}
	second = append(second, rr.tiles[idx:]...)

	from, to := n.station(rr.From), n.station(rr.To)
	n.removeRailroad(rr.ID, false)
	a := n.addRailroad(from, st, first, false)
	b := n.addRailroad(st, to, second, false)
	n.snapped[rr.ID] = snapRecord{
		halves:  [2]RailroadID{a.ID, b.ID},
		station: st.ID,
		from:    rr.From,
		at:      idx,
		oldLen:  len(rr.tiles),
	}
	n.stats.Snaps++
	n.emit(Event{
		Kind:     EventRailroadSnapped,
		Railroad: rr.ID,
		Station:  st.ID,
		NewIDs:   [2]RailroadID{a.ID, b.ID},
		NewTiles: [2][]terrain.Tile{a.tiles, b.tiles},
	})
}

type PreviewPath struct {
	To    StationID
	Tiles []terrain.Tile
}

type SnapPreview struct {
	Railroad RailroadID
	Index    int
	Tile     terrain.Tile
}

// Preview is what connecting a station at a tile would do, for UI ghosts.
type Preview struct {
	Snaps []SnapPreview
	Paths []PreviewPath
}

// PreviewConnections computes synchronously what ConnectStation would do for
// a station placed at tile. It does not modify the network.
func (n *Network) PreviewConnections(tile terrain.Tile, owner terrain.PlayerID) Preview {
	var p Preview
	self, _ := n.reg.AtTile(tile)
	for _, c := range n.snapCandidates(tile, self) {
		rr := n.railroads[c.railroad]
		p.Snaps = append(p.Snaps, SnapPreview{Railroad: c.railroad, Index: c.index, Tile: rr.tiles[c.index]})
	}
	if len(p.Snaps) > 0 {
		return p
	}
	for _, o := range n.connectCandidates(tile, owner, self) {
		s := pathfind.NewTileSearch(n.tiles, []terrain.Tile{tile}, o.Tile, n.cfg.PathIterations, n.cfg.PathMaxTries)
		if pathfind.RunToCompletion(s) != pathfind.Completed {
			continue
		}
		tiles := pathfind.ToTiles(s.Path())
		if len(tiles)-1 > n.cfg.MaxRailroadSize {
			continue
		}
		p.Paths = append(p.Paths, PreviewPath{To: o.ID, Tiles: tiles})
	}
	return p
}
