package pathfind

import (
	"railnet.ai/internal/sim/terrain"
)

// Gateway is a boundary tile of one cluster that touches a passable tile of
// an adjacent cluster.
type Gateway struct {
	Tile    terrain.Tile
	Cluster int
}

type abstractEdge struct {
	to   int
	cost float64
}

// AbstractGraph partitions the map into square clusters joined by gateway
// nodes. It is built once and shared by every HPAStar search until
// Invalidate is called by its owner.
type AbstractGraph struct {
	base *TileGraph
	size int
	cw   int
	ch   int

	gateways  []Gateway
	byTile    map[terrain.Tile]int
	edges     [][]abstractEdge
	byCluster [][]int
}

func BuildAbstractGraph(base *TileGraph, clusterSize int) *AbstractGraph {
	if clusterSize <= 1 {
		clusterSize = 16
	}
	m := base.Map()
	ag := &AbstractGraph{
		base:   base,
		size:   clusterSize,
		cw:     (m.Width() + clusterSize - 1) / clusterSize,
		ch:     (m.Height() + clusterSize - 1) / clusterSize,
		byTile: map[terrain.Tile]int{},
	}
	ag.byCluster = make([][]int, ag.cw*ag.ch)

	for cy := 0; cy < ag.ch; cy++ {
		for cx := 0; cx < ag.cw; cx++ {
			r := ag.clusterRect(cx + cy*ag.cw)
			if cx+1 < ag.cw {
				ag.scanBorder(r.MaxX, r.MinY, 0, 1, r.MaxY-r.MinY+1, 1, 0)
			}
			if cy+1 < ag.ch {
				ag.scanBorder(r.MinX, r.MaxY, 1, 0, r.MaxX-r.MinX+1, 0, 1)
			}
		}
	}
	for c := range ag.byCluster {
		ag.linkCluster(c)
	}
	return ag
}

// scanBorder walks n tiles from (x,y) in direction (sx,sy); each tile is paired
// with the tile offset by (ox,oy) across the border. Every contiguous run of
// passable pairs becomes one entrance with a gateway pair at its middle.
func (ag *AbstractGraph) scanBorder(x, y, sx, sy, n, ox, oy int) {
	m := ag.base.Map()
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		mid := (runStart + end) / 2
		a := m.Ref(x+sx*mid, y+sy*mid)
		b := m.Ref(x+sx*mid+ox, y+sy*mid+oy)
		ga := ag.addGateway(a)
		gb := ag.addGateway(b)
		ag.addEdge(ga, gb, 1)
		runStart = -1
	}
	for i := 0; i < n; i++ {
		ax, ay := x+sx*i, y+sy*i
		bx, by := ax+ox, ay+oy
		ok := m.InBounds(ax, ay) && m.InBounds(bx, by) &&
			ag.base.passable(m.Ref(ax, ay)) && ag.base.passable(m.Ref(bx, by))
		if ok && runStart < 0 {
			runStart = i
		}
		if !ok {
			flush(i - 1)
		}
	}
	flush(n - 1)
}

func (ag *AbstractGraph) addGateway(t terrain.Tile) int {
	if id, ok := ag.byTile[t]; ok {
		return id
	}
	c := ag.ClusterOf(t)
	id := len(ag.gateways)
	ag.gateways = append(ag.gateways, Gateway{Tile: t, Cluster: c})
	ag.edges = append(ag.edges, nil)
	ag.byTile[t] = id
	ag.byCluster[c] = append(ag.byCluster[c], id)
	return id
}

func (ag *AbstractGraph) addEdge(a, b int, cost float64) {
	for _, e := range ag.edges[a] {
		if e.to == b {
			return
		}
	}
	ag.edges[a] = append(ag.edges[a], abstractEdge{to: b, cost: cost})
	ag.edges[b] = append(ag.edges[b], abstractEdge{to: a, cost: cost})
}

func (ag *AbstractGraph) linkCluster(c int) {
	ids := ag.byCluster[c]
	if len(ids) < 2 {
		return
	}
	local := ag.base.Within(ag.clusterRect(c))
	for i, a := range ids {
		dist := local.distancesFrom(ag.gateways[a].Tile)
		for _, b := range ids[i+1:] {
			if d, ok := dist[ag.gateways[b].Tile]; ok {
				ag.addEdge(a, b, float64(d))
			}
		}
	}
}

func (ag *AbstractGraph) ClusterOf(t terrain.Tile) int {
	m := ag.base.Map()
	return m.X(t)/ag.size + (m.Y(t)/ag.size)*ag.cw
}

func (ag *AbstractGraph) clusterRect(c int) Rect {
	m := ag.base.Map()
	cx, cy := c%ag.cw, c/ag.cw
	return Rect{
		MinX: cx * ag.size,
		MinY: cy * ag.size,
		MaxX: min((cx+1)*ag.size, m.Width()) - 1,
		MaxY: min((cy+1)*ag.size, m.Height()) - 1,
	}
}

func (ag *AbstractGraph) Gateways() []Gateway { return ag.gateways }

func (ag *AbstractGraph) GatewayCount() int { return len(ag.gateways) }

// overlay adds temporary start/goal nodes without touching the cached graph.
type overlay struct {
	ag    *AbstractGraph
	tiles map[int]terrain.Tile
	extra map[int][]abstractEdge
}

func (o *overlay) tile(n int) terrain.Tile {
	if n < len(o.ag.gateways) {
		return o.ag.gateways[n].Tile
	}
	return o.tiles[n]
}

func (o *overlay) Neighbors(n int) []int {
	var out []int
	if n < len(o.ag.gateways) {
		for _, e := range o.ag.edges[n] {
			out = append(out, e.to)
		}
	}
	for _, e := range o.extra[n] {
		out = append(out, e.to)
	}
	return out
}

func (o *overlay) Cost(a, b int) float64 {
	if a < len(o.ag.gateways) {
		for _, e := range o.ag.edges[a] {
			if e.to == b {
				return e.cost
			}
		}
	}
	for _, e := range o.extra[a] {
		if e.to == b {
			return e.cost
		}
	}
	return 1
}

func (o *overlay) Heuristic(a, b int) float64 {
	return float64(o.ag.base.Map().Manhattan(o.tile(a), o.tile(b)))
}

func (o *overlay) link(a, b int, cost float64) {
	o.extra[a] = append(o.extra[a], abstractEdge{to: b, cost: cost})
	o.extra[b] = append(o.extra[b], abstractEdge{to: a, cost: cost})
}

// insert returns the node id for t, creating a temporary node connected to
// every gateway of its cluster reachable inside the cluster.
func (o *overlay) insert(t terrain.Tile, id int) (int, map[terrain.Tile]int) {
	local := o.ag.base.Within(o.ag.clusterRect(o.ag.ClusterOf(t)))
	dist := local.distancesFrom(t)
	if gw, ok := o.ag.byTile[t]; ok {
		return gw, dist
	}
	o.tiles[id] = t
	for _, gw := range o.ag.byCluster[o.ag.ClusterOf(t)] {
		if d, ok := dist[o.ag.gateways[gw].Tile]; ok {
			o.link(id, gw, float64(d))
		}
	}
	return id, dist
}

type hpaPhase int

const (
	phaseAbstract hpaPhase = iota
	phaseRefine
	phaseDone
)

// HPAStar solves a coarse path over gateways and then refines each hop with
// a local SerialAStar. Each Compute call advances at most one inner search.
type HPAStar struct {
	ag  *AbstractGraph
	ov  *overlay
	src terrain.Tile
	dst terrain.Tile

	iterations int
	maxTries   int

	phase    hpaPhase
	abstract *SerialAStar
	hops     []terrain.Tile
	hopIdx   int
	local    *SerialAStar
	path     []terrain.Tile
	status   Status
}

func NewHPAStar(ag *AbstractGraph, src, dst terrain.Tile, iterations, maxTries int) *HPAStar {
	h := &HPAStar{ag: ag, src: src, dst: dst, iterations: iterations, maxTries: maxTries}
	if src == dst {
		h.path = []terrain.Tile{src}
		h.status = Completed
		h.phase = phaseDone
		return h
	}
	h.ov = &overlay{ag: ag, tiles: map[int]terrain.Tile{}, extra: map[int][]abstractEdge{}}
	n := len(ag.gateways)
	start, dist := h.ov.insert(src, n)
	goal, _ := h.ov.insert(dst, n+1)
	if ag.ClusterOf(src) == ag.ClusterOf(dst) {
		if d, ok := dist[dst]; ok {
			h.ov.link(start, goal, float64(d))
		}
	}
	h.abstract = NewSerialAStar([]int{start}, goal, iterations, maxTries, h.ov)
	return h
}

func (h *HPAStar) Compute() Status {
	switch h.phase {
	case phaseAbstract:
		st := h.abstract.Compute()
		if st == Pending {
			return Pending
		}
		if st == PathNotFound {
			return h.fail()
		}
		for _, n := range h.abstract.Path() {
			h.hops = append(h.hops, h.ov.tile(n))
		}
		h.path = []terrain.Tile{h.hops[0]}
		h.phase = phaseRefine
		return h.refine()
	case phaseRefine:
		return h.refine()
	default:
		return h.status
	}
}

func (h *HPAStar) refine() Status {
	for h.hopIdx+1 < len(h.hops) {
		a, b := h.hops[h.hopIdx], h.hops[h.hopIdx+1]
		m := h.ag.base.Map()
		if m.Manhattan(a, b) == 1 {
			h.path = append(h.path, b)
			h.hopIdx++
			continue
		}
		if h.local == nil {
			r := h.ag.clusterRect(h.ag.ClusterOf(a)).Union(h.ag.clusterRect(h.ag.ClusterOf(b)))
			h.local = NewTileSearch(h.ag.base.Within(r), []terrain.Tile{a}, b, h.iterations, h.maxTries)
		}
		st := h.local.Compute()
		if st == Pending {
			return Pending
		}
		if st == PathNotFound {
			return h.fail()
		}
		seg := ToTiles(h.local.Path())
		h.path = append(h.path, seg[1:]...)
		h.local = nil
		h.hopIdx++
		return h.pendingOrDone()
	}
	h.phase = phaseDone
	h.status = Completed
	return h.status
}

func (h *HPAStar) pendingOrDone() Status {
	if h.hopIdx+1 < len(h.hops) {
		return Pending
	}
	h.phase = phaseDone
	h.status = Completed
	return h.status
}

func (h *HPAStar) fail() Status {
	h.phase = phaseDone
	h.status = PathNotFound
	h.path = nil
	return h.status
}

// Path returns tile handles as ints to satisfy Search.
func (h *HPAStar) Path() []int {
	if h.status != Completed {
		return nil
	}
	out := make([]int, len(h.path))
	for i, t := range h.path {
		out[i] = int(t)
	}
	return out
}

func (h *HPAStar) Tiles() []terrain.Tile {
	if h.status != Completed {
		return nil
	}
	return h.path
}
