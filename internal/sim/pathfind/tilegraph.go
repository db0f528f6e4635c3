package pathfind

import "railnet.ai/internal/sim/terrain"

// Rect is an inclusive tile rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: min(r.MinX, o.MinX),
		MinY: min(r.MinY, o.MinY),
		MaxX: max(r.MaxX, o.MaxX),
		MaxY: max(r.MaxY, o.MaxY),
	}
}

// TileGraph exposes a terrain map as a unit-cost Graph. Node ids are tile
// handles.
type TileGraph struct {
	m        terrain.Map
	passable func(terrain.Tile) bool
	bounds   Rect
	bounded  bool
}

// LandOnly is the default passability for track.
func LandOnly(m terrain.Map) func(terrain.Tile) bool {
	return m.IsLand
}

func NewTileGraph(m terrain.Map, passable func(terrain.Tile) bool) *TileGraph {
	if passable == nil {
		passable = LandOnly(m)
	}
	return &TileGraph{m: m, passable: passable}
}

// Within returns a view of the graph restricted to r.
func (g *TileGraph) Within(r Rect) *TileGraph {
	return &TileGraph{m: g.m, passable: g.passable, bounds: r, bounded: true}
}

func (g *TileGraph) Map() terrain.Map { return g.m }

func (g *TileGraph) Passable(t terrain.Tile) bool {
	if g.bounded && !g.bounds.Contains(g.m.X(t), g.m.Y(t)) {
		return false
	}
	return g.passable(t)
}

func (g *TileGraph) Neighbors(n int) []int {
	nbs := g.m.Neighbors(terrain.Tile(n))
	out := make([]int, 0, len(nbs))
	for _, t := range nbs {
		if g.Passable(t) {
			out = append(out, int(t))
		}
	}
	return out
}

func (g *TileGraph) Cost(a, b int) float64 { return 1 }

func (g *TileGraph) Heuristic(a, b int) float64 {
	return float64(g.m.Manhattan(terrain.Tile(a), terrain.Tile(b)))
}

// distancesFrom runs a BFS from start and returns tile -> step count for every
// reachable tile inside the graph's bounds.
func (g *TileGraph) distancesFrom(start terrain.Tile) map[terrain.Tile]int {
	dist := map[terrain.Tile]int{start: 0}
	queue := []terrain.Tile{start}
	for head := 0; head < len(queue); head++ {
		t := queue[head]
		for _, nb := range g.Neighbors(int(t)) {
			nt := terrain.Tile(nb)
			if _, seen := dist[nt]; seen {
				continue
			}
			dist[nt] = dist[t] + 1
			queue = append(queue, nt)
		}
	}
	return dist
}

// ToTiles converts node ids produced by a TileGraph search back to tiles.
func ToTiles(nodes []int) []terrain.Tile {
	out := make([]terrain.Tile, len(nodes))
	for i, n := range nodes {
		out[i] = terrain.Tile(n)
	}
	return out
}

// NewTileSearch is the common case: a bidirectional search between tiles.
func NewTileSearch(g *TileGraph, sources []terrain.Tile, dst terrain.Tile, iterations, maxTries int) *SerialAStar {
	src := make([]int, len(sources))
	for i, t := range sources {
		src[i] = int(t)
	}
	return NewSerialAStar(src, int(dst), iterations, maxTries, g)
}
