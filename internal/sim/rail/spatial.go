package rail

import (
	"golang.org/x/exp/slices"

	"railnet.ai/internal/sim/terrain"
)

// SpatialGrid buckets railroads by the uniform cells their tiles pass
// through, so "is there track near this tile" touches only nearby cells.
type SpatialGrid struct {
	m        terrain.Map
	cellSize int
	cols     int
	rows     int

	cells map[int]map[RailroadID]struct{}
	// back is each railroad's reverse index of occupied cells.
	back map[RailroadID][]int
}

func NewSpatialGrid(m terrain.Map, cellSize int) *SpatialGrid {
	if cellSize <= 0 {
		cellSize = 16
	}
	return &SpatialGrid{
		m:        m,
		cellSize: cellSize,
		cols:     (m.Width() + cellSize - 1) / cellSize,
		rows:     (m.Height() + cellSize - 1) / cellSize,
		cells:    map[int]map[RailroadID]struct{}{},
		back:     map[RailroadID][]int{},
	}
}

func (g *SpatialGrid) cellOf(t terrain.Tile) int {
	return (g.m.Y(t)/g.cellSize)*g.cols + g.m.X(t)/g.cellSize
}

// Register indexes id under every cell its tiles cross. Registering an id
// twice replaces the previous entry.
func (g *SpatialGrid) Register(id RailroadID, tiles []terrain.Tile) {
	if _, ok := g.back[id]; ok {
		g.Unregister(id)
	}
	var keys []int
	for _, t := range tiles {
		k := g.cellOf(t)
		bucket := g.cells[k]
		if bucket == nil {
			bucket = map[RailroadID]struct{}{}
			g.cells[k] = bucket
		}
		if _, seen := bucket[id]; seen {
			continue
		}
		bucket[id] = struct{}{}
		keys = append(keys, k)
	}
	g.back[id] = keys
}

func (g *SpatialGrid) Unregister(id RailroadID) {
	for _, k := range g.back[id] {
		bucket := g.cells[k]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(g.cells, k)
		}
	}
	delete(g.back, id)
}

// Query returns, in ascending id order, every railroad indexed in the cells
// covering the square of the given radius around t.
func (g *SpatialGrid) Query(t terrain.Tile, radius int) []RailroadID {
	x, y := g.m.X(t), g.m.Y(t)
	minCX := max(0, x-radius) / g.cellSize
	maxCX := min(g.m.Width()-1, x+radius) / g.cellSize
	minCY := max(0, y-radius) / g.cellSize
	maxCY := min(g.m.Height()-1, y+radius) / g.cellSize

	seen := map[RailroadID]struct{}{}
	var out []RailroadID
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			for id := range g.cells[cy*g.cols+cx] {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	slices.Sort(out)
	return out
}

// CellCount is the number of occupied cells.
func (g *SpatialGrid) CellCount() int { return len(g.cells) }

func (g *SpatialGrid) cellsOf(id RailroadID) []int { return g.back[id] }
