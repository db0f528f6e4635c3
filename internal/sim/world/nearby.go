package world

import (
	"sort"

	"golang.org/x/exp/slices"

	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
)

// buildingIndex buckets buildings by uniform map cells so radius queries
// only touch nearby cells.
type buildingIndex struct {
	m        terrain.Map
	cellSize int
	cols     int
	cells    map[int][]rail.UnitID
}

func newBuildingIndex(m terrain.Map, cellSize int) *buildingIndex {
	if cellSize <= 0 {
		cellSize = 16
	}
	return &buildingIndex{
		m:        m,
		cellSize: cellSize,
		cols:     (m.Width() + cellSize - 1) / cellSize,
		cells:    map[int][]rail.UnitID{},
	}
}

func (ix *buildingIndex) cellOf(t terrain.Tile) int {
	return (ix.m.Y(t)/ix.cellSize)*ix.cols + ix.m.X(t)/ix.cellSize
}

func (ix *buildingIndex) add(id rail.UnitID, t terrain.Tile) {
	k := ix.cellOf(t)
	ix.cells[k] = append(ix.cells[k], id)
}

func (ix *buildingIndex) remove(id rail.UnitID, t terrain.Tile) {
	k := ix.cellOf(t)
	bucket := ix.cells[k]
	for i, v := range bucket {
		if v == id {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(ix.cells, k)
		return
	}
	ix.cells[k] = bucket
}

// around returns every id indexed in the cells covering the square of the
// given radius around t.
func (ix *buildingIndex) around(t terrain.Tile, radius int) []rail.UnitID {
	x, y := ix.m.X(t), ix.m.Y(t)
	minCX := max(0, x-radius) / ix.cellSize
	maxCX := min(ix.m.Width()-1, x+radius) / ix.cellSize
	minCY := max(0, y-radius) / ix.cellSize
	maxCY := min(ix.m.Height()-1, y+radius) / ix.cellSize

	var out []rail.UnitID
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			out = append(out, ix.cells[cy*ix.cols+cx]...)
		}
	}
	return out
}

// NearbyUnits returns the buildings within Manhattan radius of t in
// ascending unit id order. Buildings without a station are included.
func (w *World) NearbyUnits(t terrain.Tile, radius int, kinds ...rail.StructureKind) []rail.Unit {
	var out []rail.Unit
	for _, id := range w.index.around(t, radius) {
		b := w.buildings[id]
		if b == nil || w.grid.Manhattan(t, b.Tile) > radius {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, b.Kind) {
			continue
		}
		out = append(out, rail.Unit{ID: b.Unit, Kind: b.Kind, Owner: b.Owner, Tile: b.Tile})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) addBuilding(s *Structure) {
	w.buildings[s.Unit] = s
	w.index.add(s.Unit, s.Tile)
	if s.Station != rail.NoStation {
		w.structures[s.Station] = s
	}
}

func (w *World) dropBuilding(s *Structure) {
	delete(w.buildings, s.Unit)
	w.index.remove(s.Unit, s.Tile)
	if s.Station != rail.NoStation {
		delete(w.structures, s.Station)
	}
}

// qualifies reports whether a building of kind at t gets a station. OTHER
// buildings only join the network with a factory in range.
func (w *World) qualifies(kind rail.StructureKind, t terrain.Tile) bool {
	if kind != rail.KindOther {
		return true
	}
	return len(w.NearbyUnits(t, w.net.Config().FactoryRange, rail.KindFactory)) > 0
}

// attachStation registers s with the rail network and connects it.
func (w *World) attachStation(s *Structure) rail.ConnectResult {
	id, _ := w.net.AddStation(s.Tile, s.Owner, s.Kind, s.Unit)
	s.Station = id
	w.structures[id] = s
	return w.net.ConnectStation(id)
}

// promoteNear gives a station to every idle OTHER building in range of the
// factory at t, in unit id order.
func (w *World) promoteNear(t terrain.Tile, now uint64) int {
	n := 0
	for _, u := range w.NearbyUnits(t, w.net.Config().FactoryRange, rail.KindOther) {
		b := w.buildings[u.ID]
		if b.Station != rail.NoStation {
			continue
		}
		res := w.attachStation(b)
		w.log.Printf("tick=%d player=%d promoted %s unit=%d station=%d snapped=%d queued=%d", now, b.Owner, b.Kind, b.Unit, b.Station, len(res.Snapped), res.Queued)
		n++
	}
	return n
}

func (w *World) sortedBuildingIDs() []rail.UnitID {
	ids := make([]rail.UnitID, 0, len(w.buildings))
	for id := range w.buildings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
