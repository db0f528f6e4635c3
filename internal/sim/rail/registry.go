package rail

import "railnet.ai/internal/sim/terrain"

// Registry is the station arena plus its tile index. Ids are never reused;
// removed stations stay in the arena as inactive entries so late references
// resolve to "inactive" rather than to another station.
type Registry struct {
	stations []*Station
	byTile   map[terrain.Tile]StationID
	byUnit   map[UnitID]StationID
}

func NewRegistry() *Registry {
	return &Registry{
		// Slot 0 is NoStation.
		stations: []*Station{nil},
		byTile:   map[terrain.Tile]StationID{},
		byUnit:   map[UnitID]StationID{},
	}
}

func (r *Registry) add(tile terrain.Tile, owner terrain.PlayerID, kind StructureKind, unit UnitID) *Station {
	id := StationID(len(r.stations))
	st := newStation(id, tile, owner, kind, unit)
	r.stations = append(r.stations, st)
	r.byTile[tile] = id
	if unit != 0 {
		r.byUnit[unit] = id
	}
	return st
}

func (r *Registry) remove(st *Station) {
	if r.byTile[st.Tile] == st.ID {
		delete(r.byTile, st.Tile)
	}
	if r.byUnit[st.Unit] == st.ID {
		delete(r.byUnit, st.Unit)
	}
}

// Get returns any station ever registered, active or not.
func (r *Registry) Get(id StationID) *Station {
	if id <= 0 || int(id) >= len(r.stations) {
		return nil
	}
	return r.stations[id]
}

func (r *Registry) AtTile(t terrain.Tile) (StationID, bool) {
	id, ok := r.byTile[t]
	return id, ok
}

func (r *Registry) ByUnit(u UnitID) (StationID, bool) {
	id, ok := r.byUnit[u]
	return id, ok
}

// Active returns active station ids in ascending order.
func (r *Registry) Active() []StationID {
	var out []StationID
	for _, st := range r.stations {
		if st != nil && st.active {
			out = append(out, st.ID)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.stations) - 1 }
