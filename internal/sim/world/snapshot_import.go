package world

import (
	"fmt"

	"railnet.ai/internal/persistence/snapshot"
	simenc "railnet.ai/internal/sim/encoding"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
	"railnet.ai/internal/sim/train"
)

// ConfigFromSnapshot restores the configuration a snapshot was taken with.
// Operational settings that do not affect the simulation (tick rate, event
// backlog) are left for the caller to override.
func ConfigFromSnapshot(snap snapshot.SnapshotV1) WorldConfig {
	return WorldConfig{
		ID:                     snap.Header.WorldID,
		TickRateHz:             snap.TickRate,
		Seed:                   snap.Seed,
		Width:                  snap.Width,
		Height:                 snap.Height,
		WaterPermille:          snap.WaterPermille,
		StartingGold:           snap.StartingGold,
		ClaimRadius:            snap.ClaimRadius,
		CityCost:               snap.BuildCosts.City,
		PortCost:               snap.BuildCosts.Port,
		FactoryCost:            snap.BuildCosts.Factory,
		OtherCost:              snap.BuildCosts.Other,
		TradeShipLifetimeTicks: snap.TradeShipLifetimeTicks,
		TradeShipReward:        snap.TradeShipReward,
		TrainSpawnEveryTicks:   snap.TrainSpawnEveryTicks,
		MaxTrains:              snap.MaxTrains,
		SnapshotEveryTicks:     snap.SnapshotEveryTicks,
		Rail:                   snap.Rail,
		Train:                  snap.Train,
	}
}

// ImportSnapshot replaces the world state with a snapshot. Stations are
// re-registered in id order, so ids may be compacted; railroads, pending
// connections and ships are remapped accordingly. The world resumes at the
// tick after the snapshot.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.Width != w.cfg.Width || snap.Height != w.cfg.Height {
		return fmt.Errorf("snapshot map %dx%d does not match world %dx%d", snap.Width, snap.Height, w.cfg.Width, w.cfg.Height)
	}
	words, err := simenc.DecodeWords(snap.Terrain, snap.Width*snap.Height)
	if err != nil {
		return fmt.Errorf("terrain: %w", err)
	}
	if err := w.grid.LoadWords(words); err != nil {
		return fmt.Errorf("terrain: %w", err)
	}

	w.muted = true
	defer func() { w.muted = false }()

	w.players = map[terrain.PlayerID]*Player{}
	w.stances = map[[2]terrain.PlayerID]rail.Relation{}
	w.units = map[rail.UnitID]*Unit{}
	w.structures = map[rail.StationID]*Structure{}
	w.buildings = map[rail.UnitID]*Structure{}
	w.trains = map[uint64]*train.Execution{}
	w.ships = nil
	w.net = w.newNetwork()
	w.index = newBuildingIndex(w.grid, w.net.Config().SpatialCellSize)

	for _, p := range snap.Players {
		w.players[terrain.PlayerID(p.ID)] = &Player{
			ID:         terrain.PlayerID(p.ID),
			Name:       p.Name,
			Gold:       p.Gold,
			JoinedTick: p.JoinedTick,
		}
	}
	for _, r := range snap.Relations {
		w.stances[stanceKey(terrain.PlayerID(r.A), terrain.PlayerID(r.B))] = rail.Relation(r.Stance)
	}

	remap := map[int32]rail.StationID{}
	for _, s := range snap.Structures {
		kind := rail.ParseKind(s.Kind)
		owner := terrain.PlayerID(s.Owner)
		tile := terrain.Tile(s.Tile)
		unit := rail.UnitID(s.Unit)
		if w.buildings[unit] != nil {
			return fmt.Errorf("structure unit %d: duplicate", s.Unit)
		}
		w.units[unit] = &Unit{ID: unit, Kind: kind.String(), Owner: owner, Tile: tile}
		if s.Station == 0 {
			w.addBuilding(&Structure{Unit: unit, Kind: kind, Owner: owner, Tile: tile})
			continue
		}
		id, ok := w.net.AddStation(tile, owner, kind, unit)
		if !ok {
			return fmt.Errorf("structure %d: tile %d already has a station", s.Station, s.Tile)
		}
		remap[s.Station] = id
		w.addBuilding(&Structure{Unit: unit, Station: id, Kind: kind, Owner: owner, Tile: tile})
	}

	for _, r := range snap.Railroads {
		from, okA := remap[r.From]
		to, okB := remap[r.To]
		if !okA || !okB {
			return fmt.Errorf("railroad %d: unknown endpoint", r.ID)
		}
		tiles := make([]terrain.Tile, len(r.Tiles))
		for i, t := range r.Tiles {
			tiles[i] = terrain.Tile(t)
		}
		id, ok := w.net.BuildRailroad(from, to, tiles)
		if !ok {
			return fmt.Errorf("railroad %d: rejected", r.ID)
		}
		w.net.RestoreCongestion(id, rail.CongestionState{
			EMA:           r.CongestionEMA,
			LastTick:      r.LastCongestion,
			PublishedFare: r.PublishedFare,
		})
	}
	for _, p := range snap.Pending {
		a, okA := remap[p[0]]
		b, okB := remap[p[1]]
		if okA && okB {
			w.net.QueueConnection(a, b)
		}
	}
	for _, s := range snap.Ships {
		port, ok := remap[s.Port]
		if !ok {
			continue
		}
		unit := rail.UnitID(s.Unit)
		w.units[unit] = &Unit{ID: unit, Kind: train.UnitTradeShip, Owner: terrain.PlayerID(s.Owner), Tile: terrain.Tile(s.Tile)}
		w.ships = append(w.ships, &tradeShip{Unit: unit, Owner: terrain.PlayerID(s.Owner), Port: port, Expires: s.Expires})
	}

	w.nextUnit = snap.Counters.NextUnit
	w.nextTrain = snap.Counters.NextTrain
	w.cursor = snap.Counters.Cursor
	w.backlog = nil
	w.tickEvents = w.tickEvents[:0]
	w.outcomes = w.outcomes[:0]
	w.tick.Store(snap.Header.Tick + 1)
	w.storeMetrics(snap.Header.Tick+1, 0)
	return nil
}
