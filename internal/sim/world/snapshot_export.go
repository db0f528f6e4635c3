package world

import (
	"railnet.ai/internal/persistence/snapshot"
	simenc "railnet.ai/internal/sim/encoding"
	"railnet.ai/internal/sim/rail"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:          w.cfg.Seed,
		TickRate:      w.cfg.TickRateHz,
		Width:         w.cfg.Width,
		Height:        w.cfg.Height,
		WaterPermille: w.cfg.WaterPermille,

		StartingGold: w.cfg.StartingGold,
		ClaimRadius:  w.cfg.ClaimRadius,
		BuildCosts: snapshot.BuildCostsV1{
			City:    w.cfg.CityCost,
			Port:    w.cfg.PortCost,
			Factory: w.cfg.FactoryCost,
			Other:   w.cfg.OtherCost,
		},
		TradeShipLifetimeTicks: w.cfg.TradeShipLifetimeTicks,
		TradeShipReward:        w.cfg.TradeShipReward,
		TrainSpawnEveryTicks:   w.cfg.TrainSpawnEveryTicks,
		MaxTrains:              w.cfg.MaxTrains,
		SnapshotEveryTicks:     w.cfg.SnapshotEveryTicks,
		Rail:                   w.net.Config(),
		Train:                  w.cfg.Train,

		Terrain: simenc.EncodeWords(w.grid.Words()),

		Counters: snapshot.CountersV1{
			NextUnit:  w.nextUnit,
			NextTrain: w.nextTrain,
			Cursor:    w.cursor,
		},
	}

	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			ID:         uint16(p.ID),
			Name:       p.Name,
			Gold:       p.Gold,
			JoinedTick: p.JoinedTick,
		})
	}
	for _, k := range w.sortedStanceKeys() {
		snap.Relations = append(snap.Relations, snapshot.RelationV1{
			A:      uint16(k[0]),
			B:      uint16(k[1]),
			Stance: uint8(w.stances[k]),
		})
	}
	for _, id := range w.sortedStructureIDs() {
		s := w.structures[id]
		snap.Structures = append(snap.Structures, snapshot.StructureV1{
			Station: int32(s.Station),
			Unit:    uint64(s.Unit),
			Owner:   uint16(s.Owner),
			Kind:    s.Kind.String(),
			Tile:    int32(s.Tile),
		})
	}
	// Buildings waiting for a factory in range carry no station.
	for _, id := range w.sortedBuildingIDs() {
		s := w.buildings[id]
		if s.Station != rail.NoStation {
			continue
		}
		snap.Structures = append(snap.Structures, snapshot.StructureV1{
			Unit:  uint64(s.Unit),
			Owner: uint16(s.Owner),
			Kind:  s.Kind.String(),
			Tile:  int32(s.Tile),
		})
	}
	for _, rr := range w.net.Railroads() {
		c := rr.Congestion()
		tiles := make([]int32, len(rr.Tiles()))
		for i, t := range rr.Tiles() {
			tiles[i] = int32(t)
		}
		snap.Railroads = append(snap.Railroads, snapshot.RailroadV1{
			ID:             int32(rr.ID),
			From:           int32(rr.From),
			To:             int32(rr.To),
			Tiles:          tiles,
			CongestionEMA:  c.EMA,
			LastCongestion: c.LastTick,
			PublishedFare:  c.PublishedFare,
		})
	}
	for _, p := range w.net.PendingConnections() {
		snap.Pending = append(snap.Pending, [2]int32{int32(p[0]), int32(p[1])})
	}
	for _, s := range w.ships {
		tile := int32(0)
		if u := w.units[s.Unit]; u != nil {
			tile = int32(u.Tile)
		}
		snap.Ships = append(snap.Ships, snapshot.ShipV1{
			Unit:    uint64(s.Unit),
			Owner:   uint16(s.Owner),
			Port:    int32(s.Port),
			Tile:    tile,
			Expires: s.Expires,
		})
	}
	return snap
}
