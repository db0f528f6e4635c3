package world

import (
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/train"
	"railnet.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	Width         int
	Height        int
	WaterPermille int

	StartingGold int64
	ClaimRadius  int
	CityCost     int64
	PortCost     int64
	FactoryCost  int64
	OtherCost    int64

	TradeShipLifetimeTicks int
	TradeShipReward        int64

	// TrainSpawnEveryTicks is the factory dispatch period; zero disables it.
	TrainSpawnEveryTicks int
	MaxTrains            int

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	EventBacklog       int

	Rail  rail.Config
	Train train.Config
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.Width <= 0 {
		c.Width = 128
	}
	if c.Height <= 0 {
		c.Height = 128
	}
	if c.ClaimRadius < 0 {
		c.ClaimRadius = 0
	}
	if c.TradeShipLifetimeTicks <= 0 {
		c.TradeShipLifetimeTicks = 300
	}
	if c.MaxTrains <= 0 {
		c.MaxTrains = 256
	}
	if c.EventBacklog <= 0 {
		c.EventBacklog = 4096
	}
	if c.Rail == (rail.Config{}) {
		c.Rail = rail.DefaultConfig()
	}
}

func (c WorldConfig) buildCost(k rail.StructureKind) int64 {
	switch k {
	case rail.KindCity:
		return c.CityCost
	case rail.KindPort:
		return c.PortCost
	case rail.KindFactory:
		return c.FactoryCost
	default:
		return c.OtherCost
	}
}

// ConfigFromTuning maps the tuning file onto a world configuration.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	routing := train.RoutingAdaptive
	if t.Trains.Routing == "legacy" {
		routing = train.RoutingLegacy
	}
	return WorldConfig{
		ID:                     id,
		TickRateHz:             t.TickRateHz,
		Seed:                   seed,
		Width:                  t.Map.Width,
		Height:                 t.Map.Height,
		WaterPermille:          t.Map.WaterPermille,
		StartingGold:           t.Economy.StartingGold,
		ClaimRadius:            t.Economy.ClaimRadius,
		CityCost:               t.Economy.CityCost,
		PortCost:               t.Economy.PortCost,
		FactoryCost:            t.Economy.FactoryCost,
		TradeShipLifetimeTicks: t.Economy.TradeShipLifetimeTicks,
		TradeShipReward:        t.Economy.TradeShipReward,
		TrainSpawnEveryTicks:   t.Trains.SpawnEveryTicks,
		MaxTrains:              t.Trains.MaxActive,
		SnapshotEveryTicks:     t.SnapshotEveryTicks,
		Rail: rail.Config{
			SnapRadius:        t.Rail.SnapRadius,
			MinRange:          t.Rail.MinRange,
			MaxRange:          t.Rail.MaxRange,
			MaxConnections:    t.Rail.MaxConnections,
			MaxRailroadSize:   t.Rail.MaxRailroadSize,
			SpatialCellSize:   t.Rail.SpatialCellSize,
			FactoryRange:      t.Rail.FactoryRange,
			UseHPA:            t.Rail.UseHPA,
			HPAClusterSize:    t.Rail.HPAClusterSize,
			PathIterations:    t.Rail.PathIterations,
			PathMaxTries:      t.Rail.PathMaxTries,
			PathBudgetPerTick: t.Rail.PathBudgetPerTick,
			NominalSpeed:      t.Trains.Speed,
			Economics: rail.Economics{
				BaseCongestionFare:  t.Economy.BaseCongestionFare,
				LengthBonusPerTile:  t.Economy.LengthBonusPerTile,
				CongestionAlpha:     t.Economy.CongestionAlpha,
				FareChangeThreshold: t.Economy.FareChangeThreshold,
				ProfitShareDivisor:  t.Economy.ProfitShareDivisor,
			},
			Routing: rail.RoutingConfig{
				ProtocolDisabled:       t.Routing.Disabled,
				MaxHops:                t.Routing.MaxHops,
				BroadcastIntervalTicks: uint64(t.Routing.BroadcastIntervalTicks),
				RouteStaleTicks:        uint64(t.Routing.RouteStaleTicks),
				CleanupSlice:           t.Routing.CleanupSlice,
			},
			Choice: rail.ChoiceConfig{
				FollowRouteProbability:    t.Choice.FollowRouteProbability,
				RandomNeighborProbability: t.Choice.RandomNeighborProbability,
				DistanceSensitivity:       t.Choice.DistanceSensitivity,
				ProfitSensitivity:         t.Choice.ProfitSensitivity,
				RecencyPenalty:            t.Choice.RecencyPenalty,
				RecencyDecay:              t.Choice.RecencyDecay,
				HeatPenalty:               t.Choice.HeatPenalty,
				ExplorationFloor:          t.Choice.ExplorationFloor,
			},
			Rewards: rail.RewardTable{
				City:       t.Rewards.City,
				Port:       t.Rewards.Port,
				Factory:    t.Rewards.Factory,
				SelfMul:    t.Rewards.SelfMul,
				AllyMul:    t.Rewards.AllyMul,
				NeutralMul: t.Rewards.NeutralMul,
				EnemyMul:   t.Rewards.EnemyMul,
			},
			HeatPerVisit: 1,
			HeatDecay:    t.Choice.HeatDecay,
		},
		Train: train.Config{
			Speed:           t.Trains.Speed,
			Cars:            t.Trains.Cars,
			Spacing:         t.Trains.Spacing,
			MaxHops:         t.Trains.MaxHops,
			HistorySize:     t.Trains.HistorySize,
			CargoMultiplier: t.Trains.CargoMultiplier,
			Routing:         routing,
		},
	}
}
