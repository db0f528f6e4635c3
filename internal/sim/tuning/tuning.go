package tuning

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Map     MapTuning     `yaml:"map" json:"map"`
	Economy EconomyTuning `yaml:"economy" json:"economy"`
	Rail    RailTuning    `yaml:"rail" json:"rail"`
	Routing RoutingTuning `yaml:"routing" json:"routing"`
	Choice  ChoiceTuning  `yaml:"choice" json:"choice"`
	Rewards RewardTuning  `yaml:"rewards" json:"rewards"`
	Trains  TrainTuning   `yaml:"trains" json:"trains"`

	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits"`
}

type MapTuning struct {
	Width         int `yaml:"width" json:"width"`
	Height        int `yaml:"height" json:"height"`
	WaterPermille int `yaml:"water_permille" json:"water_permille"`
}

type EconomyTuning struct {
	StartingGold int64 `yaml:"starting_gold" json:"starting_gold"`
	ClaimRadius  int   `yaml:"claim_radius" json:"claim_radius"`

	CityCost    int64 `yaml:"city_cost" json:"city_cost"`
	PortCost    int64 `yaml:"port_cost" json:"port_cost"`
	FactoryCost int64 `yaml:"factory_cost" json:"factory_cost"`

	TradeShipLifetimeTicks int   `yaml:"trade_ship_lifetime_ticks" json:"trade_ship_lifetime_ticks"`
	TradeShipReward        int64 `yaml:"trade_ship_reward" json:"trade_ship_reward"`

	BaseCongestionFare  int64   `yaml:"base_congestion_fare" json:"base_congestion_fare"`
	LengthBonusPerTile  int64   `yaml:"length_bonus_per_tile" json:"length_bonus_per_tile"`
	CongestionAlpha     float64 `yaml:"congestion_alpha" json:"congestion_alpha"`
	FareChangeThreshold float64 `yaml:"fare_change_threshold" json:"fare_change_threshold"`
	ProfitShareDivisor  int64   `yaml:"profit_share_divisor" json:"profit_share_divisor"`
}

type RailTuning struct {
	SnapRadius        int  `yaml:"snap_radius" json:"snap_radius"`
	MinRange          int  `yaml:"min_range" json:"min_range"`
	MaxRange          int  `yaml:"max_range" json:"max_range"`
	MaxConnections    int  `yaml:"max_connections" json:"max_connections"`
	MaxRailroadSize   int  `yaml:"max_railroad_size" json:"max_railroad_size"`
	SpatialCellSize   int  `yaml:"spatial_cell_size" json:"spatial_cell_size"`
	FactoryRange      int  `yaml:"factory_range" json:"factory_range"`
	UseHPA            bool `yaml:"use_hpa" json:"use_hpa"`
	HPAClusterSize    int  `yaml:"hpa_cluster_size" json:"hpa_cluster_size"`
	PathIterations    int  `yaml:"path_iterations" json:"path_iterations"`
	PathMaxTries      int  `yaml:"path_max_tries" json:"path_max_tries"`
	PathBudgetPerTick int  `yaml:"path_budget_per_tick" json:"path_budget_per_tick"`
}

type RoutingTuning struct {
	Disabled               bool `yaml:"disabled" json:"disabled"`
	MaxHops                int  `yaml:"max_hops" json:"max_hops"`
	BroadcastIntervalTicks int  `yaml:"broadcast_interval_ticks" json:"broadcast_interval_ticks"`
	RouteStaleTicks        int  `yaml:"route_stale_ticks" json:"route_stale_ticks"`
	CleanupSlice           int  `yaml:"cleanup_slice" json:"cleanup_slice"`
}

type ChoiceTuning struct {
	FollowRouteProbability    float64 `yaml:"follow_route_probability" json:"follow_route_probability"`
	RandomNeighborProbability float64 `yaml:"random_neighbor_probability" json:"random_neighbor_probability"`
	DistanceSensitivity       float64 `yaml:"distance_sensitivity" json:"distance_sensitivity"`
	ProfitSensitivity         float64 `yaml:"profit_sensitivity" json:"profit_sensitivity"`
	RecencyPenalty            float64 `yaml:"recency_penalty" json:"recency_penalty"`
	RecencyDecay              float64 `yaml:"recency_decay" json:"recency_decay"`
	HeatPenalty               float64 `yaml:"heat_penalty" json:"heat_penalty"`
	HeatDecay                 float64 `yaml:"heat_decay" json:"heat_decay"`
	ExplorationFloor          float64 `yaml:"exploration_floor" json:"exploration_floor"`
}

type RewardTuning struct {
	City       int64   `yaml:"city" json:"city"`
	Port       int64   `yaml:"port" json:"port"`
	Factory    int64   `yaml:"factory" json:"factory"`
	SelfMul    float64 `yaml:"self_mul" json:"self_mul"`
	AllyMul    float64 `yaml:"ally_mul" json:"ally_mul"`
	NeutralMul float64 `yaml:"neutral_mul" json:"neutral_mul"`
	EnemyMul   float64 `yaml:"enemy_mul" json:"enemy_mul"`
}

type TrainTuning struct {
	Speed           int    `yaml:"speed" json:"speed"`
	Cars            int    `yaml:"cars" json:"cars"`
	Spacing         int    `yaml:"spacing" json:"spacing"`
	MaxHops         int    `yaml:"max_hops" json:"max_hops"`
	HistorySize     int    `yaml:"history_size" json:"history_size"`
	CargoMultiplier int64  `yaml:"cargo_multiplier" json:"cargo_multiplier"`
	Routing         string `yaml:"routing" json:"routing"` // "adaptive" or "legacy"
	SpawnEveryTicks int    `yaml:"spawn_every_ticks" json:"spawn_every_ticks"`
	MaxActive       int    `yaml:"max_active" json:"max_active"`
}

type RateLimits struct {
	CommandsPerSecond float64 `yaml:"commands_per_second" json:"commands_per_second"`
	CommandBurst      int     `yaml:"command_burst" json:"command_burst"`
}

// Defaults mirrors configs/tuning.yaml so a server can resume without the
// file.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		Map:                MapTuning{Width: 256, Height: 256, WaterPermille: 4},
		Economy: EconomyTuning{
			StartingGold:           50_000,
			ClaimRadius:            6,
			CityCost:               5_000,
			PortCost:               7_500,
			FactoryCost:            10_000,
			TradeShipLifetimeTicks: 300,
			TradeShipReward:        1_000,
			BaseCongestionFare:     1_000,
			LengthBonusPerTile:     10,
			CongestionAlpha:        0.2,
			FareChangeThreshold:    0.1,
			ProfitShareDivisor:     5,
		},
		Rail: RailTuning{
			SnapRadius:        3,
			MinRange:          6,
			MaxRange:          60,
			MaxConnections:    3,
			MaxRailroadSize:   120,
			SpatialCellSize:   16,
			FactoryRange:      10,
			UseHPA:            true,
			HPAClusterSize:    16,
			PathIterations:    500,
			PathMaxTries:      20,
			PathBudgetPerTick: 8,
		},
		Routing: RoutingTuning{
			MaxHops:                16,
			BroadcastIntervalTicks: 50,
			RouteStaleTicks:        200,
			CleanupSlice:           4,
		},
		Choice: ChoiceTuning{
			FollowRouteProbability:    0.9,
			RandomNeighborProbability: 0.05,
			DistanceSensitivity:       0.02,
			ProfitSensitivity:         0.1,
			RecencyPenalty:            1.0,
			RecencyDecay:              0.5,
			HeatPenalty:               0.2,
			HeatDecay:                 0.98,
			ExplorationFloor:          0.01,
		},
		Rewards: RewardTuning{
			City: 500, Port: 400, Factory: 0,
			SelfMul: 0.5, AllyMul: 1.0, NeutralMul: 0.8, EnemyMul: 0,
		},
		Trains: TrainTuning{
			Speed:           2,
			Cars:            3,
			Spacing:         2,
			MaxHops:         30,
			HistorySize:     8,
			CargoMultiplier: 2,
			Routing:         "adaptive",
			SpawnEveryTicks: 200,
			MaxActive:       256,
		},
		RateLimits: RateLimits{CommandsPerSecond: 5, CommandBurst: 10},
	}
}

// Load reads a tuning file over Defaults, so omitted keys keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadValidated is Load followed by a check of the effective values against
// the tuning JSON schema.
func LoadValidated(path, schemaPath string) (Tuning, error) {
	t, err := Load(path)
	if err != nil {
		return t, err
	}
	if err := Validate(t, schemaPath); err != nil {
		return t, err
	}
	return t, nil
}

func Validate(t Tuning, schemaPath string) error {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return fmt.Errorf("compile %s: %w", schemaPath, err)
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	return nil
}
