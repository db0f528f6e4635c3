package rail

type Config struct {
	// Connection lifecycle.
	SnapRadius      int
	MinRange        int
	MaxRange        int
	MaxConnections  int
	MaxRailroadSize int
	SpatialCellSize int

	// FactoryRange is how close a building of kind Other must be to a
	// factory to host a station.
	FactoryRange int

	// Pathfinding budget. PathBudgetPerTick bounds Compute calls across all
	// pending connections in a single tick.
	UseHPA            bool
	HPAClusterSize    int
	PathIterations    int
	PathMaxTries      int
	PathBudgetPerTick int
	// NominalSpeed (tiles per tick) converts track length to base duration.
	NominalSpeed int

	Economics Economics
	Routing   RoutingConfig
	Choice    ChoiceConfig
	Rewards   RewardTable

	HeatPerVisit float64
	// HeatDecay is the per-tick multiplier applied to station heat.
	HeatDecay float64
}

type Economics struct {
	BaseCongestionFare int64
	LengthBonusPerTile int64
	// CongestionAlpha is the EMA weight of the current occupancy.
	CongestionAlpha float64
	// FareChangeThreshold is the relative change that triggers a fare event.
	FareChangeThreshold float64
	ProfitShareDivisor  int64
	OwnerCacheTicks     uint64
}

type RoutingConfig struct {
	ProtocolDisabled       bool
	MaxHops                int
	BroadcastIntervalTicks uint64
	RouteStaleTicks        uint64
	CleanupSlice           int
}

type ChoiceConfig struct {
	FollowRouteProbability    float64
	RandomNeighborProbability float64
	DistanceSensitivity       float64
	ProfitSensitivity         float64
	RecencyPenalty            float64
	RecencyDecay              float64
	HeatPenalty               float64
	ExplorationFloor          float64
}

// RewardTable is the payout a train's owner receives on arriving at a
// station, by structure kind, scaled by the owner's relation to the station
// owner.
type RewardTable struct {
	City    int64
	Port    int64
	Factory int64

	SelfMul    float64
	AllyMul    float64
	NeutralMul float64
	EnemyMul   float64
}

func (r RewardTable) Payout(kind StructureKind, rel Relation) int64 {
	var base int64
	switch kind {
	case KindCity:
		base = r.City
	case KindPort:
		base = r.Port
	case KindFactory:
		base = r.Factory
	}
	mul := r.NeutralMul
	switch rel {
	case RelSelf:
		mul = r.SelfMul
	case RelAlly:
		mul = r.AllyMul
	case RelEnemy:
		mul = r.EnemyMul
	}
	return int64(float64(base) * mul)
}

func DefaultConfig() Config {
	c := Config{
		UseHPA: true,
		Choice: ChoiceConfig{
			FollowRouteProbability:    0.9,
			RandomNeighborProbability: 0.05,
			DistanceSensitivity:       0.02,
			ProfitSensitivity:         0.1,
			RecencyPenalty:            1.0,
			RecencyDecay:              0.5,
			HeatPenalty:               0.2,
			ExplorationFloor:          0.01,
		},
		Rewards: RewardTable{
			City:       500,
			Port:       400,
			Factory:    0,
			SelfMul:    0.5,
			AllyMul:    1.0,
			NeutralMul: 0.8,
			EnemyMul:   0,
		},
		HeatPerVisit: 1,
		HeatDecay:    0.98,
	}
	c.applyDefaults()
	return c
}

// applyDefaults fills sizes and budgets that must be positive. Probabilities
// and multipliers are taken as given since zero is meaningful for them.
func (c *Config) applyDefaults() {
	if c.SnapRadius <= 0 {
		c.SnapRadius = 3
	}
	if c.MinRange <= 0 {
		c.MinRange = 6
	}
	if c.MaxRange <= 0 {
		c.MaxRange = 60
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 3
	}
	if c.MaxRailroadSize <= 0 {
		c.MaxRailroadSize = 120
	}
	if c.SpatialCellSize <= 0 {
		c.SpatialCellSize = 16
	}
	if c.FactoryRange <= 0 {
		c.FactoryRange = 10
	}
	if c.HPAClusterSize <= 0 {
		c.HPAClusterSize = 16
	}
	if c.PathIterations <= 0 {
		c.PathIterations = 500
	}
	if c.PathMaxTries <= 0 {
		c.PathMaxTries = 20
	}
	if c.PathBudgetPerTick <= 0 {
		c.PathBudgetPerTick = 8
	}
	if c.NominalSpeed <= 0 {
		c.NominalSpeed = 2
	}
	c.Economics.applyDefaults()
	c.Routing.applyDefaults()
	if c.HeatDecay <= 0 || c.HeatDecay > 1 {
		c.HeatDecay = 0.98
	}
	if c.Choice.RecencyDecay <= 0 {
		c.Choice.RecencyDecay = 0.5
	}
}

func (e *Economics) applyDefaults() {
	if e.BaseCongestionFare <= 0 {
		e.BaseCongestionFare = 1000
	}
	if e.LengthBonusPerTile <= 0 {
		e.LengthBonusPerTile = 10
	}
	if e.CongestionAlpha <= 0 || e.CongestionAlpha > 1 {
		e.CongestionAlpha = 0.2
	}
	if e.FareChangeThreshold <= 0 {
		e.FareChangeThreshold = 0.1
	}
	if e.ProfitShareDivisor <= 0 {
		e.ProfitShareDivisor = 5
	}
	if e.OwnerCacheTicks == 0 {
		e.OwnerCacheTicks = 100
	}
}

func (r *RoutingConfig) applyDefaults() {
	if r.MaxHops <= 0 {
		r.MaxHops = 16
	}
	if r.BroadcastIntervalTicks == 0 {
		r.BroadcastIntervalTicks = 50
	}
	if r.RouteStaleTicks == 0 {
		r.RouteStaleTicks = 4 * r.BroadcastIntervalTicks
	}
	if r.CleanupSlice <= 0 {
		r.CleanupSlice = 4
	}
}
