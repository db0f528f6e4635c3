package train

import "railnet.ai/internal/sim/rail"

// StopHandler runs when a train arrives at a station of a given kind and
// returns the gold it paid out.
type StopHandler func(e *Execution, st *rail.Station, now uint64) int64

// DefaultHandlers pays out at cities, launches trade ships at ports and
// loads cargo at factories.
func DefaultHandlers() map[rail.StructureKind]StopHandler {
	return map[rail.StructureKind]StopHandler{
		rail.KindCity:    cityStop,
		rail.KindPort:    portStop,
		rail.KindFactory: factoryStop,
	}
}

func cityStop(e *Execution, st *rail.Station, now uint64) int64 {
	rel := e.host.Relation(e.Owner, st.Owner)
	reward := e.net.Config().Rewards.Payout(rail.KindCity, rel)
	if e.cargo {
		reward *= e.cfg.CargoMultiplier
		e.cargo = false
	}
	if reward <= 0 {
		return 0
	}
	e.host.AddGold(e.Owner, reward)
	return reward
}

func portStop(e *Execution, st *rail.Station, now uint64) int64 {
	e.host.LaunchTradeShip(e.Owner, st.ID)
	return 0
}

func factoryStop(e *Execution, st *rail.Station, now uint64) int64 {
	e.cargo = true
	return 0
}
