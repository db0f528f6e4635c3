package rail

import (
	"math"

	"railnet.ai/internal/sim/logic/mathx"
	"railnet.ai/internal/sim/terrain"
)

// OfferExperience lets a train that just arrived at station `at` teach it
// the way back to the destinations in its recent history. history lists
// visited stations oldest first and excludes `at`; its last element is the
// station the train came from. A destination k stops back becomes a route
// via that previous station with k hops, installed when it is new, shorter,
// or equally short but staler than what the station knows.
func (n *Network) OfferExperience(at StationID, history []StationID, now uint64) int {
	st := n.station(at)
	if st == nil || len(history) == 0 {
		return 0
	}
	prev := history[len(history)-1]
	if !st.IsNeighbor(prev) {
		return 0
	}
	installed := 0
	for k := 1; k <= len(history); k++ {
		d := history[len(history)-k]
		if d == at || k > n.cfg.Routing.MaxHops {
			continue
		}
		ds := n.station(d)
		if ds == nil || !ds.Kind.Destination() {
			continue
		}
		if e := st.routes[d]; e != nil {
			if k > e.Hops || (k == e.Hops && e.UpdatedTick >= now) {
				continue
			}
		}
		st.putRoute(RouteEntry{
			Dest:        d,
			NextHop:     prev,
			Hops:        k,
			Seq:         st.seqSeen[d],
			UpdatedTick: now,
			Organic:     true,
		})
		installed++
	}
	n.stats.OrganicInstalls += installed
	return installed
}

// Choice is what a train knows when picking its next hop.
type Choice struct {
	Dest  StationID
	Owner terrain.PlayerID
	// History lists visited stations oldest first; the last element is the
	// station the train arrived from.
	History []StationID
	Rand    *mathx.Rand
	Now     uint64
}

// ChooseNextStation picks the neighbour of `at` a train should travel to.
// It returns false when the station has no neighbours.
func (n *Network) ChooseNextStation(at StationID, c Choice) (StationID, bool) {
	st := n.station(at)
	if st == nil {
		return NoStation, false
	}
	nbs := st.Neighbors()
	if len(nbs) == 0 {
		return NoStation, false
	}
	if st.IsNeighbor(c.Dest) {
		return c.Dest, true
	}
	cc := n.cfg.Choice
	if e, ok := st.routes[c.Dest]; ok && st.IsNeighbor(e.NextHop) {
		if c.Rand.Float64() < cc.FollowRouteProbability {
			return e.NextHop, true
		}
	}
	if cc.RandomNeighborProbability > 0 && c.Rand.Float64() < cc.RandomNeighborProbability {
		return nbs[c.Rand.Intn(len(nbs))], true
	}

	best, bestScore := nbs[0], math.Inf(-1)
	for _, nb := range nbs {
		s := n.scoreNeighbor(st, nb, c)
		if s > bestScore {
			best, bestScore = nb, s
		}
	}
	return best, true
}

// ScoreNeighbor exposes the damped score used by ChooseNextStation.
func (n *Network) ScoreNeighbor(at, nb StationID, c Choice) float64 {
	st := n.station(at)
	if st == nil || !st.IsNeighbor(nb) {
		return 0
	}
	return n.scoreNeighbor(st, nb, c)
}

func (n *Network) scoreNeighbor(st *Station, nb StationID, c Choice) float64 {
	cc := n.cfg.Choice
	target := n.station(nb)
	edge := st.edges[nb]

	profit := float64(n.cfg.Rewards.Payout(target.Kind, n.game.Relation(c.Owner, target.Owner)))
	dist := math.Max(1, float64(edge.Distance))
	base := math.Max(1, edge.BaseDuration)
	score := profit / (base * (1 + cc.DistanceSensitivity*dist)) * (1 + cc.ProfitSensitivity*profit/dist)

	k := visitedAgo(c.History, nb)
	if k > 0 {
		factor := 1 - cc.RecencyPenalty*math.Pow(cc.RecencyDecay, float64(k-1))
		score *= math.Max(0, factor)
	}
	score /= 1 + cc.HeatPenalty*target.Heat(c.Now, n.cfg.HeatDecay)
	if k == 0 && score <= 0 {
		score = cc.ExplorationFloor
	}
	return score
}

// visitedAgo is 1 for the most recent history entry, 0 if nb is absent.
func visitedAgo(history []StationID, nb StationID) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] == nb {
			return len(history) - i
		}
	}
	return 0
}
