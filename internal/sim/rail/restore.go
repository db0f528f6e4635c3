package rail

// Resume support: trains are not carried across a restart, so only the
// durable parts of the network (stations, track, congestion and queued
// connections) are exported and restored. Routing tables re-converge from
// the full broadcast every station sends after its first topology change.

// PendingConnections lists queued track searches in queue order.
func (n *Network) PendingConnections() [][2]StationID {
	out := make([][2]StationID, 0, len(n.tasks))
	for _, t := range n.tasks {
		out = append(out, [2]StationID{t.from, t.to})
	}
	return out
}

// QueueConnection starts a track search between two active stations unless
// they are already neighbours or a search between them is queued.
func (n *Network) QueueConnection(a, b StationID) bool {
	from, to := n.station(a), n.station(b)
	if from == nil || to == nil || a == b {
		return false
	}
	if from.IsNeighbor(b) || n.hasTask(a, b) {
		return false
	}
	n.tasks = append(n.tasks, n.newConnectTask(from, to))
	return true
}

type CongestionState struct {
	EMA           float64
	LastTick      uint64
	PublishedFare int64
}

func (r *Railroad) Congestion() CongestionState {
	return CongestionState{EMA: r.congestionEMA, LastTick: r.lastCongestion, PublishedFare: r.publishedFare}
}

// RestoreCongestion overwrites the pricing state of an active railroad.
func (n *Network) RestoreCongestion(id RailroadID, c CongestionState) bool {
	rr := n.Railroad(id)
	if rr == nil || !rr.active {
		return false
	}
	rr.congestionEMA = c.EMA
	rr.lastCongestion = c.LastTick
	rr.publishedFare = c.PublishedFare
	return true
}
