package rail

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Advert is one reachability claim carried in a routing broadcast.
type Advert struct {
	Dest StationID
	Hops int
	Seq  uint64
}

type routeMessage struct {
	From    StationID
	To      StationID
	Adverts []Advert
}

// ReceiveAdvert applies an advert sent by a direct neighbour. Adverts whose
// sequence number is not newer than the one already seen for their origin,
// that loop back to the receiver, or that would exceed MaxHops are dropped
// without touching any state. It reports whether the entry was installed.
func (n *Network) ReceiveAdvert(at StationID, sender StationID, a Advert, now uint64) bool {
	st := n.station(at)
	if st == nil || !st.IsNeighbor(sender) || a.Dest == st.ID {
		return false
	}
	if a.Seq <= st.seqSeen[a.Dest] {
		return false
	}
	hops := a.Hops + 1
	if hops > n.cfg.Routing.MaxHops {
		return false
	}
	st.seqSeen[a.Dest] = a.Seq

	prev, had := st.routes[a.Dest]
	improved := !had || hops < prev.Hops || (hops == prev.Hops && a.Seq > prev.Seq)
	st.putRoute(RouteEntry{
		Dest:        a.Dest,
		NextHop:     sender,
		Hops:        hops,
		Seq:         a.Seq,
		UpdatedTick: now,
	})
	if improved {
		st.changed[a.Dest] = struct{}{}
	}
	return true
}

// broadcastDue staggers periodic broadcasts by station id.
func (n *Network) broadcastDue(st *Station, now uint64) bool {
	if st.dirtyTopo {
		return true
	}
	iv := n.cfg.Routing.BroadcastIntervalTicks
	return (now+uint64(st.ID))%iv == 0
}

// collectBroadcast builds the adverts st sends this tick. A full broadcast
// bumps the station's own sequence number and carries a self advert; a
// triggered one only forwards changed routes.
func (n *Network) collectBroadcast(st *Station, now uint64) []Advert {
	full := n.broadcastDue(st, now)
	if !full && len(st.changed) == 0 {
		return nil
	}
	var out []Advert
	if full {
		st.seq++
		st.dirtyTopo = false
		st.lastBcast = now
		out = append(out, Advert{Dest: st.ID, Hops: 0, Seq: st.seq})
	}
	dests := maps.Keys(st.changed)
	slices.Sort(dests)
	for _, d := range dests {
		if e := st.routes[d]; e != nil && !e.Organic {
			out = append(out, Advert{Dest: d, Hops: e.Hops, Seq: e.Seq})
		}
	}
	maps.Clear(st.changed)
	return out
}

// cleanupRoutes inspects a bounded round-robin slice of the table.
func (n *Network) cleanupRoutes(st *Station, now uint64) int {
	removed := 0
	stale := n.cfg.Routing.RouteStaleTicks
	for i := 0; i < n.cfg.Routing.CleanupSlice && len(st.routeOrder) > 0; i++ {
		if st.cursor >= len(st.routeOrder) {
			st.cursor = 0
		}
		d := st.routeOrder[st.cursor]
		e := st.routes[d]
		if e == nil || now-e.UpdatedTick > stale || !st.IsNeighbor(e.NextHop) {
			st.deleteRoute(d)
			removed++
			continue
		}
		st.cursor++
	}
	return removed
}

// tickRouting delivers last tick's messages, then queues this tick's
// broadcasts for delivery on the next tick.
func (n *Network) tickRouting(now uint64) {
	if !n.cfg.Routing.ProtocolDisabled {
		inbox := n.outbox
		n.outbox = nil
		for _, msg := range inbox {
			for _, a := range msg.Adverts {
				if n.ReceiveAdvert(msg.To, msg.From, a, now) {
					n.stats.AdvertsAccepted++
				} else {
					n.stats.AdvertsDropped++
				}
			}
		}
	}
	for _, st := range n.reg.stations {
		if st == nil || !st.active {
			continue
		}
		if !n.cfg.Routing.ProtocolDisabled {
			if adverts := n.collectBroadcast(st, now); len(adverts) > 0 {
				for _, nb := range st.Neighbors() {
					n.outbox = append(n.outbox, routeMessage{From: st.ID, To: nb, Adverts: adverts})
				}
				n.stats.Broadcasts++
			}
		}
		n.stats.RoutesPruned += n.cleanupRoutes(st, now)
	}
}
