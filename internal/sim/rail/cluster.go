package rail

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Cluster is a set of stations connected by track. Membership is kept exact
// on merge and repaired lazily after removals.
type Cluster struct {
	ID      ClusterID
	members map[StationID]struct{}
}

func (c *Cluster) Size() int { return len(c.members) }

func (c *Cluster) Has(id StationID) bool {
	_, ok := c.members[id]
	return ok
}

// Members returns station ids in ascending order.
func (c *Cluster) Members() []StationID {
	out := maps.Keys(c.members)
	slices.Sort(out)
	return out
}

func (n *Network) newCluster(members ...StationID) *Cluster {
	n.nextCluster++
	c := &Cluster{ID: n.nextCluster, members: map[StationID]struct{}{}}
	for _, id := range members {
		c.members[id] = struct{}{}
		if st := n.station(id); st != nil {
			st.cluster = c.ID
		}
	}
	n.clusters[c.ID] = c
	return c
}

// mergeClusters folds b into a. A merge touching a dirty cluster stays dirty
// since the removal that dirtied it may still have split it.
func (n *Network) mergeClusters(a, b ClusterID) ClusterID {
	if a == b {
		return a
	}
	ca, cb := n.clusters[a], n.clusters[b]
	if ca == nil {
		return b
	}
	if cb == nil {
		return a
	}
	if cb.Size() > ca.Size() {
		ca, cb = cb, ca
	}
	for id := range cb.members {
		ca.members[id] = struct{}{}
		if st := n.station(id); st != nil {
			st.cluster = ca.ID
		}
	}
	if n.dirty[cb.ID] {
		n.dirty[ca.ID] = true
	}
	delete(n.dirty, cb.ID)
	delete(n.clusters, cb.ID)
	n.stats.ClusterMerges++
	return ca.ID
}

func (n *Network) detachFromCluster(st *Station) {
	c := n.clusters[st.cluster]
	st.cluster = 0
	if c == nil {
		return
	}
	delete(c.members, st.ID)
	if c.Size() == 0 {
		delete(n.clusters, c.ID)
		delete(n.dirty, c.ID)
		return
	}
	n.dirty[c.ID] = true
}

// component walks current track adjacency from start.
func (n *Network) component(start StationID) map[StationID]struct{} {
	seen := map[StationID]struct{}{start: {}}
	queue := []StationID{start}
	for head := 0; head < len(queue); head++ {
		st := n.station(queue[head])
		if st == nil {
			continue
		}
		for _, nb := range st.Neighbors() {
			if _, ok := seen[nb]; ok {
				continue
			}
			seen[nb] = struct{}{}
			queue = append(queue, nb)
		}
	}
	return seen
}

// ResolveDirtyClusters splits every dirty cluster into its connected
// components. The work is proportional to the affected clusters only.
func (n *Network) ResolveDirtyClusters() int {
	if len(n.dirty) == 0 {
		return 0
	}
	ids := maps.Keys(n.dirty)
	slices.Sort(ids)
	splits := 0
	for _, id := range ids {
		delete(n.dirty, id)
		c := n.clusters[id]
		for c != nil && c.Size() > 0 {
			start := c.Members()[0]
			comp := n.component(start)
			if len(comp) >= c.Size() {
				break
			}
			split := make([]StationID, 0, len(comp))
			for sid := range comp {
				delete(c.members, sid)
				split = append(split, sid)
			}
			slices.Sort(split)
			n.newCluster(split...)
			splits++
		}
	}
	n.stats.ClusterSplits += splits
	return splits
}

// ClusterOf returns the up-to-date cluster of a station.
func (n *Network) ClusterOf(id StationID) (*Cluster, bool) {
	n.ResolveDirtyClusters()
	st := n.station(id)
	if st == nil {
		return nil, false
	}
	c, ok := n.clusters[st.cluster]
	return c, ok
}

func (n *Network) SameCluster(a, b StationID) bool {
	ca, ok := n.ClusterOf(a)
	if !ok {
		return false
	}
	cb, ok := n.ClusterOf(b)
	return ok && ca.ID == cb.ID
}

// Clusters returns all clusters in id order.
func (n *Network) Clusters() []*Cluster {
	n.ResolveDirtyClusters()
	ids := maps.Keys(n.clusters)
	slices.Sort(ids)
	out := make([]*Cluster, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.clusters[id])
	}
	return out
}
