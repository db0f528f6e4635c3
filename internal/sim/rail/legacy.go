package rail

import "container/heap"

type pathItem struct {
	id   StationID
	dist int
}

type pathQueue []pathItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)   { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// StationPath is the synchronous shortest path by track length used by the
// legacy routing mode. It returns nil when to is unreachable.
func (n *Network) StationPath(from, to StationID) []StationID {
	if n.station(from) == nil || n.station(to) == nil {
		return nil
	}
	if from == to {
		return []StationID{from}
	}
	dist := map[StationID]int{from: 0}
	prev := map[StationID]StationID{}
	done := map[StationID]bool{}
	q := &pathQueue{{id: from}}
	for q.Len() > 0 {
		it := heap.Pop(q).(pathItem)
		if done[it.id] {
			continue
		}
		done[it.id] = true
		if it.id == to {
			break
		}
		st := n.station(it.id)
		for _, nb := range st.Neighbors() {
			nd := it.dist + max(1, st.edges[nb].Distance)
			if d, ok := dist[nb]; ok && d <= nd {
				continue
			}
			dist[nb] = nd
			prev[nb] = it.id
			heap.Push(q, pathItem{id: nb, dist: nd})
		}
	}
	if !done[to] {
		return nil
	}
	var path []StationID
	for cur := to; ; cur = prev[cur] {
		path = append(path, cur)
		if cur == from {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
