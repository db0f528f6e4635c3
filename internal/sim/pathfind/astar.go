// Package pathfind finds tile paths for new track without stalling the tick.
//
// Searches are resumable objects: Compute does a bounded amount of work and
// reports Pending until the caller invokes it again on a later tick.
package pathfind

import (
	"container/heap"
	"math"
)

type Status int

const (
	Pending Status = iota
	Completed
	PathNotFound
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Completed:
		return "COMPLETED"
	case PathNotFound:
		return "PATH_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Graph is an undirected weighted graph over integer node ids.
type Graph interface {
	Neighbors(n int) []int
	Cost(a, b int) float64
	Heuristic(a, b int) float64
}

// Search is the resumable task contract shared by SerialAStar and HPAStar.
type Search interface {
	Compute() Status
	Path() []int
}

type openItem struct {
	node int
	f    float64
	seq  uint64
}

type openList []openItem

func (o openList) Len() int { return len(o) }
func (o openList) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}
func (o openList) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o *openList) Push(x any)   { *o = append(*o, x.(openItem)) }
func (o *openList) Pop() any {
	old := *o
	n := len(old)
	it := old[n-1]
	*o = old[:n-1]
	return it
}

type frontier struct {
	open   openList
	g      map[int]float64
	parent map[int]int
	closed map[int]bool
	target int
}

func newFrontier(target int) frontier {
	return frontier{
		g:      map[int]float64{},
		parent: map[int]int{},
		closed: map[int]bool{},
		target: target,
	}
}

// topF is the smallest f still queued, skipping closed entries.
func (f *frontier) topF() float64 {
	for f.open.Len() > 0 {
		it := f.open[0]
		if !f.closed[it.node] {
			return it.f
		}
		heap.Pop(&f.open)
	}
	return math.Inf(1)
}

// SerialAStar is a bidirectional A* that runs a bounded number of
// expansions per Compute call. The forward frontier grows from every source,
// the backward frontier from dst; the backward heuristic aims at the source
// closest to dst.
type SerialAStar struct {
	graph Graph

	sources []int
	dst     int
	anchor  int

	fwd frontier
	bwd frontier

	iterations int
	maxTries   int
	tries      int
	turn       int
	seq        uint64

	best  float64
	meet  int
	found bool

	status Status
	path   []int
}

func NewSerialAStar(sources []int, dst int, iterations, maxTries int, g Graph) *SerialAStar {
	if iterations <= 0 {
		iterations = 1
	}
	if maxTries <= 0 {
		maxTries = 1
	}
	s := &SerialAStar{
		graph:      g,
		sources:    append([]int(nil), sources...),
		dst:        dst,
		iterations: iterations,
		maxTries:   maxTries,
		best:       math.Inf(1),
	}
	if len(sources) == 0 {
		s.status = PathNotFound
		return s
	}

	s.anchor = sources[0]
	bestH := g.Heuristic(sources[0], dst)
	for _, src := range sources[1:] {
		if h := g.Heuristic(src, dst); h < bestH {
			bestH = h
			s.anchor = src
		}
	}

	s.fwd = newFrontier(dst)
	s.bwd = newFrontier(s.anchor)
	for _, src := range sources {
		if src == dst {
			s.status = Completed
			s.path = []int{dst}
			return s
		}
		if _, ok := s.fwd.g[src]; ok {
			continue
		}
		s.fwd.g[src] = 0
		s.push(&s.fwd, src, g.Heuristic(src, dst))
	}
	s.bwd.g[dst] = 0
	s.push(&s.bwd, dst, g.Heuristic(dst, s.anchor))
	return s
}

func (s *SerialAStar) push(f *frontier, n int, fScore float64) {
	s.seq++
	heap.Push(&f.open, openItem{node: n, f: fScore, seq: s.seq})
}

func (s *SerialAStar) Status() Status { return s.status }

func (s *SerialAStar) Compute() Status {
	if s.status != Pending {
		return s.status
	}
	for i := 0; i < s.iterations; i++ {
		fTop := s.fwd.topF()
		bTop := s.bwd.topF()
		if s.found && (fTop >= s.best || bTop >= s.best) {
			return s.complete()
		}
		if math.IsInf(fTop, 1) || math.IsInf(bTop, 1) {
			if s.found {
				return s.complete()
			}
			s.status = PathNotFound
			return s.status
		}
		if s.turn%2 == 0 {
			s.expand(&s.fwd, &s.bwd, false)
		} else {
			s.expand(&s.bwd, &s.fwd, true)
		}
		s.turn++
	}
	s.tries++
	if s.tries >= s.maxTries {
		s.status = PathNotFound
	}
	return s.status
}

func (s *SerialAStar) expand(cur, other *frontier, backward bool) {
	it := heap.Pop(&cur.open).(openItem)
	n := it.node
	if cur.closed[n] {
		return
	}
	cur.closed[n] = true
	gn := cur.g[n]
	for _, nb := range s.graph.Neighbors(n) {
		var c float64
		if backward {
			c = s.graph.Cost(nb, n)
		} else {
			c = s.graph.Cost(n, nb)
		}
		ng := gn + c
		if old, ok := cur.g[nb]; ok && ng >= old {
			continue
		}
		cur.g[nb] = ng
		cur.parent[nb] = n
		s.push(cur, nb, ng+s.graph.Heuristic(nb, cur.target))
		if og, ok := other.g[nb]; ok && ng+og < s.best {
			s.best = ng + og
			s.meet = nb
			s.found = true
		}
	}
}

func (s *SerialAStar) complete() Status {
	var head []int
	for n := s.meet; ; {
		head = append(head, n)
		p, ok := s.fwd.parent[n]
		if !ok {
			break
		}
		n = p
	}
	for i, j := 0, len(head)-1; i < j; i, j = i+1, j-1 {
		head[i], head[j] = head[j], head[i]
	}
	for n := s.meet; ; {
		p, ok := s.bwd.parent[n]
		if !ok {
			break
		}
		head = append(head, p)
		n = p
	}
	s.path = head
	s.status = Completed
	return s.status
}

// Path is valid once Compute returned Completed.
func (s *SerialAStar) Path() []int {
	if s.status != Completed {
		return nil
	}
	return s.path
}

// Cost is the length of the found path.
func (s *SerialAStar) Cost() float64 {
	if s.status != Completed {
		return math.Inf(1)
	}
	if len(s.path) <= 1 {
		return 0
	}
	return s.best
}

// RunToCompletion drives a search synchronously. The search's own retry
// budget still bounds the total work.
func RunToCompletion(s Search) Status {
	for {
		if st := s.Compute(); st != Pending {
			return st
		}
	}
}
