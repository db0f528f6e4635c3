package rail

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpatialGrid_QueryAndUnregister(t *testing.T) {
	g := newFakeGame(64, 64)
	sg := NewSpatialGrid(g.m, 8)

	sg.Register(1, lpath(g.m, 0, 0, 20, 0))  // cells (0..2, 0)
	sg.Register(2, lpath(g.m, 40, 40, 40, 60)) // cells (5, 5..7)
	sg.Register(3, lpath(g.m, 18, 2, 18, 30))  // cells (2, 0..3)

	if got := sg.Query(g.m.Ref(10, 1), 2); !cmp.Equal(got, []RailroadID{1}) {
		t.Fatalf("query near 1 = %v", got)
	}
	if got := sg.Query(g.m.Ref(17, 3), 2); !cmp.Equal(got, []RailroadID{1, 3}) {
		t.Fatalf("query near junction = %v", got)
	}
	if got := sg.Query(g.m.Ref(60, 10), 3); len(got) != 0 {
		t.Fatalf("query far = %v", got)
	}

	if len(sg.cellsOf(1)) != 3 {
		t.Fatalf("reverse index of 1 = %v", sg.cellsOf(1))
	}
	sg.Unregister(1)
	if got := sg.Query(g.m.Ref(10, 1), 2); len(got) != 0 {
		t.Fatalf("unregistered railroad still found: %v", got)
	}
	if got := sg.Query(g.m.Ref(17, 3), 2); !cmp.Equal(got, []RailroadID{3}) {
		t.Fatalf("query after unregister = %v", got)
	}
	sg.Unregister(2)
	sg.Unregister(3)
	if sg.CellCount() != 0 {
		t.Fatalf("cells left behind: %d", sg.CellCount())
	}
}

func TestSpatialGrid_QueryClampsAtEdges(t *testing.T) {
	g := newFakeGame(16, 16)
	sg := NewSpatialGrid(g.m, 4)
	sg.Register(9, lpath(g.m, 0, 0, 0, 3))
	if got := sg.Query(g.m.Ref(0, 0), 10); !cmp.Equal(got, []RailroadID{9}) {
		t.Fatalf("edge query = %v", got)
	}
}
