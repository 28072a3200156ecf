package manager

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/graphstate/pkg/object"
)

func TestComponentsReferencedFirst(t *testing.T) {
	graph := map[object.ObjectID][]object.ObjectID{
		1: {2, 3},
		2: {3},
		3: {4},
		4: {3},
		5: {5},
		6: {99},
	}
	got := components([]object.ObjectID{1, 2, 3, 4, 5, 6}, func(id object.ObjectID) []object.ObjectID {
		return graph[id]
	})
	want := []component{
		{ids: []object.ObjectID{3, 4}, cyclic: true},
		{ids: []object.ObjectID{2}},
		{ids: []object.ObjectID{1}},
		{ids: []object.ObjectID{5}, cyclic: true},
		{ids: []object.ObjectID{6}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(component{})); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestComponentsDeepChain(t *testing.T) {
	const n = 100000
	nodes := make([]object.ObjectID, n)
	for i := range nodes {
		nodes[i] = object.ObjectID(i + 1)
	}
	got := components(nodes, func(id object.ObjectID) []object.ObjectID {
		if id == n {
			return nil
		}
		return []object.ObjectID{id + 1}
	})
	if len(got) != n {
		t.Fatalf("components = %d, want %d", len(got), n)
	}
	if got[0].ids[0] != n || got[n-1].ids[0] != 1 {
		t.Fatalf("order: first %v last %v", got[0].ids, got[n-1].ids)
	}
}
