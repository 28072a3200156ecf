package manager

import (
	"errors"
	"runtime"
	"testing"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
	"github.com/odvcencio/graphstate/pkg/scene"
)

// node is a minimal graph type. Constructing a node named "boom" fails.
type node struct {
	Name string
	Next *node
	Kids []*node
}

// leaf has no New and so cannot take part in a cycle.
type leaf struct {
	Peer *leaf
}

const (
	typeNode object.TypeTag = "test.Node"
	typeLeaf object.TypeTag = "test.Leaf"
)

var errBoom = errors.New("boom")

func testRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	r := codec.NewRegistry()
	if err := scene.RegisterCodecs(r); err != nil {
		t.Fatalf("RegisterCodecs: %v", err)
	}
	codec.MustRegister(r, typeNode, codec.Funcs[node]{
		New: func() *node { return &node{} },
		Extract: func(x codec.Extractor, n *node) (object.Properties, error) {
			next, err := codec.RefOf(x, n.Next)
			if err != nil {
				return nil, err
			}
			kids, err := codec.RefsOf(x, n.Kids)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "name", Value: object.StringValue(n.Name)},
				{Name: "next", Value: next},
				{Name: "kids", Value: kids},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, n *node) (*node, error) {
			name, err := rec.Value("name", object.KindString)
			if err != nil {
				return nil, err
			}
			if name.Str == "boom" {
				return nil, errBoom
			}
			next, err := codec.ResolveProperty[node](c, rec, "next")
			if err != nil {
				return nil, err
			}
			kids, err := codec.ResolveList[node](c, rec, "kids")
			if err != nil {
				return nil, err
			}
			if n == nil {
				n = &node{}
			}
			n.Name = name.Str
			n.Next = next
			n.Kids = kids
			return n, nil
		},
	})
	codec.MustRegister(r, typeLeaf, codec.Funcs[leaf]{
		Extract: func(x codec.Extractor, l *leaf) (object.Properties, error) {
			peer, err := codec.RefOf(x, l.Peer)
			if err != nil {
				return nil, err
			}
			return object.Properties{{Name: "peer", Value: peer}}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, l *leaf) (*leaf, error) {
			peer, err := codec.ResolveProperty[leaf](c, rec, "peer")
			if err != nil {
				return nil, err
			}
			if l == nil {
				l = &leaf{}
			}
			l.Peer = peer
			return l, nil
		},
	})
	return r
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := New(testRegistry(t), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func nodeRecord(id object.ObjectID, name string, next object.ObjectID, kids ...object.ObjectID) *object.StateRecord {
	nextVal := object.NullValue()
	if next != object.NoObject {
		nextVal = object.RefValue(next)
	}
	items := make([]object.Value, len(kids))
	for i, k := range kids {
		items[i] = object.RefValue(k)
	}
	return &object.StateRecord{
		ID:   id,
		Type: typeNode,
		Properties: object.Properties{
			{Name: "name", Value: object.StringValue(name)},
			{Name: "next", Value: nextVal},
			{Name: "kids", Value: object.ListValue(items...)},
		},
	}
}

func registerStates(t *testing.T, m *Manager, recs ...*object.StateRecord) {
	t.Helper()
	for _, rec := range recs {
		if err := m.RegisterState(rec); err != nil {
			t.Fatalf("RegisterState(%d): %v", rec.ID, err)
		}
	}
}

func mustObject[T any](t *testing.T, m *Manager, id object.ObjectID) *T {
	t.Helper()
	obj, err := m.GetObjectAtID(id)
	if err != nil {
		t.Fatalf("GetObjectAtID(%d): %v", id, err)
	}
	typed, ok := obj.(*T)
	if !ok {
		t.Fatalf("GetObjectAtID(%d) = %T", id, obj)
	}
	return typed
}

// snapshot registers root with a fresh manager, extracts it and returns the
// manager.
func snapshot(t *testing.T, root any, opts ...Option) *Manager {
	t.Helper()
	m := newTestManager(t, opts...)
	if _, err := m.RegisterObject(root); err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	if err := m.UpdateStatesFromObjects(); err != nil {
		t.Fatalf("UpdateStatesFromObjects: %v", err)
	}
	runtime.KeepAlive(root)
	return m
}
