package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// fakeExtractor numbers objects in the order they are referenced.
type fakeExtractor struct {
	ids   map[any]object.ObjectID
	blobs map[object.Hash][]byte
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{ids: make(map[any]object.ObjectID), blobs: make(map[object.Hash][]byte)}
}

func (x *fakeExtractor) Ref(obj any) (object.ObjectID, error) {
	if id, ok := x.ids[obj]; ok {
		return id, nil
	}
	id := object.ObjectID(len(x.ids) + 1)
	x.ids[obj] = id
	return id, nil
}

func (x *fakeExtractor) PutBlob(data []byte) object.Hash {
	h := object.HashBytes(data)
	x.blobs[h] = data
	return h
}

// fakeConstructor resolves ids from a fixed table.
type fakeConstructor struct {
	objects map[object.ObjectID]any
	blobs   map[object.Hash][]byte
}

func (c *fakeConstructor) Resolve(id object.ObjectID) (any, error) {
	if id == object.NoObject {
		return nil, nil
	}
	obj, ok := c.objects[id]
	if !ok {
		return nil, errors.New("unresolved")
	}
	return obj, nil
}

func (c *fakeConstructor) Blob(h object.Hash) ([]byte, error) {
	data, ok := c.blobs[h]
	if !ok {
		return nil, errors.New("no blob")
	}
	return data, nil
}

func lookup(t *testing.T, tag object.TypeTag) *codec.Codec {
	t.Helper()
	c, ok := Registry().Lookup(tag)
	if !ok {
		t.Fatalf("no codec for %s", tag)
	}
	return c
}

func TestRegistryCoversEveryType(t *testing.T) {
	r := Registry()
	for _, obj := range []any{&Window{}, &Interactor{}, &Renderer{}, &Actor{}, &Mapper{}, &ColorTable{}, &PointSet{}} {
		if _, ok := r.ForObject(obj); !ok {
			t.Fatalf("no codec for %T", obj)
		}
	}
	if err := RegisterCodecs(r); err == nil {
		t.Fatal("registering the scene codecs twice succeeded")
	}
}

func TestPointSetCodec(t *testing.T) {
	pc := lookup(t, TypePointSet)
	x := newFakeExtractor()
	src := &PointSet{Points: []float32{0, 1.5, -2, 3, 4, 5}}
	props, err := pc.Extract(x, src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	rec := &object.StateRecord{ID: 1, Type: TypePointSet, Properties: props}
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(x.blobs) != 1 {
		t.Fatalf("blobs = %d, want 1", len(x.blobs))
	}

	out, err := pc.Construct(&fakeConstructor{blobs: x.blobs}, rec, nil)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	got := out.(*PointSet)
	if diff := cmp.Diff(src.Points, got.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}

	if _, err := pc.Extract(x, &PointSet{Points: []float32{1, 2}}); err == nil {
		t.Fatal("extracted a point set with a partial point")
	}
}

func TestActorCodecUpdatesInPlace(t *testing.T) {
	ac := lookup(t, TypeActor)
	mapper := &Mapper{}
	src := &Actor{Name: "a", Visible: true, Opacity: 0.25, Position: [3]float64{1, 2, 3}, Mapper: mapper}
	x := newFakeExtractor()
	x.ids[src] = 1
	props, err := ac.Extract(x, src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	rec := &object.StateRecord{ID: 1, Type: TypeActor, Properties: props}

	existing := &Actor{Name: "old"}
	out, err := ac.Construct(&fakeConstructor{objects: map[object.ObjectID]any{2: mapper}}, rec, existing)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if out != existing {
		t.Fatal("Construct allocated instead of updating the given actor")
	}
	if existing.Name != "a" || existing.Opacity != 0.25 || existing.Position != src.Position || existing.Mapper != mapper {
		t.Fatalf("actor = %+v", existing)
	}
}

func TestColorTableRejectsPartialEntries(t *testing.T) {
	cc := lookup(t, TypeColorTable)
	if _, err := cc.Extract(newFakeExtractor(), &ColorTable{RGBA: []float64{1, 0, 0}}); err == nil {
		t.Fatal("extracted a color table with a partial entry")
	}
	rec := &object.StateRecord{ID: 1, Type: TypeColorTable, Properties: object.Properties{
		{Name: "name", Value: object.StringValue("x")},
		{Name: "rgba", Value: object.FloatsValue(1, 0)},
	}}
	if _, err := cc.Construct(&fakeConstructor{}, rec, nil); err == nil {
		t.Fatal("constructed a color table with a partial entry")
	}
}

func TestRendererRejectsWrongBackgroundLength(t *testing.T) {
	rc := lookup(t, TypeRenderer)
	rec := &object.StateRecord{ID: 1, Type: TypeRenderer, Properties: object.Properties{
		{Name: "layer", Value: object.IntValue(0)},
		{Name: "background", Value: object.FloatsValue(0, 0)},
		{Name: "actors", Value: object.ListValue()},
	}}
	if _, err := rc.Construct(&fakeConstructor{}, rec, nil); err == nil {
		t.Fatal("constructed a renderer with a two-component background")
	}
}

func TestFloat32Encoding(t *testing.T) {
	in := []float32{0, -1, 3.25, float32(math.Inf(1)), math.SmallestNonzeroFloat32}
	data := EncodeFloat32s(in)
	if len(data) != 4*len(in) {
		t.Fatalf("encoded %d bytes", len(data))
	}
	out, err := DecodeFloat32s(data)
	if err != nil {
		t.Fatalf("DecodeFloat32s: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodeFloat32s(data[:5]); err == nil {
		t.Fatal("decoded a truncated buffer")
	}
}

func TestSampleSharesColorTable(t *testing.T) {
	w := Sample()
	actors := w.Renderers[0].Actors
	if actors[0].Mapper.Lookup != actors[1].Mapper.Lookup {
		t.Fatal("actors do not share the color table")
	}
	if actors[0].Mapper.Input == actors[1].Mapper.Input {
		t.Fatal("actors share a point set")
	}
	if w.Interactor.Window != w {
		t.Fatal("interactor does not point back at the window")
	}
}

func TestTrackedVersion(t *testing.T) {
	var a Actor
	if a.StateVersion() != 0 {
		t.Fatalf("initial version = %d", a.StateVersion())
	}
	a.Modified()
	a.Modified()
	if a.StateVersion() != 2 {
		t.Fatalf("version = %d, want 2", a.StateVersion())
	}
	var _ codec.Versioned = &a
}
