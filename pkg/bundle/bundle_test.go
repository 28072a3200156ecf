package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/odvcencio/graphstate/pkg/blob"
	"github.com/odvcencio/graphstate/pkg/object"
)

// sampleBundle returns a small normalized bundle: a window and an
// interactor referencing each other, a point set with a blob, and one
// external reference.
func sampleBundle(t *testing.T) *Bundle {
	t.Helper()
	points := []byte("0 0 0 1 0 0 0 1 0")
	h := object.HashBytes(points)
	b := &Bundle{
		Manifest: Manifest{
			Session:  "test-session",
			Roots:    []object.ObjectID{1},
			External: []object.ObjectID{40},
		},
		States: []*object.StateRecord{
			{ID: 3, Type: "scene.PointSet", Properties: object.Properties{
				{Name: "count", Value: object.IntValue(3)},
				{Name: "points", Value: object.BlobValue(h)},
			}},
			{ID: 1, Type: "scene.Window", Properties: object.Properties{
				{Name: "title", Value: object.StringValue("main \"view\"")},
				{Name: "interactor", Value: object.RefValue(2)},
				{Name: "inputs", Value: object.ListValue(object.RefValue(3), object.NullValue())},
				{Name: "host", Value: object.RefValue(40)},
			}},
			{ID: 2, Type: "scene.Interactor", Properties: object.Properties{
				{Name: "window", Value: object.RefValue(1)},
				{Name: "enabled", Value: object.BoolValue(true)},
				{Name: "scale", Value: object.FloatValue(1.5)},
			}},
		},
		Blobs: []Blob{{Hash: h, Data: points}},
	}
	b.Normalize()
	return b
}

func assertBundlesEqual(t *testing.T, want, got *Bundle) {
	t.Helper()
	got.Normalize()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("bundle mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	b := sampleBundle(t)
	ids := make([]object.ObjectID, len(b.States))
	for i, rec := range b.States {
		ids[i] = rec.ID
	}
	if diff := cmp.Diff([]object.ObjectID{1, 2, 3}, ids); diff != "" {
		t.Fatalf("record order (-want +got):\n%s", diff)
	}
	want := []IndexEntry{
		{ID: 1, Type: "scene.Window"},
		{ID: 2, Type: "scene.Interactor"},
		{ID: 3, Type: "scene.PointSet"},
	}
	if diff := cmp.Diff(want, b.Manifest.Index); diff != "" {
		t.Fatalf("index (-want +got):\n%s", diff)
	}
	if b.Manifest.Version != FormatVersion || b.Manifest.HashAlgorithm != object.SHA256 {
		t.Fatalf("defaults not applied: %+v", b.Manifest)
	}

	b.Manifest.Roots = []object.ObjectID{3, 1, 3}
	b.Normalize()
	if diff := cmp.Diff([]object.ObjectID{1, 3}, b.Manifest.Roots); diff != "" {
		t.Fatalf("roots (-want +got):\n%s", diff)
	}
}

func TestValidateAcceptsSampleBundle(t *testing.T) {
	if err := sampleBundle(t).Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateReportsDanglingReferences(t *testing.T) {
	b := sampleBundle(t)
	b.Manifest.External = nil
	b.Manifest.Roots = append(b.Manifest.Roots, 7)

	err := b.Validate(context.Background())
	var ice *IncompleteClosureError
	if !errors.As(err, &ice) {
		t.Fatalf("Validate err = %v, want IncompleteClosureError", err)
	}
	want := []DanglingRef{{To: 7}, {From: 1, To: 40}}
	if diff := cmp.Diff(want, ice.Refs); diff != "" {
		t.Fatalf("dangling refs (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrIncompleteClosure) {
		t.Fatalf("errors.Is(ErrIncompleteClosure) = false")
	}
}

func TestValidateReportsMissingBlob(t *testing.T) {
	b := sampleBundle(t)
	want := b.Blobs[0].Hash
	b.Blobs = nil

	err := b.Validate(context.Background())
	var ice *IncompleteClosureError
	if !errors.As(err, &ice) {
		t.Fatalf("Validate err = %v, want IncompleteClosureError", err)
	}
	if diff := cmp.Diff([]MissingBlob{{From: 3, Hash: want}}, ice.Blobs); diff != "" {
		t.Fatalf("missing blobs (-want +got):\n%s", diff)
	}
}

func TestValidateDetectsCorruptBlob(t *testing.T) {
	b := sampleBundle(t)
	b.Blobs[0].Data = []byte("tampered")

	err := b.Validate(context.Background())
	var ie *blob.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("Validate err = %v, want IntegrityError", err)
	}
	if ie.Hash != b.Blobs[0].Hash {
		t.Fatalf("IntegrityError.Hash = %s", ie.Hash)
	}
}

func TestValidateDetectsIndexMismatch(t *testing.T) {
	b := sampleBundle(t)
	b.Manifest.Index[1].Type = "scene.Renderer"
	if err := b.Validate(context.Background()); err == nil {
		t.Fatal("Validate accepted an index that disagrees with the records")
	}
}

func TestValidateDetectsDuplicateRecords(t *testing.T) {
	b := sampleBundle(t)
	b.States = append(b.States, b.States[0].Clone())
	if err := b.Validate(context.Background()); err == nil {
		t.Fatal("Validate accepted duplicate records")
	}
}

func TestValidateRejectsUnknownVersion(t *testing.T) {
	b := sampleBundle(t)
	b.Manifest.Version = FormatVersion + 1
	if err := b.Validate(context.Background()); err == nil {
		t.Fatal("Validate accepted a future manifest version")
	}
}

func TestBundleLookups(t *testing.T) {
	b := sampleBundle(t)
	if rec, ok := b.State(2); !ok || rec.Type != "scene.Interactor" {
		t.Fatalf("State(2) = %v, %v", rec, ok)
	}
	if _, ok := b.State(9); ok {
		t.Fatal("State(9) found a record")
	}
	if data, ok := b.Blob(b.Blobs[0].Hash); !ok || string(data) != "0 0 0 1 0 0 0 1 0" {
		t.Fatalf("Blob = %q, %v", data, ok)
	}
	if got := b.BlobSize(); got != int64(len("0 0 0 1 0 0 0 1 0")) {
		t.Fatalf("BlobSize = %d", got)
	}
}
