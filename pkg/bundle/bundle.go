// Package bundle holds the serialized form of an object graph: a manifest,
// the state records of a closure and the blobs they reference. A Bundle is
// written and read through one of several formats (pack, JSON, directory,
// SQLite) that all carry the same content.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/graphstate/pkg/blob"
	"github.com/odvcencio/graphstate/pkg/object"
)

// FormatVersion is the manifest version written by this package.
const FormatVersion = 1

// ErrIncompleteClosure is matched by IncompleteClosureError.
var ErrIncompleteClosure = errors.New("incomplete closure")

// IndexEntry maps one id in the bundle to its type tag.
type IndexEntry struct {
	ID   object.ObjectID `json:"id"`
	Type object.TypeTag  `json:"type"`
}

// Manifest describes the content of a bundle.
type Manifest struct {
	Version       int               `json:"version"`
	Session       string            `json:"session,omitempty"`
	HashAlgorithm object.Algorithm  `json:"hash"`
	Roots         []object.ObjectID `json:"roots"`
	External      []object.ObjectID `json:"external,omitempty"`
	Index         []IndexEntry      `json:"index"`
}

// Blob is one content-addressed payload.
type Blob struct {
	Hash object.Hash `json:"hash"`
	Data []byte      `json:"data"`
}

// Bundle is an exported closure.
type Bundle struct {
	Manifest Manifest
	States   []*object.StateRecord
	Blobs    []Blob
}

// Writer persists bundles.
type Writer interface {
	WriteBundle(ctx context.Context, b *Bundle) error
}

// Reader loads a bundle.
type Reader interface {
	ReadBundle(ctx context.Context) (*Bundle, error)
}

// Normalize sorts records by id, blobs by hash and the manifest id lists,
// and rebuilds the index from the records. Every writer normalizes before
// encoding so equal bundles encode to equal bytes.
func (b *Bundle) Normalize() {
	if b.Manifest.Version == 0 {
		b.Manifest.Version = FormatVersion
	}
	if b.Manifest.HashAlgorithm == "" {
		b.Manifest.HashAlgorithm = object.DefaultAlgorithm
	}
	sort.Slice(b.States, func(i, j int) bool { return b.States[i].ID < b.States[j].ID })
	sort.Slice(b.Blobs, func(i, j int) bool { return b.Blobs[i].Hash < b.Blobs[j].Hash })
	b.Manifest.Roots = uniqueIDs(b.Manifest.Roots)
	b.Manifest.External = uniqueIDs(b.Manifest.External)
	b.Manifest.Index = make([]IndexEntry, 0, len(b.States))
	for _, rec := range b.States {
		b.Manifest.Index = append(b.Manifest.Index, IndexEntry{ID: rec.ID, Type: rec.Type})
	}
}

// State returns the record for id.
func (b *Bundle) State(id object.ObjectID) (*object.StateRecord, bool) {
	for _, rec := range b.States {
		if rec.ID == id {
			return rec, true
		}
	}
	return nil, false
}

// Blob returns the payload stored under h.
func (b *Bundle) Blob(h object.Hash) ([]byte, bool) {
	for _, bl := range b.Blobs {
		if bl.Hash == h {
			return bl.Data, true
		}
	}
	return nil, false
}

// Hasher returns the hasher for the manifest's algorithm.
func (b *Bundle) Hasher() (*object.Hasher, error) {
	return object.NewHasher(b.Manifest.HashAlgorithm)
}

// BlobSize returns the total payload bytes.
func (b *Bundle) BlobSize() int64 {
	var n int64
	for _, bl := range b.Blobs {
		n += int64(len(bl.Data))
	}
	return n
}

// DanglingRef is a reference from one record to an id the bundle neither
// contains nor declares external. From is NoObject for a missing root.
type DanglingRef struct {
	From object.ObjectID
	To   object.ObjectID
}

// MissingBlob is a blob referenced by a record but absent from the bundle.
type MissingBlob struct {
	From object.ObjectID
	Hash object.Hash
}

// IncompleteClosureError lists every reference that leaves a closure.
type IncompleteClosureError struct {
	Refs  []DanglingRef
	Blobs []MissingBlob
}

func (e *IncompleteClosureError) Error() string {
	parts := make([]string, 0, len(e.Refs)+len(e.Blobs))
	for _, r := range e.Refs {
		if r.From == object.NoObject {
			parts = append(parts, fmt.Sprintf("root %d", r.To))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d->%d", r.From, r.To))
	}
	for _, bl := range e.Blobs {
		parts = append(parts, fmt.Sprintf("%d->blob %s", bl.From, bl.Hash.Short()))
	}
	return fmt.Sprintf("%s: %s", ErrIncompleteClosure, strings.Join(parts, ", "))
}

func (e *IncompleteClosureError) Is(target error) bool {
	return target == ErrIncompleteClosure
}

// Empty reports whether no dangling reference was recorded.
func (e *IncompleteClosureError) Empty() bool {
	return len(e.Refs) == 0 && len(e.Blobs) == 0
}

// Validate checks that the bundle is self-contained and intact: records are
// well formed with unique ids, the index agrees with the records, every
// root has a record, every reference resolves inside the bundle or to an
// external id, and every blob hashes to its name. Blob digests are checked
// concurrently.
func (b *Bundle) Validate(ctx context.Context) error {
	if b.Manifest.Version != FormatVersion {
		return fmt.Errorf("validate bundle: unsupported manifest version %d", b.Manifest.Version)
	}
	hasher, err := b.Hasher()
	if err != nil {
		return fmt.Errorf("validate bundle: %w", err)
	}

	var errs []error
	types := make(map[object.ObjectID]object.TypeTag, len(b.States))
	for _, rec := range b.States {
		if err := rec.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := types[rec.ID]; dup {
			errs = append(errs, fmt.Errorf("state %d: duplicate record", rec.ID))
			continue
		}
		types[rec.ID] = rec.Type
	}
	if len(b.Manifest.Index) != len(types) {
		errs = append(errs, fmt.Errorf("index lists %d ids, bundle has %d records", len(b.Manifest.Index), len(types)))
	}
	for _, ie := range b.Manifest.Index {
		if typ, ok := types[ie.ID]; !ok || typ != ie.Type {
			errs = append(errs, fmt.Errorf("index entry %d (%s) does not match a record", ie.ID, ie.Type))
		}
	}

	external := make(map[object.ObjectID]struct{}, len(b.Manifest.External))
	for _, id := range b.Manifest.External {
		external[id] = struct{}{}
	}
	blobs := make(map[object.Hash]struct{}, len(b.Blobs))
	for _, bl := range b.Blobs {
		blobs[bl.Hash] = struct{}{}
	}
	closure := &IncompleteClosureError{}
	for _, root := range b.Manifest.Roots {
		if _, ok := types[root]; !ok {
			closure.Refs = append(closure.Refs, DanglingRef{To: root})
		}
	}
	for _, rec := range b.States {
		for _, ref := range rec.References() {
			if _, ok := types[ref]; ok {
				continue
			}
			if _, ok := external[ref]; ok {
				continue
			}
			closure.Refs = append(closure.Refs, DanglingRef{From: rec.ID, To: ref})
		}
		for _, h := range rec.BlobHashes() {
			if _, ok := blobs[h]; !ok {
				closure.Blobs = append(closure.Blobs, MissingBlob{From: rec.ID, Hash: h})
			}
		}
	}
	if !closure.Empty() {
		errs = append(errs, closure)
	}

	if err := verifyBlobs(ctx, hasher, b.Blobs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func verifyBlobs(ctx context.Context, hasher *object.Hasher, blobs []Blob) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, bl := range blobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if actual, ok := hasher.Verify(bl.Hash, bl.Data); !ok {
				return &blob.IntegrityError{Hash: bl.Hash, Actual: actual}
			}
			return nil
		})
	}
	return g.Wait()
}

func uniqueIDs(ids []object.ObjectID) []object.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[object.ObjectID]struct{}, len(ids))
	out := make([]object.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
