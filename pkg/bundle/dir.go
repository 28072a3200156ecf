package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/odvcencio/graphstate/pkg/blob"
	"github.com/odvcencio/graphstate/pkg/object"
)

const (
	dirManifestName = "manifest"
	dirStatesName   = "states"
)

// Dir is a bundle stored as a directory:
//
//	manifest
//	states/<id>
//	objects/ab/cdef...
//
// Records use the text state encoding; blobs are loose content-addressed
// files. Every file is written atomically.
type Dir struct {
	Root string
}

// NewDir returns the directory bundle rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// WriteBundle replaces the manifest and records under Root and adds the
// blobs. Blobs already present are kept.
func (d *Dir) WriteBundle(ctx context.Context, b *Bundle) error {
	b.Normalize()
	hasher, err := b.Hasher()
	if err != nil {
		return fmt.Errorf("write dir bundle: %w", err)
	}
	statesDir := filepath.Join(d.Root, dirStatesName)
	if err := os.RemoveAll(statesDir); err != nil {
		return fmt.Errorf("write dir bundle: clear states: %w", err)
	}
	if err := os.MkdirAll(statesDir, 0o755); err != nil {
		return fmt.Errorf("write dir bundle: %w", err)
	}

	for _, rec := range b.States {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(statesDir, rec.ID.String())
		if err := writeFileAtomic(path, object.MarshalState(rec)); err != nil {
			return fmt.Errorf("write dir bundle state %d: %w", rec.ID, err)
		}
	}

	store := blob.NewDirStore(d.Root, hasher)
	for _, bl := range b.Blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := store.Write(bl.Data)
		if err != nil {
			return fmt.Errorf("write dir bundle: %w", err)
		}
		if h != bl.Hash {
			return fmt.Errorf("write dir bundle: %w", &blob.IntegrityError{Hash: bl.Hash, Actual: h})
		}
	}

	// The manifest goes last so a partial write has no manifest.
	if err := writeFileAtomic(filepath.Join(d.Root, dirManifestName), MarshalManifest(&b.Manifest)); err != nil {
		return fmt.Errorf("write dir bundle manifest: %w", err)
	}
	return nil
}

// ReadBundle loads the manifest, every record and the blobs the records
// reference. Blob content is verified on read.
func (d *Dir) ReadBundle(ctx context.Context) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, dirManifestName))
	if err != nil {
		return nil, fmt.Errorf("read dir bundle manifest: %w", err)
	}
	m, err := UnmarshalManifest(data)
	if err != nil {
		return nil, fmt.Errorf("read dir bundle: %w", err)
	}
	hasher, err := object.NewHasher(m.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("read dir bundle: %w", err)
	}

	b := &Bundle{Manifest: *m}
	statesDir := filepath.Join(d.Root, dirStatesName)
	names, err := os.ReadDir(statesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read dir bundle states: %w", err)
	}
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		if _, err := strconv.ParseUint(de.Name(), 10, 64); err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(statesDir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("read dir bundle state %s: %w", de.Name(), err)
		}
		rec, err := object.UnmarshalState(raw)
		if err != nil {
			return nil, fmt.Errorf("read dir bundle state %s: %w", de.Name(), err)
		}
		b.States = append(b.States, rec)
	}

	store := blob.NewDirStore(d.Root, hasher)
	seen := make(map[object.Hash]struct{})
	for _, rec := range b.States {
		for _, h := range rec.BlobHashes() {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			if !store.Has(h) {
				continue
			}
			payload, err := store.Read(h)
			if err != nil {
				return nil, fmt.Errorf("read dir bundle: %w", err)
			}
			b.Blobs = append(b.Blobs, Blob{Hash: h, Data: payload})
		}
	}
	return b, nil
}
