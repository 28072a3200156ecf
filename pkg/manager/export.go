package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/object"
)

// BuildBundle assembles the closure of ids, or of every root when ids is
// empty, from the current records and blobs. Records are taken as they
// are; call UpdateStatesFromObjects first to snapshot live objects.
//
// A reference to an id that has no record and is not external, or to a
// blob that is not stored, fails with an *IncompleteClosureError listing
// every such reference.
func (m *Manager) BuildBundle(ids ...object.ObjectID) (*bundle.Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		if !m.knownLocked(id) {
			return nil, &UnknownIDError{ID: id}
		}
	}
	roots := m.startsLocked(ids)
	closure := m.closureLocked(roots)

	b := &bundle.Bundle{
		Manifest: bundle.Manifest{
			Version:       bundle.FormatVersion,
			Session:       m.session,
			HashAlgorithm: m.hasher.Algorithm(),
			Roots:         append([]object.ObjectID(nil), roots...),
		},
	}
	missing := &bundle.IncompleteClosureError{}
	external := make(map[object.ObjectID]struct{})
	seenBlob := make(map[object.Hash]struct{})
	for _, root := range roots {
		if m.states[root] == nil {
			missing.Refs = append(missing.Refs, bundle.DanglingRef{To: root})
		}
	}
	for _, id := range closure {
		rec := m.states[id]
		if rec == nil {
			continue
		}
		b.States = append(b.States, rec.Clone())
		for _, ref := range rec.References() {
			if _, ok := m.states[ref]; ok {
				continue
			}
			if _, ok := m.external[ref]; ok {
				external[ref] = struct{}{}
				continue
			}
			missing.Refs = append(missing.Refs, bundle.DanglingRef{From: id, To: ref})
		}
		for _, h := range rec.BlobHashes() {
			if _, ok := seenBlob[h]; ok {
				continue
			}
			seenBlob[h] = struct{}{}
			data, err := m.blobs.Get(h)
			if err != nil {
				missing.Blobs = append(missing.Blobs, bundle.MissingBlob{From: id, Hash: h})
				continue
			}
			b.Blobs = append(b.Blobs, bundle.Blob{Hash: h, Data: data})
		}
	}
	if !missing.Empty() {
		return nil, missing
	}
	b.Manifest.External = sortedKeys(external)
	b.Normalize()
	return b, nil
}

// Export writes the closure of every root to dest.
func (m *Manager) Export(ctx context.Context, dest bundle.Writer) error {
	return m.ExportRoots(ctx, dest)
}

// ExportRoots writes the closure of ids to dest. With no ids it exports the
// closure of every root.
func (m *Manager) ExportRoots(ctx context.Context, dest bundle.Writer, ids ...object.ObjectID) error {
	start := time.Now()
	defer m.metrics.observePass("export", start)
	b, err := m.BuildBundle(ids...)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := dest.WriteBundle(ctx, b); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	m.logger.Debug("bundle exported",
		"roots", len(b.Manifest.Roots),
		"states", len(b.States),
		"blobs", len(b.Blobs),
		"bytes", b.BlobSize())
	return nil
}

// Import reads a bundle from src and stages it: blobs are verified and
// registered, records are registered, and the manifest's roots and external
// ids are restored. Nothing is constructed until UpdateObjectsFromStates.
func (m *Manager) Import(ctx context.Context, src bundle.Reader) error {
	b, err := src.ReadBundle(ctx)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return m.ImportBundle(b)
}

// ImportBundle stages an already decoded bundle. See Import. The bundle is
// checked in full first, so a rejected bundle leaves the manager unchanged.
func (m *Manager) ImportBundle(b *bundle.Bundle) error {
	alg := b.Manifest.HashAlgorithm
	if alg == "" {
		alg = object.DefaultAlgorithm
	}
	if alg != m.hasher.Algorithm() {
		return fmt.Errorf("import: bundle hashes with %s, manager with %s", alg, m.hasher.Algorithm())
	}
	if err := m.checkImport(b); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	for _, bl := range b.Blobs {
		if err := m.RegisterBlob(bl.Hash, bl.Data); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for _, rec := range b.States {
		if err := m.RegisterState(rec); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for _, id := range b.Manifest.External {
		if err := m.MarkExternal(id); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for _, id := range b.Manifest.Roots {
		if err := m.AddRoot(id); err != nil {
			return fmt.Errorf("import: root: %w", err)
		}
	}
	m.logger.Debug("bundle imported",
		"session", b.Manifest.Session,
		"states", len(b.States),
		"blobs", len(b.Blobs))
	return nil
}

// checkImport rejects a bundle that ImportBundle could only stage in part:
// malformed records, blobs that do not match their hash, reserved external
// ids and roots that would name no object.
func (m *Manager) checkImport(b *bundle.Bundle) error {
	ids := make(map[object.ObjectID]struct{}, len(b.States))
	for i, rec := range b.States {
		if rec == nil {
			return fmt.Errorf("record %d is nil", i)
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		ids[rec.ID] = struct{}{}
	}
	for _, bl := range b.Blobs {
		if actual, ok := m.hasher.Verify(bl.Hash, bl.Data); !ok {
			return &BlobIntegrityError{Hash: bl.Hash, Actual: actual}
		}
	}
	for _, id := range b.Manifest.External {
		if id == object.NoObject {
			return fmt.Errorf("external id %d is reserved", id)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range b.Manifest.Roots {
		if _, ok := ids[id]; ok {
			continue
		}
		if !m.knownLocked(id) {
			return fmt.Errorf("root: %w", &UnknownIDError{ID: id})
		}
	}
	return nil
}
