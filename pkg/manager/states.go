package manager

import (
	"fmt"
	"sort"

	"github.com/odvcencio/graphstate/pkg/object"
)

// RegisterState stages rec for reconstruction. Nothing is constructed until
// UpdateObjectsFromStates. A record for an id that is already live replaces
// the current record, and the next reconstruction applies it to the existing
// object. The manager keeps its own copy of rec.
func (m *Manager) RegisterState(rec *object.StateRecord) error {
	if rec == nil {
		return fmt.Errorf("register state: nil record")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("register state: %w", err)
	}
	rec = rec.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[rec.ID] = rec
	if rec.ID >= m.nextID {
		m.nextID = rec.ID + 1
	}
	if _, ok := m.entries[rec.ID]; !ok {
		m.entries[rec.ID] = &entry{id: rec.ID, status: StatusPending}
	}
	return nil
}

// RegisterBlob stores data under h after checking that data hashes to h.
func (m *Manager) RegisterBlob(h object.Hash, data []byte) error {
	if err := m.blobs.Register(h, data); err != nil {
		return fmt.Errorf("register blob %s: %w", h.Short(), err)
	}
	return nil
}

// GetState returns a copy of the current record for id.
func (m *Manager) GetState(id object.ObjectID) (*object.StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.states[id]
	if !ok {
		if _, known := m.entries[id]; known {
			return nil, fmt.Errorf("object %d: %w", id, ErrNoState)
		}
		return nil, &UnknownIDError{ID: id}
	}
	return rec.Clone(), nil
}

// GetBlob returns a copy of the blob stored under h.
func (m *Manager) GetBlob(h object.Hash) ([]byte, error) {
	return m.blobs.Get(h)
}

// GetBlobHashes returns the blob hashes referenced by the records of ids,
// sorted and without duplicates. Ids without a record are skipped.
func (m *Manager) GetBlobHashes(ids []object.ObjectID) []object.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[object.Hash]struct{})
	for _, id := range ids {
		rec := m.states[id]
		if rec == nil {
			continue
		}
		for _, h := range rec.BlobHashes() {
			seen[h] = struct{}{}
		}
	}
	out := make([]object.Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnregisterState drops the record for id. A live object keeps its id and
// is extracted again on the next pass; an id known only from its record is
// forgotten.
func (m *Manager) UnregisterState(id object.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return &UnknownIDError{ID: id}
	}
	delete(m.states, id)
	e := m.entries[id]
	if e == nil {
		return nil
	}
	if e.status == StatusPending {
		delete(m.entries, id)
		delete(m.roots, id)
		return nil
	}
	e.dirty = true
	e.fingerprint = ""
	return nil
}

// PruneBlobs drops every blob no record references and returns how many
// were dropped.
func (m *Manager) PruneBlobs() int {
	m.mu.RLock()
	keep := make(map[object.Hash]struct{})
	for _, rec := range m.states {
		for _, h := range rec.BlobHashes() {
			keep[h] = struct{}{}
		}
	}
	m.mu.RUnlock()
	n := m.blobs.Retain(keep)
	if n > 0 {
		m.logger.Debug("blobs pruned", "count", n)
	}
	return n
}
