package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// UpdateStatesFromObjects snapshots every live object reachable from the
// roots. Objects discovered through references are registered on the way.
// An object is extracted when it has no record, was marked modified, or is
// not codec.Versioned; Versioned objects are skipped while their version is
// unchanged. Released objects keep their last record and are reported
// stale.
//
// Extraction errors are collected per object and returned joined; the
// records of the other objects are still updated.
func (m *Manager) UpdateStatesFromObjects() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	defer m.metrics.observePass("extract", start)

	x := &extractor{m: m}
	var (
		errs      []error
		extracted int
		unchanged int
		stale     int
	)
	seen := make(map[object.ObjectID]struct{})
	for _, root := range m.startsLocked(nil) {
		stack := []object.ObjectID{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			if e, ok := m.entries[id]; ok {
				m.refreshLocked(e)
				switch {
				case e.status == StatusStale:
					stale++
				case e.status == StatusLive && m.needsExtractLocked(e):
					changed, err := m.extractLocked(x, e)
					if err != nil {
						errs = append(errs, err)
						break
					}
					if changed {
						extracted++
					} else {
						unchanged++
					}
				}
			}

			rec := m.states[id]
			if rec == nil {
				continue
			}
			refs := rec.References()
			for i := len(refs) - 1; i >= 0; i-- {
				if _, ok := seen[refs[i]]; !ok {
					stack = append(stack, refs[i])
				}
			}
		}
	}

	m.logger.Debug("extraction pass",
		"visited", len(seen),
		"extracted", extracted,
		"unchanged", unchanged,
		"stale", stale,
		"errors", len(errs),
		"elapsed", time.Since(start))
	return errors.Join(errs...)
}

func (m *Manager) needsExtractLocked(e *entry) bool {
	if e.dirty || m.states[e.id] == nil {
		return true
	}
	v, ok := e.object().(codec.Versioned)
	if !ok {
		return true
	}
	return !e.versioned || v.StateVersion() != e.version
}

// extractLocked runs the codec for e and stores the record. It reports
// whether the record changed.
func (m *Manager) extractLocked(x *extractor, e *entry) (bool, error) {
	obj := e.object()
	props, err := e.codec.Extract(x, obj)
	if err != nil {
		return false, &ExtractionError{ID: e.id, Type: e.codec.Type, Err: err}
	}
	rec := &object.StateRecord{ID: e.id, Type: e.codec.Type, Properties: props}
	if err := rec.Validate(); err != nil {
		return false, &ExtractionError{ID: e.id, Type: e.codec.Type, Err: err}
	}

	if v, ok := obj.(codec.Versioned); ok {
		e.versioned = true
		e.version = v.StateVersion()
	}
	e.dirty = false

	fp := rec.Fingerprint()
	if m.states[e.id] != nil && e.fingerprint == fp {
		m.metrics.statesUnchanged.Inc()
		return false, nil
	}
	m.states[e.id] = rec
	e.fingerprint = fp
	m.metrics.statesExtracted.Inc()
	return true, nil
}

// extractor is the codec.Extractor handed to codecs during a pass. It runs
// with the manager lock held.
type extractor struct {
	m *Manager
}

func (x *extractor) Ref(obj any) (object.ObjectID, error) {
	if isNil(obj) {
		return object.NoObject, nil
	}
	c, ok := x.m.codecs.ForObject(obj)
	if !ok {
		return object.NoObject, fmt.Errorf("reference: %w", &UnknownTypeError{GoType: fmt.Sprintf("%T", obj)})
	}
	return x.m.trackLocked(obj, c), nil
}

func (x *extractor) PutBlob(data []byte) object.Hash {
	h, added := x.m.blobs.Add(data)
	x.m.metrics.blobWritten(added)
	return h
}
