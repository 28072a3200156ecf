package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// ImportReport summarizes one reconstruction pass.
type ImportReport struct {
	// Constructed ids got a new object.
	Constructed []object.ObjectID
	// Updated ids had a changed record applied to their existing object.
	Updated []object.ObjectID
	// Unchanged counts ids whose record and object were already in sync.
	Unchanged int
	// Failed maps each failed id to its error.
	Failed map[object.ObjectID]error
}

// UpdateObjectsFromStates builds or updates objects for every staged record
// that is not yet reflected by a live object. Records are processed
// referenced-first by strongly connected component. Members of a reference
// cycle are allocated with their codec's New before any of them is
// constructed, so each Construct can resolve the others; Patch runs after
// the whole component is constructed.
//
// A failing id fails every id that references it. Unrelated ids are still
// constructed. The returned error joins every failure; the report is always
// returned.
func (m *Manager) UpdateObjectsFromStates() (*ImportReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	defer m.metrics.observePass("reconstruct", start)

	p := &pass{
		m:            m,
		work:         make(map[object.ObjectID]struct{}),
		placeholders: make(map[object.ObjectID]any),
		failed:       make(map[object.ObjectID]error),
		report:       &ImportReport{Failed: make(map[object.ObjectID]error)},
	}
	var nodes []object.ObjectID
	for _, id := range sortedKeys(m.states) {
		e := m.entries[id]
		if e == nil {
			e = &entry{id: id, status: StatusPending}
			m.entries[id] = e
		}
		m.refreshLocked(e)
		if e.status == StatusLive && e.fingerprint == m.states[id].Fingerprint() {
			p.report.Unchanged++
			continue
		}
		p.work[id] = struct{}{}
		nodes = append(nodes, id)
	}

	for _, c := range components(nodes, func(id object.ObjectID) []object.ObjectID {
		return m.states[id].References()
	}) {
		p.component(c)
	}

	errs := make([]error, 0, len(p.failed))
	for _, id := range sortedKeys(p.failed) {
		errs = append(errs, p.failed[id])
	}
	m.logger.Debug("reconstruction pass",
		"records", len(m.states),
		"constructed", len(p.report.Constructed),
		"updated", len(p.report.Updated),
		"unchanged", p.report.Unchanged,
		"failed", len(p.failed),
		"elapsed", time.Since(start))
	return p.report, errors.Join(errs...)
}

// pass holds the state of one reconstruction. It is also the
// codec.Constructor handed to codecs.
type pass struct {
	m            *Manager
	work         map[object.ObjectID]struct{}
	placeholders map[object.ObjectID]any
	failed       map[object.ObjectID]error
	report       *ImportReport
}

func (p *pass) component(c component) {
	m := p.m
	codecs := make(map[object.ObjectID]*codec.Codec, len(c.ids))

	for _, id := range c.ids {
		rec := m.states[id]
		cd, ok := m.codecs.Lookup(rec.Type)
		if !ok {
			p.failComponent(c, id, &UnknownTypeError{Type: rec.Type})
			return
		}
		codecs[id] = cd
		for _, ref := range rec.References() {
			if _, bad := p.failed[ref]; bad {
				p.fail(id, rec.Type, &ConstructionFailedError{ID: id, Type: rec.Type, DependsOn: ref})
				p.failRest(c, id)
				return
			}
			if !p.resolvable(ref) {
				p.failComponent(c, id, &UnknownIDError{ID: ref})
				return
			}
		}
	}

	if c.cyclic {
		cycErr := &CyclicResolutionError{IDs: c.ids}
		for _, id := range c.ids {
			if codecs[id].New == nil {
				cycErr.Missing = append(cycErr.Missing, codecs[id].Type)
			}
		}
		if len(cycErr.Missing) > 0 {
			p.failComponent(c, c.ids[0], cycErr)
			return
		}
		for _, id := range c.ids {
			if obj := p.existing(id, codecs[id]); obj != nil {
				p.placeholders[id] = obj
				continue
			}
			p.placeholders[id] = codecs[id].New()
		}
	}

	built := make(map[object.ObjectID]any, len(c.ids))
	for _, id := range c.ids {
		into := p.placeholders[id]
		if into == nil {
			into = p.existing(id, codecs[id])
		}
		out, err := codecs[id].Construct(p, m.states[id], into)
		if err == nil && c.cyclic && out != into {
			err = fmt.Errorf("construct returned %T instead of its placeholder", out)
		}
		if err != nil {
			p.failComponent(c, id, err)
			return
		}
		built[id] = out
	}

	for _, id := range c.ids {
		if codecs[id].Patch == nil {
			continue
		}
		if err := codecs[id].Patch(p, m.states[id], built[id]); err != nil {
			p.failComponent(c, id, fmt.Errorf("patch: %w", err))
			return
		}
	}

	for _, id := range c.ids {
		p.finish(id, codecs[id], built[id])
		delete(p.placeholders, id)
	}
}

// existing returns the object an id already has, if it is live and was
// built by cd. A record whose type changed gets a fresh object.
func (p *pass) existing(id object.ObjectID, cd *codec.Codec) any {
	e := p.m.entries[id]
	if e == nil || e.status != StatusLive || e.codec != cd {
		return nil
	}
	return e.object()
}

// resolvable reports whether Resolve can succeed for ref once every
// component before the current one has been processed.
func (p *pass) resolvable(ref object.ObjectID) bool {
	if _, ok := p.work[ref]; ok {
		return true
	}
	if _, ok := p.m.external[ref]; ok {
		return true
	}
	e := p.m.entries[ref]
	return e != nil && e.status == StatusLive
}

func (p *pass) finish(id object.ObjectID, cd *codec.Codec, obj any) {
	m := p.m
	e := m.entries[id]
	updated := e.status == StatusLive && e.object() == obj

	w := cd.Weak(obj)
	if e.key != nil && e.key != w.Key {
		delete(m.byKey, e.key)
	}
	e.codec = cd
	e.key = w.Key
	e.weak = w.Value
	m.byKey[w.Key] = id
	if !updated {
		e.strong = obj
	}
	e.status = StatusLive
	e.err = nil
	e.dirty = false
	e.fingerprint = m.states[id].Fingerprint()
	if v, ok := obj.(codec.Versioned); ok {
		e.versioned = true
		e.version = v.StateVersion()
	}

	if updated {
		p.report.Updated = append(p.report.Updated, id)
		m.metrics.objectsUpdated.Inc()
		return
	}
	p.report.Constructed = append(p.report.Constructed, id)
	m.metrics.objectsConstructed.Inc()
}

func (p *pass) fail(id object.ObjectID, typ object.TypeTag, err error) {
	m := p.m
	var cf *ConstructionFailedError
	if !errors.As(err, &cf) || cf.ID != id {
		err = &ConstructionFailedError{ID: id, Type: typ, Err: err}
	}
	e := m.entries[id]
	e.status = StatusFailed
	e.err = err
	e.strong = nil
	p.failed[id] = err
	p.report.Failed[id] = err
	delete(p.placeholders, id)
	m.metrics.constructionFailures.Inc()
	m.logger.Warn("construction failed", "id", id, "type", typ, "err", err)
}

// failComponent fails cause with err and every other member as depending
// on it.
func (p *pass) failComponent(c component, cause object.ObjectID, err error) {
	p.fail(cause, p.m.states[cause].Type, err)
	p.failRest(c, cause)
}

func (p *pass) failRest(c component, cause object.ObjectID) {
	for _, id := range c.ids {
		if id == cause {
			continue
		}
		typ := p.m.states[id].Type
		p.fail(id, typ, &ConstructionFailedError{ID: id, Type: typ, DependsOn: cause})
	}
}

// Resolve implements codec.Constructor.
func (p *pass) Resolve(id object.ObjectID) (any, error) {
	if id == object.NoObject {
		return nil, nil
	}
	if obj, ok := p.placeholders[id]; ok {
		return obj, nil
	}
	if err, ok := p.failed[id]; ok {
		return nil, err
	}
	m := p.m
	if e, ok := m.entries[id]; ok {
		switch e.status {
		case StatusLive:
			if obj := e.object(); obj != nil {
				return obj, nil
			}
			return nil, &StaleObjectError{ID: id, Type: e.typeTag()}
		case StatusFailed:
			return nil, e.err
		case StatusStale:
			return nil, &StaleObjectError{ID: id, Type: e.typeTag()}
		}
	}
	if obj, ok := m.external[id]; ok {
		return obj, nil
	}
	if _, ok := m.entries[id]; ok {
		return nil, fmt.Errorf("object %d: %w", id, ErrNotConstructed)
	}
	return nil, &UnknownIDError{ID: id}
}

// Blob implements codec.Constructor.
func (p *pass) Blob(h object.Hash) ([]byte, error) {
	return p.m.blobs.Get(h)
}
