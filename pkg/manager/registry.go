package manager

import (
	"fmt"
	"reflect"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// entry is the registry record for one id.
type entry struct {
	id     object.ObjectID
	codec  *codec.Codec
	status Status

	// key identifies the object in byKey. weak resolves it without keeping
	// it alive. strong is set for reconstructed objects that have not been
	// handed off yet.
	key    any
	weak   func() any
	strong any

	dirty       bool
	versioned   bool
	version     uint64
	fingerprint object.Hash
	err         error
}

func (e *entry) object() any {
	if e.strong != nil {
		return e.strong
	}
	if e.weak != nil {
		return e.weak()
	}
	return nil
}

func (e *entry) typeTag() object.TypeTag {
	if e.codec == nil {
		return ""
	}
	return e.codec.Type
}

// RegisterObject tracks obj as a root and returns its id. Registering an
// object that is already tracked returns the id it already has. The manager
// keeps only a weak reference to obj.
func (m *Manager) RegisterObject(obj any) (object.ObjectID, error) {
	if isNil(obj) {
		return object.NoObject, fmt.Errorf("register object: nil object")
	}
	c, ok := m.codecs.ForObject(obj)
	if !ok {
		return object.NoObject, fmt.Errorf("register object: %w", &UnknownTypeError{GoType: fmt.Sprintf("%T", obj)})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.trackLocked(obj, c)
	m.roots[id] = struct{}{}
	return id, nil
}

// trackLocked returns the id of obj, allocating one when obj is new.
func (m *Manager) trackLocked(obj any, c *codec.Codec) object.ObjectID {
	w := c.Weak(obj)
	if id, ok := m.byKey[w.Key]; ok {
		return id
	}
	id := m.nextID
	m.nextID++
	e := &entry{
		id:     id,
		codec:  c,
		status: StatusLive,
		key:    w.Key,
		weak:   w.Value,
		dirty:  true,
	}
	m.entries[id] = e
	m.byKey[w.Key] = id
	m.logger.Debug("object registered", "id", id, "type", c.Type)
	return id
}

// refreshLocked demotes a live entry whose object was collected to stale.
func (m *Manager) refreshLocked(e *entry) {
	if e.status != StatusLive || e.object() != nil {
		return
	}
	e.status = StatusStale
	m.metrics.staleObjects.Inc()
	m.logger.Warn("tracked object released", "id", e.id, "type", e.typeTag())
}

// GetObjectAtID returns the live object for id. A reconstructed object is
// handed off on its first retrieval: from then on the manager holds only a
// weak reference and the caller owns it.
func (m *Manager) GetObjectAtID(id object.ObjectID) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		if obj, ok := m.external[id]; ok && obj != nil {
			return obj, nil
		}
		return nil, &UnknownIDError{ID: id}
	}
	m.refreshLocked(e)
	switch e.status {
	case StatusPending:
		return nil, fmt.Errorf("object %d: %w", id, ErrNotConstructed)
	case StatusFailed:
		return nil, e.err
	case StatusStale:
		return nil, &StaleObjectError{ID: id, Type: e.typeTag()}
	}
	obj := e.object()
	e.strong = nil
	return obj, nil
}

// LookupID returns the id of a tracked object.
func (m *Manager) LookupID(obj any) (object.ObjectID, bool) {
	if isNil(obj) {
		return object.NoObject, false
	}
	c, ok := m.codecs.ForObject(obj)
	if !ok {
		return object.NoObject, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[c.Weak(obj).Key]
	return id, ok
}

// UnregisterObject forgets id: its object, its record and its root flag.
func (m *Manager) UnregisterObject(id object.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &UnknownIDError{ID: id}
	}
	if e.key != nil {
		delete(m.byKey, e.key)
	}
	delete(m.entries, id)
	delete(m.states, id)
	delete(m.roots, id)
	return nil
}

// MarkModified forces id to be re-extracted on the next pass.
func (m *Manager) MarkModified(id object.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &UnknownIDError{ID: id}
	}
	e.dirty = true
	return nil
}

// AddRoot marks a known id as a root.
func (m *Manager) AddRoot(id object.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.knownLocked(id) {
		return &UnknownIDError{ID: id}
	}
	m.roots[id] = struct{}{}
	return nil
}

// Roots returns the root ids in ascending order.
func (m *Manager) Roots() []object.ObjectID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.roots)
}

// MarkExternal declares id as intentionally outside of any exported closure.
// References to it do not make an export incomplete.
func (m *Manager) MarkExternal(id object.ObjectID) error {
	if id == object.NoObject {
		return fmt.Errorf("mark external: id %d is reserved", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.external[id]; !ok {
		m.external[id] = nil
	}
	return nil
}

// BindExternal supplies the object an external id resolves to during
// reconstruction.
func (m *Manager) BindExternal(id object.ObjectID, obj any) error {
	if id == object.NoObject {
		return fmt.Errorf("bind external: id %d is reserved", id)
	}
	if isNil(obj) {
		return fmt.Errorf("bind external %d: nil object", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.external[id] = obj
	return nil
}

// External returns the ids marked external in ascending order.
func (m *Manager) External() []object.ObjectID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.external)
}

// knownLocked reports whether id has an entry or a record.
func (m *Manager) knownLocked(id object.ObjectID) bool {
	if _, ok := m.entries[id]; ok {
		return true
	}
	_, ok := m.states[id]
	return ok
}

func isNil(obj any) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
