package manager

import (
	"github.com/odvcencio/graphstate/pkg/object"
)

// GetAllDependencies returns id followed by every id reachable from it
// through its record's references, each once, in depth-first discovery
// order. NoObject walks every root in ascending order; with no roots it
// returns every known id.
//
// The walk follows records, so objects must be extracted first. References
// to unknown ids and to external ids without a record are not followed.
func (m *Manager) GetAllDependencies(id object.ObjectID) ([]object.ObjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == object.NoObject {
		return m.closureLocked(m.startsLocked(nil)), nil
	}
	if !m.knownLocked(id) {
		return nil, &UnknownIDError{ID: id}
	}
	return m.closureLocked([]object.ObjectID{id}), nil
}

// startsLocked returns ids when given, otherwise the roots, otherwise every
// known id.
func (m *Manager) startsLocked(ids []object.ObjectID) []object.ObjectID {
	if len(ids) > 0 {
		return ids
	}
	if len(m.roots) > 0 {
		return sortedKeys(m.roots)
	}
	all := make(map[object.ObjectID]struct{}, len(m.entries)+len(m.states))
	for id := range m.entries {
		all[id] = struct{}{}
	}
	for id := range m.states {
		all[id] = struct{}{}
	}
	return sortedKeys(all)
}

// closureLocked walks the reference graph from starts. It is iterative and
// tolerates cycles.
func (m *Manager) closureLocked(starts []object.ObjectID) []object.ObjectID {
	var out []object.ObjectID
	seen := make(map[object.ObjectID]struct{})
	for _, start := range starts {
		stack := []object.ObjectID{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[id]; ok {
				continue
			}
			if !m.followLocked(id) {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)

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
	return out
}

func (m *Manager) followLocked(id object.ObjectID) bool {
	if id == object.NoObject || !m.knownLocked(id) {
		return false
	}
	if _, ext := m.external[id]; ext {
		_, hasState := m.states[id]
		return hasState
	}
	return true
}
