// Package manager snapshots graphs of live objects into state records and
// content-addressed blobs, and reconstructs equivalent, fully wired graphs
// from them.
//
// Export side:
//
//	id, _ := m.RegisterObject(root)
//	m.UpdateStatesFromObjects()
//	ids, _ := m.GetAllDependencies(object.NoObject)
//	m.Export(ctx, bundle.NewPackFile("scene.gsb"))
//
// Import side:
//
//	m.Import(ctx, bundle.NewPackFile("scene.gsb"))
//	report, err := m.UpdateObjectsFromStates()
//	obj, _ := m.GetObjectAtID(id)
//
// A Manager is meant for single-threaded passes. Lookups may run
// concurrently once no Register or Update call is in flight.
package manager

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/graphstate/pkg/blob"
	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// Status is the lifecycle state of one id.
type Status uint8

const (
	// StatusPending ids are known from an imported record only.
	StatusPending Status = iota + 1
	// StatusLive ids are backed by an in-process object.
	StatusLive
	// StatusStale ids had an object that its owner has since released.
	StatusStale
	// StatusFailed ids could not be reconstructed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLive:
		return "live"
	case StatusStale:
		return "stale"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Manager tracks objects by id and converts between live objects, state
// records and blobs.
type Manager struct {
	codecs  *codec.Registry
	hasher  *object.Hasher
	session string
	logger  *slog.Logger
	metrics *metrics

	mu       sync.RWMutex
	nextID   object.ObjectID
	entries  map[object.ObjectID]*entry
	byKey    map[any]object.ObjectID
	states   map[object.ObjectID]*object.StateRecord
	blobs    *blob.Store
	roots    map[object.ObjectID]struct{}
	external map[object.ObjectID]any
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry prometheus.Registerer
	alg      object.Algorithm
	session  string
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics registers the manager's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithHashAlgorithm selects the blob digest. The default is SHA-256.
func WithHashAlgorithm(alg object.Algorithm) Option {
	return func(o *options) { o.alg = alg }
}

// WithSession overrides the generated session id recorded in bundles.
func WithSession(id string) Option {
	return func(o *options) { o.session = id }
}

// New creates an initialized Manager that resolves codecs through reg.
func New(reg *codec.Registry, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, fmt.Errorf("new manager: codec registry is required")
	}
	o := options{alg: object.DefaultAlgorithm}
	for _, opt := range opts {
		opt(&o)
	}
	hasher, err := object.NewHasher(o.alg)
	if err != nil {
		return nil, fmt.Errorf("new manager: %w", err)
	}
	if o.session == "" {
		o.session = uuid.NewString()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	met, err := newMetrics(o.registry, o.session)
	if err != nil {
		return nil, fmt.Errorf("new manager: register metrics: %w", err)
	}

	m := &Manager{
		codecs:  reg,
		hasher:  hasher,
		session: o.session,
		logger:  logger.With("session", o.session),
		metrics: met,
		blobs:   blob.NewStore(hasher),
	}
	m.Initialize()
	return m, nil
}

// Initialize drops every id, record, blob and root and restarts id
// allocation at 1. The session id is kept.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.nextID = 1
}

// Clear drops every id, record, blob and root. Unlike Initialize, ids handed
// out before are never reused.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Manager) reset() {
	m.entries = make(map[object.ObjectID]*entry)
	m.byKey = make(map[any]object.ObjectID)
	m.states = make(map[object.ObjectID]*object.StateRecord)
	m.roots = make(map[object.ObjectID]struct{})
	m.external = make(map[object.ObjectID]any)
	m.blobs.Reset()
}

// Session returns the id recorded in bundles this manager exports.
func (m *Manager) Session() string {
	return m.session
}

// HashAlgorithm returns the blob digest in use.
func (m *Manager) HashAlgorithm() object.Algorithm {
	return m.hasher.Algorithm()
}

// Codecs returns the codec registry.
func (m *Manager) Codecs() *codec.Registry {
	return m.codecs
}

// Stats summarizes the tracked state.
type Stats struct {
	IDs       int
	Live      int
	Pending   int
	Stale     int
	Failed    int
	Roots     int
	States    int
	Blobs     int
	BlobBytes int64
}

// Stats counts ids by status along with records and blobs.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{
		IDs:       len(m.entries),
		Roots:     len(m.roots),
		States:    len(m.states),
		Blobs:     m.blobs.Len(),
		BlobBytes: m.blobs.Size(),
	}
	for _, e := range m.entries {
		switch e.status {
		case StatusLive:
			st.Live++
		case StatusPending:
			st.Pending++
		case StatusStale:
			st.Stale++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}

// Status returns the lifecycle state of id.
func (m *Manager) Status(id object.ObjectID) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return 0, &UnknownIDError{ID: id}
	}
	m.refreshLocked(e)
	return e.status, nil
}

func sortIDs(ids []object.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortedKeys[V any](m map[object.ObjectID]V) []object.ObjectID {
	out := make([]object.ObjectID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}
