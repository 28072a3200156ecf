// Package codec is the catalog of per-type conversions between live objects
// and state records. The application registers one codec per object type;
// the manager looks codecs up by type tag or by the object's Go type and
// never inspects objects itself.
package codec

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"weak"

	"github.com/odvcencio/graphstate/pkg/object"
)

// Extractor is handed to Extract. Ref turns a referenced object into an id,
// registering it with the manager when it is not yet tracked. PutBlob stores
// a binary payload and returns its hash.
type Extractor interface {
	Ref(obj any) (object.ObjectID, error)
	PutBlob(data []byte) object.Hash
}

// Constructor is handed to Construct and Patch. Resolve returns the object
// for an id; inside a cycle that may be an allocated placeholder which
// becomes fully wired once every member has been constructed. Blob returns
// a payload by hash.
type Constructor interface {
	Resolve(id object.ObjectID) (any, error)
	Blob(h object.Hash) ([]byte, error)
}

// Versioned objects are only re-extracted when StateVersion changes.
type Versioned interface {
	StateVersion() uint64
}

// Codec converts one Go type to and from state records. Objects are always
// pointers; GoType is the pointer type.
type Codec struct {
	Type   object.TypeTag
	GoType reflect.Type

	// New allocates an empty object. Codecs without New cannot take part in
	// reference cycles.
	New func() any
	// Extract snapshots obj into properties.
	Extract func(x Extractor, obj any) (object.Properties, error)
	// Construct applies rec. into is a placeholder from New, the object
	// already reconstructed for this id, or nil. It returns the object.
	Construct func(c Constructor, rec *object.StateRecord, into any) (any, error)
	// Patch optionally runs after every member of a cycle was constructed.
	Patch func(c Constructor, rec *object.StateRecord, obj any) error

	weak func(obj any) WeakRef
}

// WeakRef is a non-owning reference to a tracked object. Key is comparable
// and stays equal for the same object even after it has been collected.
type WeakRef struct {
	Key   any
	Value func() any
}

// Weak returns a weak reference to obj, which must be of the codec's type.
func (c *Codec) Weak(obj any) WeakRef {
	return c.weak(obj)
}

// Funcs are the typed callbacks accepted by Register.
type Funcs[T any] struct {
	New       func() *T
	Extract   func(x Extractor, obj *T) (object.Properties, error)
	Construct func(c Constructor, rec *object.StateRecord, into *T) (*T, error)
	Patch     func(c Constructor, rec *object.StateRecord, obj *T) error
}

// Registry maps type tags and Go types to codecs. It is safe for concurrent
// use.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[object.TypeTag]*Codec
	byType map[reflect.Type]*Codec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:  make(map[object.TypeTag]*Codec),
		byType: make(map[reflect.Type]*Codec),
	}
}

// Register adds the codec for *T under tag. Extract and Construct are
// required.
func Register[T any](r *Registry, tag object.TypeTag, fns Funcs[T]) error {
	tag = object.TypeTag(strings.TrimSpace(string(tag)))
	if tag == "" || strings.ContainsAny(string(tag), " \t\n") {
		return fmt.Errorf("register codec: invalid type tag %q", tag)
	}
	if fns.Extract == nil || fns.Construct == nil {
		return fmt.Errorf("register codec %s: extract and construct are required", tag)
	}

	c := &Codec{
		Type:   tag,
		GoType: reflect.TypeFor[*T](),
		Extract: func(x Extractor, obj any) (object.Properties, error) {
			typed, ok := obj.(*T)
			if !ok || typed == nil {
				return nil, fmt.Errorf("codec %s: cannot extract %T", tag, obj)
			}
			return fns.Extract(x, typed)
		},
		Construct: func(c Constructor, rec *object.StateRecord, into any) (any, error) {
			var typed *T
			if into != nil {
				var ok bool
				if typed, ok = into.(*T); !ok {
					return nil, fmt.Errorf("codec %s: cannot construct into %T", tag, into)
				}
			}
			out, err := fns.Construct(c, rec, typed)
			if err != nil {
				return nil, err
			}
			if out == nil {
				return nil, fmt.Errorf("codec %s: construct returned nil", tag)
			}
			return out, nil
		},
		weak: func(obj any) WeakRef {
			wp := weak.Make(obj.(*T))
			return WeakRef{
				Key: wp,
				Value: func() any {
					if v := wp.Value(); v != nil {
						return v
					}
					return nil
				},
			}
		},
	}
	if fns.New != nil {
		c.New = func() any { return fns.New() }
	}
	if fns.Patch != nil {
		c.Patch = func(cc Constructor, rec *object.StateRecord, obj any) error {
			typed, ok := obj.(*T)
			if !ok {
				return fmt.Errorf("codec %s: cannot patch %T", tag, obj)
			}
			return fns.Patch(cc, rec, typed)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byTag[tag]; dup {
		return fmt.Errorf("register codec %s: type tag already registered", tag)
	}
	if prev, dup := r.byType[c.GoType]; dup {
		return fmt.Errorf("register codec %s: %s already registered as %s", tag, c.GoType, prev.Type)
	}
	r.byTag[tag] = c
	r.byType[c.GoType] = c
	return nil
}

// MustRegister is Register that panics on error, for init-time catalogs.
func MustRegister[T any](r *Registry, tag object.TypeTag, fns Funcs[T]) {
	if err := Register(r, tag, fns); err != nil {
		panic(err)
	}
}

// Lookup returns the codec registered under tag.
func (r *Registry) Lookup(tag object.TypeTag) (*Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byTag[tag]
	return c, ok
}

// ForObject returns the codec for obj's dynamic type.
func (r *Registry) ForObject(obj any) (*Codec, bool) {
	if obj == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[reflect.TypeOf(obj)]
	return c, ok
}

// Types returns every registered tag in ascending order.
func (r *Registry) Types() []object.TypeTag {
	r.mu.RLock()
	out := make([]object.TypeTag, 0, len(r.byTag))
	for tag := range r.byTag {
		out = append(out, tag)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
