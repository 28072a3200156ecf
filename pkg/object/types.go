package object

import (
	"fmt"
	"math"
	"strconv"
)

// Hash is a 64-character hex-encoded content digest.
type Hash string

// ObjectID identifies one tracked object within a manager. IDs are never
// reused; NoObject is reserved.
type ObjectID uint64

// NoObject is the reserved zero id. Passed to a dependency walk it means
// "every root".
const NoObject ObjectID = 0

func (id ObjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// TypeTag names the codec that produced a state record, e.g. "scene.Actor".
type TypeTag string

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindRef
	KindBlob
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindRef:
		return "ref"
	case KindBlob:
		return "blob"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one property value: a scalar, a reference to another object, a
// reference to a blob, or a list of values. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Ref   ObjectID
	Blob  Hash
	List  []Value
}

func NullValue() Value { return Value{Kind: KindNull} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func RefValue(id ObjectID) Value { return Value{Kind: KindRef, Ref: id} }
func BlobValue(h Hash) Value { return Value{Kind: KindBlob, Blob: h} }
func ListValue(items ...Value) Value { return Value{Kind: KindList, List: items} }

// FloatsValue builds a list of float values.
func FloatsValue(fs ...float64) Value {
	items := make([]Value, len(fs))
	for i, f := range fs {
		items[i] = FloatValue(f)
	}
	return ListValue(items...)
}

// Floats returns the items of a list of floats. Int items are widened.
func (v Value) Floats() ([]float64, error) {
	if v.Kind != KindList {
		return nil, fmt.Errorf("value is %s, want list", v.Kind)
	}
	out := make([]float64, len(v.List))
	for i, item := range v.List {
		switch item.Kind {
		case KindFloat:
			out[i] = item.Float
		case KindInt:
			out[i] = float64(item.Int)
		default:
			return nil, fmt.Errorf("list item %d is %s, want float", i, item.Kind)
		}
	}
	return out, nil
}

// Equal reports whether v and o hold the same value. Floats compare by bit
// pattern so NaN round trips compare equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	case KindString:
		return v.Str == o.Str
	case KindRef:
		return v.Ref == o.Ref
	case KindBlob:
		return v.Blob == o.Blob
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) clone() Value {
	if v.Kind != KindList {
		return v
	}
	items := make([]Value, len(v.List))
	for i, item := range v.List {
		items[i] = item.clone()
	}
	v.List = items
	return v
}

// walk visits v and, for lists, every nested item.
func (v Value) walk(fn func(Value)) {
	fn(v)
	if v.Kind == KindList {
		for _, item := range v.List {
			item.walk(fn)
		}
	}
}

// Property is one named value of a state record.
type Property struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Properties is an ordered property list. Names are unique.
type Properties []Property

// Get returns the value stored under name.
func (ps Properties) Get(name string) (Value, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value stored under name or appends a new property.
func (ps *Properties) Set(name string, v Value) {
	for i := range *ps {
		if (*ps)[i].Name == name {
			(*ps)[i].Value = v
			return
		}
	}
	*ps = append(*ps, Property{Name: name, Value: v})
}

// StateRecord is the serialized snapshot of one object.
type StateRecord struct {
	ID         ObjectID   `json:"id"`
	Type       TypeTag    `json:"type"`
	Properties Properties `json:"properties"`
}

// Get returns the value stored under name.
func (r *StateRecord) Get(name string) (Value, bool) {
	return r.Properties.Get(name)
}

// Value returns the value stored under name or an error naming the record.
func (r *StateRecord) Value(name string, kind Kind) (Value, error) {
	v, ok := r.Properties.Get(name)
	if !ok {
		return Value{}, fmt.Errorf("state %d (%s): missing property %q", r.ID, r.Type, name)
	}
	if v.Kind != kind && !(kind == KindRef && v.Kind == KindNull) {
		return Value{}, fmt.Errorf("state %d (%s): property %q is %s, want %s", r.ID, r.Type, name, v.Kind, kind)
	}
	return v, nil
}

// References returns the object ids referenced by r, each once, in
// property order.
func (r *StateRecord) References() []ObjectID {
	var out []ObjectID
	seen := make(map[ObjectID]struct{})
	for _, p := range r.Properties {
		p.Value.walk(func(v Value) {
			if v.Kind != KindRef || v.Ref == NoObject {
				return
			}
			if _, ok := seen[v.Ref]; ok {
				return
			}
			seen[v.Ref] = struct{}{}
			out = append(out, v.Ref)
		})
	}
	return out
}

// BlobHashes returns the blob hashes referenced by r, each once, in
// property order.
func (r *StateRecord) BlobHashes() []Hash {
	var out []Hash
	seen := make(map[Hash]struct{})
	for _, p := range r.Properties {
		p.Value.walk(func(v Value) {
			if v.Kind != KindBlob {
				return
			}
			if _, ok := seen[v.Blob]; ok {
				return
			}
			seen[v.Blob] = struct{}{}
			out = append(out, v.Blob)
		})
	}
	return out
}

// Clone returns a deep copy of r.
func (r *StateRecord) Clone() *StateRecord {
	if r == nil {
		return nil
	}
	out := &StateRecord{ID: r.ID, Type: r.Type}
	if r.Properties != nil {
		out.Properties = make(Properties, len(r.Properties))
		for i, p := range r.Properties {
			out.Properties[i] = Property{Name: p.Name, Value: p.Value.clone()}
		}
	}
	return out
}

// Equal reports whether r and o describe the same state.
func (r *StateRecord) Equal(o *StateRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.Type != o.Type || len(r.Properties) != len(o.Properties) {
		return false
	}
	for i := range r.Properties {
		if r.Properties[i].Name != o.Properties[i].Name {
			return false
		}
		if !r.Properties[i].Value.Equal(o.Properties[i].Value) {
			return false
		}
	}
	return true
}

// Fingerprint hashes the canonical encoding of r. Equal records share a
// fingerprint.
func (r *StateRecord) Fingerprint() Hash {
	return HashObject("state", MarshalState(r))
}
