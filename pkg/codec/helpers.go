package codec

import (
	"fmt"

	"github.com/odvcencio/graphstate/pkg/object"
)

// RefOf returns a reference value for obj, or a null value when obj is nil.
func RefOf[T any](x Extractor, obj *T) (object.Value, error) {
	if obj == nil {
		return object.NullValue(), nil
	}
	id, err := x.Ref(obj)
	if err != nil {
		return object.Value{}, err
	}
	return object.RefValue(id), nil
}

// RefsOf returns a list of references, one per element of objs. Nil
// elements become null values.
func RefsOf[T any](x Extractor, objs []*T) (object.Value, error) {
	items := make([]object.Value, 0, len(objs))
	for i, obj := range objs {
		v, err := RefOf(x, obj)
		if err != nil {
			return object.Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, v)
	}
	return object.ListValue(items...), nil
}

// Resolve looks up id and asserts the object's type. The reserved id yields
// nil.
func Resolve[T any](c Constructor, id object.ObjectID) (*T, error) {
	if id == object.NoObject {
		return nil, nil
	}
	obj, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	typed, ok := obj.(*T)
	if !ok {
		var zero *T
		return nil, fmt.Errorf("object %d is %T, want %T", id, obj, zero)
	}
	return typed, nil
}

// ResolveProperty resolves the reference stored under name in rec. A null
// value yields nil.
func ResolveProperty[T any](c Constructor, rec *object.StateRecord, name string) (*T, error) {
	v, err := rec.Value(name, object.KindRef)
	if err != nil {
		return nil, err
	}
	if v.Kind == object.KindNull {
		return nil, nil
	}
	obj, err := Resolve[T](c, v.Ref)
	if err != nil {
		return nil, fmt.Errorf("state %d: property %q: %w", rec.ID, name, err)
	}
	return obj, nil
}

// ResolveList resolves a list of references stored under name in rec.
func ResolveList[T any](c Constructor, rec *object.StateRecord, name string) ([]*T, error) {
	v, err := rec.Value(name, object.KindList)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(v.List))
	for i, item := range v.List {
		switch item.Kind {
		case object.KindNull:
			out = append(out, nil)
		case object.KindRef:
			obj, err := Resolve[T](c, item.Ref)
			if err != nil {
				return nil, fmt.Errorf("state %d: property %q item %d: %w", rec.ID, name, i, err)
			}
			out = append(out, obj)
		default:
			return nil, fmt.Errorf("state %d: property %q item %d is %s, want ref", rec.ID, name, i, item.Kind)
		}
	}
	return out, nil
}

// BlobProperty returns the payload of the blob stored under name in rec.
func BlobProperty(c Constructor, rec *object.StateRecord, name string) ([]byte, error) {
	v, err := rec.Value(name, object.KindBlob)
	if err != nil {
		return nil, err
	}
	data, err := c.Blob(v.Blob)
	if err != nil {
		return nil, fmt.Errorf("state %d: property %q: %w", rec.ID, name, err)
	}
	return data, nil
}
