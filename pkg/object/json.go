package object

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// jsonValue is the wire shape of a Value: exactly one member is present.
// Floats travel as strings so NaN and infinities survive encoding/json.
// Strings that are not valid UTF-8 travel Go-quoted in "qstring", since
// encoding/json would replace their invalid bytes.
type jsonValue struct {
	Null   *bool     `json:"null,omitempty"`
	Bool   *bool     `json:"bool,omitempty"`
	Int    *int64    `json:"int,omitempty"`
	Float  *string   `json:"float,omitempty"`
	String *string   `json:"string,omitempty"`
	Quoted *string   `json:"qstring,omitempty"`
	Ref    *ObjectID `json:"ref,omitempty"`
	Blob   *Hash     `json:"blob,omitempty"`
	List   *[]Value  `json:"list,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var jv jsonValue
	switch v.Kind {
	case KindNull:
		t := true
		jv.Null = &t
	case KindBool:
		b := v.Bool
		jv.Bool = &b
	case KindInt:
		i := v.Int
		jv.Int = &i
	case KindFloat:
		f := formatFloat(v.Float)
		jv.Float = &f
	case KindString:
		s := v.Str
		if utf8.ValidString(s) {
			jv.String = &s
		} else {
			q := strconv.Quote(s)
			jv.Quoted = &q
		}
	case KindRef:
		id := v.Ref
		jv.Ref = &id
	case KindBlob:
		h := v.Blob
		jv.Blob = &h
	case KindList:
		items := v.List
		if items == nil {
			items = []Value{}
		}
		jv.List = &items
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %d", uint8(v.Kind))
	}
	return json.Marshal(jv)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}

	var out Value
	set := 0
	if jv.Null != nil {
		out = NullValue()
		set++
	}
	if jv.Bool != nil {
		out = BoolValue(*jv.Bool)
		set++
	}
	if jv.Int != nil {
		out = IntValue(*jv.Int)
		set++
	}
	if jv.Float != nil {
		f, err := strconv.ParseFloat(*jv.Float, 64)
		if err != nil {
			return fmt.Errorf("unmarshal value: invalid float %q", *jv.Float)
		}
		out = FloatValue(f)
		set++
	}
	if jv.String != nil {
		out = StringValue(*jv.String)
		set++
	}
	if jv.Quoted != nil {
		str, err := strconv.Unquote(*jv.Quoted)
		if err != nil {
			return fmt.Errorf("unmarshal value: invalid quoted string %q", *jv.Quoted)
		}
		out = StringValue(str)
		set++
	}
	if jv.Ref != nil {
		out = RefValue(*jv.Ref)
		set++
	}
	if jv.Blob != nil {
		out = BlobValue(*jv.Blob)
		set++
	}
	if jv.List != nil {
		out = ListValue(*jv.List...)
		set++
	}
	if set != 1 {
		return fmt.Errorf("unmarshal value: want exactly one member, got %d in %s", set, data)
	}
	*v = out
	return nil
}
