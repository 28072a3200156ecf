package object

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// StateRecord
// ---------------------------------------------------------------------------

// MarshalState serializes a StateRecord to a deterministic text format:
//
//	id 12
//	type scene.Actor
//
//	visible b:true
//	opacity f:0.5
//	title s:"main view"
//	mapper r:7
//	points h:<hash>
//	background [ f:0.1 f:0.2 f:0.3 ]
//	input n
//
// Properties keep their record order. Strings are Go-quoted so the encoding
// never contains a raw newline inside a value.
func MarshalState(r *StateRecord) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id %d\n", uint64(r.ID))
	fmt.Fprintf(&buf, "type %s\n", r.Type)
	buf.WriteByte('\n')
	for _, p := range r.Properties {
		buf.WriteString(p.Name)
		buf.WriteByte(' ')
		writeValue(&buf, p.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNull:
		buf.WriteString("n")
	case KindBool:
		buf.WriteString("b:")
		buf.WriteString(strconv.FormatBool(v.Bool))
	case KindInt:
		buf.WriteString("i:")
		buf.WriteString(strconv.FormatInt(v.Int, 10))
	case KindFloat:
		buf.WriteString("f:")
		buf.WriteString(formatFloat(v.Float))
	case KindString:
		buf.WriteString("s:")
		buf.WriteString(strconv.Quote(v.Str))
	case KindRef:
		buf.WriteString("r:")
		buf.WriteString(strconv.FormatUint(uint64(v.Ref), 10))
	case KindBlob:
		buf.WriteString("h:")
		buf.WriteString(string(v.Blob))
	case KindList:
		buf.WriteByte('[')
		for _, item := range v.List {
			buf.WriteByte(' ')
			writeValue(buf, item)
		}
		buf.WriteString(" ]")
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// UnmarshalState parses a StateRecord from its serialized form.
func UnmarshalState(data []byte) (*StateRecord, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal state: missing header/body separator")
	}
	header := string(data[:idx])
	body := string(data[idx+2:])

	r := &StateRecord{}
	var sawID, sawType bool
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal state: malformed header line %q", line)
		}
		switch key {
		case "id":
			id, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal state: invalid id %q: %w", val, err)
			}
			r.ID = ObjectID(id)
			sawID = true
		case "type":
			r.Type = TypeTag(val)
			sawType = true
		default:
			return nil, fmt.Errorf("unmarshal state: unknown header key %q", key)
		}
	}
	if !sawID || !sawType {
		return nil, fmt.Errorf("unmarshal state: header requires id and type")
	}

	if strings.TrimSpace(body) != "" {
		for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
			name, rest, ok := strings.Cut(line, " ")
			if !ok || name == "" {
				return nil, fmt.Errorf("unmarshal state %d: malformed property line %q", r.ID, line)
			}
			v, tail, err := parseValue(rest)
			if err != nil {
				return nil, fmt.Errorf("unmarshal state %d: property %q: %w", r.ID, name, err)
			}
			if strings.TrimSpace(tail) != "" {
				return nil, fmt.Errorf("unmarshal state %d: property %q: trailing data %q", r.ID, name, tail)
			}
			r.Properties = append(r.Properties, Property{Name: name, Value: v})
		}
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return r, nil
}

// parseValue decodes one value token (or bracketed list) from the front of
// s and returns the unconsumed remainder.
func parseValue(s string) (Value, string, error) {
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return Value{}, "", fmt.Errorf("missing value")
	}

	if s[0] == '[' {
		rest := s[1:]
		items := []Value{}
		for {
			rest = strings.TrimLeft(rest, " ")
			if rest == "" {
				return Value{}, "", fmt.Errorf("unterminated list")
			}
			if rest[0] == ']' {
				return ListValue(items...), rest[1:], nil
			}
			item, tail, err := parseValue(rest)
			if err != nil {
				return Value{}, "", fmt.Errorf("list item %d: %w", len(items), err)
			}
			items = append(items, item)
			rest = tail
		}
	}

	if strings.HasPrefix(s, "s:") {
		quoted, err := strconv.QuotedPrefix(s[2:])
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid string: %w", err)
		}
		str, err := strconv.Unquote(quoted)
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid string: %w", err)
		}
		return StringValue(str), s[2+len(quoted):], nil
	}

	end := strings.IndexAny(s, " ]")
	if end < 0 {
		end = len(s)
	}
	token, rest := s[:end], s[end:]
	if token == "n" {
		return NullValue(), rest, nil
	}

	tag, raw, ok := strings.Cut(token, ":")
	if !ok {
		return Value{}, "", fmt.Errorf("malformed token %q", token)
	}
	switch tag {
	case "b":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid bool %q", raw)
		}
		return BoolValue(b), rest, nil
	case "i":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid int %q", raw)
		}
		return IntValue(i), rest, nil
	case "f":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid float %q", raw)
		}
		return FloatValue(f), rest, nil
	case "r":
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Value{}, "", fmt.Errorf("invalid ref %q", raw)
		}
		return RefValue(ObjectID(id)), rest, nil
	case "h":
		return BlobValue(Hash(raw)), rest, nil
	default:
		return Value{}, "", fmt.Errorf("unknown value tag %q", tag)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks that r can be encoded and decoded without loss: a non-zero
// id, a type tag and property names free of whitespace, unique names,
// well-formed blob hashes and no references to the reserved id.
func (r *StateRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("state record is nil")
	}
	if r.ID == NoObject {
		return fmt.Errorf("state record uses reserved id 0")
	}
	if !validToken(string(r.Type)) {
		return fmt.Errorf("state %d: invalid type tag %q", r.ID, r.Type)
	}
	seen := make(map[string]struct{}, len(r.Properties))
	for _, p := range r.Properties {
		if !validToken(p.Name) {
			return fmt.Errorf("state %d: invalid property name %q", r.ID, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("state %d: duplicate property %q", r.ID, p.Name)
		}
		seen[p.Name] = struct{}{}
		if err := validateValue(p.Value); err != nil {
			return fmt.Errorf("state %d: property %q: %w", r.ID, p.Name, err)
		}
	}
	return nil
}

func validateValue(v Value) error {
	switch v.Kind {
	case KindNull, KindBool, KindInt, KindFloat, KindString:
		return nil
	case KindRef:
		if v.Ref == NoObject {
			return fmt.Errorf("reference to reserved id 0")
		}
		return nil
	case KindBlob:
		if !v.Blob.Valid() {
			return fmt.Errorf("invalid blob hash %q", v.Blob)
		}
		return nil
	case KindList:
		for i, item := range v.List {
			if err := validateValue(item); err != nil {
				return fmt.Errorf("list item %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown value kind %d", uint8(v.Kind))
	}
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
