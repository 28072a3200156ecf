package object

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func sampleRecord() *StateRecord {
	blob := HashBytes([]byte("points"))
	return &StateRecord{
		ID:   12,
		Type: "scene.Actor",
		Properties: Properties{
			{Name: "visible", Value: BoolValue(true)},
			{Name: "count", Value: IntValue(-42)},
			{Name: "opacity", Value: FloatValue(0.5)},
			{Name: "title", Value: StringValue("main view \"quoted\" ]\nnext")},
			{Name: "mapper", Value: RefValue(7)},
			{Name: "points", Value: BlobValue(blob)},
			{Name: "background", Value: FloatsValue(0.1, 0.2, 0.3)},
			{Name: "children", Value: ListValue(RefValue(3), ListValue(RefValue(4), NullValue()), StringValue("a ] b"))},
			{Name: "input", Value: NullValue()},
			{Name: "empty", Value: ListValue()},
		},
	}
}

func TestMarshalUnmarshalState(t *testing.T) {
	orig := sampleRecord()
	data := MarshalState(orig)
	got, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("UnmarshalState: %v\n%s", err, data)
	}
	if !got.Equal(orig) {
		t.Errorf("State round-trip mismatch:\ngot  %s\nwant %s", MarshalState(got), data)
	}
}

func TestMarshalStateDeterminism(t *testing.T) {
	r := sampleRecord()
	d1 := MarshalState(r)
	d2 := MarshalState(r.Clone())
	if !bytes.Equal(d1, d2) {
		t.Error("State marshal not deterministic")
	}
	if r.Fingerprint() != r.Clone().Fingerprint() {
		t.Error("Fingerprint not deterministic")
	}
}

func TestMarshalStateHeader(t *testing.T) {
	data := string(MarshalState(&StateRecord{ID: 3, Type: "scene.Window"}))
	if !strings.HasPrefix(data, "id 3\ntype scene.Window\n\n") {
		t.Errorf("unexpected header: %q", data)
	}
}

func TestUnmarshalStateSpecialFloats(t *testing.T) {
	orig := &StateRecord{
		ID:   1,
		Type: "t",
		Properties: Properties{
			{Name: "nan", Value: FloatValue(math.NaN())},
			{Name: "pinf", Value: FloatValue(math.Inf(1))},
			{Name: "ninf", Value: FloatValue(math.Inf(-1))},
			{Name: "tiny", Value: FloatValue(math.SmallestNonzeroFloat64)},
		},
	}
	got, err := UnmarshalState(MarshalState(orig))
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("special floats did not round trip: %s", MarshalState(got))
	}
}

func TestUnmarshalStateErrors(t *testing.T) {
	cases := map[string]string{
		"no separator":   "id 1\ntype t\n",
		"missing type":   "id 1\n\n",
		"bad id":         "id x\ntype t\n\n",
		"zero id":        "id 0\ntype t\n\n",
		"unknown header": "id 1\ntype t\nfoo bar\n\n",
		"bad tag":        "id 1\ntype t\n\nx q:1\n",
		"unterminated":   "id 1\ntype t\n\nx [ i:1\n",
		"trailing":       "id 1\ntype t\n\nx i:1 i:2\n",
		"bad string":     "id 1\ntype t\n\nx s:\"abc\n",
		"duplicate":      "id 1\ntype t\n\nx i:1\nx i:2\n",
		"bad blob":       "id 1\ntype t\n\nx h:zz\n",
		"ref zero":       "id 1\ntype t\n\nx r:0\n",
		"no value":       "id 1\ntype t\n\nx\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalState([]byte(in)); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		})
	}
}

func TestStateReferencesAndBlobs(t *testing.T) {
	r := sampleRecord()
	refs := r.References()
	want := []ObjectID{7, 3, 4}
	if len(refs) != len(want) {
		t.Fatalf("References = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("References = %v, want %v", refs, want)
		}
	}

	r.Properties.Set("again", RefValue(7))
	if got := len(r.References()); got != 3 {
		t.Errorf("duplicate ref counted: %d", got)
	}

	blobs := r.BlobHashes()
	if len(blobs) != 1 || blobs[0] != HashBytes([]byte("points")) {
		t.Errorf("BlobHashes = %v", blobs)
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	c.Properties[7].Value.List[0] = RefValue(99)
	if r.Equal(c) {
		t.Fatal("clone shares list storage with original")
	}
	if refs := r.References(); refs[1] != 3 {
		t.Errorf("original mutated through clone: %v", refs)
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	orig := sampleRecord()
	orig.Properties.Set("nan", FloatValue(math.NaN()))
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var got StateRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("JSON round-trip mismatch:\n%s", data)
	}
}

func TestValueJSONKeepsInvalidUTF8(t *testing.T) {
	for _, str := range []string{"a\xffb", "plain", "\xc3"} {
		data, err := json.Marshal(StringValue(str))
		if err != nil {
			t.Fatalf("json.Marshal(%q): %v", str, err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("json.Unmarshal(%s): %v", data, err)
		}
		if !got.Equal(StringValue(str)) {
			t.Errorf("string %q came back as %q via %s", str, got.Str, data)
		}
	}
	data, _ := json.Marshal(StringValue("plain"))
	if string(data) != `{"string":"plain"}` {
		t.Errorf("valid string encoded as %s", data)
	}
}

func TestValueJSONRejectsAmbiguous(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"int":1,"bool":true}`), &v); err == nil {
		t.Error("expected error for two members")
	}
	if err := json.Unmarshal([]byte(`{}`), &v); err == nil {
		t.Error("expected error for no members")
	}
}

func TestValueFloats(t *testing.T) {
	fs, err := ListValue(FloatValue(1.5), IntValue(2)).Floats()
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if fs[0] != 1.5 || fs[1] != 2 {
		t.Errorf("Floats = %v", fs)
	}
	if _, err := StringValue("x").Floats(); err == nil {
		t.Error("expected error for non-list")
	}
}

func TestRecordValueKindCheck(t *testing.T) {
	r := sampleRecord()
	if _, err := r.Value("opacity", KindFloat); err != nil {
		t.Errorf("Value(opacity): %v", err)
	}
	if _, err := r.Value("opacity", KindInt); err == nil {
		t.Error("expected kind mismatch error")
	}
	if _, err := r.Value("input", KindRef); err != nil {
		t.Errorf("null should satisfy a ref lookup: %v", err)
	}
	if _, err := r.Value("missing", KindRef); err == nil {
		t.Error("expected missing property error")
	}
}
