package bundle

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/odvcencio/graphstate/pkg/object"
)

// jsonDocument is the JSON bundle layout. Blob payloads are base64 strings.
type jsonDocument struct {
	Manifest Manifest              `json:"manifest"`
	States   []*object.StateRecord `json:"states"`
	Blobs    []Blob                `json:"blobs"`
}

// EncodeJSON writes b as an indented JSON document.
func EncodeJSON(w io.Writer, b *Bundle) error {
	b.Normalize()
	doc := jsonDocument{Manifest: b.Manifest, States: b.States, Blobs: b.Blobs}
	if doc.States == nil {
		doc.States = []*object.StateRecord{}
	}
	if doc.Blobs == nil {
		doc.Blobs = []Blob{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode json bundle: %w", err)
	}
	return nil
}

// DecodeJSON reads a JSON document written by EncodeJSON.
func DecodeJSON(r io.Reader) (*Bundle, error) {
	var doc jsonDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json bundle: %w", err)
	}
	if doc.Manifest.Version == 0 {
		return nil, fmt.Errorf("decode json bundle: missing manifest version")
	}
	for i, rec := range doc.States {
		if rec == nil {
			return nil, fmt.Errorf("decode json bundle: state %d is null", i)
		}
	}
	return &Bundle{Manifest: doc.Manifest, States: doc.States, Blobs: doc.Blobs}, nil
}
