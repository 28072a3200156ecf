package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/odvcencio/graphstate/pkg/object"
)

// MarshalManifest serializes m to a line-oriented text format:
//
//	version 1
//	session 6f1c...
//	hash sha256
//	root 1
//	external 9
//	object 1 scene.Window
//	object 2 scene.Interactor
func MarshalManifest(m *Manifest) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "version %d\n", m.Version)
	if m.Session != "" {
		fmt.Fprintf(&buf, "session %s\n", m.Session)
	}
	fmt.Fprintf(&buf, "hash %s\n", m.HashAlgorithm)
	for _, id := range m.Roots {
		fmt.Fprintf(&buf, "root %d\n", uint64(id))
	}
	for _, id := range m.External {
		fmt.Fprintf(&buf, "external %d\n", uint64(id))
	}
	for _, ie := range m.Index {
		fmt.Fprintf(&buf, "object %d %s\n", uint64(ie.ID), ie.Type)
	}
	return buf.Bytes()
}

// UnmarshalManifest parses the format produced by MarshalManifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		key, rest, _ := strings.Cut(line, " ")
		switch key {
		case "version":
			v, err := strconv.Atoi(rest)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: version: %w", lineNo, err)
			}
			m.Version = v
		case "session":
			m.Session = rest
		case "hash":
			alg, err := object.ParseAlgorithm(rest)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
			}
			m.HashAlgorithm = alg
		case "root", "external":
			id, err := parseID(rest)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %s: %w", lineNo, key, err)
			}
			if key == "root" {
				m.Roots = append(m.Roots, id)
			} else {
				m.External = append(m.External, id)
			}
		case "object":
			idStr, typ, ok := strings.Cut(rest, " ")
			if !ok || typ == "" {
				return nil, fmt.Errorf("manifest line %d: malformed object entry %q", lineNo, line)
			}
			id, err := parseID(idStr)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: object: %w", lineNo, err)
			}
			m.Index = append(m.Index, IndexEntry{ID: id, Type: object.TypeTag(typ)})
		default:
			return nil, fmt.Errorf("manifest line %d: unknown key %q", lineNo, key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.Version == 0 {
		return nil, fmt.Errorf("manifest: missing version")
	}
	return m, nil
}

func parseID(s string) (object.ObjectID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("id 0 is reserved")
	}
	return object.ObjectID(n), nil
}
