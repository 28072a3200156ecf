package bundle

import (
	"encoding/binary"
	"fmt"
)

const (
	packHeaderSize       = 12
	supportedPackVersion = 1
)

var packMagic = [4]byte{'G', 'S', 'B', 'N'}

// PackEntryType identifies the payload of one pack entry.
type PackEntryType uint8

const (
	PackManifest PackEntryType = 1
	PackState    PackEntryType = 2
	PackBlob     PackEntryType = 3
)

func (t PackEntryType) String() string {
	switch t {
	case PackManifest:
		return "manifest"
	case PackState:
		return "state"
	case PackBlob:
		return "blob"
	default:
		return fmt.Sprintf("entry(%d)", uint8(t))
	}
}

// PackHeader is the fixed-size pack header.
//
// Bytes:
//   - 0..3:  "GSBN"
//   - 4..7:  version (big-endian)
//   - 8..11: number of entries (big-endian)
type PackHeader struct {
	Version    uint32
	NumEntries uint32
}

// Marshal serializes the header to its 12-byte form.
func (h PackHeader) Marshal() []byte {
	buf := make([]byte, packHeaderSize)
	copy(buf[:4], packMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.NumEntries)
	return buf
}

// UnmarshalPackHeader parses a pack header.
func UnmarshalPackHeader(data []byte) (*PackHeader, error) {
	if len(data) < packHeaderSize {
		return nil, fmt.Errorf("pack header too short: got %d bytes", len(data))
	}
	if string(data[:4]) != string(packMagic[:]) {
		return nil, fmt.Errorf("invalid pack magic %q", data[:4])
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != supportedPackVersion {
		return nil, fmt.Errorf("unsupported pack version %d", version)
	}

	return &PackHeader{
		Version:    version,
		NumEntries: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// encodePackEntryHeader encodes the variable-length entry header: three type
// bits and the low four size bits in the first byte, then seven size bits
// per continuation byte.
func encodePackEntryHeader(entryType PackEntryType, size uint64) []byte {
	b := byte((entryType & 0x7) << 4)
	b |= byte(size & 0x0f)
	size >>= 4

	out := make([]byte, 0, 10)
	if size > 0 {
		b |= 0x80
	}
	out = append(out, b)

	for size > 0 {
		next := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			next |= 0x80
		}
		out = append(out, next)
	}

	return out
}

// decodePackEntryHeader decodes an entry header, returning the entry type,
// the uncompressed payload size and the bytes consumed.
func decodePackEntryHeader(data []byte) (PackEntryType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	entryType := PackEntryType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		if shift > 63 {
			return 0, 0, 0, fmt.Errorf("entry header size overflows")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return entryType, size, consumed, nil
}
