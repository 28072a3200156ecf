package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/graphstate/pkg/object"
)

// PackEntry is one decoded pack entry.
type PackEntry struct {
	Type PackEntryType
	Size uint64
	Data []byte
}

// Pack is the decoded content of a full pack stream.
type Pack struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum object.Hash
	// Signature is the content of the signature trailer, if present.
	Signature string
}

// ReadPack parses a full pack byte slice, verifies the trailer checksum and
// returns the decoded entries.
func ReadPack(data []byte) (*Pack, error) {
	if len(data) < packHeaderSize+sha256.Size {
		return nil, fmt.Errorf("pack too short: %d", len(data))
	}

	header, err := UnmarshalPackHeader(data[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumEntries)
	for i := uint32(0); i < header.NumEntries; i++ {
		entryType, size, n, err := decodePackEntryHeader(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n
		if offset >= len(data) {
			return nil, fmt.Errorf("entry %d: missing compressed payload", i)
		}

		sub := bytes.NewReader(data[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("entry %d: zlib reader: %w", i, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("entry %d: decompress: %w", i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("entry %d: close zlib stream: %w", i, err)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("entry %d: size mismatch header=%d decoded=%d", i, size, len(raw))
		}

		offset += len(data[offset:]) - sub.Len()
		entries = append(entries, PackEntry{
			Type: entryType,
			Size: size,
			Data: raw,
		})
	}

	if len(data)-offset < sha256.Size {
		return nil, fmt.Errorf("pack trailer checksum truncated")
	}
	trailer := data[offset : offset+sha256.Size]
	sum := sha256.Sum256(data[:offset])
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("pack checksum mismatch")
	}

	pack := &Pack{
		Header:   *header,
		Entries:  entries,
		Checksum: object.Hash(hex.EncodeToString(trailer)),
	}
	if rest := data[offset+sha256.Size:]; len(rest) > 0 {
		sig, err := ReadPackSignatureTrailer(rest)
		if err != nil {
			return nil, err
		}
		pack.Signature = sig
	}
	return pack, nil
}

// Bundle decodes the entries of p.
func (p *Pack) Bundle() (*Bundle, error) {
	if len(p.Entries) == 0 || p.Entries[0].Type != PackManifest {
		return nil, fmt.Errorf("decode pack: first entry is not a manifest")
	}
	m, err := UnmarshalManifest(p.Entries[0].Data)
	if err != nil {
		return nil, fmt.Errorf("decode pack: %w", err)
	}

	b := &Bundle{Manifest: *m}
	for i, e := range p.Entries[1:] {
		switch e.Type {
		case PackState:
			rec, err := object.UnmarshalState(e.Data)
			if err != nil {
				return nil, fmt.Errorf("decode pack entry %d: %w", i+1, err)
			}
			b.States = append(b.States, rec)
		case PackBlob:
			if len(e.Data) < sha256.Size {
				return nil, fmt.Errorf("decode pack entry %d: blob entry truncated", i+1)
			}
			b.Blobs = append(b.Blobs, Blob{
				Hash: object.Hash(hex.EncodeToString(e.Data[:sha256.Size])),
				Data: e.Data[sha256.Size:],
			})
		default:
			return nil, fmt.Errorf("decode pack entry %d: unexpected %s entry", i+1, e.Type)
		}
	}
	return b, nil
}

// DecodePack reads a pack stream and decodes its bundle.
func DecodePack(data []byte) (*Bundle, *Pack, error) {
	p, err := ReadPack(data)
	if err != nil {
		return nil, nil, err
	}
	b, err := p.Bundle()
	if err != nil {
		return nil, nil, err
	}
	return b, p, nil
}
