package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/graphstate/pkg/object"
)

func compressPackPayload(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackWriter writes pack streams with zlib-compressed entries. The trailer
// checksum is SHA-256 over all bytes preceding the trailer.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	level    int
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter initializes a writer for numEntries entries and writes the
// fixed pack header.
func NewPackWriter(out io.Writer, numEntries uint32, level int) (*PackWriter, error) {
	hasher := sha256.New()
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(out, hasher),
		level:    level,
		expected: numEntries,
	}

	header := PackHeader{
		Version:    supportedPackVersion,
		NumEntries: numEntries,
	}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// WriteEntry appends one entry to the pack stream.
func (p *PackWriter) WriteEntry(entryType PackEntryType, data []byte) error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return fmt.Errorf("pack entry count exceeded: expected %d", p.expected)
	}

	header := encodePackEntryHeader(entryType, uint64(len(data)))
	if _, err := p.hashedW.Write(header); err != nil {
		return fmt.Errorf("write pack entry header: %w", err)
	}

	compressed, err := compressPackPayload(data, p.level)
	if err != nil {
		return fmt.Errorf("compress pack entry: %w", err)
	}
	if _, err := p.hashedW.Write(compressed); err != nil {
		return fmt.Errorf("write compressed pack entry: %w", err)
	}

	p.written++
	return nil
}

// Finish validates the entry count, writes the trailing checksum and
// returns it as a hex digest. A non-nil signer signs the raw checksum and
// the signature is appended as a signature trailer.
func (p *PackWriter) Finish(signer Signer) (object.Hash, error) {
	if p.finished {
		return "", fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return "", fmt.Errorf("pack entry count mismatch: wrote %d, expected %d", p.written, p.expected)
	}

	sum := p.hasher.Sum(nil)
	var sigTrailer []byte
	if signer != nil {
		sig, err := signer(sum)
		if err != nil {
			return "", fmt.Errorf("sign pack: %w", err)
		}
		sigTrailer, err = MarshalPackSignatureTrailer(sig)
		if err != nil {
			return "", fmt.Errorf("marshal signature trailer: %w", err)
		}
	}

	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer checksum: %w", err)
	}
	if len(sigTrailer) > 0 {
		if _, err := p.out.Write(sigTrailer); err != nil {
			return "", fmt.Errorf("write signature trailer: %w", err)
		}
	}

	p.finished = true
	return object.Hash(hex.EncodeToString(sum)), nil
}

// PackOptions tune EncodePack.
type PackOptions struct {
	// Level is the zlib level; zero selects the default.
	Level int
	// Signer, when set, signs the pack checksum.
	Signer Signer
}

// EncodePack writes b as a pack stream: the manifest entry, then one state
// entry per record in id order, then one blob entry per blob in hash order.
// A blob entry holds the raw 32-byte hash followed by the payload.
func EncodePack(w io.Writer, b *Bundle, opts PackOptions) (object.Hash, error) {
	b.Normalize()
	level := opts.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	n := 1 + len(b.States) + len(b.Blobs)
	if uint64(n) > uint64(^uint32(0)) {
		return "", fmt.Errorf("encode pack: %d entries exceed the pack limit", n)
	}

	pw, err := NewPackWriter(w, uint32(n), level)
	if err != nil {
		return "", err
	}
	if err := pw.WriteEntry(PackManifest, MarshalManifest(&b.Manifest)); err != nil {
		return "", fmt.Errorf("encode pack manifest: %w", err)
	}
	for _, rec := range b.States {
		if err := pw.WriteEntry(PackState, object.MarshalState(rec)); err != nil {
			return "", fmt.Errorf("encode pack state %d: %w", rec.ID, err)
		}
	}
	for _, bl := range b.Blobs {
		raw, err := object.HashToBytes(bl.Hash)
		if err != nil {
			return "", fmt.Errorf("encode pack blob %s: %w", bl.Hash, err)
		}
		payload := make([]byte, 0, len(raw)+len(bl.Data))
		payload = append(payload, raw...)
		payload = append(payload, bl.Data...)
		if err := pw.WriteEntry(PackBlob, payload); err != nil {
			return "", fmt.Errorf("encode pack blob %s: %w", bl.Hash.Short(), err)
		}
	}
	return pw.Finish(opts.Signer)
}
