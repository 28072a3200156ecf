package bundle

import (
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdSuffix marks bundle files whose whole stream is zstd-compressed.
const zstdSuffix = ".zst"

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// isZstdPath reports whether path names a zstd-wrapped bundle.
func isZstdPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), zstdSuffix)
}

// readMaybeZstd reads all of r, undoing zstd compression when compressed is
// set.
func readMaybeZstd(r io.Reader, compressed bool) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return data, nil
	}
	return decompressZstd(data)
}
