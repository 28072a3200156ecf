package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names the digest function used for content addressing.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = SHA256

// ParseAlgorithm normalizes an algorithm name. The empty string selects
// DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultAlgorithm, nil
	case "sha256", "sha-256":
		return SHA256, nil
	case "blake2b", "blake2b-256":
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// Hasher computes content hashes with a single algorithm. Both supported
// algorithms produce 32-byte digests, so every Hash is 64 hex characters.
type Hasher struct {
	alg     Algorithm
	newHash func() hash.Hash
}

// NewHasher returns a Hasher for alg.
func NewHasher(alg Algorithm) (*Hasher, error) {
	alg, err := ParseAlgorithm(string(alg))
	if err != nil {
		return nil, err
	}
	h := &Hasher{alg: alg}
	switch alg {
	case SHA256:
		h.newHash = sha256.New
	case BLAKE2b:
		h.newHash = func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes.
			d, _ := blake2b.New256(nil)
			return d
		}
	}
	return h, nil
}

// DefaultHasher returns a SHA-256 Hasher.
func DefaultHasher() *Hasher {
	return &Hasher{alg: SHA256, newHash: sha256.New}
}

// Algorithm reports the algorithm h was built for.
func (h *Hasher) Algorithm() Algorithm {
	return h.alg
}

// Sum hashes data.
func (h *Hasher) Sum(data []byte) Hash {
	d := h.newHash()
	d.Write(data)
	return Hash(hex.EncodeToString(d.Sum(nil)))
}

// Verify reports whether data hashes to want, returning the actual hash.
func (h *Hasher) Verify(want Hash, data []byte) (Hash, bool) {
	got := h.Sum(data)
	return got, got == want
}

// HashBytes computes the raw SHA-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-256 of the envelope "kind len\0content".
// Fingerprints of state records use it so they can never collide with a
// blob hash of the same bytes.
func HashObject(kind string, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", kind, len(data))
	h := sha256.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// Valid reports whether h is a 64-character lowercase hex digest.
func (h Hash) Valid() bool {
	if len(h) != 64 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short returns the first 12 characters of h for display.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HashToBytes decodes a hex Hash into its 32 raw bytes.
func HashToBytes(h Hash) ([]byte, error) {
	if len(h) != 64 {
		return nil, fmt.Errorf("hash length must be 64 hex chars, got %d", len(h))
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", h, err)
	}
	return raw, nil
}
