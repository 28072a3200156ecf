// Package blob stores binary payloads by content hash.
package blob

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/graphstate/pkg/object"
)

var (
	// ErrNotFound is returned when no blob is stored under a hash.
	ErrNotFound = errors.New("blob not found")
	// ErrIntegrity is matched by IntegrityError.
	ErrIntegrity = errors.New("blob integrity check failed")
)

// IntegrityError reports bytes whose digest does not match the hash they
// were registered under.
type IntegrityError struct {
	Hash   object.Hash
	Actual object.Hash
}

func (e *IntegrityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: registered as %s, content hashes to %s", ErrIntegrity, e.Hash, e.Actual)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Store is an in-memory content-addressed blob store. Identical payloads are
// stored once. Stored bytes are never handed out by reference, so a blob is
// immutable once hashed. Store is safe for concurrent use.
type Store struct {
	hasher *object.Hasher

	mu    sync.RWMutex
	blobs map[object.Hash][]byte
	size  int64
}

// NewStore creates an empty Store hashing with h. A nil h selects SHA-256.
func NewStore(h *object.Hasher) *Store {
	if h == nil {
		h = object.DefaultHasher()
	}
	return &Store{
		hasher: h,
		blobs:  make(map[object.Hash][]byte),
	}
}

// Hasher returns the hasher the store addresses content with.
func (s *Store) Hasher() *object.Hasher {
	return s.hasher
}

// Put stores data and returns its hash. Storing bytes that are already
// present is a no-op.
func (s *Store) Put(data []byte) object.Hash {
	h, _ := s.Add(data)
	return h
}

// Add is Put that also reports whether the payload was new.
func (s *Store) Add(data []byte) (object.Hash, bool) {
	h := s.hasher.Sum(data)
	return h, s.insert(h, data)
}

// Register stores data under a caller-supplied hash, typically one read from
// a bundle. The hash is recomputed and a mismatch fails with an
// *IntegrityError.
func (s *Store) Register(h object.Hash, data []byte) error {
	actual, ok := s.hasher.Verify(h, data)
	if !ok {
		return &IntegrityError{Hash: h, Actual: actual}
	}
	s.insert(h, data)
	return nil
}

// insert copies data into the index under h. The presence check and the
// index update happen under one lock.
func (s *Store) insert(h object.Hash, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[h]; ok {
		return false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[h] = buf
	s.size += int64(len(buf))
	return true
}

// Get returns a copy of the blob stored under h.
func (s *Store) Get(h object.Hash) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[h]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", h, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Has reports whether a blob is stored under h.
func (s *Store) Has(h object.Hash) bool {
	s.mu.RLock()
	_, ok := s.blobs[h]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of distinct blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Size returns the total payload bytes held.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Hashes returns every stored hash in ascending order.
func (s *Store) Hashes() []object.Hash {
	s.mu.RLock()
	out := make([]object.Hash, 0, len(s.blobs))
	for h := range s.blobs {
		out = append(out, h)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Delete removes the blob stored under h, reporting whether it existed.
func (s *Store) Delete(h object.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[h]
	if !ok {
		return false
	}
	s.size -= int64(len(data))
	delete(s.blobs, h)
	return true
}

// Retain drops every blob not in keep and returns how many were dropped.
func (s *Store) Retain(keep map[object.Hash]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for h, data := range s.blobs {
		if _, ok := keep[h]; ok {
			continue
		}
		s.size -= int64(len(data))
		delete(s.blobs, h)
		dropped++
	}
	return dropped
}

// Reset drops every blob.
func (s *Store) Reset() {
	s.mu.Lock()
	s.blobs = make(map[object.Hash][]byte)
	s.size = 0
	s.mu.Unlock()
}
