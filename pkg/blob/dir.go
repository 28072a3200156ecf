package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/graphstate/pkg/object"
)

// DirStore keeps blobs as loose files with a 2-character fan-out directory
// layout: objects/ab/cdef0123... Files hold the raw payload; the name is the
// content hash.
type DirStore struct {
	root   string
	hasher *object.Hasher
}

// NewDirStore creates a DirStore rooted at the given directory. The objects/
// subdirectory is created lazily on first write. A nil h selects SHA-256.
func NewDirStore(root string, h *object.Hasher) *DirStore {
	if h == nil {
		h = object.DefaultHasher()
	}
	return &DirStore{root: root, hasher: h}
}

// objectPath returns the filesystem path for a given hash.
func (s *DirStore) objectPath(h object.Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains a blob with the given hash.
func (s *DirStore) Has(h object.Hash) bool {
	if !h.Valid() {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores data and returns its content hash. Writes are atomic: data is
// written to a temp file and then renamed into place.
func (s *DirStore) Write(data []byte) (object.Hash, error) {
	h := s.hasher.Sum(data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blob write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("blob write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write close: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blob write rename: %w", err)
	}
	return h, nil
}

// Read retrieves a blob by hash and verifies its content.
func (s *DirStore) Read(h object.Hash) ([]byte, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("blob read: invalid hash %q", h)
	}
	data, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob read %s: %w", h, ErrNotFound)
		}
		return nil, fmt.Errorf("blob read %s: %w", h, err)
	}
	if actual, ok := s.hasher.Verify(h, data); !ok {
		return nil, &IntegrityError{Hash: h, Actual: actual}
	}
	return data, nil
}

// List returns every stored hash in ascending order. Temp files left by an
// interrupted write are skipped.
func (s *DirStore) List() ([]object.Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanout, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("blob list: %w", err)
	}

	var out []object.Hash
	for _, d := range fanout {
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("blob list %s: %w", d.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			h := object.Hash(d.Name() + e.Name())
			if h.Valid() {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
