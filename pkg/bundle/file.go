package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a bundle encoding.
type Format string

const (
	FormatPack   Format = "pack"
	FormatJSON   Format = "json"
	FormatDir    Format = "dir"
	FormatSQLite Format = "sqlite"
)

// ParseFormat normalizes a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pack", "gsb":
		return FormatPack, nil
	case "json":
		return FormatJSON, nil
	case "dir", "directory":
		return FormatDir, nil
	case "sqlite", "sqlite3", "db":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("unknown bundle format %q", name)
	}
}

var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat picks the format for path. Existing directories are
// directory bundles; otherwise the extension decides (a trailing .zst is
// ignored), and for unknown extensions an existing file's leading bytes.
// Paths with no recognizable extension are directory bundles.
func DetectFormat(path string) Format {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return FormatDir
	}
	base := strings.TrimSuffix(strings.ToLower(path), zstdSuffix)
	switch filepath.Ext(base) {
	case ".gsb":
		return FormatPack
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		head := make([]byte, len(sqliteMagic))
		n, _ := io.ReadFull(f, head)
		head = head[:n]
		switch {
		case bytes.HasPrefix(head, packMagic[:]):
			return FormatPack
		case bytes.Equal(head, sqliteMagic):
			return FormatSQLite
		case bytes.HasPrefix(bytes.TrimSpace(head), []byte("{")):
			return FormatJSON
		}
	}
	return FormatDir
}

// Options select how Create encodes a bundle.
type Options struct {
	// Format overrides detection from the path.
	Format Format
	// Level is the pack zlib level; zero selects the default.
	Level int
	// Signer signs pack bundles.
	Signer Signer
}

// Create returns a Writer for path.
func Create(path string, opts Options) (Writer, error) {
	format := opts.Format
	if format == "" {
		format = DetectFormat(path)
	}
	if opts.Signer != nil && format != FormatPack {
		return nil, fmt.Errorf("create bundle %s: only pack bundles can be signed", path)
	}
	switch format {
	case FormatPack:
		return &PackFile{Path: path, Level: opts.Level, Signer: opts.Signer}, nil
	case FormatJSON:
		return &JSONFile{Path: path}, nil
	case FormatDir:
		return NewDir(path), nil
	case FormatSQLite:
		return NewSQLite(path), nil
	default:
		return nil, fmt.Errorf("create bundle %s: unknown format %q", path, format)
	}
}

// Open returns a Reader for the bundle at path.
func Open(path string) (Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	switch DetectFormat(path) {
	case FormatPack:
		return &PackFile{Path: path}, nil
	case FormatJSON:
		return &JSONFile{Path: path}, nil
	case FormatSQLite:
		return NewSQLite(path), nil
	default:
		return NewDir(path), nil
	}
}

// Load opens path and reads its bundle.
func Load(ctx context.Context, path string) (*Bundle, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	return r.ReadBundle(ctx)
}

// PackFile is a pack bundle stored in a single file. A path ending in .zst
// wraps the whole pack stream in zstd.
type PackFile struct {
	Path   string
	Level  int
	Signer Signer
}

// NewPackFile returns the pack bundle at path.
func NewPackFile(path string) *PackFile {
	return &PackFile{Path: path}
}

// WriteBundle encodes b and atomically replaces the file.
func (p *PackFile) WriteBundle(ctx context.Context, b *Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := EncodePack(&buf, b, PackOptions{Level: p.Level, Signer: p.Signer}); err != nil {
		return fmt.Errorf("write pack bundle %s: %w", p.Path, err)
	}
	data := buf.Bytes()
	if isZstdPath(p.Path) {
		var err error
		if data, err = compressZstd(data); err != nil {
			return fmt.Errorf("write pack bundle %s: zstd: %w", p.Path, err)
		}
	}
	if err := writeFileAtomic(p.Path, data); err != nil {
		return fmt.Errorf("write pack bundle %s: %w", p.Path, err)
	}
	return nil
}

// ReadBundle decodes the file.
func (p *PackFile) ReadBundle(ctx context.Context) (*Bundle, error) {
	b, _, err := p.ReadPack(ctx)
	return b, err
}

// ReadPack decodes the file and also returns the raw pack, which carries
// the checksum and signature.
func (p *PackFile) ReadPack(ctx context.Context) (*Bundle, *Pack, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read pack bundle: %w", err)
	}
	defer f.Close()
	data, err := readMaybeZstd(f, isZstdPath(p.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("read pack bundle %s: %w", p.Path, err)
	}
	b, pack, err := DecodePack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("read pack bundle %s: %w", p.Path, err)
	}
	return b, pack, nil
}

// JSONFile is a JSON bundle stored in a single file. A path ending in .zst
// is zstd-compressed.
type JSONFile struct {
	Path string
}

// NewJSONFile returns the JSON bundle at path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

// WriteBundle encodes b and atomically replaces the file.
func (j *JSONFile) WriteBundle(ctx context.Context, b *Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, b); err != nil {
		return fmt.Errorf("write json bundle %s: %w", j.Path, err)
	}
	data := buf.Bytes()
	if isZstdPath(j.Path) {
		var err error
		if data, err = compressZstd(data); err != nil {
			return fmt.Errorf("write json bundle %s: zstd: %w", j.Path, err)
		}
	}
	if err := writeFileAtomic(j.Path, data); err != nil {
		return fmt.Errorf("write json bundle %s: %w", j.Path, err)
	}
	return nil
}

// ReadBundle decodes the file.
func (j *JSONFile) ReadBundle(ctx context.Context) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(j.Path)
	if err != nil {
		return nil, fmt.Errorf("read json bundle: %w", err)
	}
	defer f.Close()
	data, err := readMaybeZstd(f, isZstdPath(j.Path))
	if err != nil {
		return nil, fmt.Errorf("read json bundle %s: %w", j.Path, err)
	}
	b, err := DecodeJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read json bundle %s: %w", j.Path, err)
	}
	return b, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
