// Package config reads and writes graphstate.toml, the settings shared by the
// graphstate command: hash algorithm, default bundle format, pack compression
// level, log level and signing key.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/object"
)

// FileName is the config file looked up in the working directory.
const FileName = "graphstate.toml"

// Config holds the graphstate settings.
type Config struct {
	// Hash is the blob digest: sha256 or blake2b.
	Hash string `toml:"hash"`
	// Format is the bundle format used when a path does not imply one.
	Format string `toml:"format"`
	// Compression is the pack zlib level, -2 through 9. Zero selects the
	// default level, as in bundle.Options.
	Compression int `toml:"compression"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	Sign     Sign   `toml:"sign"`
}

// Sign configures pack signing.
type Sign struct {
	// Key is an SSH private key path. Empty picks the first default key in
	// ~/.ssh when signing is requested.
	Key string `toml:"key"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Hash:        string(object.DefaultAlgorithm),
		Format:      string(bundle.FormatPack),
		Compression: zlib.DefaultCompression,
		LogLevel:    "info",
	}
}

// Load reads the config at path. A missing file yields Default. Keys the
// Config does not know are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("read config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.HashAlgorithm(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BundleFormat(); err != nil {
		errs = append(errs, err)
	}
	if c.Compression < zlib.HuffmanOnly || c.Compression > zlib.BestCompression {
		errs = append(errs, fmt.Errorf("compression level %d out of range [%d, %d]",
			c.Compression, zlib.HuffmanOnly, zlib.BestCompression))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HashAlgorithm returns the configured blob digest.
func (c *Config) HashAlgorithm() (object.Algorithm, error) {
	return object.ParseAlgorithm(c.Hash)
}

// BundleFormat returns the configured default format. Empty selects pack.
func (c *Config) BundleFormat() (bundle.Format, error) {
	if strings.TrimSpace(c.Format) == "" {
		return bundle.FormatPack, nil
	}
	return bundle.ParseFormat(c.Format)
}

// SlogLevel returns the configured log level. Empty selects info.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.LogLevel) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Write atomically writes cfg to path.
func Write(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write config: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
