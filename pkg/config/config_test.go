package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/object"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	want := &Config{
		Hash:        "blake2b",
		Format:      "sqlite",
		Compression: 9,
		LogLevel:    "debug",
		Sign:        Sign{Key: "~/.ssh/id_ed25519"},
	}
	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	alg, err := got.HashAlgorithm()
	if err != nil || alg != object.BLAKE2b {
		t.Fatalf("HashAlgorithm = %s, %v", alg, err)
	}
	format, err := got.BundleFormat()
	if err != nil || format != bundle.FormatSQLite {
		t.Fatalf("BundleFormat = %s, %v", format, err)
	}
	level, err := got.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("SlogLevel = %s, %v", level, err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.LogLevel = "warn"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "colour = \"blue\"\n",
		"bad hash":         "hash = \"md5\"\n",
		"bad format":       "format = \"tar\"\n",
		"bad compression":  "compression = 12\n",
		"bad level":        "log_level = \"loud\"\n",
		"unknown sign key": "[sign]\nkey = \"k\"\nagent = true\n",
		"malformed":        "hash = \n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load accepted %q", body)
			}
		})
	}
}
