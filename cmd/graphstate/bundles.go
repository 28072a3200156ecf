package main

import (
	"context"
	"fmt"
	"os"

	"github.com/odvcencio/graphstate/pkg/bundle"
)

// loaded is a bundle read from disk. pack is set for pack bundles.
type loaded struct {
	path   string
	format bundle.Format
	b      *bundle.Bundle
	pack   *bundle.Pack
}

func loadBundle(ctx context.Context, path string) (*loaded, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	format := bundle.DetectFormat(path)
	if format == bundle.FormatPack {
		b, p, err := bundle.NewPackFile(path).ReadPack(ctx)
		if err != nil {
			return nil, err
		}
		return &loaded{path: path, format: format, b: b, pack: p}, nil
	}
	b, err := bundle.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return &loaded{path: path, format: format, b: b}, nil
}
