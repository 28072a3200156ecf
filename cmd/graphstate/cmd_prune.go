package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/manager"
)

func newPruneCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "prune <src> <dst>",
		Short: "Drop records outside the roots' closure and unreferenced blobs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			src, dst := args[0], args[1]

			l, err := loadBundle(cmd.Context(), src)
			if err != nil {
				return err
			}
			// Records are only staged, never constructed, so no codecs are
			// needed.
			m, err := manager.New(codec.NewRegistry(),
				manager.WithLogger(s.logger),
				manager.WithHashAlgorithm(l.b.Manifest.HashAlgorithm),
				manager.WithSession(l.b.Manifest.Session),
			)
			if err != nil {
				return err
			}
			if err := m.ImportBundle(l.b); err != nil {
				return err
			}
			droppedBlobs := m.PruneBlobs()
			pruned, err := m.BuildBundle()
			if err != nil {
				return fmt.Errorf("prune %s: %w", src, err)
			}

			opts, err := s.createOptions(dst, format, false, "")
			if err != nil {
				return err
			}
			w, err := bundle.Create(dst, opts)
			if err != nil {
				return err
			}
			if err := w.WriteBundle(cmd.Context(), pruned); err != nil {
				return err
			}

			droppedBlobs += countUnexported(l.b, pruned)
			fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d record(s), dropped %d blob(s)\n",
				len(pruned.States), len(l.b.States), droppedBlobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format (pack, json, dir, sqlite)")
	return cmd
}

// countUnexported counts blobs stored in src that are referenced by some
// record but did not make it into the pruned closure.
func countUnexported(src, pruned *bundle.Bundle) int {
	referenced := make(map[string]struct{})
	for _, rec := range src.States {
		for _, h := range rec.BlobHashes() {
			referenced[string(h)] = struct{}{}
		}
	}
	n := 0
	for _, bl := range src.Blobs {
		if _, ok := referenced[string(bl.Hash)]; !ok {
			continue
		}
		if _, ok := pruned.Blob(bl.Hash); !ok {
			n++
		}
	}
	return n
}
