package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/bundle"
)

func newConvertCmd() *cobra.Command {
	var (
		format  string
		sign    bool
		signKey string
	)

	cmd := &cobra.Command{
		Use:   "convert <src> <dst>",
		Short: "Re-encode a bundle in another format",
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
			if err := l.b.Validate(cmd.Context()); err != nil {
				return fmt.Errorf("convert %s: %w", src, err)
			}

			opts, err := s.createOptions(dst, format, sign, signKey)
			if err != nil {
				return err
			}
			w, err := bundle.Create(dst, opts)
			if err != nil {
				return err
			}
			if err := w.WriteBundle(cmd.Context(), l.b); err != nil {
				return err
			}
			s.logger.Debug("bundle converted", "src", src, "from", l.format, "dst", dst, "to", opts.Format)

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s bundle %s: %d record(s), %d blob(s)\n",
				opts.Format, dst, len(l.b.States), len(l.b.Blobs))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format (pack, json, dir, sqlite)")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the output pack with the configured SSH key")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "sign the output pack with this SSH private key")
	return cmd
}
