package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/object"
)

func newCatStateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cat-state <bundle> <id>",
		Short: "Print one state record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil || n == 0 {
				return fmt.Errorf("invalid object id %q", args[1])
			}
			l, err := loadBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rec, ok := l.b.State(object.ObjectID(n))
			if !ok {
				return fmt.Errorf("object %d not found in %s", n, l.path)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			_, err = out.Write(object.MarshalState(rec))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func newCatBlobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat-blob <bundle> <hash>",
		Short: "Write a blob's bytes to stdout",
		Long:  "Write a blob's bytes to stdout. The hash may be abbreviated to any unique prefix.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loadBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prefix := strings.ToLower(strings.TrimSpace(args[1]))
			if prefix == "" {
				return fmt.Errorf("blob hash is required")
			}

			var match []byte
			found := 0
			for _, bl := range l.b.Blobs {
				if strings.HasPrefix(string(bl.Hash), prefix) {
					match = bl.Data
					found++
				}
			}
			switch found {
			case 0:
				return fmt.Errorf("blob %s not found in %s", prefix, l.path)
			case 1:
				_, err = cmd.OutOrStdout().Write(match)
				return err
			default:
				return fmt.Errorf("blob prefix %s is ambiguous (%d matches)", prefix, found)
			}
		},
	}
}
