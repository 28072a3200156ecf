package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/object"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <bundle>",
		Short: "Summarize a bundle's manifest, records and blobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loadBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			m := l.b.Manifest

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "bundle\t%s (%s)\n", l.path, l.format)
			fmt.Fprintf(tw, "version\t%d\n", m.Version)
			if m.Session != "" {
				fmt.Fprintf(tw, "session\t%s\n", m.Session)
			}
			fmt.Fprintf(tw, "hash\t%s\n", m.HashAlgorithm)
			fmt.Fprintf(tw, "roots\t%s\n", joinIDs(m.Roots))
			fmt.Fprintf(tw, "external\t%s\n", joinIDs(m.External))
			fmt.Fprintf(tw, "records\t%d\n", len(l.b.States))
			fmt.Fprintf(tw, "blobs\t%d (%s)\n", len(l.b.Blobs), humanize.Bytes(uint64(l.b.BlobSize())))
			if l.pack != nil {
				fmt.Fprintf(tw, "checksum\t%s\n", l.pack.Checksum)
				signed := "no"
				if l.pack.Signature != "" {
					signed = "yes"
				}
				fmt.Fprintf(tw, "signed\t%s\n", signed)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			counts := make(map[object.TypeTag]int)
			for _, rec := range l.b.States {
				counts[rec.Type]++
			}
			types := make([]object.TypeTag, 0, len(counts))
			for typ := range counts {
				types = append(types, typ)
			}
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
			if len(types) > 0 {
				fmt.Fprintln(out, "types:")
			}
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, typ := range types {
				fmt.Fprintf(tw, "  %s\t%d\n", typ, counts[typ])
			}
			return tw.Flush()
		},
	}
}

func joinIDs(ids []object.ObjectID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}
