package main

import (
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/manager"
	"github.com/odvcencio/graphstate/pkg/scene"
)

func newDemoCmd() *cobra.Command {
	var (
		format      string
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "demo <dst>",
		Short: "Export the sample scene, import it back and compare",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			alg, err := s.cfg.HashAlgorithm()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dst := args[0]
			out := cmd.OutOrStdout()
			reg := prometheus.NewRegistry()
			newManager := func() (*manager.Manager, error) {
				return manager.New(scene.Registry(),
					manager.WithLogger(s.logger),
					manager.WithMetrics(reg),
					manager.WithHashAlgorithm(alg),
				)
			}

			src, err := newManager()
			if err != nil {
				return err
			}
			window := scene.Sample()
			if _, err := src.RegisterObject(window); err != nil {
				return err
			}
			if err := src.UpdateStatesFromObjects(); err != nil {
				return err
			}
			opts, err := s.createOptions(dst, format, false, "")
			if err != nil {
				return err
			}
			w, err := bundle.Create(dst, opts)
			if err != nil {
				return err
			}
			if err := src.Export(ctx, w); err != nil {
				return err
			}
			st := src.Stats()
			fmt.Fprintf(out, "exported %d record(s), %d blob(s) (%s) to %s (%s)\n",
				st.States, st.Blobs, humanize.Bytes(uint64(st.BlobBytes)), dst, opts.Format)

			dstMgr, err := newManager()
			if err != nil {
				return err
			}
			r, err := bundle.Open(dst)
			if err != nil {
				return err
			}
			if err := dstMgr.Import(ctx, r); err != nil {
				return err
			}
			report, err := dstMgr.UpdateObjectsFromStates()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "reconstructed %d object(s), %d failed\n", len(report.Constructed), len(report.Failed))

			roots := dstMgr.Roots()
			if len(roots) != 1 {
				return fmt.Errorf("demo: imported %d roots, want 1", len(roots))
			}
			obj, err := dstMgr.GetObjectAtID(roots[0])
			if err != nil {
				return err
			}
			rebuilt, ok := obj.(*scene.Window)
			if !ok {
				return fmt.Errorf("demo: root is %T, want *scene.Window", obj)
			}

			check, err := newManager()
			if err != nil {
				return err
			}
			if _, err := check.RegisterObject(rebuilt); err != nil {
				return err
			}
			if err := check.UpdateStatesFromObjects(); err != nil {
				return err
			}
			runtime.KeepAlive(rebuilt)
			want, err := src.BuildBundle()
			if err != nil {
				return err
			}
			got, err := check.BuildBundle()
			if err != nil {
				return err
			}
			if diff := compareRecords(want, got); diff != "" {
				return fmt.Errorf("demo: round trip differs: %s", diff)
			}
			fmt.Fprintln(out, "round trip: identical")
			runtime.KeepAlive(window)

			if showMetrics {
				return printMetrics(out, reg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "bundle format (pack, json, dir, sqlite)")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print the managers' counters")
	return cmd
}

// compareRecords describes the first difference between the records and
// blobs of two bundles, or returns "".
func compareRecords(want, got *bundle.Bundle) string {
	if len(want.States) != len(got.States) {
		return fmt.Sprintf("%d records, want %d", len(got.States), len(want.States))
	}
	for i, rec := range want.States {
		if !rec.Equal(got.States[i]) {
			return fmt.Sprintf("record %d differs", rec.ID)
		}
	}
	if len(want.Blobs) != len(got.Blobs) {
		return fmt.Sprintf("%d blobs, want %d", len(got.Blobs), len(want.Blobs))
	}
	for i, bl := range want.Blobs {
		if bl.Hash != got.Blobs[i].Hash {
			return fmt.Sprintf("blob %s missing", bl.Hash.Short())
		}
	}
	return ""
}

// printMetrics writes every counter in reg, summed over sessions.
func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	totals := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				totals[mf.GetName()] += c.GetValue()
			}
		}
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s %g\n", name, totals[name])
	}
	return nil
}
