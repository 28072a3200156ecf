package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/graphstate/pkg/bundle"
	"github.com/odvcencio/graphstate/pkg/config"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphstate",
		Short:         "Inspect, verify and convert object graph bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", config.FileName, "path to the config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides the config")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newConvertCmd())
	root.AddCommand(newCatStateCmd())
	root.AddCommand(newCatBlobCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newDemoCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphstate %s\n", version)
		},
	}
}

// settings are the config and logger a command runs with.
type settings struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadSettings reads the config named by --config and builds a text logger
// on stderr. Commands run outside the root command fall back to the config
// in the working directory.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	path := config.FileName
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		path = f.Value.String()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flag("log-level"); f != nil && f.Value.String() != "" {
		cfg.LogLevel = f.Value.String()
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return &settings{cfg: cfg, logger: logger}, nil
}

// outputFormat picks the format for a bundle written to path: an explicit
// --format wins, then the path (an existing directory or a known
// extension), then the configured default.
func (s *settings) outputFormat(path, flag string) (bundle.Format, error) {
	if strings.TrimSpace(flag) != "" {
		return bundle.ParseFormat(flag)
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return bundle.FormatDir, nil
	}
	if filepath.Ext(strings.TrimSuffix(strings.ToLower(path), ".zst")) != "" {
		return bundle.DetectFormat(path), nil
	}
	return s.cfg.BundleFormat()
}

// createOptions builds the writer options for path. A signing key is loaded
// when sign is set or keyPath is not empty.
func (s *settings) createOptions(path, format string, sign bool, keyPath string) (bundle.Options, error) {
	f, err := s.outputFormat(path, format)
	if err != nil {
		return bundle.Options{}, err
	}
	opts := bundle.Options{Format: f, Level: s.cfg.Compression}
	if !sign && strings.TrimSpace(keyPath) == "" {
		return opts, nil
	}
	if strings.TrimSpace(keyPath) == "" {
		keyPath = s.cfg.Sign.Key
	}
	signer, resolved, err := bundle.NewSSHSigner(keyPath)
	if err != nil {
		return bundle.Options{}, err
	}
	s.logger.Debug("signing bundle", "key", resolved)
	opts.Signer = signer
	return opts, nil
}
