package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/graphstate/pkg/bundle"
)

func newVerifyCmd() *cobra.Command {
	var pubKeyPath string

	cmd := &cobra.Command{
		Use:   "verify <bundle>",
		Short: "Verify bundle integrity, closure and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loadBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := l.b.Validate(cmd.Context()); err != nil {
				return fmt.Errorf("verify %s: %w", l.path, err)
			}

			out := cmd.OutOrStdout()
			var trusted ssh.PublicKey
			if pubKeyPath != "" {
				if trusted, err = bundle.LoadAuthorizedKey(pubKeyPath); err != nil {
					return err
				}
			}
			switch {
			case l.pack != nil && l.pack.Signature != "":
				pub, err := bundle.VerifySSH(l.pack, trusted)
				if err != nil {
					return fmt.Errorf("verify %s: %w", l.path, err)
				}
				note := ""
				if trusted == nil {
					note = " (key not checked, pass --pubkey)"
				}
				fmt.Fprintf(out, "signature: good, %s %s%s\n", pub.Type(), ssh.FingerprintSHA256(pub), note)
			case trusted != nil:
				return fmt.Errorf("verify %s: %w", l.path, bundle.ErrUnsigned)
			}

			fmt.Fprintf(out, "ok: verified %d record(s), %d blob(s)\n", len(l.b.States), len(l.b.Blobs))
			return nil
		},
	}

	cmd.Flags().StringVar(&pubKeyPath, "pubkey", "", "require a signature by this authorized_keys public key")
	return cmd
}
