package main

import (
	"fmt"
	"path/filepath"

	"github.com/lithammer/dedent"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/asvo-qms/qms-license-sdk/qmslicense"
)

func newKeygenCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new Ed25519 signing key pair",
		Long: dedent.Dedent(`
			Generate a new Ed25519 key pair and write private.key (mode 0600) and
			public.key (mode 0644) into the output directory.

			The command refuses to replace existing keys: every license signed with
			the old private key would stop verifying. Move the old keys away first
			if a rotation is really intended.`),
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if output == "" {
				output = a.cfg.KeyDir
			}
			dir, err := homedir.Expand(output)
			if err != nil {
				return err
			}

			if _, err := qmslicense.NewKeyManager(a.fs).Generate(dir); err != nil {
				return fmt.Errorf("generate keys: %w", err)
			}

			a.log.WithField("dir", dir).Info("Generated key pair")
			fmt.Fprintf(a.out, "Private key: %s\n", filepath.Join(dir, qmslicense.PrivateKeyFile))
			fmt.Fprintf(a.out, "Public key:  %s\n", filepath.Join(dir, qmslicense.PublicKeyFile))
			fmt.Fprintln(a.out, "Keep the private key offline. Ship only the public key with deployments.")
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "directory for the key files (default from config, ./keys)")
	return cmd
}
