package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asvo-qms/qms-license-sdk/qmslicense"
)

func newFingerprintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print this installation's fingerprint for hardware-bound licenses",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fp, err := qmslicense.GenerateFingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, fp)
			return nil
		},
	}
}
