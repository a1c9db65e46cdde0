package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/buger/goterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/asvo-qms/qms-license-sdk/internal/config"
)

// app carries what every command needs. Tests replace the filesystem, the
// clock and the writers.
type app struct {
	fs     afero.Fs
	out    io.Writer
	log    *log.Logger
	cfg    *config.Config
	now    func() time.Time
	ledger ledgerOpener
}

func newApp() *app {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	return &app{
		fs:     afero.NewOsFs(),
		out:    os.Stdout,
		log:    logger,
		now:    time.Now,
		ledger: openLedger,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qms-license",
		Short: "Issue and verify offline QMS license tokens",

		// main prints the error, so we silence cobra's copy and the usage
		// dump that would otherwise follow every runtime failure.
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if a.cfg == nil {
				cfg, err := config.Load(a.fs)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			a.log.SetLevel(a.cfg.Level())
			return nil
		},
	}
	rootCmd.AddCommand(
		newKeygenCmd(a),
		newLicenseCmd(a),
		newFingerprintCmd(a),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, goterm.Color("Error: "+err.Error(), goterm.RED))
		os.Exit(1)
	}
}
