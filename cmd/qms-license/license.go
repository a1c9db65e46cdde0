package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/lithammer/dedent"
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asvo-qms/qms-license-sdk/qmslicense"
	"github.com/asvo-qms/qms-license-sdk/qmslicense/ledger"
)

// daysPerMonth is the length of a --months month.
const daysPerMonth = 30

// defaultDurationDays applies when neither --months nor --duration is given.
const defaultDurationDays = 365

// autoFingerprint makes --fingerprint use this machine's fingerprint.
const autoFingerprint = "auto"

func newLicenseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Create, verify and inspect license tokens",
	}
	cmd.AddCommand(
		newCreateCmd(a),
		newVerifyCmd(a),
		newInspectCmd(a),
		newListCmd(a),
	)
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		keyPath     string
		org         string
		tier        string
		modules     []string
		maxUsers    string
		storageGB   string
		maxStorage  string
		months      int
		duration    int
		fingerprint string
		graceDays   int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Sign a new license token",
		Long: dedent.Dedent(`
			Sign a license for an organization. Modules and limits default to the
			tier's preset; --modules replaces the preset list entirely.

			Limits take a number or "unlimited". A month is 30 days. Without
			--months or --duration the license runs for 365 days.

			The token is printed to stdout, or written to --output as a single line.`),
		Example: "  qms-license license create --key keys/private.key --org \"Acme\" --tier pro --months 12 -o acme.lic",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := createParams(cmd, org, tier, modules, maxUsers, firstNonEmpty(storageGB, maxStorage),
				months, duration, graceDays)
			if err != nil {
				return err
			}
			if params.Fingerprint, err = resolveFingerprint(fingerprint); err != nil {
				return err
			}

			if keyPath == "" {
				keyPath = filepath.Join(a.cfg.KeyDir, qmslicense.PrivateKeyFile)
			}
			if keyPath, err = homedir.Expand(keyPath); err != nil {
				return err
			}
			priv, err := qmslicense.LoadPrivateKey(a.fs, keyPath)
			if err != nil {
				return err
			}

			builderOpts := []qmslicense.BuilderOption{
				qmslicense.WithClock(a.now),
				qmslicense.WithIssuer(a.cfg.Issuer),
				qmslicense.WithDefaultGraceDays(a.cfg.GraceDays),
			}
			if a.cfg.CatalogFile != "" {
				catalog, err := qmslicense.LoadTierCatalog(a.fs, a.cfg.CatalogFile)
				if err != nil {
					return err
				}
				builderOpts = append(builderOpts, qmslicense.WithCatalog(catalog))
			}

			ctx := cmd.Context()
			l, closeLedger, err := a.ledger(ctx, a.cfg.Ledger)
			if err != nil {
				return err
			}
			defer closeLedger()

			issuerOpts := []qmslicense.IssuerOption{qmslicense.WithBuilder(qmslicense.NewBuilder(builderOpts...))}
			if l != nil {
				issuerOpts = append(issuerOpts, qmslicense.WithLedger(l))
			}
			token, payload, err := qmslicense.NewIssuer(qmslicense.NewSigner(priv), issuerOpts...).Issue(ctx, params)
			if err != nil {
				return err
			}

			a.log.WithFields(log.Fields{
				"license_id": payload.LicenseID,
				"org":        payload.Organization,
				"tier":       payload.Tier,
				"expires":    payload.ExpiresAt.Format(time.RFC3339),
				"recorded":   l != nil,
			}).Info("Signed license")

			if output == "" {
				fmt.Fprintln(a.out, token)
				return nil
			}
			if output, err = homedir.Expand(output); err != nil {
				return err
			}
			if err := qmslicense.WriteTokenFile(a.fs, output, token); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "License written to %s\n", output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&keyPath, "key", "", "private key file (default <key_dir>/private.key)")
	flags.StringVar(&org, "org", "", "organization the license is issued to")
	flags.StringVar(&tier, "tier", "", "tier: start, standard, pro, industry or corp")
	flags.StringSliceVar(&modules, "modules", nil, "comma-separated module codes, replacing the tier preset")
	flags.StringVar(&maxUsers, "max-users", "", "user limit, a number or \"unlimited\" (default from tier)")
	flags.StringVar(&storageGB, "storage-gb", "", "storage limit in GB, a number or \"unlimited\" (default from tier)")
	flags.StringVar(&maxStorage, "max-storage", "", "alias for --storage-gb")
	flags.IntVar(&months, "months", 0, "license duration in 30-day months")
	flags.IntVar(&duration, "duration", 0, "license duration in days")
	flags.StringVar(&fingerprint, "fingerprint", "", "bind to an installation: sha256:<hex>, or \"auto\" for this machine")
	flags.IntVar(&graceDays, "grace-days", 0, "grace period after expiry (default from config, 30)")
	flags.StringVarP(&output, "output", "o", "", "write the token to this file instead of stdout")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("tier")
	cmd.MarkFlagsMutuallyExclusive("months", "duration")
	cmd.MarkFlagsMutuallyExclusive("storage-gb", "max-storage")
	return cmd
}

func createParams(cmd *cobra.Command, org, tier string, modules []string, maxUsers, maxStorage string,
	months, duration, graceDays int) (qmslicense.Params, error) {
	t, err := qmslicense.ParseTier(tier)
	if err != nil {
		return qmslicense.Params{}, err
	}
	params := qmslicense.Params{
		Organization: org,
		Tier:         t,
		Modules:      modules,
		DurationDays: defaultDurationDays,
	}

	switch {
	case cmd.Flags().Changed("months"):
		if months <= 0 {
			return qmslicense.Params{}, errors.New("--months must be positive")
		}
		params.DurationDays = months * daysPerMonth
	case cmd.Flags().Changed("duration"):
		params.DurationDays = duration
	}

	if maxUsers != "" {
		l, err := qmslicense.ParseLimit(maxUsers)
		if err != nil {
			return qmslicense.Params{}, fmt.Errorf("--max-users: %w", err)
		}
		params.MaxUsers = &l
	}
	if maxStorage != "" {
		l, err := qmslicense.ParseLimit(maxStorage)
		if err != nil {
			return qmslicense.Params{}, fmt.Errorf("--storage-gb: %w", err)
		}
		params.MaxStorageGB = &l
	}
	if cmd.Flags().Changed("grace-days") {
		params.GraceDays = &graceDays
	}
	return params, nil
}

func resolveFingerprint(flag string) (string, error) {
	if flag != autoFingerprint {
		return flag, nil
	}
	return qmslicense.GenerateFingerprint()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		files       []string
		token       string
		pubPath     string
		keyPath     string
		fingerprint string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify license tokens against a public key",
		Long: dedent.Dedent(`
			Verify one or more license tokens offline. The command exits non-zero
			unless every token is VALID or in its GRACE period.

			With --fingerprint, hardware-bound licenses are also checked against the
			given installation fingerprint ("auto" computes this machine's).`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(files) == 0 && token == "" {
				return errors.New("one of --file or --token is required")
			}

			path := firstNonEmpty(pubPath, keyPath, filepath.Join(a.cfg.KeyDir, qmslicense.PublicKeyFile))
			path, err := homedir.Expand(path)
			if err != nil {
				return err
			}
			pub, err := qmslicense.LoadPublicKey(a.fs, path)
			if err != nil {
				return err
			}
			current, err := resolveFingerprint(fingerprint)
			if err != nil {
				return err
			}

			var labels []string
			var tokens []qmslicense.Token
			if token != "" {
				labels = append(labels, "token")
				tokens = append(tokens, qmslicense.Token(token))
			}
			for _, f := range files {
				t, err := qmslicense.ReadTokenFile(a.fs, f)
				if err != nil {
					return err
				}
				labels = append(labels, f)
				tokens = append(tokens, t)
			}

			v := qmslicense.NewVerifier(pub,
				qmslicense.WithCurrentFingerprint(current),
				qmslicense.WithConcurrency(a.cfg.VerifyConcurrency))
			now := a.now()
			results, err := v.VerifyAll(cmd.Context(), tokens, now)
			if err != nil {
				return err
			}

			failed := 0
			for i, res := range results {
				printResult(a.out, labels[i], res, now)
				if !res.Usable() {
					failed++
					a.log.WithField("source", labels[i]).WithError(res.Err()).
						Debugf("License rejected: %s", res.Status())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d licenses are not valid", failed, len(results))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&files, "file", nil, "license file to verify (repeatable)")
	flags.StringVar(&token, "token", "", "license token string to verify")
	flags.StringVar(&pubPath, "pubkey", "", "public key file (default <key_dir>/public.key)")
	flags.StringVar(&keyPath, "key", "", "alias for --pubkey")
	flags.StringVar(&fingerprint, "fingerprint", "", "current installation fingerprint, or \"auto\"")
	cmd.MarkFlagsMutuallyExclusive("pubkey", "key")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		file  string
		token string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print what a token claims, without verifying it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			t := qmslicense.Token(token)
			if file != "" {
				var err error
				if t, err = qmslicense.ReadTokenFile(a.fs, file); err != nil {
					return err
				}
			}
			if t == "" {
				return errors.New("one of --file or --token is required")
			}

			p, err := qmslicense.Inspect(t)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "UNVERIFIED: the signature has not been checked. Use `license verify` before trusting this.")
			printPayload(a.out, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "license file to inspect")
	cmd.Flags().StringVar(&token, "token", "", "license token string to inspect")
	cmd.MarkFlagsMutuallyExclusive("file", "token")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		org          string
		tier         string
		expiringDays int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued licenses from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, closeLedger, err := a.ledger(ctx, a.cfg.Ledger)
			if err != nil {
				return err
			}
			defer closeLedger()
			if l == nil {
				return errors.New("no ledger configured: set ledger.postgres_dsn or ledger.mongo_uri")
			}

			filter := ledger.Filter{Organization: org}
			if tier != "" {
				t, err := qmslicense.ParseTier(tier)
				if err != nil {
					return err
				}
				filter.Tier = t.String()
			}
			if expiringDays > 0 {
				filter.ExpiresBefore = a.now().Add(time.Duration(expiringDays) * 24 * time.Hour)
			}

			records, err := l.List(ctx, filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 4, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "LICENSE ID\tORGANIZATION\tTIER\tUSERS\tEXPIRES")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.LicenseID, r.Organization, r.Tier,
					qmslicense.Limit(r.MaxUsers), r.ExpiresAt.UTC().Format(time.DateOnly))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "only licenses of this organization")
	cmd.Flags().StringVar(&tier, "tier", "", "only licenses of this tier")
	cmd.Flags().IntVar(&expiringDays, "expiring-within", 0, "only licenses expiring within this many days")
	return cmd
}
