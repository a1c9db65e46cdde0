package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/buger/goterm"

	"github.com/asvo-qms/qms-license-sdk/qmslicense"
)

func statusColor(s qmslicense.Status) int {
	switch s {
	case qmslicense.StatusValid:
		return goterm.GREEN
	case qmslicense.StatusGrace:
		return goterm.YELLOW
	default:
		return goterm.RED
	}
}

func printResult(w io.Writer, label string, res qmslicense.VerificationResult, now time.Time) {
	status := res.Status()
	fmt.Fprintf(w, "%s: %s\n", label, goterm.Color(status.String(), statusColor(status)))
	fmt.Fprintf(w, "  %s\n", res.Reason())

	switch status {
	case qmslicense.StatusGrace:
		fmt.Fprintln(w, goterm.Color(fmt.Sprintf(
			"  WARNING: license has expired. %d days of grace left before read-only mode.",
			res.DaysRemaining(now)), goterm.YELLOW))
	case qmslicense.StatusExpired:
		fmt.Fprintln(w, goterm.Color("  License and grace period have ended. Deployment runs read-only.", goterm.RED))
	}

	if p, ok := res.Payload(); ok && res.Usable() {
		printPayload(w, p)
	}
}

func printPayload(w io.Writer, p qmslicense.Payload) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "  License ID\t%s\n", p.LicenseID)
	fmt.Fprintf(tw, "  Issuer\t%s\n", p.Issuer)
	fmt.Fprintf(tw, "  Organization\t%s\n", p.Organization)
	fmt.Fprintf(tw, "  Tier\t%s (%s)\n", p.Tier, p.Tier.DisplayName())
	fmt.Fprintf(tw, "  Users\t%s\n", p.Limits.MaxUsers)
	fmt.Fprintf(tw, "  Storage GB\t%s\n", p.Limits.MaxStorageGB)
	fmt.Fprintf(tw, "  Issued\t%s\n", p.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "  Expires\t%s\n", p.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "  Grace days\t%d\n", p.GraceDays)
	if p.Bound() {
		fmt.Fprintf(tw, "  Fingerprint\t%s\n", p.Fingerprint)
	}
	fmt.Fprintf(tw, "  Modules\t%s\n", strings.Join(p.Modules, ", "))
}
