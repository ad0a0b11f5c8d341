package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the match audit log",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export match decisions as CSV",
	Long: `Export every logged match decision as CSV. Without --out the CSV is
written to stdout.`,
	Args: cobra.NoArgs,
	RunE: runAuditExport,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditExportCmd.Flags().String("out", "", "Output file (default stdout)")
	auditExportCmd.Flags().String("label", "", "Only export matches of this label")
	auditExportCmd.Flags().String("since", "", "Only export matches at or after this time (RFC3339 or YYYY-MM-DD)")
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	filter := audit.Filter{Label: mustGetString(cmd, "label")}
	if since := mustGetString(cmd, "since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			return err
		}
		filter.Since = t
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := mustGetString(cmd, "out")
	if out == "" {
		_, err := audit.Export(ctx, a.store, os.Stdout, filter)
		return err
	}

	n, err := audit.ExportFile(ctx, a.store, out, filter)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d match(es) to %s\n", n, out)
	return nil
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: use RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
