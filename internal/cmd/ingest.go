package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
)

var (
	scanAfter  string
	scanBefore string
)

var ingestCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the mailbox for purchase emails",
	Long: `Scan the configured mailbox and run every new message through
filtering, extraction, classification and order resolution.

Messages already processed are skipped, so overlapping scans are safe.
Without --after the scan covers the configured lookback window.`,
	RunE: scanMailbox,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&scanAfter, "after", "", "Only messages received on or after this date (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&scanBefore, "before", "", "Only messages received before this date (YYYY-MM-DD)")
}

func scanMailbox(cmd *cobra.Command, args []string) error {
	after, err := parseDateFlag("after", scanAfter)
	if err != nil {
		return err
	}
	before, err := parseDateFlag("before", scanBefore)
	if err != nil {
		return err
	}

	svc, cfg, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Printf("📬 Scanning mailbox %s...\n", cfg.Mailbox.FixturePath)
	report, err := svc.Scan(cmd.Context(), mailbox.Query{After: after, Before: before})
	if err != nil {
		return fmt.Errorf("failed to scan mailbox: %w", err)
	}

	fmt.Printf("\n📋 Scan %s finished in %s\n", report.SessionID[:8], report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("   📨 Listed:     %d\n", report.Listed)
	fmt.Printf("   🔁 Duplicates: %d\n", report.Duplicates)
	fmt.Printf("   🚫 Blocked:    %d\n", report.Blocked)
	fmt.Printf("   💤 Ignored:    %d\n", report.Ignored)
	fmt.Printf("   🆕 Created:    %d\n", report.Created)
	fmt.Printf("   🔗 Linked:     %d\n", report.Linked)
	fmt.Printf("   🧩 Merged:     %d\n", report.Merged)

	if report.Failed > 0 {
		fmt.Printf("   ⚠️  Failed:     %d (will be retried on the next scan)\n", report.Failed)
		for _, e := range report.Errors {
			fmt.Printf("      • %s\n", e)
		}
	}

	fmt.Printf("\n💡 Run 'shopq orders list' to see the results\n")
	return nil
}
