package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/enrich"
)

var enrichPending bool

var enrichCmd = &cobra.Command{
	Use:   "enrich [order-key]",
	Short: "Look for return-policy evidence with the LLM",
	Long: `Send the return-policy passages of an order's emails to the configured
LLM and keep only claims that are literally present in the email text.

Give an order key to enrich one order, or --pending to sweep every active
order whose deadline is not backed by evidence yet.`,
	Args: cobra.MaximumNArgs(1),
	RunE: enrichOrders,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().BoolVar(&enrichPending, "pending", false, "Enrich every order still lacking evidence")
}

func enrichOrders(cmd *cobra.Command, args []string) error {
	if enrichPending == (len(args) == 1) {
		return fmt.Errorf("give either an order key or --pending")
	}

	svc, cfg, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Printf("🤖 Enriching with %s/%s...\n", cfg.LLM.Generator.Provider, cfg.LLM.Generator.Model)

	var outcomes []enrich.Outcome
	if enrichPending {
		outcomes, err = svc.EnrichPending(cmd.Context())
	} else {
		var out enrich.Outcome
		out, err = svc.EnrichOrder(cmd.Context(), args[0])
		outcomes = append(outcomes, out)
	}
	if err != nil {
		return fmt.Errorf("failed to enrich: %w", err)
	}

	if len(outcomes) == 0 {
		fmt.Println("✅ Nothing to enrich")
		return nil
	}

	enriched := 0
	fmt.Println(strings.Repeat("─", 60))
	for _, out := range outcomes {
		switch {
		case out.Skipped != "":
			fmt.Printf("   ⏭️  %s: skipped (%s)\n", out.OrderKey, out.Skipped)
		case out.Enriched:
			enriched++
			fmt.Printf("   ✅ %s: %s → %s from %s\n", out.OrderKey, out.Before, out.After, out.EvidenceMessageID)
			fmt.Printf("      📝 %q\n", out.EvidenceQuote)
		default:
			fmt.Printf("   🔍 %s: nothing grounded in %d email%s\n", out.OrderKey, out.Examined, plural(out.Examined))
		}
		if out.ManualOverrideSuggested {
			fmt.Printf("      💡 Enter a deadline by hand: shopq orders deadline %s <YYYY-MM-DD>\n", out.OrderKey)
		}
	}
	fmt.Printf("\n📊 %d of %d order%s enriched\n", enriched, len(outcomes), plural(len(outcomes)))
	return nil
}
