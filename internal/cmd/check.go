package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check order index consistency",
	Long: `Verify that every order-id, tracking-number and merchant index entry
points at an existing Order that points back at it, and that no Order is
reachable from two entries of the same index.`,
	RunE: checkIndices,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkIndices(cmd *cobra.Command, args []string) error {
	fmt.Println("🔍 Checking order indices...")

	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	problems, err := svc.Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to verify indices: %w", err)
	}

	if len(problems) == 0 {
		fmt.Println("✅ All indices are consistent")
		return nil
	}

	fmt.Printf("\n📋 Found %d problem%s:\n", len(problems), plural(len(problems)))
	fmt.Println(strings.Repeat("─", 60))
	for _, p := range problems {
		fmt.Printf("   ❌ %s\n", p)
	}
	return fmt.Errorf("%d index problem%s found", len(problems), plural(len(problems)))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
