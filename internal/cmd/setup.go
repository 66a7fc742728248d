package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetFirst bool
	setupRules string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the order store",
	Long: `Connects to the configured store and creates the key-value table
when a SQL backend is used.

With --reset every order, processed-message record and merchant rule is
deleted first. With --rules a YAML rule file is imported afterwards.`,
	RunE: setupStore,
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().BoolVar(&resetFirst, "reset", false, "Delete all records before setup")
	setupCmd.Flags().StringVar(&setupRules, "rules", "", "Merchant rules YAML file to import")
}

func setupStore(cmd *cobra.Command, args []string) error {
	fmt.Println("🔧 Setting up order store...")

	svc, cfg, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	fmt.Printf("📋 Store ready (%s)\n", cfg.Store.Backend)

	if resetFirst {
		fmt.Println("🗑️  Deleting existing records...")
		if err := svc.Reset(cmd.Context()); err != nil {
			return err
		}
	}

	if setupRules != "" {
		fmt.Printf("📏 Importing merchant rules from %s...\n", setupRules)
		n, err := importRules(cmd.Context(), svc, setupRules)
		if err != nil {
			return err
		}
		fmt.Printf("   ✅ Imported %d rule%s\n", n, plural(n))
	}

	fmt.Println("✅ Store setup complete!")
	return nil
}
