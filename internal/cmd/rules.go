package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage merchant return-window rules",
	Long: `Merchant rules give the return window, in days, for a merchant domain.
Orders without literal evidence get an estimated deadline from their
merchant's rule. Setting or deleting a rule recomputes affected orders.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List merchant rules",
	Args:  cobra.NoArgs,
	RunE:  listRules,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <domain> <days>",
	Short: "Set the return window for a merchant",
	Args:  cobra.ExactArgs(2),
	RunE:  setRule,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Delete a merchant rule",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteRule,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import merchant rules from a YAML file",
	Long: `Import merchant rules from a YAML file of the form:

  rules:
    - merchant_domain: example.com
      return_window_days: 30`,
	Args: cobra.ExactArgs(1),
	RunE: importRulesFile,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesSetCmd, rulesDeleteCmd, rulesImportCmd)
}

type ruleFile struct {
	Rules []models.MerchantRule `yaml:"rules"`
}

func listRules(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := svc.ListMerchantRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(rules) == 0 {
		fmt.Println("📭 No merchant rules")
		fmt.Println("💡 Try running: shopq rules set example.com 30")
		return nil
	}

	fmt.Printf("📏 %d merchant rule%s:\n", len(rules), plural(len(rules)))
	fmt.Println(strings.Repeat("─", 60))
	for _, r := range rules {
		fmt.Printf("   %-36s %3d days\n", r.MerchantDomain, r.ReturnWindowDays)
	}
	return nil
}

func setRule(cmd *cobra.Command, args []string) error {
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid days %q: %w", args[1], err)
	}

	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	rule, err := svc.SetMerchantRule(cmd.Context(), args[0], days)
	if err != nil {
		return fmt.Errorf("failed to set rule: %w", err)
	}
	fmt.Printf("✅ %s: %d days\n", rule.MerchantDomain, rule.ReturnWindowDays)
	return nil
}

func deleteRule(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.DeleteMerchantRule(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	fmt.Printf("🗑️  Deleted rule for %s\n", args[0])
	return nil
}

func importRulesFile(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Printf("📏 Importing merchant rules from %s...\n", args[0])
	n, err := importRules(cmd.Context(), svc, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("✅ Imported %d rule%s\n", n, plural(n))
	return nil
}

// importRules reads a rule file and sets every rule in it. Rules before a
// failing one stay applied.
func importRules(ctx context.Context, svc *tracker.Service, path string) (int, error) {
	rules, err := readRuleFile(path)
	if err != nil {
		return 0, err
	}
	for i, r := range rules {
		if _, err := svc.SetMerchantRule(ctx, r.MerchantDomain, r.ReturnWindowDays); err != nil {
			return i, fmt.Errorf("failed to import rule %s: %w", r.MerchantDomain, err)
		}
		fmt.Printf("   • %s: %d days\n", r.MerchantDomain, r.ReturnWindowDays)
	}
	return len(rules), nil
}

func readRuleFile(path string) ([]models.MerchantRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	return f.Rules, nil
}
