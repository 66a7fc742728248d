package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/enrich"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/evidence"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

var testLLMCmd = &cobra.Command{
	Use:   "test-llm",
	Short: "Test the configured LLM provider",
	Long: `Send a sample return-policy extraction through the configured generator,
then parse and ground the answer the same way enrichment does. This helps
verify API keys and connectivity before running enrichment.`,
	RunE: testLLMProvider,
}

func init() {
	rootCmd.AddCommand(testLLMCmd)
}

const sampleReturnPolicy = `Thanks for shopping with Trail Outfitters! Your order A12345 has shipped.
Order total: $249.00
Returns: You may return unworn items within 45 days of delivery for a full refund.
Items marked final sale cannot be returned.`

func testLLMProvider(cmd *cobra.Command, args []string) error {
	fmt.Println("🧪 Testing LLM provider connection...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Printf("🤖 Testing generator (%s/%s)...\n", cfg.LLM.Generator.Provider, cfg.LLM.Generator.Model)
	generator, err := llm.NewLimitedGenerator(cfg)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	received := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	order := &models.Order{
		MerchantDisplayName: "Trail Outfitters",
		NormalizedMerchant:  "trailoutfitters",
		ItemSummary:         "Alpine 2 Tent",
		OrderID:             "A12345",
	}
	email := &models.OrderEmail{EmailID: "sample", Subject: "Your order has shipped", ReceivedAt: received}

	excerpt, found := enrich.NewContextBuilder(cfg.Enrich.WindowRadius, cfg.Enrich.ContextBudget).Build(sampleReturnPolicy)
	if !found {
		return fmt.Errorf("sample text has no return-policy keywords")
	}
	prompt := enrich.NewPromptBuilder().BuildExtractionPrompt(order, email, excerpt)

	response, err := generator.Complete(ctx, prompt, types.GenerationOptions{
		MaxTokens: cfg.LLM.MaxTokens,
		System:    "You extract return policy facts from purchase emails and answer with JSON only.",
	}.Map())
	if err != nil {
		return fmt.Errorf("failed to generate response: %w", err)
	}
	fmt.Printf("   ✅ Generated response: %s\n", response)

	fmt.Println("🔎 Parsing and grounding the response...")
	claim, _, err := enrich.ParseExtraction(response)
	if err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	res := evidence.NewValidator().Validate(claim, sampleReturnPolicy)
	for _, fe := range res.Errors {
		fmt.Printf("   ❌ %s\n", fe)
	}
	if days, quote, ok := res.Fields.WindowDays(); ok {
		fmt.Printf("   ✅ Return window: %d days (%q)\n", days, quote)
	}
	if by, quote, ok := res.Fields.ReturnBy(); ok {
		fmt.Printf("   ✅ Return by: %s (%q)\n", by.Format(dateLayout), quote)
	}
	if amount, quote, ok := res.Fields.Amount(); ok {
		fmt.Printf("   ✅ Amount: %.2f (%q)\n", amount, quote)
	}
	if !res.Valid {
		fmt.Println("\n⚠️  Provider answered but nothing could be grounded in the sample text")
		return nil
	}

	fmt.Println("\n🎉 LLM provider is working correctly!")
	return nil
}
