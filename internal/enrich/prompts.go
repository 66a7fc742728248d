package enrich

import (
	"fmt"
	"strings"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm/generate"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// PromptBuilder creates return-policy extraction prompts
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildExtractionPrompt asks for the return deadline facts found in context.
func (pb *PromptBuilder) BuildExtractionPrompt(o *models.Order, email *models.OrderEmail, context string) string {
	var prompt strings.Builder

	prompt.WriteString("Extract the return policy for one online purchase from the email excerpt below. ")
	prompt.WriteString("Only report facts that are written in the excerpt.\n\n")

	prompt.WriteString("PURCHASE:\n")
	merchant := o.MerchantDisplayName
	if merchant == "" {
		merchant = o.NormalizedMerchant
	}
	prompt.WriteString(fmt.Sprintf("Merchant: %s\n", merchant))
	if o.ItemSummary != "" {
		prompt.WriteString(fmt.Sprintf("Item: %s\n", o.ItemSummary))
	}
	if o.OrderID != "" {
		prompt.WriteString(fmt.Sprintf("Order number: %s\n", o.OrderID))
	}
	if email.Subject != "" {
		prompt.WriteString(fmt.Sprintf("Email subject: %s\n", email.Subject))
	}
	prompt.WriteString(fmt.Sprintf("Email received: %s\n\n", email.ReceivedAt.Format(models.DateLayout)))

	prompt.WriteString("EMAIL EXCERPT:\n")
	prompt.WriteString(generate.ContextStart + "\n")
	prompt.WriteString(context)
	prompt.WriteString("\n" + generate.ContextEnd + "\n\n")

	prompt.WriteString("INSTRUCTIONS:\n")
	prompt.WriteString("- return_by_date: a calendar deadline for returns, as YYYY-MM-DD, only if a date is written.\n")
	prompt.WriteString("- return_window_days: the number of days allowed for returns, only if a number is written.\n")
	prompt.WriteString("- amount: the order total, only if written.\n")
	prompt.WriteString("- final_sale: true only if the item is stated to be non-returnable.\n")
	prompt.WriteString("- evidence_quote: the exact sentence from the excerpt that states the fact, copied verbatim.\n")
	prompt.WriteString("- confidence: high, medium, low or none.\n")
	prompt.WriteString("Omit any field the excerpt does not state.\n\n")

	prompt.WriteString("FORMAT YOUR RESPONSE AS A SINGLE JSON OBJECT:\n")
	prompt.WriteString(`{"return_by_date": "...", "return_window_days": 0, "amount": 0.00, "final_sale": false, "evidence_quote": "...", "confidence": "..."}`)
	prompt.WriteString("\n")

	return prompt.String()
}
