package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
)

var (
	fixtureOut    string
	fixtureStart  string
	fixtureOrders int
)

var generateCmd = &cobra.Command{
	Use:   "generate-fixtures",
	Short: "Generate a sample mailbox fixture",
	Long: `Write a JSON mailbox fixture that the file mailbox source can serve.

Each generated purchase gets a confirmation, a shipping notice and a
delivery notice spread over a couple of weeks. Some carry a return policy
in the body, some only an order number, and some neither, so that
linking, fuzzy matching and enrichment all have something to do.
Marketing mail, a social notification and a cancellation are mixed in.`,
	RunE: generateFixtures,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&fixtureOut, "out", "deploy/mailbox.json", "Output file")
	generateCmd.Flags().StringVar(&fixtureStart, "start", "", "Date of the first purchase (YYYY-MM-DD, default 30 days ago)")
	generateCmd.Flags().IntVar(&fixtureOrders, "orders", 6, "Number of purchases to generate")
}

type sampleMerchant struct {
	name   string
	sender string
	item   string
	amount float64
	// policy is the return-policy sentence put in the shipping body, if any.
	policy string
	// withOrderID controls whether later messages repeat the order number.
	withOrderID bool
}

var sampleMerchants = []sampleMerchant{
	{"Trail Outfitters", "orders@trailoutfitters.com", "Alpine 2 Tent", 249.00, "You may return unworn items within 45 days of delivery.", false},
	{"Northwind Books", "no-reply@northwindbooks.com", "The Pragmatic Gardener", 32.50, "", true},
	{"Lumen Home", "hello@lumenhome.co", "Linen Duvet Cover, Queen", 189.00, "Returns accepted within 30 days of purchase.", true},
	{"Cobalt Audio", "support@cobaltaudio.com", "Studio Monitor Headphones", 129.99, "This item is final sale and cannot be returned.", true},
	{"Greenleaf Market", "orders@greenleafmarket.com", "Ceramic Planter Set", 58.00, "", false},
	{"Summit Cycles", "shop@summitcycles.com", "Trail Helmet", 94.95, "", true},
}

func generateFixtures(cmd *cobra.Command, args []string) error {
	start := time.Now().UTC().AddDate(0, 0, -30).Truncate(24 * time.Hour)
	if fixtureStart != "" {
		d, err := parseDateFlag("start", fixtureStart)
		if err != nil {
			return err
		}
		start = d
	}
	if fixtureOrders <= 0 {
		return fmt.Errorf("--orders must be positive")
	}

	fmt.Printf("🏭 Generating %d purchase%s starting %s...\n", fixtureOrders, plural(fixtureOrders), start.Format(dateLayout))

	var msgs []mailbox.FixtureMessage
	for i := 0; i < fixtureOrders; i++ {
		m := sampleMerchants[i%len(sampleMerchants)]
		placed := start.AddDate(0, 0, i*2).Add(time.Duration(9+i%8) * time.Hour)
		msgs = append(msgs, purchaseMessages(m, i, placed)...)
		fmt.Printf("   🛍️  %s: %s\n", m.name, m.item)
	}
	msgs = append(msgs, noiseMessages(start, fixtureOrders)...)

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	if dir := filepath.Dir(fixtureOut); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(fixtureOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write fixture: %w", err)
	}

	fmt.Printf("✅ Wrote %d messages to %s\n", len(msgs), fixtureOut)
	fmt.Printf("💡 Point mailbox.fixture_path at it and run: shopq scan --after %s\n", start.Format(dateLayout))
	return nil
}

// purchaseMessages renders the confirmation, shipping and delivery mail of
// one purchase. Only the confirmation always carries the order number.
func purchaseMessages(m sampleMerchant, n int, placed time.Time) []mailbox.FixtureMessage {
	orderID := fmt.Sprintf("SQ%05d", 10231+n*37)
	tracking := fmt.Sprintf("1Z999AA1%010d", 123456784+n*1111)
	from := fmt.Sprintf("%s <%s>", m.name, m.sender)
	shipped := placed.AddDate(0, 0, 2)
	eta := placed.AddDate(0, 0, 6)
	delivered := placed.AddDate(0, 0, 5)

	ref := ""
	if m.withOrderID {
		ref = fmt.Sprintf("Order #%s\n", orderID)
	}

	confirmation := fmt.Sprintf("Thank you for your order!\nOrder #%s\nOrdered on %s\n%s\nOrder total: $%.2f\n",
		orderID, placed.Format("January 2, 2006"), m.item, m.amount)
	shipping := fmt.Sprintf("Good news, your %s has shipped.\n%sTracking number: %s\nEstimated delivery: %s\n",
		m.item, ref, tracking, eta.Format("January 2, 2006"))
	if m.policy != "" {
		shipping += "\n" + m.policy + "\n"
	}
	delivery := fmt.Sprintf("Your package was delivered on %s.\n%sTracking number: %s\n",
		delivered.Format("January 2, 2006"), ref, tracking)

	return []mailbox.FixtureMessage{
		fixtureMessage(placed, uuid.NewString(), from, fmt.Sprintf("Order confirmation: %s", m.item), confirmation),
		fixtureMessage(shipped, uuid.NewString(), from, fmt.Sprintf("Your %s has shipped", m.item), shipping),
		fixtureMessage(delivered, uuid.NewString(), from, fmt.Sprintf("Delivered: %s", m.item), delivery),
	}
}

func noiseMessages(start time.Time, n int) []mailbox.FixtureMessage {
	day := func(d int) time.Time { return start.AddDate(0, 0, d).Add(15 * time.Hour) }
	return []mailbox.FixtureMessage{
		fixtureMessage(day(1), uuid.NewString(), "Trail Outfitters <newsletter@trailoutfitters.com>",
			"Sale ends Sunday: 30% off tents",
			"Our spring sale ends Sunday. Unsubscribe at any time."),
		fixtureMessage(day(3), uuid.NewString(), "Lumen Home <hello@lumenhome.co>",
			"Rate your purchase",
			"How did we do? Rate your purchase and get 10% off your next order."),
		fixtureMessage(day(4), uuid.NewString(), "Photo Friends <notify@facebookmail.com>",
			"You have 3 new notifications",
			"See what your friends are up to."),
		fixtureMessage(day(n*2+1), uuid.NewString(), "Greenleaf Market <orders@greenleafmarket.com>",
			"Your order has been cancelled",
			fmt.Sprintf("Your order has been cancelled.\nOrder #SQ%05d\nA refund of $24.00 is on its way.\n", 99001)),
	}
}

func fixtureMessage(at time.Time, thread, from, subject, body string) mailbox.FixtureMessage {
	snippet := body
	if len(snippet) > 90 {
		snippet = snippet[:90]
	}
	return mailbox.FixtureMessage{
		Message: mailbox.Message{
			ID:         uuid.NewString(),
			ThreadID:   thread,
			ReceivedAt: at,
			From:       from,
			Subject:    subject,
			Snippet:    snippet,
		},
		Body: body,
	}
}
