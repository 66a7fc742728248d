package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm/generate"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/logging"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

// demo replays a small mailbox through the whole pipeline in memory: one
// purchase whose confirmation, shipping and delivery mails share no
// identifier, one with an order number, and some marketing noise.
func main() {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	logging.Setup(cfg.Log)

	base := time.Now().UTC().AddDate(0, 0, -10).Truncate(24 * time.Hour)
	at := func(d, h int) time.Time { return base.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour) }
	const trail = "Trail Outfitters <orders@trailoutfitters.com>"
	const books = "Northwind Books <no-reply@northwindbooks.com>"

	source := mailbox.NewFileSource([]mailbox.FixtureMessage{
		message("msg-1", at(0, 9), trail, "Thanks for your order: Blue Hiking Boots Size 10",
			"Thanks for shopping with Trail Outfitters. Your items will ship soon."),
		message("msg-2", at(0, 11), books, "Order confirmation: The Pragmatic Gardener",
			"Thank you for your order!\nOrder #NB-20931\nOrder total: $32.50\n"),
		message("msg-3", at(1, 8), "Trail Outfitters <newsletter@trailoutfitters.com>", "Sale ends Sunday: 30% off tents",
			"Our spring sale ends Sunday. Unsubscribe at any time."),
		message("msg-4", at(2, 14), trail, "Your Blue Hiking Boots have shipped",
			"Tracking number: 1Z999AA10123456784\nEstimated delivery: "+at(6, 0).Format("January 2, 2006")),
		message("msg-5", at(3, 10), books, "Your order #NB-20931 has shipped",
			"Order #NB-20931 is on its way.\nReturns accepted within 30 days of delivery."),
		message("msg-6", at(5, 16), trail, "Delivered: Blue Hiking Boots",
			"Your package was left at the front door.\nReturn within 45 days of delivery for a full refund."),
	})

	svc := tracker.Assemble(cfg, tracker.Deps{
		Repo:      orders.NewRepository(store.NewMemoryKV()),
		Source:    source,
		Generator: generate.NewMockGenerator(cfg.LLM.Generator.Model),
	})
	ctx := context.Background()

	fmt.Println("=== Scanning mailbox ===")
	report, err := svc.Scan(ctx, mailbox.Query{After: base})
	if err != nil {
		log.Fatalf("Failed to scan mailbox: %v", err)
	}
	fmt.Printf("Listed %d, created %d, linked %d, blocked %d, ignored %d\n",
		report.Listed, report.Created, report.Linked, report.Blocked, report.Ignored)
	show(ctx, svc)

	fmt.Println("\n=== Adding merchant rule trailoutfitters.com: 30 days ===")
	if _, err := svc.SetMerchantRule(ctx, "trailoutfitters.com", 30); err != nil {
		log.Fatalf("Failed to set rule: %v", err)
	}
	show(ctx, svc)

	fmt.Println("\n=== Enriching pending orders ===")
	outcomes, err := svc.EnrichPending(ctx)
	if err != nil {
		log.Fatalf("Failed to enrich: %v", err)
	}
	for _, out := range outcomes {
		fmt.Printf("%s: %s -> %s", out.OrderKey[:8], out.Before, out.After)
		if out.Enriched {
			fmt.Printf(" from %s (%q)", out.EvidenceMessageID, out.EvidenceQuote)
		}
		fmt.Println()
	}
	show(ctx, svc)

	fmt.Println("\n=== Rescanning ===")
	report, err = svc.Scan(ctx, mailbox.Query{After: base})
	if err != nil {
		log.Fatalf("Failed to rescan mailbox: %v", err)
	}
	fmt.Printf("Listed %d, duplicates %d, created %d\n", report.Listed, report.Duplicates, report.Created)

	problems, err := svc.Verify(ctx)
	if err != nil {
		log.Fatalf("Failed to verify: %v", err)
	}
	fmt.Printf("Index problems: %d\n", len(problems))
}

func show(ctx context.Context, svc *tracker.Service) {
	all, err := svc.GetAllOrders(ctx)
	if err != nil {
		log.Fatalf("Failed to list orders: %v", err)
	}
	for _, o := range all {
		deadline := "none"
		if o.ReturnByDate != nil {
			deadline = o.ReturnByDate.Format(models.DateLayout)
		}
		fmt.Printf("  %s %-22s %-28s emails=%d return_by=%s (%s)\n",
			o.OrderKey[:8], o.NormalizedMerchant, o.ItemSummary, len(o.SourceEmailIDs), deadline, o.DeadlineConfidence)
	}
}

func message(id string, at time.Time, from, subject, body string) mailbox.FixtureMessage {
	return mailbox.FixtureMessage{
		Message: mailbox.Message{ID: id, ThreadID: id, ReceivedAt: at, From: from, Subject: subject, Snippet: subject},
		Body:    body,
	}
}
