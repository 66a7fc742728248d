package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

var (
	listDeadlinesOnly bool
	listStatus        string
	mergeReason       string
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect and correct tracked orders",
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders",
	Args:  cobra.NoArgs,
	RunE:  listOrders,
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <order-key>",
	Short: "Show one order in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  showOrder,
}

var ordersStatusCmd = &cobra.Command{
	Use:   "status <order-key> <active|returned|dismissed|cancelled>",
	Short: "Set an order's status",
	Args:  cobra.ExactArgs(2),
	RunE:  setOrderStatus,
}

var ordersDeadlineCmd = &cobra.Command{
	Use:   "deadline <order-key> <YYYY-MM-DD>",
	Short: "Enter a return deadline by hand",
	Args:  cobra.ExactArgs(2),
	RunE:  setOrderDeadline,
}

var ordersInvalidateCmd = &cobra.Command{
	Use:   "invalidate <order-key>",
	Short: "Drop an order's deadline evidence and fall back to rules",
	Args:  cobra.ExactArgs(1),
	RunE:  invalidateOrder,
}

var ordersMergeCmd = &cobra.Command{
	Use:   "merge <target-key> <source-key>",
	Short: "Merge two orders that are the same purchase",
	Args:  cobra.ExactArgs(2),
	RunE:  mergeOrders,
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd, ordersShowCmd, ordersStatusCmd, ordersDeadlineCmd, ordersInvalidateCmd, ordersMergeCmd)

	ordersListCmd.Flags().BoolVar(&listDeadlinesOnly, "deadlines", false, "Only active orders with a known deadline, soonest first")
	ordersListCmd.Flags().StringVar(&listStatus, "status", "", "Only orders with this status")
	ordersMergeCmd.Flags().StringVar(&mergeReason, "reason", "", "Reason recorded in the merge history")
}

func listOrders(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	var list []*models.Order
	if listDeadlinesOnly {
		list, err = svc.GetOrdersWithDeadlines(cmd.Context())
	} else {
		list, err = svc.GetAllOrders(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("failed to list orders: %w", err)
	}

	if listStatus != "" {
		filtered := list[:0]
		for _, o := range list {
			if string(o.OrderStatus) == listStatus {
				filtered = append(filtered, o)
			}
		}
		list = filtered
	}

	if len(list) == 0 {
		fmt.Println("📭 No orders found")
		fmt.Println("💡 Try running: shopq scan")
		return nil
	}

	fmt.Printf("📦 %d order%s:\n", len(list), plural(len(list)))
	fmt.Println(strings.Repeat("─", 80))
	for _, o := range list {
		fmt.Printf("%s %-10s %-24s %-28s %s\n",
			confidenceIcon(o), o.OrderKey[:min(8, len(o.OrderKey))], truncate(o.NormalizedMerchant, 24),
			truncate(o.ItemSummary, 28), deadlineText(o))
	}
	return nil
}

func showOrder(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := svc.GetOrder(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printOrder(o)
	return nil
}

func setOrderStatus(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := svc.UpdateOrderStatus(cmd.Context(), args[0], models.OrderStatus(args[1]))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	fmt.Printf("✅ %s is now %s\n", o.OrderKey, o.OrderStatus)
	return nil
}

func setOrderDeadline(cmd *cobra.Command, args []string) error {
	returnBy, err := parseDateFlag("date", args[1])
	if err != nil {
		return err
	}

	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := svc.SetManualDeadline(cmd.Context(), args[0], returnBy)
	if err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	fmt.Printf("✅ %s: return by %s (%s)\n", o.OrderKey, o.ReturnByDate.Format(dateLayout), o.DeadlineConfidence)
	return nil
}

func invalidateOrder(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := svc.InvalidateEvidence(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to invalidate evidence: %w", err)
	}
	fmt.Printf("✅ %s: %s\n", o.OrderKey, deadlineText(o))
	return nil
}

func mergeOrders(cmd *cobra.Command, args []string) error {
	svc, _, closeStore, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := svc.MergeOrders(cmd.Context(), args[0], args[1], mergeReason)
	if err != nil {
		return err
	}
	fmt.Printf("🧩 Merged %s into %s\n", args[1], o.OrderKey)
	printOrder(o)
	return nil
}

func printOrder(o *models.Order) {
	fmt.Printf("\n📦 Order %s\n", o.OrderKey)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("   🏪 Merchant:   %s (%s)\n", o.MerchantDisplayName, o.NormalizedMerchant)
	if o.ItemSummary != "" {
		fmt.Printf("   🛍️  Item:       %s\n", o.ItemSummary)
	}
	if o.OrderID != "" {
		fmt.Printf("   🔖 Order ID:   %s\n", o.OrderID)
	}
	if o.TrackingNumber != "" {
		fmt.Printf("   🚚 Tracking:   %s\n", o.TrackingNumber)
	}
	if o.Amount != nil {
		fmt.Printf("   💵 Amount:     %.2f\n", *o.Amount)
	}
	printDate("🛒 Purchased: ", o.PurchaseDate)
	printDate("📤 Shipped:   ", o.ShipDate)
	printDate("📬 Delivered: ", o.DeliveryDate)
	printDate("🗓️  Expected:  ", o.EstimatedDeliveryDate)
	fmt.Printf("   📊 Status:     %s\n", o.OrderStatus)
	fmt.Printf("   %s Deadline:   %s\n", confidenceIcon(o), deadlineText(o))
	if o.WindowSource != models.WindowSourceNone {
		fmt.Printf("   📏 Source:     %s\n", o.WindowSource)
	}
	if o.EvidenceQuote != "" {
		fmt.Printf("   📝 Evidence:   %q (%s)\n", o.EvidenceQuote, o.EvidenceMessageID)
	}
	fmt.Printf("   ✉️  Emails:     %s\n", strings.Join(o.SourceEmailIDs, ", "))
	for _, m := range o.MergeHistory {
		fmt.Printf("   🧩 Merged %s at %s: %s\n", m.SourceKey, m.MergedAt.Format("2006-01-02 15:04"), m.Reason)
	}
	if o.OrderStatus == models.OrderStatusActive && o.DeadlineConfidence == models.ConfidenceUnknown {
		fmt.Printf("\n💡 No deadline yet: shopq orders deadline %s <YYYY-MM-DD> or shopq rules set %s <days>\n",
			o.OrderKey, o.NormalizedMerchant)
	}
}

func printDate(label string, t *time.Time) {
	if t == nil {
		return
	}
	fmt.Printf("   %s %s\n", label, t.Format(dateLayout))
}

func deadlineText(o *models.Order) string {
	switch {
	case o.FinalSale:
		return "final sale"
	case o.ReturnByDate == nil:
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", o.ReturnByDate.Format(dateLayout), o.DeadlineConfidence)
}

func confidenceIcon(o *models.Order) string {
	if o.OrderStatus != models.OrderStatusActive {
		return "⚪"
	}
	switch o.DeadlineConfidence {
	case models.ConfidenceExact:
		return "🟢"
	case models.ConfidenceEstimated:
		return "🟡"
	}
	return "🔴"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
