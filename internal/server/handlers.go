package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/enrich"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/ingest"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/resolve"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

const dateLayout = "2006-01-02"

// orderView is an Order as the API shows it.
type orderView struct {
	*models.Order
	// ManualOverrideAvailable invites the user to enter a deadline or a
	// merchant rule instead of seeing an error.
	ManualOverrideAvailable bool `json:"manual_override_available"`
}

func viewOf(o *models.Order) orderView {
	manual := o.OrderStatus == models.OrderStatusActive && o.DeadlineConfidence == models.ConfidenceUnknown
	return orderView{Order: o, ManualOverrideAvailable: manual}
}

func viewsOf(list []*models.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, viewOf(o))
	}
	return out
}

type orderRequest struct {
	MerchantDomain        string   `json:"merchant_domain" binding:"required"`
	MerchantDisplayName   string   `json:"merchant_display_name"`
	OrderID               string   `json:"order_id" binding:"omitempty,max=64"`
	TrackingNumber        string   `json:"tracking_number" binding:"omitempty,max=64"`
	ItemSummary           string   `json:"item_summary" binding:"omitempty,max=500"`
	Amount                *float64 `json:"amount" binding:"omitempty,gte=0"`
	PurchaseDate          string   `json:"purchase_date" binding:"omitempty,datetime=2006-01-02"`
	ShipDate              string   `json:"ship_date" binding:"omitempty,datetime=2006-01-02"`
	DeliveryDate          string   `json:"delivery_date" binding:"omitempty,datetime=2006-01-02"`
	EstimatedDeliveryDate string   `json:"estimated_delivery_date" binding:"omitempty,datetime=2006-01-02"`
	FinalSale             bool     `json:"final_sale"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=active returned dismissed cancelled"`
}

type deadlineRequest struct {
	ReturnByDate string `json:"return_by_date" binding:"required,datetime=2006-01-02"`
}

type mergeRequest struct {
	SourceKey string `json:"source_key" binding:"required"`
	Reason    string `json:"reason" binding:"omitempty,max=200"`
}

type ruleRequest struct {
	ReturnWindowDays *int `json:"return_window_days" binding:"required,gte=0,lte=365"`
}

type scanRequest struct {
	After  string `json:"after" binding:"omitempty,datetime=2006-01-02"`
	Before string `json:"before" binding:"omitempty,datetime=2006-01-02"`
}

func (s *Server) listOrders(c *gin.Context) {
	list, err := s.tracker.GetAllOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": viewsOf(list)})
}

func (s *Server) listDeadlines(c *gin.Context) {
	list, err := s.tracker.GetOrdersWithDeadlines(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": viewsOf(list)})
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.tracker.GetOrder(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o))
}

func (s *Server) upsertOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	draft := &models.Order{
		MerchantDomain:        req.MerchantDomain,
		MerchantDisplayName:   req.MerchantDisplayName,
		OrderID:               req.OrderID,
		TrackingNumber:        req.TrackingNumber,
		ItemSummary:           req.ItemSummary,
		Amount:                req.Amount,
		PurchaseDate:          parseDate(req.PurchaseDate),
		ShipDate:              parseDate(req.ShipDate),
		DeliveryDate:          parseDate(req.DeliveryDate),
		EstimatedDeliveryDate: parseDate(req.EstimatedDeliveryDate),
		FinalSale:             req.FinalSale,
	}
	o, out, err := s.tracker.UpsertOrder(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if out.Action == resolve.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"action": out.Action, "order": viewOf(o)})
}

func (s *Server) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.tracker.UpdateOrderStatus(c.Request.Context(), c.Param("key"), models.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o))
}

func (s *Server) setDeadline(c *gin.Context) {
	var req deadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.tracker.SetManualDeadline(c.Request.Context(), c.Param("key"), *parseDate(req.ReturnByDate))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o))
}

func (s *Server) invalidateEvidence(c *gin.Context) {
	o, err := s.tracker.InvalidateEvidence(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o))
}

func (s *Server) enrichOrder(c *gin.Context) {
	out, err := s.tracker.EnrichOrder(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrichView(out))
}

func enrichView(out enrich.Outcome) gin.H {
	body := gin.H{
		"order_key":                 out.OrderKey,
		"enriched":                  out.Enriched,
		"examined":                  out.Examined,
		"before":                    out.Before,
		"after":                     out.After,
		"manual_override_available": out.ManualOverrideSuggested,
	}
	if out.Skipped != "" {
		body["skipped"] = out.Skipped
	}
	if out.Enriched {
		body["evidence_message_id"] = out.EvidenceMessageID
		body["evidence_quote"] = out.EvidenceQuote
	}
	if out.Order != nil {
		body["order"] = viewOf(out.Order)
	}
	return body
}

func (s *Server) mergeOrders(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.tracker.MergeOrders(c.Request.Context(), c.Param("key"), req.SourceKey, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o))
}

func (s *Server) listRules(c *gin.Context) {
	rules, err := s.tracker.ListMerchantRules(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (s *Server) setRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rule, err := s.tracker.SetMerchantRule(c.Request.Context(), c.Param("domain"), *req.ReturnWindowDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRule(c *gin.Context) {
	if err := s.tracker.DeleteMerchantRule(c.Request.Context(), c.Param("domain")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) startScan(c *gin.Context) {
	var req scanRequest
	// an empty body scans the configured lookback
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	q := mailbox.Query{}
	if d := parseDate(req.After); d != nil {
		q.After = *d
	}
	if d := parseDate(req.Before); d != nil {
		q.Before = *d
	}

	report, err := s.tracker.Scan(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// parseDate reads a date already checked by binding. Empty yields nil.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrScanInProgress):
		status = http.StatusConflict
	case errors.Is(err, tracker.ErrInvalidStatus),
		errors.Is(err, tracker.ErrInvalidRule),
		errors.Is(err, tracker.ErrInvalidOrder),
		errors.Is(err, resolve.ErrSelfMerge),
		errors.Is(err, resolve.ErrIdentifierConflict):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("server: request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
