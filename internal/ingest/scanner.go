// Package ingest scans a mailbox and feeds each purchase message through
// filtering, extraction, classification and resolution.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/classify"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/extract"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/filter"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/resolve"
)

// Result says what happened to one message.
type Result string

const (
	ResultDuplicate Result = "duplicate"
	ResultBlocked   Result = "blocked"
	ResultIgnored   Result = "ignored" // recorded, not a purchase
	ResultCreated   Result = "created"
	ResultLinked    Result = "linked"
	ResultMerged    Result = "merged"
)

// MessageResult is the outcome of Process.
type MessageResult struct {
	EmailID   string           `json:"email_id"`
	Result    Result           `json:"result"`
	Reason    string           `json:"reason,omitempty"`
	EmailType models.EmailType `json:"email_type,omitempty"`
	OrderKey  string           `json:"order_key,omitempty"`
	Action    resolve.Action   `json:"action,omitempty"`
}

// ScanReport summarises one Scan.
type ScanReport struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Listed     int       `json:"listed"`
	Processed  int       `json:"processed"`
	Duplicates int       `json:"duplicates"`
	Blocked    int       `json:"blocked"`
	Ignored    int       `json:"ignored"`
	Created    int       `json:"created"`
	Linked     int       `json:"linked"`
	Merged     int       `json:"merged"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
}

func (r *ScanReport) add(res MessageResult) {
	r.Processed++
	switch res.Result {
	case ResultDuplicate:
		r.Duplicates++
	case ResultBlocked:
		r.Blocked++
	case ResultIgnored:
		r.Ignored++
	case ResultCreated:
		r.Created++
	case ResultLinked:
		r.Linked++
	case ResultMerged:
		r.Merged++
	}
}

type Scanner struct {
	repo      *orders.Repository
	source    mailbox.Source
	extractor *extract.Extractor
	resolver  *resolve.Engine
	lookback  time.Duration

	sem   *semaphore.Weighted
	write sync.Locker
	now   func() time.Time
}

func NewScanner(repo *orders.Repository, source mailbox.Source, resolver *resolve.Engine, lookback time.Duration) *Scanner {
	return &Scanner{
		repo:      repo,
		source:    source,
		extractor: extract.NewExtractor(),
		resolver:  resolver,
		lookback:  lookback,
		sem:       semaphore.NewWeighted(1),
		write:     &sync.Mutex{},
		now:       time.Now,
	}
}

// WithWriteLock shares the lock that serialises every Order mutation.
func (s *Scanner) WithWriteLock(l sync.Locker) *Scanner {
	s.write = l
	return s
}

// WithClock replaces the time source.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Begin claims the scan slot.
func (s *Scanner) Begin() (*Session, error) {
	if !s.sem.TryAcquire(1) {
		return nil, ErrScanInProgress
	}
	return newSession(s.sem, s.now()), nil
}

// Scan lists the messages in q, oldest first, and processes each under one
// Session. A zero q.After defaults to the configured lookback. Failures on
// single messages are counted and leave the message unrecorded so a later
// scan retries it.
func (s *Scanner) Scan(ctx context.Context, q mailbox.Query) (*ScanReport, error) {
	session, err := s.Begin()
	if err != nil {
		return nil, err
	}
	defer session.End()

	if q.After.IsZero() && s.lookback > 0 {
		q.After = s.now().Add(-s.lookback)
	}

	logger := log.With().Str("session_id", session.ID).Logger()
	report := &ScanReport{SessionID: session.ID, StartedAt: session.StartedAt}

	msgs, err := s.source.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	report.Listed = len(msgs)
	logger.Info().Int("messages", len(msgs)).Time("after", q.After).Msg("ingest: scan started")

	for _, msg := range msgs {
		res, err := s.Process(ctx, session, msg)
		if err != nil {
			if ctx.Err() != nil {
				report.FinishedAt = s.now()
				return report, ctx.Err()
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", msg.ID, err))
			logger.Error().Err(err).Str("email_id", msg.ID).Msg("ingest: message failed")
			continue
		}
		report.add(res)
	}

	report.FinishedAt = s.now()
	logger.Info().
		Int("processed", report.Processed).
		Int("created", report.Created).
		Int("linked", report.Linked).
		Int("merged", report.Merged).
		Int("blocked", report.Blocked).
		Int("failed", report.Failed).
		Msg("ingest: scan finished")
	return report, nil
}

// Process runs one message through the pipeline. Messages already recorded
// are skipped.
func (s *Scanner) Process(ctx context.Context, session *Session, msg mailbox.Message) (MessageResult, error) {
	if session == nil || !session.open() {
		return MessageResult{}, ErrSessionClosed
	}
	res := MessageResult{EmailID: msg.ID}

	if _, err := s.repo.GetEmail(ctx, msg.ID); err == nil {
		res.Result = ResultDuplicate
		return res, nil
	} else if !errors.Is(err, orders.ErrEmailNotFound) {
		return res, err
	}

	email := &models.OrderEmail{
		EmailID:    msg.ID,
		ThreadID:   msg.ThreadID,
		ReceivedAt: msg.ReceivedAt,
		Subject:    msg.Subject,
		Snippet:    msg.Snippet,
	}

	decision := filter.Evaluate(filter.Input{From: msg.From, Subject: msg.Subject, Snippet: msg.Snippet})
	email.MerchantDomain = decision.Merchant.Domain
	if decision.Blocked {
		email.Blocked = true
		email.BlockReason = decision.Reason
		email.EmailType = models.EmailTypeOther
		res.Result, res.Reason = ResultBlocked, decision.Reason
		return res, s.record(ctx, email)
	}

	in := extract.Input{
		Subject:    msg.Subject,
		Snippet:    msg.Snippet,
		Merchant:   decision.Merchant.Normalized,
		ReceivedAt: msg.ReceivedAt,
	}
	fields := s.extractor.Extract(in)
	kind := classify.Classify(msg.Subject, msg.Snippet, fields)

	if extract.NeedsBody(fields, kind) {
		body, err := s.source.FetchBody(ctx, msg.ID)
		switch {
		case err == nil:
			in.Body = body
			fields = s.extractor.Extract(in)
			kind = classify.Classify(msg.Subject, msg.Snippet, fields)
		case errors.Is(err, mailbox.ErrMessageNotFound):
			log.Warn().Str("email_id", msg.ID).Msg("ingest: body unavailable, using headers")
		default:
			return res, fmt.Errorf("failed to fetch body: %w", err)
		}
	}
	defaultAnchors(&fields, kind, msg.ReceivedAt)

	email.EmailType = kind
	email.Extracted = fields
	res.EmailType = kind

	if kind == models.EmailTypeOther && !fields.HasIdentifier() {
		res.Result = ResultIgnored
		return res, s.record(ctx, email)
	}

	obs := resolve.Observation{
		EmailID:    msg.ID,
		ThreadID:   msg.ThreadID,
		ReceivedAt: msg.ReceivedAt,
		EmailType:  kind,
		Merchant:   decision.Merchant,
		Fields:     fields,
	}

	s.write.Lock()
	defer s.write.Unlock()
	email.ProcessedAt = s.now()
	out, err := s.resolver.Upsert(ctx, obs, email)
	if err != nil {
		return res, fmt.Errorf("failed to resolve message: %w", err)
	}

	res.OrderKey, res.Action = out.OrderKey, out.Action
	switch out.Action {
	case resolve.ActionCreated:
		res.Result = ResultCreated
	case resolve.ActionMerged:
		res.Result = ResultMerged
	default:
		res.Result = ResultLinked
	}
	return res, nil
}

func (s *Scanner) record(ctx context.Context, email *models.OrderEmail) error {
	s.write.Lock()
	defer s.write.Unlock()
	email.ProcessedAt = s.now()

	tx := s.repo.Begin()
	if err := tx.PutEmail(email); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// defaultAnchors fills the anchor a message type implies from its receipt
// day when no labelled date was found.
func defaultAnchors(f *models.ExtractedFields, kind models.EmailType, received time.Time) {
	switch kind {
	case models.EmailTypeConfirmation:
		if f.PurchaseDate == nil {
			f.PurchaseDate = models.DayPtr(received)
		}
	case models.EmailTypeShipping:
		if f.ShipDate == nil {
			f.ShipDate = models.DayPtr(received)
		}
	case models.EmailTypeDelivery:
		if f.DeliveryDate == nil {
			f.DeliveryDate = models.DayPtr(received)
		}
		f.EstimatedDeliveryDate = nil
	}
}
