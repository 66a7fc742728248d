package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/filter"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/lifecycle"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/resolve"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
)

var (
	may1  = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	clock = func() time.Time { return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC) }
)

type env struct {
	repo    *orders.Repository
	source  *mailbox.FileSource
	scanner *Scanner
}

func newEnv(t *testing.T, src mailbox.Source) *env {
	t.Helper()
	e := &env{repo: orders.NewRepository(store.NewMemoryKV())}
	if src == nil {
		e.source = mailbox.NewFileSource(nil)
		src = e.source
	}
	resolver := resolve.NewEngine(e.repo, lifecycle.NewEngine(0), resolve.Options{
		Threshold:      0.60,
		TimeWindowDays: 14,
		ThreadHints:    true,
	}).WithClock(clock)
	e.scanner = NewScanner(e.repo, src, resolver, 90*24*time.Hour).WithClock(clock)
	return e
}

func fixture(id string, at time.Time, from, subject, snippet, body string) mailbox.FixtureMessage {
	return mailbox.FixtureMessage{
		Message: mailbox.Message{ID: id, ThreadID: "t-" + id, ReceivedAt: at, From: from, Subject: subject, Snippet: snippet},
		Body:    body,
	}
}

const acmeSender = "Acme Store <orders@acme.com>"

func TestScan_CreatesAndLinksByOrderID(t *testing.T) {
	e := newEnv(t, nil)
	e.source.Add(fixture("m1", may1, acmeSender, "Order confirmed: Walnut Desk", "Order #A12345 placed.", "Order total: $249.00"))
	e.source.Add(fixture("m2", may1.AddDate(0, 0, 2), acmeSender, "Your Walnut Desk has shipped", "Order #A12345 Tracking number: 1Z999AA10123456784", ""))

	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Listed)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Linked)
	assert.Zero(t, report.Failed)

	all, err := e.repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	o := all[0]
	assert.Equal(t, "A12345", o.OrderID)
	assert.Equal(t, "1Z999AA10123456784", o.TrackingNumber)
	assert.Equal(t, "Walnut Desk", o.ItemSummary)
	assert.Equal(t, 249.0, *o.Amount)
	assert.Equal(t, *models.DayPtr(may1), *o.PurchaseDate)
	assert.Equal(t, *models.DayPtr(may1.AddDate(0, 0, 2)), *o.ShipDate)
	assert.Equal(t, []string{"m1", "m2"}, o.SourceEmailIDs)

	em, err := e.repo.GetEmail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.EmailTypeConfirmation, em.EmailType)
	assert.True(t, em.Extracted.BodyFetched)
	assert.Equal(t, o.OrderKey, em.OrderKey)
}

func TestScan_Idempotent(t *testing.T) {
	e := newEnv(t, nil)
	e.source.Add(fixture("m1", may1, acmeSender, "Order confirmed: Walnut Desk", "Order #A12345 placed.", ""))

	_, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Duplicates)
	assert.Zero(t, report.Created)

	all, err := e.repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"m1"}, all[0].SourceEmailIDs)
}

func TestScan_BlockedAndIgnored(t *testing.T) {
	e := newEnv(t, nil)
	e.source.Add(fixture("promo", may1, "Acme <deals@acme.com>", "20% off everything", "Shop now", ""))
	e.source.Add(fixture("bad", may1, "not an address", "Order confirmed", "x", ""))
	e.source.Add(fixture("note", may1, acmeSender, "A note from our founder", "We love our customers.", "Nothing to see."))

	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Blocked)
	assert.Equal(t, 1, report.Ignored)

	all, err := e.repo.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	promo, err := e.repo.GetEmail(context.Background(), "promo")
	require.NoError(t, err)
	assert.True(t, promo.Blocked)
	assert.Equal(t, filter.ReasonDeniedSender, promo.BlockReason)

	bad, err := e.repo.GetEmail(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, filter.ReasonMalformedSender, bad.BlockReason)

	note, err := e.repo.GetEmail(context.Background(), "note")
	require.NoError(t, err)
	assert.False(t, note.Blocked)
	assert.Empty(t, note.OrderKey)
}

func TestScan_Cancellation(t *testing.T) {
	e := newEnv(t, nil)
	e.source.Add(fixture("m1", may1, acmeSender, "Order confirmed: Walnut Desk", "Order #A12345 placed.", ""))
	e.source.Add(fixture("m2", may1.Add(time.Hour), acmeSender, "Your order has been cancelled", "Order #A12345 was cancelled at your request.", ""))

	_, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)

	all, err := e.repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.OrderStatusCancelled, all[0].OrderStatus)
}

func TestScan_LookbackBoundsListing(t *testing.T) {
	e := newEnv(t, nil)
	e.source.Add(fixture("old", clock().AddDate(0, 0, -120), acmeSender, "Order confirmed: Lamp", "Order #B1234 placed.", ""))
	e.source.Add(fixture("new", may1, acmeSender, "Order confirmed: Walnut Desk", "Order #A12345 placed.", ""))

	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Listed)
}

func TestSession_Exclusive(t *testing.T) {
	e := newEnv(t, nil)

	session, err := e.scanner.Begin()
	require.NoError(t, err)

	_, err = e.scanner.Begin()
	assert.ErrorIs(t, err, ErrScanInProgress)
	_, err = e.scanner.Scan(context.Background(), mailbox.Query{})
	assert.ErrorIs(t, err, ErrScanInProgress)

	session.End()
	session.End()

	_, err = e.scanner.Process(context.Background(), session, mailbox.Message{ID: "m1"})
	assert.ErrorIs(t, err, ErrSessionClosed)

	next, err := e.scanner.Begin()
	require.NoError(t, err)
	next.End()
}

type flakySource struct {
	mock.Mock
}

func (f *flakySource) List(ctx context.Context, q mailbox.Query) ([]mailbox.Message, error) {
	args := f.Called()
	return args.Get(0).([]mailbox.Message), args.Error(1)
}

func (f *flakySource) FetchBody(ctx context.Context, id string) (string, error) {
	args := f.Called(id)
	return args.String(0), args.Error(1)
}

func TestScan_FetchFailureLeavesMessageUnrecorded(t *testing.T) {
	src := &flakySource{}
	src.On("List").Return([]mailbox.Message{
		{ID: "m1", ReceivedAt: may1, From: acmeSender, Subject: "Thanks for your order: Lamp", Snippet: "We got it."},
	}, nil)
	src.On("FetchBody", "m1").Return("", errors.New("connection reset"))

	e := newEnv(t, src)
	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)

	_, err = e.repo.GetEmail(context.Background(), "m1")
	assert.ErrorIs(t, err, orders.ErrEmailNotFound)
}

func TestScan_MissingBodyFallsBackToHeaders(t *testing.T) {
	src := &flakySource{}
	src.On("List").Return([]mailbox.Message{
		{ID: "m1", ReceivedAt: may1, From: acmeSender, Subject: "Thanks for your order: Lamp", Snippet: "We got it."},
	}, nil)
	src.On("FetchBody", "m1").Return("", mailbox.ErrMessageNotFound)

	e := newEnv(t, src)
	report, err := e.scanner.Scan(context.Background(), mailbox.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestDefaultAnchors(t *testing.T) {
	estimate := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)

	var f models.ExtractedFields
	defaultAnchors(&f, models.EmailTypeConfirmation, may1)
	assert.Equal(t, *models.DayPtr(may1), *f.PurchaseDate)

	f = models.ExtractedFields{EstimatedDeliveryDate: &estimate}
	defaultAnchors(&f, models.EmailTypeDelivery, may1)
	assert.Equal(t, *models.DayPtr(may1), *f.DeliveryDate)
	assert.Nil(t, f.EstimatedDeliveryDate)

	f = models.ExtractedFields{}
	defaultAnchors(&f, models.EmailTypeOther, may1)
	assert.Nil(t, f.PurchaseDate)
	assert.Nil(t, f.ShipDate)
}
