package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/document"
	"github.com/buildmart/storefront/internal/order"
	"github.com/buildmart/storefront/internal/state"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/events"
	"github.com/buildmart/storefront/pkg/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	err   error
	calls int
	last  document.Order
}

func (s *stubRenderer) Render(o document.Order) (document.Document, error) {
	s.calls++
	s.last = o
	if s.err != nil {
		return document.Document{}, s.err
	}
	return document.Document{Bytes: []byte("%PDF-1.3 stub"), Pages: 1}, nil
}

type stubMailer struct {
	mu    sync.Mutex
	err   error
	sent  []mail.Message
	entry chan struct{}
	gate  chan struct{}
}

func (s *stubMailer) Send(ctx context.Context, msg mail.Message) error {
	if s.entry != nil {
		s.entry <- struct{}{}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, e events.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type harness struct {
	svc      Service
	reg      *state.Registry
	kv       *state.MemoryKV
	renderer *stubRenderer
	mailer   *stubMailer
	emitter  *recordingEmitter
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, renderer *stubRenderer, mailer *stubMailer) harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	kv := state.NewMemoryKV()
	reg, err := state.NewRegistry(state.RegistryParams{KV: kv})
	require.NoError(t, err)
	emitter := &recordingEmitter{}
	svc, err := NewService(ServiceParams{
		Sessions:      reg,
		Catalog:       cat,
		Renderer:      renderer,
		Mailer:        mailer,
		Events:        emitter,
		OperatorEmail: "operator@buildmart.local",
		Currency:      "RUB",
		Timeout:       5 * time.Second,
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return harness{svc: svc, reg: reg, kv: kv, renderer: renderer, mailer: mailer, emitter: emitter}
}

func seed(t *testing.T, h harness, sessionID string) *state.Store {
	t.Helper()
	ctx := context.Background()
	store, err := h.reg.Session(ctx, sessionID)
	require.NoError(t, err)
	require.NoError(t, store.SetCart(ctx, []state.CartEntry{
		{ProductID: 1001, Quantity: 10, Price: decimal.NewFromInt(360), BulkPrice: true},
	}))
	require.NoError(t, store.SetFavorites(ctx, []state.FavoriteEntry{{ProductID: 1002}}))
	return store
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	cat, err := catalog.Default()
	require.NoError(t, err)
	reg, err := state.NewRegistry(state.RegistryParams{KV: state.NewMemoryKV()})
	require.NoError(t, err)
	_, err = NewService(ServiceParams{Sessions: reg, Catalog: cat, Renderer: &stubRenderer{}, Mailer: &stubMailer{}})
	require.Error(t, err, "operator address is mandatory")
}

func TestSubmitRejectsEmptyCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{}, &stubMailer{})

	_, err := h.svc.Submit(context.Background(), "empty", Input{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 0, h.renderer.calls)
	assert.Equal(t, StateIdle, h.svc.Status("empty").State)
}

func TestSubmitSuccessClearsCartKeepsFavorites(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{}, &stubMailer{})
	store := seed(t, h, "s1")

	res, err := h.svc.Submit(context.Background(), "s1", Input{})
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF-1.3 stub"), res.Document)
	assert.Equal(t, 1, res.Pages)
	assert.NotEmpty(t, res.Reference)
	assert.True(t, res.Summary.Total.Equal(decimal.NewFromInt(4820)), "total %s", res.Summary.Total)
	assert.Empty(t, res.Warnings)

	assert.Empty(t, store.Cart())
	assert.Len(t, store.Favorites(), 1)

	require.Len(t, h.mailer.sent, 1)
	msg := h.mailer.sent[0]
	assert.Equal(t, "operator@buildmart.local", msg.To)
	assert.Equal(t, "New order", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "order.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Contains(t, msg.HTML, "4820.00 RUB")
	assert.Contains(t, msg.HTML, "VAT (20%)")

	line := h.renderer.last.Lines[0]
	assert.Equal(t, 10, line.Quantity)
	assert.True(t, line.LineTotal.Equal(decimal.NewFromInt(3600)))
	assert.Equal(t, fixedNow, h.renderer.last.Date)

	require.Len(t, h.emitter.events, 1)
	assert.Equal(t, events.TypeOrderPlaced, h.emitter.events[0].Type)

	status := h.svc.Status("s1")
	assert.Equal(t, StateSuccess, status.State)
	assert.Equal(t, res.Reference, status.Reference)
}

func TestSubmitRenderFailureLeavesCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{err: errors.New("font missing")}, &stubMailer{})
	store := seed(t, h, "s1")

	_, err := h.svc.Submit(context.Background(), "s1", Input{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDocument))
	assert.Len(t, store.Cart(), 1)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, h.emitter.events)

	status := h.svc.Status("s1")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "order document could not be generated", status.Error)
}

func TestSubmitDispatchFailureLeavesCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{}, &stubMailer{err: errors.New("sendgrid down")})
	store := seed(t, h, "s1")

	_, err := h.svc.Submit(context.Background(), "s1", Input{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDispatch))
	assert.Len(t, store.Cart(), 1)
	assert.Equal(t, StateFailed, h.svc.Status("s1").State)

	// a failed attempt can be retried manually
	h.mailer.err = nil
	_, err = h.svc.Submit(context.Background(), "s1", Input{})
	require.NoError(t, err)
	assert.Empty(t, store.Cart())
}

func TestSubmitRejectsReentry(t *testing.T) {
	t.Parallel()
	mailer := &stubMailer{entry: make(chan struct{}, 1), gate: make(chan struct{})}
	h := newHarness(t, &stubRenderer{}, mailer)
	seed(t, h, "s1")

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(context.Background(), "s1", Input{})
		done <- err
	}()
	<-mailer.entry

	assert.Equal(t, StateSubmitting, h.svc.Status("s1").State)
	_, err := h.svc.Submit(context.Background(), "s1", Input{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	close(mailer.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, h.svc.Status("s1").State)
}

func TestSubmitKeepsEntriesChangedDuringSend(t *testing.T) {
	t.Parallel()
	mailer := &stubMailer{entry: make(chan struct{}, 1), gate: make(chan struct{})}
	h := newHarness(t, &stubRenderer{}, mailer)
	store := seed(t, h, "s1")

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(context.Background(), "s1", Input{})
		done <- err
	}()
	<-mailer.entry

	_, err := store.UpdateCart(context.Background(), func(c []state.CartEntry) ([]state.CartEntry, error) {
		return append(c, state.CartEntry{ProductID: 1003, Quantity: 2, Price: decimal.NewFromInt(50)}), nil
	})
	require.NoError(t, err)

	close(mailer.gate)
	require.NoError(t, <-done)
	cart := store.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, int64(1003), cart[0].ProductID)
}

func TestSubmitReportsUnsavedClear(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{}, &stubMailer{})
	store := seed(t, h, "s1")
	h.kv.SetErr = errors.New("redis unavailable")

	res, err := h.svc.Submit(context.Background(), "s1", Input{})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.Empty(t, store.Cart())
}

func TestBuildOrderFallsBackForUnknownProduct(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &stubRenderer{}, &stubMailer{})
	svc := h.svc.(*service)

	o := svc.buildOrder([]state.CartEntry{{ProductID: 9999, Quantity: 2, Price: decimal.NewFromInt(10)}})
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Product #9999", o.Lines[0].Name)
	assert.True(t, o.Summary.Subtotal.Equal(decimal.NewFromInt(20)))
	assert.True(t, o.TaxRate.Equal(order.DefaultCalculator().TaxRate))
}
