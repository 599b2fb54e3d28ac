package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/document"
	"github.com/buildmart/storefront/internal/order"
	"github.com/buildmart/storefront/internal/state"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/events"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/mail"
	"github.com/buildmart/storefront/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultAttachmentName = "order.pdf"
	defaultTimeout        = 30 * time.Second
	pdfContentType        = "application/pdf"
)

// State is the pipeline position of a session.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

type sessions interface {
	Session(ctx context.Context, sessionID string) (*state.Store, error)
}

// ServiceParams groups dependencies for the checkout pipeline.
type ServiceParams struct {
	Sessions       sessions
	Catalog        catalog.Lookup
	Calculator     order.Calculator
	Renderer       document.Renderer
	Mailer         mail.Dispatcher
	Events         events.Emitter
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
	OperatorEmail  string
	AttachmentName string
	Currency       string
	Timeout        time.Duration
	Now            func() time.Time
}

// Service runs the order document pipeline for a session.
type Service interface {
	Submit(ctx context.Context, sessionID string, input Input) (Result, error)
	Status(sessionID string) StatusView
}

// Input carries what the client believes it is ordering. The server always
// recomputes from session state; Input is only compared for logging.
type Input struct {
	ClientSummary *order.Summary
	ClientItems   int
}

// Result is returned after the operator message has been accepted.
type Result struct {
	Reference string
	Document  []byte
	Pages     int
	Summary   order.Summary
	Warnings  []string
}

// StatusView reports the latest pipeline outcome for a session.
type StatusView struct {
	State     State     `json:"state"`
	Reference string    `json:"reference,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

type service struct {
	sessions   sessions
	catalog    catalog.Lookup
	calc       order.Calculator
	renderer   document.Renderer
	mailer     mail.Dispatcher
	events     events.Emitter
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
	operator   string
	attachment string
	currency   string
	timeout    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	statuses map[string]StatusView
}

// NewService validates dependencies and builds the pipeline.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session registry required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("document renderer required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mail dispatcher required")
	}
	if params.OperatorEmail == "" {
		return nil, fmt.Errorf("operator email required")
	}
	calc := params.Calculator
	if calc.TaxRate.IsZero() && calc.ShippingFee.IsZero() {
		calc = order.DefaultCalculator()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	emitter := params.Events
	if emitter == nil {
		emitter = events.NewLogEmitter(logg)
	}
	attachment := params.AttachmentName
	if attachment == "" {
		attachment = defaultAttachmentName
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		sessions:   params.Sessions,
		catalog:    params.Catalog,
		calc:       calc,
		renderer:   params.Renderer,
		mailer:     params.Mailer,
		events:     emitter,
		metrics:    params.Metrics,
		logg:       logg,
		operator:   params.OperatorEmail,
		attachment: attachment,
		currency:   params.Currency,
		timeout:    timeout,
		now:        now,
		statuses:   map[string]StatusView{},
	}, nil
}

// Status returns the last recorded outcome, Idle when none.
func (s *service) Status(sessionID string) StatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.statuses[sessionID]; ok {
		return v
	}
	return StatusView{State: StateIdle}
}

// begin moves the session to Submitting unless it is already there.
func (s *service) begin(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[sessionID].State == StateSubmitting {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress").
			WithDetails(map[string]any{"reason": "CHECKOUT_IN_PROGRESS"})
	}
	s.statuses[sessionID] = StatusView{State: StateSubmitting, UpdatedAt: s.now()}
	return nil
}

func (s *service) finish(sessionID string, view StatusView) {
	view.UpdatedAt = s.now()
	s.mu.Lock()
	s.statuses[sessionID] = view
	s.mu.Unlock()
}

// Submit renders the cart into an order document, mails it to the operator
// and clears the ordered entries from the cart. Any failure leaves the cart
// untouched. There is no automatic retry.
func (s *service) Submit(ctx context.Context, sessionID string, input Input) (Result, error) {
	started := s.now()
	store, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	cart := store.Cart()
	if len(cart) == 0 {
		s.metrics.Observe(metrics.OutcomeRejected, s.now().Sub(started))
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if err := s.begin(sessionID); err != nil {
		s.metrics.Observe(metrics.OutcomeRejected, s.now().Sub(started))
		return Result{}, err
	}

	reference := uuid.NewString()
	ctx = s.logg.WithOrderRef(ctx, reference)
	result, outcome, err := s.run(ctx, reference, cart, input)
	s.metrics.Observe(outcome, s.now().Sub(started))
	if err != nil {
		s.finish(sessionID, StatusView{State: StateFailed, Reference: reference, Error: pkgerrors.PublicMessage(err)})
		s.logg.Error(ctx, "checkout failed", err)
		return Result{}, err
	}

	remaining, clearErr := store.UpdateCart(ctx, func(current []state.CartEntry) ([]state.CartEntry, error) {
		return withoutOrdered(current, cart), nil
	})
	if clearErr != nil {
		result.Warnings = append(result.Warnings, "cart was cleared but the change could not be saved")
	}
	s.finish(sessionID, StatusView{State: StateSuccess, Reference: reference})
	s.publish(ctx, sessionID, reference, cart, result.Summary)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"items":     len(cart),
		"remaining": len(remaining),
		"pages":     result.Pages,
		"total":     result.Summary.Total.String(),
	}), "order submitted")
	return result, nil
}

func (s *service) run(ctx context.Context, reference string, cart []state.CartEntry, input Input) (Result, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := s.buildOrder(cart)
	if input.ClientSummary != nil && !input.ClientSummary.Total.Equal(doc.Summary.Total) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"client_total": input.ClientSummary.Total.String(),
			"server_total": doc.Summary.Total.String(),
			"client_items": input.ClientItems,
		}), "client order summary differs from session cart")
	}

	rendered, err := s.renderer.Render(doc)
	if err != nil {
		return Result{}, metrics.OutcomeDocument, pkgerrors.Wrap(pkgerrors.CodeDocument, err, "generate order document")
	}
	s.metrics.ObservePages(rendered.Pages)

	html, text, err := renderEmail(reference, doc)
	if err != nil {
		return Result{}, metrics.OutcomeDocument, pkgerrors.Wrap(pkgerrors.CodeDocument, err, "compose order email")
	}
	msg := mail.Message{
		To:      s.operator,
		Subject: orderSubject,
		HTML:    html,
		Text:    text,
		Attachments: []mail.Attachment{{
			Filename:    s.attachment,
			ContentType: pdfContentType,
			Content:     rendered.Bytes,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return Result{}, metrics.OutcomeDispatch, pkgerrors.Wrap(pkgerrors.CodeDispatch, err, "dispatch order email")
	}

	return Result{
		Reference: reference,
		Document:  rendered.Bytes,
		Pages:     rendered.Pages,
		Summary:   doc.Summary,
	}, metrics.OutcomeSuccess, nil
}

// buildOrder joins the cart with the catalog using snapshot prices.
func (s *service) buildOrder(cart []state.CartEntry) document.Order {
	lines := make([]document.Line, 0, len(cart))
	for _, e := range cart {
		name := fmt.Sprintf("Product #%d", e.ProductID)
		unit := ""
		if p, ok := s.catalog.Product(e.ProductID); ok {
			name = p.Name
			unit = string(p.Price.Unit)
		}
		lines = append(lines, document.Line{
			Name:      name,
			Quantity:  e.Quantity,
			Unit:      unit,
			UnitPrice: e.Price,
			LineTotal: e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))),
		})
	}
	return document.Order{
		Date:     s.now(),
		Lines:    lines,
		Summary:  s.calc.Summarize(cart, s.catalog, order.PolicySnapshot),
		TaxRate:  s.calc.TaxRate,
		Currency: s.currency,
	}
}

// withoutOrdered drops entries that were part of the order unchanged.
// Anything modified while the order was being sent stays in the cart.
func withoutOrdered(current, ordered []state.CartEntry) []state.CartEntry {
	key := func(e state.CartEntry) string {
		return fmt.Sprintf("%d|%d|%s|%t", e.ProductID, e.Quantity, e.Price.String(), e.BulkPrice)
	}
	done := make(map[string]struct{}, len(ordered))
	for _, e := range ordered {
		done[key(e)] = struct{}{}
	}
	out := make([]state.CartEntry, 0, len(current))
	for _, e := range current {
		if _, ok := done[key(e)]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

type orderPlaced struct {
	Reference string        `json:"reference"`
	Items     int           `json:"items"`
	Summary   order.Summary `json:"summary"`
}

func (s *service) publish(ctx context.Context, sessionID, reference string, cart []state.CartEntry, summary order.Summary) {
	err := s.events.Emit(ctx, events.DomainEvent{
		Type:      events.TypeOrderPlaced,
		SessionID: sessionID,
		Data:      orderPlaced{Reference: reference, Items: len(cart), Summary: summary},
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order event not delivered")
	}
}
