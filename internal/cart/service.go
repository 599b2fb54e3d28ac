package cart

import (
	"context"
	"fmt"

	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/order"
	"github.com/buildmart/storefront/internal/pricing"
	"github.com/buildmart/storefront/internal/state"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/events"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	warnNotSaved       = "cart state could not be saved and may not survive a restart"
	warnFavNotSaved    = "favorites could not be saved and may not survive a restart"
	warnQuantityCapped = "quantity capped at the maximum order size"
)

type sessions interface {
	Session(ctx context.Context, sessionID string) (*state.Store, error)
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	Sessions   sessions
	Catalog    catalog.Lookup
	Calculator order.Calculator
	Events     events.Emitter
	Logger     *logger.Logger
}

// Service exposes the cart and favorites operations of a session.
type Service interface {
	GetCart(ctx context.Context, sessionID string, policy order.Policy) (View, error)
	SetCart(ctx context.Context, sessionID string, items []ItemInput) (View, error)
	AddToCart(ctx context.Context, sessionID string, input ItemInput) (Mutation, error)
	SetCartEntry(ctx context.Context, sessionID string, input ItemInput) (Mutation, error)
	UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (View, error)
	RemoveFromCart(ctx context.Context, sessionID string, productID int64) (View, error)
	ClearCart(ctx context.Context, sessionID string) error

	GetFavorites(ctx context.Context, sessionID string) (FavoritesView, error)
	SetFavorites(ctx context.Context, sessionID string, productIDs []int64) (FavoritesView, error)
	AddFavorite(ctx context.Context, sessionID string, productID int64) (FavoritesView, error)
	RemoveFavorite(ctx context.Context, sessionID string, productID int64) (FavoritesView, error)
	MoveFavoriteToCart(ctx context.Context, sessionID string, productID int64) (Mutation, error)
}

type service struct {
	sessions sessions
	catalog  catalog.Lookup
	calc     order.Calculator
	events   events.Emitter
	logg     *logger.Logger
}

// NewService builds a cart service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session registry required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
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
	return &service{
		sessions: params.Sessions,
		catalog:  params.Catalog,
		calc:     calc,
		events:   emitter,
		logg:     logg,
	}, nil
}

// ItemInput is a requested cart line.
type ItemInput struct {
	ProductID int64
	Quantity  int
	Bulk      bool
}

// Line is a cart entry joined with its product.
type Line struct {
	Entry
	Product   catalog.Product `json:"product"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// View is the rendered cart of a session.
type View struct {
	Items    []Line        `json:"items"`
	Summary  order.Summary `json:"summary"`
	Policy   string        `json:"pricingPolicy"`
	Warnings []string      `json:"warnings,omitempty"`
}

// AddedToCart is handed to the UI to render an add-to-cart notice.
type AddedToCart struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Unit        catalog.Unit    `json:"unit"`
	Quantity    int             `json:"quantity"`
	Bulk        bool            `json:"bulk"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Mutation is a cart view plus the notification produced by an addition.
type Mutation struct {
	View
	Notification *AddedToCart `json:"notification,omitempty"`
}

// FavoritesView lists liked products in insertion order.
type FavoritesView struct {
	Items    []catalog.Product `json:"items"`
	IDs      []int64           `json:"productIds"`
	Warnings []string          `json:"warnings,omitempty"`
}

func (s *service) store(ctx context.Context, sessionID string) (*state.Store, error) {
	return s.sessions.Session(ctx, sessionID)
}

func (s *service) product(id int64) (catalog.Product, error) {
	p, ok := s.catalog.Product(id)
	if !ok {
		return catalog.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"productId": id})
	}
	return p, nil
}

// GetCart renders the current cart.
func (s *service) GetCart(ctx context.Context, sessionID string, policy order.Policy) (View, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.render(st.Cart(), policy), nil
}

// SetCart replaces the whole cart. Prices are recomputed server-side.
func (s *service) SetCart(ctx context.Context, sessionID string, items []ItemInput) (View, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	entries := make([]Entry, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return View{}, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in cart").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		seen[item.ProductID] = struct{}{}
		entry, err := s.priceEntry(item)
		if err != nil {
			return View{}, err
		}
		entries = append(entries, entry)
	}

	next, err := st.UpdateCart(ctx, func([]Entry) ([]Entry, error) { return entries, nil })
	view := s.render(next, order.PolicySnapshot)
	return s.absorbStorage(view, err, warnNotSaved)
}

// AddToCart accumulates the requested quantity into the cart.
func (s *service) AddToCart(ctx context.Context, sessionID string, input ItemInput) (Mutation, error) {
	return s.upsert(ctx, sessionID, input, AccumulateEntry)
}

// SetCartEntry replaces the product's entry with the requested one.
func (s *service) SetCartEntry(ctx context.Context, sessionID string, input ItemInput) (Mutation, error) {
	return s.upsert(ctx, sessionID, input, ReplaceEntry)
}

func (s *service) upsert(ctx context.Context, sessionID string, input ItemInput, merge func([]Entry, Entry) []Entry) (Mutation, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return Mutation{}, err
	}
	entry, err := s.priceEntry(input)
	if err != nil {
		return Mutation{}, err
	}
	p, _ := s.catalog.Product(input.ProductID)

	capped := false
	next, err := st.UpdateCart(ctx, func(cart []Entry) ([]Entry, error) {
		merged := merge(cart, entry)
		if i := indexOf(merged, entry.ProductID); i >= 0 && merged[i].Quantity > p.Stock.MaxOrder {
			merged[i].Quantity = p.Stock.MaxOrder
			capped = true
		}
		return merged, nil
	})

	mutation := Mutation{View: s.render(next, order.PolicySnapshot)}
	if capped {
		mutation.Warnings = append(mutation.Warnings, warnQuantityCapped)
	}
	view, err := s.absorbStorage(mutation.View, err, warnNotSaved)
	if err != nil {
		return Mutation{}, err
	}
	mutation.View = view

	notice := &AddedToCart{
		ProductID:   p.ID,
		ProductName: p.Name,
		Unit:        p.Price.Unit,
		Quantity:    entry.Quantity,
		Bulk:        entry.BulkPrice,
		UnitPrice:   entry.Price,
		LineTotal:   entry.Price.Mul(decimal.NewFromInt(int64(entry.Quantity))),
	}
	mutation.Notification = notice
	s.emit(ctx, sessionID, notice)
	return mutation, nil
}

// priceEntry validates the request and snapshots its unit price.
func (s *service) priceEntry(input ItemInput) (Entry, error) {
	p, err := s.product(input.ProductID)
	if err != nil {
		return Entry{}, err
	}
	if err := ValidateQuantity(p, input.Quantity); err != nil {
		return Entry{}, err
	}
	bulk := input.Bulk && len(p.Price.BulkPrices) > 0
	return Entry{
		ProductID: p.ID,
		Quantity:  input.Quantity,
		Price:     pricing.EffectiveUnitPrice(p, input.Quantity, bulk),
		BulkPrice: bulk,
	}, nil
}

// UpdateQuantity clamps the quantity into the product's order bounds.
func (s *service) UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (View, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	p, err := s.product(productID)
	if err != nil {
		return View{}, err
	}
	next, err := st.UpdateCart(ctx, func(cart []Entry) ([]Entry, error) {
		if indexOf(cart, productID) < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart").
				WithDetails(map[string]any{"productId": productID})
		}
		return ChangeQuantity(cart, p, quantity), nil
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
		return View{}, err
	}
	return s.absorbStorage(s.render(next, order.PolicySnapshot), err, warnNotSaved)
}

// RemoveFromCart drops the product; missing products are a no-op.
func (s *service) RemoveFromCart(ctx context.Context, sessionID string, productID int64) (View, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	next, err := st.UpdateCart(ctx, func(cart []Entry) ([]Entry, error) {
		return RemoveEntry(cart, productID), nil
	})
	return s.absorbStorage(s.render(next, order.PolicySnapshot), err, warnNotSaved)
}

// ClearCart empties the cart. Favorites are untouched.
func (s *service) ClearCart(ctx context.Context, sessionID string) error {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}
	return st.SetCart(ctx, []Entry{})
}

func (s *service) GetFavorites(ctx context.Context, sessionID string) (FavoritesView, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return FavoritesView{}, err
	}
	return s.renderFavorites(st.Favorites()), nil
}

func (s *service) SetFavorites(ctx context.Context, sessionID string, productIDs []int64) (FavoritesView, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return FavoritesView{}, err
	}
	favs := make([]Favorite, 0, len(productIDs))
	for _, id := range productIDs {
		if _, err := s.product(id); err != nil {
			return FavoritesView{}, err
		}
		favs = ReplaceFavorite(favs, Favorite{ProductID: id})
	}
	next, err := st.UpdateFavorites(ctx, func([]Favorite) ([]Favorite, error) { return favs, nil })
	return s.absorbFavoritesStorage(s.renderFavorites(next), err)
}

func (s *service) AddFavorite(ctx context.Context, sessionID string, productID int64) (FavoritesView, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return FavoritesView{}, err
	}
	if _, err := s.product(productID); err != nil {
		return FavoritesView{}, err
	}
	next, err := st.UpdateFavorites(ctx, func(favs []Favorite) ([]Favorite, error) {
		return AddFavorite(favs, Favorite{ProductID: productID}), nil
	})
	return s.absorbFavoritesStorage(s.renderFavorites(next), err)
}

func (s *service) RemoveFavorite(ctx context.Context, sessionID string, productID int64) (FavoritesView, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return FavoritesView{}, err
	}
	next, err := st.UpdateFavorites(ctx, func(favs []Favorite) ([]Favorite, error) {
		return RemoveFavorite(favs, productID), nil
	})
	return s.absorbFavoritesStorage(s.renderFavorites(next), err)
}

// MoveFavoriteToCart sets the product in the cart at its minimum order
// quantity. The favorite itself is kept.
func (s *service) MoveFavoriteToCart(ctx context.Context, sessionID string, productID int64) (Mutation, error) {
	p, err := s.product(productID)
	if err != nil {
		return Mutation{}, err
	}
	return s.SetCartEntry(ctx, sessionID, ItemInput{ProductID: productID, Quantity: p.Stock.MinOrder})
}

func (s *service) render(entries []Entry, policy order.Policy) View {
	lines := make([]Line, 0, len(entries))
	for _, e := range entries {
		p, ok := s.catalog.Product(e.ProductID)
		if !ok {
			continue
		}
		price, _ := order.UnitPrice(e, s.catalog, policy)
		lines = append(lines, Line{
			Entry:     e,
			Product:   p,
			LineTotal: price.Mul(decimal.NewFromInt(int64(e.Quantity))),
		})
	}
	return View{
		Items:   lines,
		Summary: s.calc.Summarize(entries, s.catalog, policy),
		Policy:  policy.String(),
	}
}

func (s *service) renderFavorites(favs []Favorite) FavoritesView {
	view := FavoritesView{Items: make([]catalog.Product, 0, len(favs)), IDs: make([]int64, 0, len(favs))}
	for _, f := range favs {
		view.IDs = append(view.IDs, f.ProductID)
		if p, ok := s.catalog.Product(f.ProductID); ok {
			view.Items = append(view.Items, p)
		}
	}
	return view
}

// absorbStorage turns a storage failure into a warning: the mutation has
// already been applied in memory.
func (s *service) absorbStorage(view View, err error, warning string) (View, error) {
	if err == nil {
		return view, nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
		view.Warnings = append(view.Warnings, warning)
		return view, nil
	}
	return View{}, err
}

func (s *service) absorbFavoritesStorage(view FavoritesView, err error) (FavoritesView, error) {
	if err == nil {
		return view, nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
		view.Warnings = append(view.Warnings, warnFavNotSaved)
		return view, nil
	}
	return FavoritesView{}, err
}

func (s *service) emit(ctx context.Context, sessionID string, notice *AddedToCart) {
	err := s.events.Emit(ctx, events.DomainEvent{
		Type:      events.TypeCartItemAdded,
		SessionID: sessionID,
		Data:      notice,
	})
	if err != nil {
		logCtx := s.logg.WithProductID(s.logg.WithSessionID(ctx, sessionID), notice.ProductID)
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "cart event not delivered")
	}
}
