package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "storefront/model"
	"storefront/store"
)

// ErrInvalidInput marks a request rejected before any remote call.
var ErrInvalidInput = errors.New("invalid input")

// Deps wires a Service to its store and remote services.
type Deps struct {
	Store   store.Store
	Cart    CartRemote
	Orders  OrderRemote
	Users   UserRemote
	Catalog CatalogRemote
	Logger  *zap.Logger

	// SyncTimeout bounds each background cart write.
	SyncTimeout time.Duration
	// PurchaserID is stamped on every staged line item.
	PurchaserID int64
}

// Service keeps one cart Engine per session and fronts the checkout, auth
// and catalog flows for the HTTP handler and the CLI.
type Service struct {
	store       store.Store
	cart        CartRemote
	users       UserRemote
	catalog     *Catalog
	checkout    *Checkout
	logger      *zap.Logger
	syncTimeout time.Duration
	purchaserID int64

	// session id -> *Engine
	engines sync.Map
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:       d.Store,
		cart:        d.Cart,
		users:       d.Users,
		catalog:     NewCatalog(d.Catalog),
		logger:      logger,
		syncTimeout: d.SyncTimeout,
		purchaserID: d.PurchaserID,
	}
	s.checkout = NewCheckout(d.Store, d.Orders, s.settledCart, logger)
	return s
}

// engine returns the session's engine, creating it on first use.
func (s *Service) engine(session string) *Engine {
	if e, ok := s.lookup(session); ok {
		return e
	}
	e := NewEngine(s.cart, s.credentialSource(session),
		WithEngineLogger(s.logger.With(zap.String("session", session))),
		WithSyncTimeout(s.syncTimeout),
	)
	actual, _ := s.engines.LoadOrStore(session, e)
	return actual.(*Engine)
}

func (s *Service) lookup(session string) (*Engine, bool) {
	v, ok := s.engines.Load(session)
	if !ok {
		return nil, false
	}
	return v.(*Engine), true
}

// engineFor returns the session's engine. A session without one gets an
// engine only once it holds a credential.
func (s *Service) engineFor(ctx context.Context, session string) (*Engine, error) {
	if e, ok := s.lookup(session); ok {
		return e, nil
	}
	if _, err := s.credential(ctx, session); err != nil {
		return nil, err
	}
	return s.engine(session), nil
}

// forget drops the session's engine once its writes are finished.
func (s *Service) forget(ctx context.Context, session string) {
	e, ok := s.lookup(session)
	if !ok {
		return
	}
	e.Reset()
	if err := e.Drain(ctx); err != nil {
		s.logger.Warn("cart writes still pending, keeping engine", zap.String("session", session), zap.Error(err))
		return
	}
	s.engines.CompareAndDelete(session, e)
}

func (s *Service) credentialSource(session string) CredentialSource {
	return func(ctx context.Context) (string, error) {
		tok, err := s.store.Credential(ctx, session)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return tok, err
	}
}

func (s *Service) credential(ctx context.Context, session string) (string, error) {
	tok, err := s.credentialSource(session)(ctx)
	if err != nil {
		return "", models.UnknownError(err)
	}
	if tok == "" {
		return "", models.AuthError(errTokenMissing)
	}
	return tok, nil
}

// settledCart is the cart a checkout is staged from: reloaded unless the last
// load succeeded, with every outstanding write finished.
func (s *Service) settledCart(ctx context.Context, session string) (models.CartSnapshot, error) {
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return models.CartSnapshot{}, err
	}
	if st := e.View().Status; st != models.CartReady && st != models.CartEmpty {
		if _, err := e.Load(ctx); err != nil {
			return models.CartSnapshot{}, err
		}
	}
	if err := e.Drain(ctx); err != nil {
		return models.CartSnapshot{}, err
	}
	return e.Snapshot(), nil
}

func requireSession(session string) error {
	if session == "" {
		return fmt.Errorf("%w: session required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) Browse(ctx context.Context, f Filter) (CatalogPage, error) {
	return s.catalog.Browse(ctx, f)
}

func (s *Service) Product(ctx context.Context, id int64) (models.Product, error) {
	if id <= 0 {
		return models.Product{}, fmt.Errorf("%w: product id must be > 0", ErrInvalidInput)
	}
	return s.catalog.Product(ctx, id)
}

// Cart returns the cached view without calling the remote store. A session
// with no engine reads as loading.
func (s *Service) Cart(session string) CartView {
	if e, ok := s.lookup(session); ok {
		return e.View()
	}
	return CartView{
		Status:   models.CartLoading,
		Snapshot: models.CartSnapshot{Items: []models.LineItem{}, TotalCost: decimal.Zero},
	}
}

// failedView is the view of a session refused before it got an engine.
func failedView(err error) CartView {
	v := CartView{
		Status:   models.CartError,
		Snapshot: models.CartSnapshot{Items: []models.LineItem{}, TotalCost: decimal.Zero},
		Error:    err.Error(),
	}
	if errors.Is(err, models.ErrAuth) {
		v.Status = models.CartUnauthenticated
	}
	return v
}

func (s *Service) LoadCart(ctx context.Context, session string) (CartView, error) {
	if err := requireSession(session); err != nil {
		return CartView{}, err
	}
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return failedView(err), err
	}
	_, err = e.Load(ctx)
	return e.View(), err
}

func (s *Service) AddToCart(ctx context.Context, session string, productID int64, qty int) (CartView, error) {
	if err := requireSession(session); err != nil {
		return CartView{}, err
	}
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return failedView(err), err
	}
	_, err = e.AddToCart(ctx, productID, qty)
	return e.View(), err
}

func (s *Service) IncreaseQuantity(ctx context.Context, session string, itemID int64) (*Mutation, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return e.IncreaseQuantity(ctx, itemID)
}

func (s *Service) DecreaseQuantity(ctx context.Context, session string, itemID int64) (*Mutation, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return e.DecreaseQuantity(ctx, itemID)
}

func (s *Service) RemoveItem(ctx context.Context, session string, itemID int64) (*Mutation, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	e, err := s.engineFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return e.RemoveItem(ctx, itemID)
}

func (s *Service) StageCheckout(ctx context.Context, session string) (models.CheckoutStaging, error) {
	if err := requireSession(session); err != nil {
		return models.CheckoutStaging{}, err
	}
	return s.checkout.Stage(ctx, session, s.purchaserID)
}

func (s *Service) StagedCheckout(ctx context.Context, session string) (models.CheckoutStaging, error) {
	if err := requireSession(session); err != nil {
		return models.CheckoutStaging{}, err
	}
	return s.checkout.Staged(ctx, session)
}

func (s *Service) BeginPayment(ctx context.Context, session string) (string, error) {
	if err := requireSession(session); err != nil {
		return "", err
	}
	return s.checkout.BeginPayment(ctx, session)
}

func (s *Service) ConfirmCheckout(ctx context.Context, session string) (models.OrderResult, error) {
	if err := requireSession(session); err != nil {
		return models.OrderResult{}, err
	}
	return s.checkout.Confirm(ctx, session)
}

// Shutdown waits for every session's outstanding cart writes.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	s.engines.Range(func(k, v any) bool {
		if err := v.(*Engine).Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain %s: %w", k, err))
		}
		return true
	})
	return errors.Join(errs...)
}
