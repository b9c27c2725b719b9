package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/client"
	models "storefront/model"
)

var (
	// ErrMutationPending is returned when an item still has a remote write outstanding.
	ErrMutationPending = errors.New("a change to this item is still being saved")
	// ErrInvalidQuantity is returned when adding fewer than one unit.
	ErrInvalidQuantity = errors.New("quantity must be > 0")
)

const errTokenMissing = "Token is missing. Redirecting to login."

// CartRemote is the remote cart store as the engine uses it.
type CartRemote interface {
	Cart(ctx context.Context, token string) (models.CartSnapshot, error)
	Add(ctx context.Context, token string, productID int64, quantity int) error
	Update(ctx context.Context, token string, item client.UpdateItem) error
	Delete(ctx context.Context, token string, itemID int64) error
}

// CredentialSource returns the session's current credential, or "" if there is none.
type CredentialSource func(ctx context.Context) (string, error)

// CartView is a read-only view of an engine's state.
type CartView struct {
	Status   models.CartStatus   `json:"status"`
	Snapshot models.CartSnapshot `json:"cart"`
	Pending  []int64             `json:"pending,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Engine owns the authoritative cart for one session. Mutations apply to the
// local snapshot first and are then written to the remote store in the
// background; a failed write rolls the mutation back.
type Engine struct {
	remote      CartRemote
	credential  CredentialSource
	logger      *zap.Logger
	syncTimeout time.Duration

	mu      sync.Mutex
	status  models.CartStatus
	items   []models.LineItem
	total   decimal.Decimal
	loadErr error
	syncErr error
	// pending holds the outstanding remote write per line item id.
	pending map[int64]*Mutation
	// generation increases on every load; writes started under an older
	// generation never roll back over a newer server view.
	generation uint64
	// inflight counts background writes; idle is closed when it drops to zero.
	inflight int
	idle     chan struct{}
}

type EngineOption func(*Engine)

func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSyncTimeout bounds each background remote write. Zero means no bound.
func WithSyncTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.syncTimeout = d }
}

func NewEngine(remote CartRemote, credential CredentialSource, opts ...EngineOption) *Engine {
	e := &Engine{
		remote:      remote,
		credential:  credential,
		logger:      zap.NewNop(),
		syncTimeout: 30 * time.Second,
		status:      models.CartLoading,
		total:       decimal.Zero,
		pending:     make(map[int64]*Mutation),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) token(ctx context.Context) (string, error) {
	tok, err := e.credential(ctx)
	if err != nil {
		return "", models.UnknownError(err)
	}
	if tok == "" {
		return "", models.AuthError(errTokenMissing)
	}
	return tok, nil
}

// Load replaces the whole local cart with the server's view.
func (e *Engine) Load(ctx context.Context) (models.CartSnapshot, error) {
	tok, err := e.token(ctx)
	if err != nil {
		e.failLoad(err)
		return models.CartSnapshot{}, err
	}

	snap, err := e.remote.Cart(ctx, tok)
	if err != nil {
		e.failLoad(err)
		return models.CartSnapshot{}, err
	}

	items := make([]models.LineItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	total := models.Total(items)
	if !snap.TotalCost.Equal(total) {
		e.logger.Warn("server cart total disagrees with its items",
			zap.String("server_total", snap.TotalCost.String()),
			zap.String("computed_total", total.String()))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.items = items
	e.total = total
	e.status = models.CartReady
	e.loadErr = nil
	e.syncErr = nil
	return e.snapshotLocked(), nil
}

func (e *Engine) failLoad(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.items = nil
	e.total = decimal.Zero
	e.loadErr = err
	if errors.Is(err, models.ErrAuth) {
		e.status = models.CartUnauthenticated
	} else {
		e.status = models.CartError
	}
}

// Reset drops the cached cart, returning the view to loading. Writes already
// in flight complete without touching the reset state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.items = nil
	e.total = decimal.Zero
	e.status = models.CartLoading
	e.loadErr = nil
	e.syncErr = nil
}

// AddToCart adds quantity of a product on the server, then reloads so the
// server decides whether the product merges into an existing line.
func (e *Engine) AddToCart(ctx context.Context, productID int64, quantity int) (models.CartSnapshot, error) {
	if quantity <= 0 {
		return models.CartSnapshot{}, ErrInvalidQuantity
	}
	tok, err := e.token(ctx)
	if err != nil {
		return models.CartSnapshot{}, err
	}
	if err := e.remote.Add(ctx, tok, productID, quantity); err != nil {
		e.logger.Warn("add to cart failed", zap.Int64("product_id", productID), zap.Error(err))
		return models.CartSnapshot{}, err
	}
	return e.Load(ctx)
}

func (e *Engine) IncreaseQuantity(ctx context.Context, itemID int64) (*Mutation, error) {
	return e.adjust(ctx, itemID, 1)
}

// DecreaseQuantity removes the item when its quantity is 1.
func (e *Engine) DecreaseQuantity(ctx context.Context, itemID int64) (*Mutation, error) {
	return e.adjust(ctx, itemID, -1)
}

func (e *Engine) adjust(ctx context.Context, itemID int64, delta int) (*Mutation, error) {
	tok, err := e.token(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(itemID)
	if idx < 0 {
		return completed(itemID), nil
	}
	if e.pending[itemID] != nil {
		return nil, ErrMutationPending
	}

	prev := e.items[idx]
	if prev.Quantity+delta <= 0 {
		return e.removeAtLocked(ctx, tok, idx), nil
	}

	next := prev
	next.Quantity += delta
	e.items[idx] = next

	update := client.UpdateItem{ID: next.ID, ProductID: next.Product.ID, Quantity: next.Quantity}
	return e.startLocked(ctx, itemID, OpUpdate,
		func(ctx context.Context) error { return e.remote.Update(ctx, tok, update) },
		func() {
			if i := e.indexLocked(itemID); i >= 0 {
				e.items[i] = prev
			}
		},
	), nil
}

// RemoveItem deletes a line item. An id the cart does not hold is a no-op and
// issues no remote call.
func (e *Engine) RemoveItem(ctx context.Context, itemID int64) (*Mutation, error) {
	tok, err := e.token(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(itemID)
	if idx < 0 {
		return completed(itemID), nil
	}
	if e.pending[itemID] != nil {
		return nil, ErrMutationPending
	}
	return e.removeAtLocked(ctx, tok, idx), nil
}

func (e *Engine) removeAtLocked(ctx context.Context, tok string, idx int) *Mutation {
	prev := e.items[idx]
	e.items = slices.Delete(e.items, idx, idx+1)

	return e.startLocked(ctx, prev.ID, OpDelete,
		func(ctx context.Context) error { return e.remote.Delete(ctx, tok, prev.ID) },
		func() {
			if e.indexLocked(prev.ID) >= 0 {
				return
			}
			e.items = slices.Insert(e.items, min(idx, len(e.items)), prev)
		},
	)
}

// startLocked recomputes the total, registers the pending token and runs the
// remote write in the background. rollback runs with e.mu held.
func (e *Engine) startLocked(ctx context.Context, itemID int64, op Op, write func(context.Context) error, rollback func()) *Mutation {
	e.total = models.Total(e.items)

	m := newMutation(itemID, op)
	e.pending[itemID] = m
	gen := e.generation

	// the write outlives the caller's request but not the sync timeout
	wctx := context.WithoutCancel(ctx)
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
	go func() {
		defer e.writeDone()
		var cancel context.CancelFunc = func() {}
		if e.syncTimeout > 0 {
			wctx, cancel = context.WithTimeout(wctx, e.syncTimeout)
		}
		err := write(wctx)
		cancel()

		e.mu.Lock()
		delete(e.pending, itemID)
		if gen == e.generation {
			if err != nil {
				rollback()
				e.total = models.Total(e.items)
				e.syncErr = err
			} else {
				e.syncErr = nil
			}
		}
		e.mu.Unlock()

		if err != nil {
			e.logger.Warn("cart sync failed, change rolled back",
				zap.Int64("item_id", itemID),
				zap.String("op", op.String()),
				zap.Error(err))
		} else {
			e.logger.Debug("cart sync confirmed", zap.Int64("item_id", itemID), zap.String("op", op.String()))
		}
		m.finish(err)
	}()
	return m
}

func (e *Engine) indexLocked(itemID int64) int {
	for i, it := range e.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func (e *Engine) snapshotLocked() models.CartSnapshot {
	items := make([]models.LineItem, len(e.items))
	copy(items, e.items)
	return models.CartSnapshot{Items: items, TotalCost: e.total}
}

// Snapshot returns a copy of the current cart.
func (e *Engine) Snapshot() models.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) View() CartView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := CartView{Status: e.status, Snapshot: e.snapshotLocked()}
	if v.Status == models.CartReady && len(e.items) == 0 {
		v.Status = models.CartEmpty
	}
	for id := range e.pending {
		v.Pending = append(v.Pending, id)
	}
	slices.Sort(v.Pending)
	switch {
	case e.loadErr != nil:
		v.Error = e.loadErr.Error()
	case e.syncErr != nil:
		v.Error = e.syncErr.Error()
	}
	return v
}

func (e *Engine) writeDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if e.inflight == 0 {
		close(e.idle)
	}
}

// Drain waits until no background write is outstanding. Writes started while
// it waits are waited for too.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	if e.inflight == 0 {
		e.mu.Unlock()
		return nil
	}
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
