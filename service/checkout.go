package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	models "storefront/model"
	"storefront/store"
)

// ErrNothingStaged is returned when a session has no staged checkout.
var ErrNothingStaged = errors.New("nothing is staged for checkout")

// OrderRemote is the remote order service.
type OrderRemote interface {
	Submit(ctx context.Context, staging models.CheckoutStaging, token, sessionRef string) (models.OrderResult, error)
	CreatePaymentSession(ctx context.Context, items []models.CheckoutLineItem, token string) (string, error)
}

// CartSource returns the current cart of a session.
type CartSource func(ctx context.Context, session string) (models.CartSnapshot, error)

// Checkout moves a session's cart into a persisted staging and later turns
// that staging into an order.
type Checkout struct {
	store  store.Store
	orders OrderRemote
	carts  CartSource
	logger *zap.Logger
}

func NewCheckout(st store.Store, orders OrderRemote, carts CartSource, logger *zap.Logger) *Checkout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkout{store: st, orders: orders, carts: carts, logger: logger}
}

// Stage snapshots the session's cart and persists it, replacing any earlier
// staging. The cart itself is left alone.
func (c *Checkout) Stage(ctx context.Context, session string, purchaserID int64) (models.CheckoutStaging, error) {
	snap, err := c.carts(ctx, session)
	if err != nil {
		return models.CheckoutStaging{}, err
	}
	st := StageCheckout(snap, purchaserID)
	if err := c.store.SaveStaging(ctx, session, st); err != nil {
		return models.CheckoutStaging{}, fmt.Errorf("stage checkout: %w", err)
	}
	c.logger.Info("checkout staged",
		zap.String("session", session),
		zap.Int("items", len(st.Items)),
		zap.String("total", st.TotalAmount.String()))
	return st, nil
}

// Staged returns the persisted staging.
func (c *Checkout) Staged(ctx context.Context, session string) (models.CheckoutStaging, error) {
	st, err := c.store.LoadStaging(ctx, session)
	if errors.Is(err, store.ErrNotFound) {
		return st, ErrNothingStaged
	}
	if err != nil {
		return st, fmt.Errorf("load staging: %w", err)
	}
	return st, nil
}

// BeginPayment opens a payment session for the staged items and records the
// returned reference for Confirm.
func (c *Checkout) BeginPayment(ctx context.Context, session string) (string, error) {
	st, err := c.Staged(ctx, session)
	if err != nil {
		return "", err
	}
	tok, err := c.value(ctx, session, c.store.Credential)
	if err != nil {
		return "", err
	}
	ref, err := c.orders.CreatePaymentSession(ctx, st.Items, tok)
	if err != nil {
		return "", err
	}
	if err := c.store.SetSessionRef(ctx, session, ref); err != nil {
		return "", fmt.Errorf("save session reference: %w", err)
	}
	c.logger.Info("payment session opened", zap.String("session", session))
	return ref, nil
}

// Confirm submits the staged checkout as an order. The staging is cleared
// only once the order service accepted it.
func (c *Checkout) Confirm(ctx context.Context, session string) (models.OrderResult, error) {
	var res models.OrderResult

	st, err := c.Staged(ctx, session)
	if err != nil {
		return res, err
	}
	if err := st.Verify(); err != nil {
		return res, err
	}
	tok, err := c.value(ctx, session, c.store.Credential)
	if err != nil {
		return res, err
	}
	ref, err := c.value(ctx, session, c.store.SessionRef)
	if err != nil {
		return res, err
	}

	res, err = c.orders.Submit(ctx, st, tok, ref)
	if err != nil {
		c.logger.Warn("order submission failed", zap.String("session", session), zap.Error(err))
		return res, err
	}
	if err := c.store.ClearStaging(ctx, session); err != nil {
		c.logger.Error("order placed but staging not cleared", zap.String("session", session), zap.Error(err))
		return res, fmt.Errorf("clear staging: %w", err)
	}
	c.logger.Info("order placed", zap.String("session", session), zap.String("total", st.TotalAmount.String()))
	return res, nil
}

// value reads a persisted key, treating an absent key as "".
func (c *Checkout) value(ctx context.Context, session string, get func(context.Context, string) (string, error)) (string, error) {
	v, err := get(ctx, session)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return v, nil
}
