package store

import (
	"context"
	"errors"

	models "storefront/model"
)

// Keys under which a session's persisted values are stored.
const (
	KeyCredential     = "token"
	KeySessionRef     = "sessionId"
	KeyCheckoutList   = "checkoutList"
	KeyCheckoutTotal  = "checkoutTotal"
	KeyCheckoutStaged = "checkoutStagedAt"
)

// ErrNotFound is returned when a session has no value under a key.
var ErrNotFound = errors.New("not found")

// Store is the per-session persisted state: the credential and session
// reference set by sign-in, and the staged checkout.
type Store interface {
	Credential(ctx context.Context, session string) (string, error)
	SetCredential(ctx context.Context, session, token string) error
	SessionRef(ctx context.Context, session string) (string, error)
	SetSessionRef(ctx context.Context, session, ref string) error
	ClearSessionRef(ctx context.Context, session string) error
	// ClearSession forgets the credential and session reference.
	ClearSession(ctx context.Context, session string) error

	// SaveStaging replaces any prior staged checkout.
	SaveStaging(ctx context.Context, session string, st models.CheckoutStaging) error
	LoadStaging(ctx context.Context, session string) (models.CheckoutStaging, error)
	ClearStaging(ctx context.Context, session string) error

	Close() error
}
