package service

import (
	"context"

	models "storefront/model"
)

type ServiceInterface interface {
	SignIn(ctx context.Context, session, email, password string) error
	SignUp(ctx context.Context, session string, req SignUpRequest) error
	SignOut(ctx context.Context, session string) error
	Users(ctx context.Context, session string) ([]models.User, error)

	Browse(ctx context.Context, f Filter) (CatalogPage, error)
	Product(ctx context.Context, id int64) (models.Product, error)

	Cart(session string) CartView
	LoadCart(ctx context.Context, session string) (CartView, error)
	AddToCart(ctx context.Context, session string, productID int64, qty int) (CartView, error)
	IncreaseQuantity(ctx context.Context, session string, itemID int64) (*Mutation, error)
	DecreaseQuantity(ctx context.Context, session string, itemID int64) (*Mutation, error)
	RemoveItem(ctx context.Context, session string, itemID int64) (*Mutation, error)

	StageCheckout(ctx context.Context, session string) (models.CheckoutStaging, error)
	StagedCheckout(ctx context.Context, session string) (models.CheckoutStaging, error)
	BeginPayment(ctx context.Context, session string) (string, error)
	ConfirmCheckout(ctx context.Context, session string) (models.OrderResult, error)
}

var _ ServiceInterface = (*Service)(nil)
