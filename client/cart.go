package client

import (
	"context"
	"net/http"
	"strconv"

	models "storefront/model"
)

const errTokenMissing = "Token is missing. Please log in again."

// CartClient is the remote cart store.
type CartClient struct {
	c *Client
}

func NewCartClient(c *Client) *CartClient {
	return &CartClient{c: c}
}

// UpdateItem is the body of a cart line update.
type UpdateItem struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type addItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Cart reads the caller's cart.
func (cc *CartClient) Cart(ctx context.Context, token string) (models.CartSnapshot, error) {
	var snap models.CartSnapshot
	if token == "" {
		return snap, models.AuthError(errTokenMissing)
	}
	err := cc.c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/cart/",
		query:    tokenQuery(token),
		out:      &snap,
		fallback: "Failed to retrieve cart items",
	})
	return snap, err
}

// Add puts quantity of a product into the cart.
func (cc *CartClient) Add(ctx context.Context, token string, productID int64, quantity int) error {
	if token == "" {
		return models.AuthError(errTokenMissing)
	}
	return cc.c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/cart/add",
		query:    tokenQuery(token),
		body:     addItem{ProductID: productID, Quantity: quantity},
		fallback: "Failed to add to cart.",
	})
}

// Update sets the quantity of an existing cart line.
func (cc *CartClient) Update(ctx context.Context, token string, item UpdateItem) error {
	if token == "" {
		return models.AuthError(errTokenMissing)
	}
	return cc.c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/cart/update/" + strconv.FormatInt(item.ID, 10),
		query:    tokenQuery(token),
		body:     item,
		fallback: "Failed to update cart item",
	})
}

// Delete removes a cart line by its id.
func (cc *CartClient) Delete(ctx context.Context, token string, itemID int64) error {
	if token == "" {
		return models.AuthError(errTokenMissing)
	}
	return cc.c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/cart/delete/" + strconv.FormatInt(itemID, 10),
		query:    tokenQuery(token),
		fallback: "Failed to delete cart item",
	})
}
