package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	models "storefront/model"
)

// OrderClient is the remote order service.
type OrderClient struct {
	c *Client
}

func NewOrderClient(c *Client) *OrderClient {
	return &OrderClient{c: c}
}

// checkoutItem is the order service's line shape. Prices travel as JSON numbers.
type checkoutItem struct {
	Price       float64 `json:"price"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UserID      int64   `json:"userId"`
}

func toCheckoutItems(items []models.CheckoutLineItem) []checkoutItem {
	out := make([]checkoutItem, 0, len(items))
	for _, it := range items {
		out = append(out, checkoutItem{
			Price:       it.UnitPrice.InexactFloat64(),
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UserID:      it.PurchaserID,
		})
	}
	return out
}

// Submit places an order for a staged checkout. It does not touch any
// persisted state; clearing the staging is the caller's job.
func (oc *OrderClient) Submit(ctx context.Context, staging models.CheckoutStaging, token, sessionRef string) (models.OrderResult, error) {
	var res models.OrderResult
	if token == "" {
		return res, models.AuthError("Token is not available. Please log in again.")
	}
	if sessionRef == "" {
		return res, models.SessionError("Session ID is missing. Please try again.")
	}
	if staging.IsEmpty() {
		return res, models.ErrEmptyCheckout
	}

	var raw json.RawMessage
	err := oc.c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/order/add",
		query:    url.Values{"sessionId": []string{sessionRef}, "token": []string{token}},
		body:     toCheckoutItems(staging.Items),
		out:      &raw,
		fallback: "There was an error sending the order data. Please try again.",
	})
	if err != nil {
		return res, err
	}
	res.Raw = raw
	return res, nil
}

type paymentSession struct {
	SessionID string `json:"sessionId"`
}

// CreatePaymentSession runs the payment-intent step and returns the session
// reference later required by Submit.
func (oc *OrderClient) CreatePaymentSession(ctx context.Context, items []models.CheckoutLineItem, token string) (string, error) {
	if token == "" {
		return "", models.AuthError("Token is not available. Please log in again.")
	}
	if len(items) == 0 {
		return "", models.ErrEmptyCheckout
	}
	var ps paymentSession
	err := oc.c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/order/create-checkout-session",
		header:   http.Header{"Authorization": []string{"Bearer " + token}},
		body:     toCheckoutItems(items),
		out:      &ps,
		fallback: "Failed to create checkout session",
	})
	if err != nil {
		return "", err
	}
	if ps.SessionID == "" {
		return "", models.SessionError("checkout session returned no session id")
	}
	return ps.SessionID, nil
}
