package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCheckout is returned when an order is submitted with no items.
	ErrEmptyCheckout = errors.New("checkout list is empty")
	// ErrStagingMismatch is returned when a staged total no longer matches its items.
	ErrStagingMismatch = errors.New("staged total does not match staged items")
)

// CheckoutLineItem is a line item frozen at staging time.
type CheckoutLineItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	PurchaserID int64           `json:"userId"`
}

// Subtotal returns quantity × unit price.
func (c CheckoutLineItem) Subtotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// CheckoutStaging is an intent to purchase, decoupled from the live cart.
type CheckoutStaging struct {
	Items       []CheckoutLineItem `json:"items"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
	StagedAt    time.Time          `json:"stagedAt"`
}

// StagedTotal sums quantity × unit price over staged items.
func StagedTotal(items []CheckoutLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// IsEmpty reports whether nothing is staged.
func (s CheckoutStaging) IsEmpty() bool { return len(s.Items) == 0 }

// Verify recomputes the total and checks it against TotalAmount.
func (s CheckoutStaging) Verify() error {
	if !StagedTotal(s.Items).Equal(s.TotalAmount) {
		return ErrStagingMismatch
	}
	return nil
}

// OrderResult is the order service's success payload, kept opaque.
type OrderResult struct {
	Raw json.RawMessage `json:"result,omitempty"`
}
