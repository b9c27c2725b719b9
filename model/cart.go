package models

import "github.com/shopspring/decimal"

func init() {
	// money is a plain JSON number on every wire and in persisted lists
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductRef is the product data a cart line carries.
type ProductRef struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	ImageRef    string          `json:"imageURL,omitempty"`
	Description string          `json:"description,omitempty"`
}

// LineItem is one product-and-quantity entry in a cart.
// A LineItem with Quantity 0 is never kept in a cart.
type LineItem struct {
	ID       int64      `json:"id"`
	Quantity int        `json:"quantity"`
	Product  ProductRef `json:"product"`
}

// Subtotal returns quantity × unit price.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Product.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// CartSnapshot is the full state of a cart at one moment.
type CartSnapshot struct {
	Items     []LineItem      `json:"cartItems"`
	TotalCost decimal.Decimal `json:"totalCost"`
}

// Total sums quantity × unit price over items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// IsEmpty reports whether the snapshot has no line items.
func (s CartSnapshot) IsEmpty() bool { return len(s.Items) == 0 }

// Find returns the index of the line item with the given id, or -1.
func (s CartSnapshot) Find(id int64) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slice memory with s.
func (s CartSnapshot) Clone() CartSnapshot {
	out := CartSnapshot{TotalCost: s.TotalCost}
	if s.Items != nil {
		out.Items = make([]LineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	return out
}

// CartStatus distinguishes the states a cart view can be in.
type CartStatus string

const (
	CartLoading         CartStatus = "loading"
	CartUnauthenticated CartStatus = "unauthenticated"
	CartError           CartStatus = "error"
	CartEmpty           CartStatus = "empty"
	CartReady           CartStatus = "ready"
)
