package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id int64, qty int, price int64) LineItem {
	return LineItem{ID: id, Quantity: qty, Product: ProductRef{ID: id + 100, Name: "p", UnitPrice: decimal.NewFromInt(price)}}
}

func TestTotal(t *testing.T) {
	items := []LineItem{item(1, 2, 10), item(2, 3, 5)}
	assert.True(t, Total(items).Equal(decimal.NewFromInt(35)))
	assert.True(t, Total(nil).Equal(decimal.Zero))
}

func TestCloneDoesNotShareItems(t *testing.T) {
	s := CartSnapshot{Items: []LineItem{item(1, 1, 10)}, TotalCost: decimal.NewFromInt(10)}
	c := s.Clone()
	c.Items[0].Quantity = 9
	assert.Equal(t, 1, s.Items[0].Quantity)
	assert.Equal(t, 0, s.Find(1))
	assert.Equal(t, -1, s.Find(7))
}

func TestCartSnapshotDecodesRemoteShape(t *testing.T) {
	body := `{"cartItems":[{"id":1,"quantity":2,"product":{"id":7,"name":"mug","imageURL":"m.png","price":10.5}}],"totalCost":21}`
	var s CartSnapshot
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	require.Len(t, s.Items, 1)
	assert.Equal(t, int64(7), s.Items[0].Product.ID)
	assert.True(t, s.Items[0].Product.UnitPrice.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, s.TotalCost.Equal(Total(s.Items)))
}

func TestMoneyEncodesAsNumber(t *testing.T) {
	b, err := json.Marshal(CheckoutLineItem{ProductID: 7, ProductName: "mug", UnitPrice: decimal.RequireFromString("10.5"), Quantity: 1, PurchaserID: 1})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"price":10.5`)

	b, err = json.Marshal(CartSnapshot{Items: []LineItem{item(1, 2, 10)}, TotalCost: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"totalCost":20`)
}

func TestStagingVerify(t *testing.T) {
	items := []CheckoutLineItem{{ProductID: 7, UnitPrice: decimal.NewFromInt(10), Quantity: 3}}
	ok := CheckoutStaging{Items: items, TotalAmount: decimal.NewFromInt(30)}
	assert.NoError(t, ok.Verify())

	bad := CheckoutStaging{Items: items, TotalAmount: decimal.NewFromInt(20)}
	assert.ErrorIs(t, bad.Verify(), ErrStagingMismatch)
	assert.True(t, CheckoutStaging{}.IsEmpty())
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("load cart: %w", RemoteError(404, "cart not found", "failed"))
	assert.ErrorIs(t, err, ErrRemote)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.Equal(t, KindRemote, KindOf(err))
	assert.Equal(t, "load cart: cart not found", err.Error())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 404, e.Status)
	assert.Equal(t, "cart not found", e.Message)

	assert.Equal(t, "failed", RemoteError(500, "", "failed").Message)
	assert.ErrorIs(t, AuthError("token missing"), ErrAuth)
	assert.ErrorIs(t, SessionError("no session"), ErrSession)
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))

	u := UnknownError(errors.New("boom"))
	assert.ErrorIs(t, u, ErrUnknown)
	assert.Equal(t, "an unknown error occurred", u.Error())
}
