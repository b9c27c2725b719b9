package service

import (
	"time"

	models "storefront/model"
)

// StageCheckout projects a cart snapshot into a checkout staging. Items with
// no quantity are skipped. The result shares nothing with snap, so later cart
// mutations never reach it.
func StageCheckout(snap models.CartSnapshot, purchaserID int64) models.CheckoutStaging {
	items := make([]models.CheckoutLineItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		if it.Quantity <= 0 {
			continue
		}
		items = append(items, models.CheckoutLineItem{
			ProductID:   it.Product.ID,
			ProductName: it.Product.Name,
			UnitPrice:   it.Product.UnitPrice,
			Quantity:    it.Quantity,
			PurchaserID: purchaserID,
		})
	}
	return models.CheckoutStaging{
		Items:       items,
		TotalAmount: models.StagedTotal(items),
		StagedAt:    time.Now().UTC(),
	}
}
