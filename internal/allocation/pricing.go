package allocation

import (
	"math"

	"pasar/internal/models"
)

const (
	taxRate               = 0.05
	freeShippingThreshold = 100.0
	flatShippingFee       = 10.0
)

// Pricing is the price breakdown of an order, computed over allocated items
// only.
type Pricing struct {
	ItemsPrice    float64 `json:"items_price"`
	TaxPrice      float64 `json:"tax_price"`
	ShippingPrice float64 `json:"shipping_price"`
	TotalPrice    float64 `json:"total_price"`
}

// ComputePricing derives the order pricing from the allocated line items.
// Shipping is free only when the subtotal strictly exceeds the threshold.
// Only the tax is rounded to two decimal places; the subtotal and total are
// left as computed.
func ComputePricing(allocated []models.OrderItem) Pricing {
	var itemsPrice float64
	for _, item := range allocated {
		itemsPrice += item.Price * float64(item.Quantity)
	}

	taxPrice := math.Round(itemsPrice*taxRate*100) / 100

	shippingPrice := flatShippingFee
	if itemsPrice > freeShippingThreshold {
		shippingPrice = 0
	}

	return Pricing{
		ItemsPrice:    itemsPrice,
		TaxPrice:      taxPrice,
		ShippingPrice: shippingPrice,
		TotalPrice:    itemsPrice + taxPrice + shippingPrice,
	}
}
