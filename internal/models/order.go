package models

import "time"

// Order statuses, in lifecycle order.
const (
	StatusProcessing = "Processing"
	StatusShipped    = "Shipped"
	StatusDelivered  = "Delivered"
)

// Payment statuses.
const (
	PaymentPending = "Pending"
	PaymentPaid    = "Paid"
)

// OrderItem represents a single line item within an order request or order.
type OrderItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"` // Unit price at the time of order, taken from the catalog
	Image     string  `json:"image"`
}

// ShippingInfo is the delivery address attached to an order.
type ShippingInfo struct {
	Street string `json:"street" validate:"required"`
	City   string `json:"city" validate:"required"`
	State  string `json:"state" validate:"required"`
	Zip    string `json:"zip" validate:"required"`
}

// PaymentInfo tracks the payment reference and its status for an order.
type PaymentInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Order represents a customer order. Immutable after creation except for
// the order status and the payment status sub-field.
type Order struct {
	ID            string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID        string       `json:"user_id" gorm:"index;type:varchar(36)"`
	SellerID      string       `json:"seller_id" gorm:"index;type:varchar(36)"`
	Items         []OrderItem  `json:"items" gorm:"serializer:json"`
	ShippingInfo  ShippingInfo `json:"shipping_info" gorm:"serializer:json"`
	PaymentInfo   PaymentInfo  `json:"payment_info" gorm:"serializer:json"`
	ItemsPrice    float64      `json:"items_price"`
	TaxPrice      float64      `json:"tax_price"`
	ShippingPrice float64      `json:"shipping_price"`
	TotalPrice    float64      `json:"total_price"`
	Status        string       `json:"status"` // Processing, Shipped, Delivered
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
