package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"

	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"

	ShippingStatusPending   = "pending"
	ShippingStatusShipped   = "shipped"
	ShippingStatusDelivered = "delivered"
	ShippingStatusReturned  = "returned"
)

// Order is created once at checkout confirmation. Only the three status
// fields change afterwards; items and amounts are immutable.
type Order struct {
	BaseModel
	UserID         uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	User           *User       `json:"user,omitempty"`
	OrderCode      string      `gorm:"uniqueIndex" json:"order_code"`
	Status         string      `json:"status"`
	PaymentStatus  string      `json:"payment_status"`
	ShippingStatus string      `json:"shipping_status"`
	PlacedAt       time.Time   `json:"placed_at"`
	Subtotal       int64       `json:"subtotal"`
	DiscountAmount int64       `json:"discount_amount"`
	TotalAmount    int64       `json:"total_amount"`
	Currency       string      `json:"currency"`
	PromoCodeID    *uuid.UUID  `gorm:"type:uuid" json:"promo_code_id"`
	PromoCode      string      `json:"promo_code"`
	CustomerName   string      `json:"customer_name"`
	CustomerPhone  string      `json:"customer_phone"`
	CustomerEmail  string      `json:"customer_email"`
	AddressLine    string      `json:"address_line"`
	Apartment      string      `json:"apartment"`
	City           string      `json:"city"`
	District       string      `json:"district"`
	PostalCode     string      `json:"postal_code"`
	PaymentMethod  string      `json:"payment_method"`
	Notes          string      `json:"notes"`
	Items          []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductID   uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	LineTotal   int64     `json:"line_total"`
}
