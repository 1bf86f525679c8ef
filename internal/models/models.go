package models

import (
	"database/sql"
	"time"
)

// Product represents a product in the catalog. The stock column is the
// authoritative stock level; the Redis counter is an advisory copy.
type Product struct {
	ID        string    `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order
type Order struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	OrderNumber     string         `db:"order_number" json:"order_number"`
	TotalAmount     int64          `db:"total_amount" json:"total_amount"`
	Status          string         `db:"status" json:"status"`
	PaymentStatus   string         `db:"payment_status" json:"payment_status"`
	PaymentIntentID sql.NullString `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CancelReason    sql.NullString `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt     sql.NullTime   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	PaidAt          sql.NullTime   `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem represents an item in an order. It is the only durable record of
// how much stock to give back on rollback.
type OrderItem struct {
	ID        string `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID string `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// CartItem represents an item in a user's cart
type CartItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusCanceled   = "canceled"
)

// Payment statuses
const (
	PaymentStatusPending        = "pending"
	PaymentStatusProcessing     = "processing"
	PaymentStatusCompleted      = "completed"
	PaymentStatusFailed         = "failed"
	PaymentStatusCanceled       = "canceled"
	PaymentStatusRequiresAction = "requires_action"
)

// StockItem is the (product, quantity) pair the ledger operations work on.
type StockItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
