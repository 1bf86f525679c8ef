package store

import (
	"context"
	"database/sql"
	"fmt"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderTx inserts a new order inside the checkout transaction
func (s *Store) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, order_number, total_amount, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.OrderNumber, order.TotalAmount,
		order.Status, order.PaymentStatus).
		Scan(&order.CreatedAt, &order.UpdatedAt)
}

// CreateOrderItemTx inserts an order item inside the checkout transaction
func (s *Store) CreateOrderItemTx(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return tx.QueryRowxContext(ctx, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice).
		Scan(&item.ID)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderPaymentStatus reads only the payment status, used by the per-handler
// idempotency gate before any mutation.
func (s *Store) GetOrderPaymentStatus(ctx context.Context, orderID string) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		"SELECT payment_status FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("order not found: %s", orderID)
	}
	return status, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// MarkOrderCompleted records a successful payment
func (s *Store) MarkOrderCompleted(ctx context.Context, orderID, paymentIntentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, payment_intent_id = $3,
		    paid_at = NOW(), updated_at = NOW()
		WHERE id = $4`,
		models.PaymentStatusCompleted, models.OrderStatusConfirmed, paymentIntentID, orderID)
	return err
}

// MarkOrderFailed records a failed payment
func (s *Store) MarkOrderFailed(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		models.PaymentStatusFailed, models.OrderStatusCanceled, orderID)
	return err
}

// MarkOrderCanceled records a customer cancellation with reason
func (s *Store) MarkOrderCanceled(ctx context.Context, orderID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, cancel_reason = $3,
		    cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $4`,
		models.PaymentStatusCanceled, models.OrderStatusCanceled, reason, orderID)
	return err
}

// MarkOrderRequiresAction records that extra authentication is pending.
// Stock is untouched: the reservation stays held until funds settle.
func (s *Store) MarkOrderRequiresAction(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		models.PaymentStatusRequiresAction, models.OrderStatusPending, orderID)
	return err
}

// MarkOrderProcessing records that the provider is processing the payment
func (s *Store) MarkOrderProcessing(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		models.PaymentStatusProcessing, models.OrderStatusProcessing, orderID)
	return err
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}
