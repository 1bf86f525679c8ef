package store

import (
	"context"
	"fmt"

	"inventory-service/internal/models"
)

// ClearUserCart deletes the user's cart after a successful payment. The cart
// is re-checked inside the transaction so an already-empty cart is a clean
// no-op rather than a misreported failure. Returns the items removed.
func (s *Store) ClearUserCart(ctx context.Context, userID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM cart_items WHERE user_id = $1", userID); err != nil {
		return 0, fmt.Errorf("failed to check cart: %w", err)
	}

	if count == 0 {
		return 0, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1", userID); err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}

	return count, tx.Commit()
}

// RestoreCartFromOrder re-inserts an order's items into the owner's cart after
// a failed or canceled payment, skipping products already in the cart so a
// retried webhook cannot duplicate lines. Returns the items restored.
func (s *Store) RestoreCartFromOrder(ctx context.Context, orderID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var userID string
	if err := tx.GetContext(ctx, &userID,
		"SELECT user_id FROM orders WHERE id = $1", orderID); err != nil {
		return 0, fmt.Errorf("order not found: %s: %w", orderID, err)
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return 0, fmt.Errorf("failed to load order items: %w", err)
	}

	var existing []string
	if err := tx.SelectContext(ctx, &existing,
		"SELECT product_id FROM cart_items WHERE user_id = $1", userID); err != nil {
		return 0, fmt.Errorf("failed to load cart: %w", err)
	}

	inCart := make(map[string]bool, len(existing))
	for _, id := range existing {
		inCart[id] = true
	}

	restored := 0
	for _, item := range items {
		if inCart[item.ProductID] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)",
			userID, item.ProductID, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("failed to restore cart item %s: %w", item.ProductID, err)
		}
		restored++
	}

	return restored, tx.Commit()
}
