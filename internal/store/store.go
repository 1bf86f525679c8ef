package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// InsufficientStockError is returned when a conditional decrement affects zero
// rows. Available is fetched after the fact for the message only; the decision
// was already made atomically by the UPDATE itself.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested=%d, available=%d", name, e.Requested, e.Available)
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for health reporting
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTxx starts a transaction for the order-creation write path
func (s *Store) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetAllStockLevels reads every product's durable stock, used to seed the
// volatile ledger at startup.
func (s *Store) GetAllStockLevels(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		ID    string `db:"id"`
		Stock int    `db:"stock"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, stock FROM products"); err != nil {
		return nil, err
	}

	levels := make(map[string]int, len(rows))
	for _, r := range rows {
		levels[r.ID] = r.Stock
	}
	return levels, nil
}

// GetStockLevel reads one product's durable stock
func (s *Store) GetStockLevel(ctx context.Context, productID string) (int, error) {
	var stock int
	err := s.db.GetContext(ctx, &stock, "SELECT stock FROM products WHERE id = $1", productID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product not found: %s", productID)
	}
	return stock, err
}

// ReserveStockTx decrements durable stock for every item inside the given
// transaction. The WHERE clause is the shortage check; zero rows affected
// means insufficient stock and aborts with an InsufficientStockError naming
// the product and the stock it had at that point.
func (s *Store) ReserveStockTx(ctx context.Context, tx *sqlx.Tx, items []models.StockItem) error {
	for _, item := range items {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to reserve stock for product %s: %w", item.ProductID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}

		if affected == 0 {
			var current struct {
				Name  string `db:"name"`
				Stock int    `db:"stock"`
			}
			if err := tx.GetContext(ctx, &current,
				"SELECT name, stock FROM products WHERE id = $1", item.ProductID); err != nil {
				current.Name = item.ProductID
			}
			return &InsufficientStockError{
				ProductID:   item.ProductID,
				ProductName: current.Name,
				Requested:   item.Quantity,
				Available:   current.Stock,
			}
		}
	}
	return nil
}

// SyncStockFromVolatile applies the decrements the volatile ledger already
// accepted to the durable ledger, inside the order transaction. Only items
// whose volatile reservation succeeded are written.
func (s *Store) SyncStockFromVolatile(ctx context.Context, tx *sqlx.Tx, items []models.StockItem, reserved map[string]bool) error {
	for _, item := range items {
		if !reserved[item.ProductID] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to sync stock for product %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// RollbackOrderStock restores durable stock for every item of the order and,
// in the same transaction, flips the order to canceled/failed. Returns the
// number of items rolled back.
func (s *Store) RollbackOrderStock(ctx context.Context, orderID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return 0, fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ProductID)
		if err != nil {
			return 0, fmt.Errorf("failed to restore stock for product %s: %w", item.ProductID, err)
		}
	}

	if len(items) > 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
			models.OrderStatusCanceled, models.PaymentStatusFailed, orderID)
		if err != nil {
			return 0, fmt.Errorf("failed to cancel order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(items), nil
}
