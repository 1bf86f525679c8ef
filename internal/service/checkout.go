package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService runs the destructive write path of checkout: volatile
// reservation, then order + items + durable decrement in one transaction.
type CheckoutService struct {
	store       *store.Store
	coordinator *ReservationCoordinator
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(st *store.Store, coordinator *ReservationCoordinator) *CheckoutService {
	return &CheckoutService{
		store:       st,
		coordinator: coordinator,
		logger:      util.GetLogger(),
	}
}

// CheckoutRequest represents a request to place an order
type CheckoutRequest struct {
	UserID string             `json:"user_id" binding:"required"`
	Items  []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// OrderItemRequest represents an item in a checkout request
type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse is returned once the order is persisted. Payment intent
// creation happens outside the core against this order.
type CheckoutResponse struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TotalAmount   int64  `json:"total_amount"`
}

// Checkout reserves stock and persists the order. The volatile ledger is the
// fast path; a ledger error (not a shortage) falls back to the durable
// conditional decrement. A shortage in either ledger aborts the checkout with
// an InsufficientStockError naming the product and available quantity.
func (cs *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReservationLatency.Observe(time.Since(start).Seconds())
	}()

	items := make([]models.StockItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = models.StockItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	products, err := cs.validateItems(ctx, items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	reservations, volatileOK, ledgerErr := cs.coordinator.ReserveInVolatile(ctx, items, req.UserID)
	if ledgerErr != nil {
		// Volatile ledger unreachable: roll back whatever it accepted and
		// let the durable conditional decrement carry the whole check.
		cs.logger.Warn("Volatile ledger unavailable, falling back to durable path",
			zap.Error(ledgerErr))
		cs.coordinator.RollbackReservations(ctx, reservations)
		reservations = nil
		volatileOK = false
	} else if !volatileOK {
		cs.coordinator.RollbackReservations(ctx, reservations)
		failed := reservations[len(reservations)-1]
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, &store.InsufficientStockError{
			ProductID: failed.ProductID,
			Requested: failed.Quantity,
			Available: failed.AvailableStock,
		}
	}

	resp, err := cs.persistOrder(ctx, req, items, products, reservations, volatileOK && ledgerErr == nil)
	if err != nil {
		if volatileOK {
			cs.coordinator.RollbackFromData(ctx, items, req.UserID)
		}
		return nil, err
	}

	if ledgerErr != nil {
		// Durable path carried the decrement; align the counters so they do
		// not drift once the ledger comes back.
		cs.coordinator.SyncVolatileFromDurable(ctx, items)
	}

	util.OrdersCreatedTotal.Inc()
	cs.logger.Info("Order created",
		zap.String("order_id", resp.OrderID),
		zap.String("order_number", resp.OrderNumber),
		zap.String("user_id", req.UserID))

	return resp, nil
}

// persistOrder writes the order, its items and the durable stock mutation in
// one transaction. When the volatile ledger reserved, the durable ledger gets
// the matching unconditional decrement; otherwise the conditional decrement
// performs the shortage check itself.
func (cs *CheckoutService) persistOrder(
	ctx context.Context,
	req *CheckoutRequest,
	items []models.StockItem,
	products map[string]*models.Product,
	reservations []Reservation,
	volatileReserved bool,
) (*CheckoutResponse, error) {
	tx, err := cs.store.BeginTxx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := &models.Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		OrderNumber:   newOrderNumber(),
		TotalAmount:   calculateTotal(items, products),
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}

	if err := cs.store.CreateOrderTx(ctx, tx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range items {
		orderItem := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: products[item.ProductID].Price,
		}
		if err := cs.store.CreateOrderItemTx(ctx, tx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if volatileReserved {
		reserved := make(map[string]bool, len(reservations))
		for _, r := range reservations {
			reserved[r.ProductID] = r.Success
		}
		if err := cs.store.SyncStockFromVolatile(ctx, tx, items, reserved); err != nil {
			return nil, err
		}
	} else {
		if err := cs.store.ReserveStockTx(ctx, tx, items); err != nil {
			var shortage *store.InsufficientStockError
			if errors.As(err, &shortage) {
				util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	return &CheckoutResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
	}, nil
}

// validateItems checks all products exist and returns them keyed by ID
func (cs *CheckoutService) validateItems(ctx context.Context, items []models.StockItem) (map[string]*models.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(items) {
		return nil, fmt.Errorf("some products not found")
	}

	productMap := make(map[string]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	return productMap, nil
}

// GetOrder retrieves an order and its items
func (cs *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := cs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := cs.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func calculateTotal(items []models.StockItem, products map[string]*models.Product) int64 {
	var total int64
	for _, item := range items {
		total += products[item.ProductID].Price * int64(item.Quantity)
	}
	return total
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.New().String()[:8])
}
