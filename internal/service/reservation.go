package service

import (
	"context"
	"errors"

	"inventory-service/internal/models"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// volatileLedger is the slice of the Redis client the coordinator needs.
type volatileLedger interface {
	ReserveStockAtomic(ctx context.Context, productID, userID string, quantity int) (redisclient.ReservationResult, error)
	RollbackReservation(ctx context.Context, userID, productID string) (int, error)
	ConfirmReservation(ctx context.Context, userID, productID string) error
	SeedStockLevel(ctx context.Context, productID string, level int) error
	SetStockLevel(ctx context.Context, productID string, level int) error
	GetStockLevel(ctx context.Context, productID string) (int, error)
}

// durableStockReader reads authoritative stock for seeding and resync.
type durableStockReader interface {
	GetStockLevel(ctx context.Context, productID string) (int, error)
}

// Reservation records one attempted volatile reservation.
type Reservation struct {
	ProductID      string
	UserID         string
	Quantity       int
	Success        bool
	RemainingStock int
	AvailableStock int
}

// ReservationCoordinator attempts volatile reservations for a checkout's
// items in cart order, stopping at the first shortage.
type ReservationCoordinator struct {
	ledger volatileLedger
	stocks durableStockReader
	logger *zap.Logger
}

// NewReservationCoordinator creates a new reservation coordinator
func NewReservationCoordinator(ledger volatileLedger, stocks durableStockReader) *ReservationCoordinator {
	return &ReservationCoordinator{
		ledger: ledger,
		stocks: stocks,
		logger: util.GetLogger(),
	}
}

// ReserveInVolatile reserves each item atomically, fail-fast: the first
// shortage stops the loop so at most one item is left partially handled. A
// ledger error (as opposed to a shortage) is returned to the caller, which
// must fall back to the durable path. The attempted list is always returned
// so the caller can roll back whatever did succeed.
func (rc *ReservationCoordinator) ReserveInVolatile(ctx context.Context, items []models.StockItem, userID string) ([]Reservation, bool, error) {
	ctx, span := util.StartSpan(ctx, "ReservationCoordinator.ReserveInVolatile")
	defer span.End()

	reservations := make([]Reservation, 0, len(items))

	for _, item := range items {
		result, err := rc.reserveWithSeed(ctx, item, userID)
		if err != nil {
			util.ReservationsFailedTotal.WithLabelValues("ledger_error").Inc()
			return reservations, false, err
		}

		reservations = append(reservations, Reservation{
			ProductID:      item.ProductID,
			UserID:         userID,
			Quantity:       item.Quantity,
			Success:        result.Success,
			RemainingStock: result.RemainingStock,
			AvailableStock: result.AvailableStock,
		})

		if !result.Success {
			util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			rc.logger.Info("Volatile reservation failed",
				zap.String("product_id", item.ProductID),
				zap.Int("requested", item.Quantity),
				zap.Int("available", result.AvailableStock))
			return reservations, false, nil
		}

		rc.logger.Debug("Volatile stock reserved",
			zap.String("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity),
			zap.Int("remaining", result.RemainingStock))
	}

	return reservations, true, nil
}

// reserveWithSeed handles the cold-counter case: when the product has no
// counter yet, seed it from the durable ledger and retry once.
func (rc *ReservationCoordinator) reserveWithSeed(ctx context.Context, item models.StockItem, userID string) (redisclient.ReservationResult, error) {
	result, err := rc.ledger.ReserveStockAtomic(ctx, item.ProductID, userID, item.Quantity)
	if !errors.Is(err, redisclient.ErrStockNotLoaded) {
		return result, err
	}

	level, err := rc.stocks.GetStockLevel(ctx, item.ProductID)
	if err != nil {
		return redisclient.ReservationResult{}, err
	}
	if err := rc.ledger.SeedStockLevel(ctx, item.ProductID, level); err != nil {
		return redisclient.ReservationResult{}, err
	}

	rc.logger.Info("Seeded volatile counter from durable ledger",
		zap.String("product_id", item.ProductID),
		zap.Int("level", level))

	return rc.ledger.ReserveStockAtomic(ctx, item.ProductID, userID, item.Quantity)
}

// RollbackReservations undoes the successful reservations of an attempt.
// Best-effort: each item is tried regardless of earlier failures.
func (rc *ReservationCoordinator) RollbackReservations(ctx context.Context, reservations []Reservation) {
	for _, r := range reservations {
		if !r.Success {
			continue
		}
		if _, err := rc.ledger.RollbackReservation(ctx, r.UserID, r.ProductID); err != nil {
			rc.logger.Error("Failed to roll back volatile reservation",
				zap.String("product_id", r.ProductID),
				zap.Error(err))
		}
	}
}

// RollbackFromData undoes volatile reservations using raw item data. Used
// when the order transaction fails after the volatile ledger already
// decremented, so no Reservation records are at hand.
func (rc *ReservationCoordinator) RollbackFromData(ctx context.Context, items []models.StockItem, userID string) {
	for _, item := range items {
		if _, err := rc.ledger.RollbackReservation(ctx, userID, item.ProductID); err != nil {
			rc.logger.Error("Failed to roll back volatile reservation from data",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

// ConfirmReservations settles reservations after payment success.
// Best-effort: failures are logged, never propagated.
func (rc *ReservationCoordinator) ConfirmReservations(ctx context.Context, items []models.StockItem, userID string) {
	for _, item := range items {
		if err := rc.ledger.ConfirmReservation(ctx, userID, item.ProductID); err != nil {
			rc.logger.Warn("Failed to confirm volatile reservation",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

// SyncVolatileFromDurable overwrites the volatile counters with the durable
// levels for the given items. Used after a durable-only reservation so the
// counters do not drift permanently.
func (rc *ReservationCoordinator) SyncVolatileFromDurable(ctx context.Context, items []models.StockItem) {
	for _, item := range items {
		level, err := rc.stocks.GetStockLevel(ctx, item.ProductID)
		if err != nil {
			rc.logger.Error("Failed to read durable stock for sync",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		if err := rc.ledger.SetStockLevel(ctx, item.ProductID, level); err != nil {
			rc.logger.Error("Failed to sync volatile counter",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		rc.logger.Debug("Volatile counter synced from durable ledger",
			zap.String("product_id", item.ProductID),
			zap.Int("level", level))
	}
}
