package service

import (
	"context"
	"fmt"
	"sync"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// Rollback methods reported in RollbackResult
const (
	RollbackMethodVolatile = "volatile"
	RollbackMethodDurable  = "durable"
	RollbackMethodBoth     = "both"
	RollbackMethodNone     = "none"
)

// RollbackOutcome is one strategy's view of a rollback attempt.
type RollbackOutcome struct {
	Strategy        string
	Success         bool
	ItemsRolledBack int
	Errors          []string
}

// RollbackResult merges both strategies' outcomes. Success means at least one
// ledger got its stock back; full cross-ledger alignment is left to the sync
// operations, not to the orchestrator.
type RollbackResult struct {
	Success         bool
	Method          string
	ItemsRolledBack int
	Errors          []string
}

// RollbackStrategy restores reserved stock in one ledger.
type RollbackStrategy interface {
	Name() string
	Rollback(ctx context.Context, orderID, userID string, items []models.StockItem) RollbackOutcome
}

// volatileRollbackLedger is the slice of the Redis client the volatile
// strategy needs.
type volatileRollbackLedger interface {
	RollbackReservation(ctx context.Context, userID, productID string) (int, error)
	GetStockLevel(ctx context.Context, productID string) (int, error)
}

// VolatileRollbackStrategy rolls back each item's Redis reservation. Unlike
// the fail-fast reservation path, one item's failure never stops the rest.
type VolatileRollbackStrategy struct {
	ledger volatileRollbackLedger
	logger *zap.Logger
}

// NewVolatileRollbackStrategy creates the Redis-backed strategy
func NewVolatileRollbackStrategy(ledger volatileRollbackLedger) *VolatileRollbackStrategy {
	return &VolatileRollbackStrategy{
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

func (s *VolatileRollbackStrategy) Name() string { return RollbackMethodVolatile }

func (s *VolatileRollbackStrategy) Rollback(ctx context.Context, orderID, userID string, items []models.StockItem) RollbackOutcome {
	outcome := RollbackOutcome{Strategy: s.Name()}

	for _, item := range items {
		qty, err := s.ledger.RollbackReservation(ctx, userID, item.ProductID)
		if err != nil {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("volatile rollback failed for product %s: %v", item.ProductID, err))
			continue
		}
		if qty == 0 {
			s.logger.Warn("No volatile reservation found for rollback",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID))
			continue
		}
		outcome.ItemsRolledBack++
	}

	outcome.Success = len(outcome.Errors) == 0
	return outcome
}

// StockLevel is a read-only snapshot used by rollback verification.
type StockLevel struct {
	ProductID string
	Level     int
}

// Verify reads current volatile levels for the rolled-back items so an
// operator can audit the result. Read-only.
func (s *VolatileRollbackStrategy) Verify(ctx context.Context, items []models.StockItem) ([]StockLevel, error) {
	levels := make([]StockLevel, 0, len(items))
	for _, item := range items {
		level, err := s.ledger.GetStockLevel(ctx, item.ProductID)
		if err != nil {
			return levels, fmt.Errorf("verify failed for product %s: %w", item.ProductID, err)
		}
		levels = append(levels, StockLevel{ProductID: item.ProductID, Level: level})
	}
	return levels, nil
}

// durableRollbackStore is the slice of the store the durable strategy needs.
type durableRollbackStore interface {
	RollbackOrderStock(ctx context.Context, orderID string) (int, error)
}

// DurableRollbackStrategy restores durable stock for the whole order in one
// transaction, flipping the order to canceled/failed as part of it.
type DurableRollbackStrategy struct {
	store  durableRollbackStore
	logger *zap.Logger
}

// NewDurableRollbackStrategy creates the database-backed strategy
func NewDurableRollbackStrategy(store durableRollbackStore) *DurableRollbackStrategy {
	return &DurableRollbackStrategy{
		store:  store,
		logger: util.GetLogger(),
	}
}

func (s *DurableRollbackStrategy) Name() string { return RollbackMethodDurable }

func (s *DurableRollbackStrategy) Rollback(ctx context.Context, orderID, userID string, items []models.StockItem) RollbackOutcome {
	outcome := RollbackOutcome{Strategy: s.Name()}

	count, err := s.store.RollbackOrderStock(ctx, orderID)
	if err != nil {
		outcome.Errors = append(outcome.Errors,
			fmt.Sprintf("durable rollback failed for order %s: %v", orderID, err))
		return outcome
	}

	outcome.Success = true
	outcome.ItemsRolledBack = count
	return outcome
}

// RollbackOrchestrator fans out to both strategies concurrently and merges
// their outcomes. One strategy failing or stalling never cancels the other.
type RollbackOrchestrator struct {
	volatile RollbackStrategy
	durable  RollbackStrategy
	logger   *zap.Logger
}

// NewRollbackOrchestrator creates a new rollback orchestrator
func NewRollbackOrchestrator(volatile, durable RollbackStrategy) *RollbackOrchestrator {
	return &RollbackOrchestrator{
		volatile: volatile,
		durable:  durable,
		logger:   util.GetLogger(),
	}
}

// RollbackOrderStock runs both strategies and merges the outcomes.
func (ro *RollbackOrchestrator) RollbackOrderStock(ctx context.Context, orderID, userID string, items []models.StockItem) RollbackResult {
	ctx, span := util.StartSpan(ctx, "RollbackOrchestrator.RollbackOrderStock")
	defer span.End()

	ro.logger.Info("Starting stock rollback",
		zap.String("order_id", orderID),
		zap.Int("items", len(items)))

	var volatileOutcome, durableOutcome RollbackOutcome

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		volatileOutcome = ro.volatile.Rollback(ctx, orderID, userID, items)
	}()
	go func() {
		defer wg.Done()
		durableOutcome = ro.durable.Rollback(ctx, orderID, userID, items)
	}()
	wg.Wait()

	result := mergeOutcomes(volatileOutcome, durableOutcome)

	util.RollbacksTotal.WithLabelValues(result.Method).Inc()
	if result.Success {
		ro.logger.Info("Stock rollback completed",
			zap.String("order_id", orderID),
			zap.String("method", result.Method),
			zap.Int("items_rolled_back", result.ItemsRolledBack),
			zap.Strings("errors", result.Errors))
	} else {
		ro.logger.Error("Stock rollback failed in both ledgers",
			zap.String("order_id", orderID),
			zap.Strings("errors", result.Errors))
	}

	return result
}

func mergeOutcomes(volatile, durable RollbackOutcome) RollbackResult {
	result := RollbackResult{
		Success: volatile.Success || durable.Success,
		Errors:  append(append([]string{}, volatile.Errors...), durable.Errors...),
	}

	switch {
	case volatile.Success && durable.Success:
		result.Method = RollbackMethodBoth
	case volatile.Success:
		result.Method = RollbackMethodVolatile
	case durable.Success:
		result.Method = RollbackMethodDurable
	default:
		result.Method = RollbackMethodNone
	}

	// The durable count is authoritative when available; the volatile count
	// can undershoot when reservation records already expired.
	result.ItemsRolledBack = durable.ItemsRolledBack
	if !durable.Success {
		result.ItemsRolledBack = volatile.ItemsRolledBack
	}

	return result
}
