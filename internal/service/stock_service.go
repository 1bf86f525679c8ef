package service

import (
	"context"
	"errors"
	"fmt"

	"inventory-service/internal/redisclient"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// StockService covers the administrative edges of the two ledgers: startup
// sync, emergency resets and health reporting.
type StockService struct {
	store  *store.Store
	ledger *redisclient.Client
	logger *zap.Logger
}

// NewStockService creates a new stock service
func NewStockService(st *store.Store, ledger *redisclient.Client) *StockService {
	return &StockService{
		store:  st,
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// SyncStockToVolatile bulk-loads every product's durable stock into the
// volatile ledger. Called once at startup; overwrites whatever Redis holds.
func (ss *StockService) SyncStockToVolatile(ctx context.Context) error {
	levels, err := ss.store.GetAllStockLevels(ctx)
	if err != nil {
		return fmt.Errorf("failed to read durable stock levels: %w", err)
	}

	if err := ss.ledger.InitStockLevels(ctx, levels); err != nil {
		return fmt.Errorf("failed to load volatile counters: %w", err)
	}

	ss.logger.Info("Stock synced to volatile ledger", zap.Int("products", len(levels)))
	return nil
}

// SetStockLevel overwrites a product's volatile counter (emergency reset).
// The durable column is untouched; it stays the source of truth.
func (ss *StockService) SetStockLevel(ctx context.Context, productID string, level int) error {
	if level < 0 {
		return fmt.Errorf("stock level must not be negative")
	}
	if err := ss.ledger.SetStockLevel(ctx, productID, level); err != nil {
		return err
	}
	ss.logger.Info("Stock level set",
		zap.String("product_id", productID),
		zap.Int("level", level))
	return nil
}

// GetStockLevel reads the volatile counter, falling back to the durable
// ledger when the counter is not loaded.
func (ss *StockService) GetStockLevel(ctx context.Context, productID string) (int, error) {
	level, err := ss.ledger.GetStockLevel(ctx, productID)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, redisclient.ErrStockNotLoaded) {
		ss.logger.Warn("Volatile read failed, falling back to durable ledger",
			zap.String("product_id", productID),
			zap.Error(err))
	}
	return ss.store.GetStockLevel(ctx, productID)
}

// LedgerHealth reports per-ledger reachability. A degraded volatile ledger is
// survivable (durable fallback); a degraded durable ledger is not.
type LedgerHealth struct {
	VolatileOK bool   `json:"volatile_ok"`
	DurableOK  bool   `json:"durable_ok"`
	Detail     string `json:"detail,omitempty"`
}

// HealthCheck pings both ledgers
func (ss *StockService) HealthCheck(ctx context.Context) LedgerHealth {
	health := LedgerHealth{VolatileOK: true, DurableOK: true}

	if err := ss.ledger.Ping(ctx); err != nil {
		health.VolatileOK = false
		health.Detail = fmt.Sprintf("volatile ledger: %v", err)
	}
	if err := ss.store.Ping(ctx); err != nil {
		health.DurableOK = false
		if health.Detail != "" {
			health.Detail += "; "
		}
		health.Detail += fmt.Sprintf("durable ledger: %v", err)
	}
	return health
}
