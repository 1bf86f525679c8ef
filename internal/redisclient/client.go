package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/rollback_stock.lua
var rollbackStockScript string

//go:embed scripts/confirm_stock.lua
var confirmStockScript string

const (
	stockKeyPrefix       = "stock:"
	reservationKeyPrefix = "reservation:"

	reservationTTL = 30 * time.Minute
	// Confirmed reservation records are kept a day for auditing.
	confirmedAuditTTL = 24 * time.Hour
)

// ErrStockNotLoaded means the product has no counter in Redis yet. The caller
// is expected to seed it from the durable ledger and retry.
var ErrStockNotLoaded = fmt.Errorf("stock counter not loaded")

// ReservationResult is the outcome of one atomic reserve attempt.
type ReservationResult struct {
	Success        bool
	RemainingStock int
	AvailableStock int
}

type Client struct {
	rdb            *redis.Client
	reserveScript  *redis.Script
	rollbackScript *redis.Script
	confirmScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:            rdb,
		reserveScript:  redis.NewScript(reserveStockScript),
		rollbackScript: redis.NewScript(rollbackStockScript),
		confirmScript:  redis.NewScript(confirmStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity for health reporting
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID string) string {
	return stockKeyPrefix + productID
}

func reservationKey(userID, productID string) string {
	return fmt.Sprintf("%s%s:%s", reservationKeyPrefix, userID, productID)
}

// ReserveStockAtomic performs a single atomic check-and-decrement. The script
// also writes a reservation record carrying the quantity, which is what makes
// the quantity-less rollback exact. Insufficient stock is not an error: the
// result reports success=false and the stock the script observed.
func (c *Client) ReserveStockAtomic(ctx context.Context, productID, userID string, quantity int) (ReservationResult, error) {
	keys := []string{stockKey(productID), reservationKey(userID, productID)}

	raw, err := c.reserveScript.Run(ctx, c.rdb, keys, quantity, int(reservationTTL.Seconds())).Result()
	if err != nil {
		return ReservationResult{}, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, value, err := decodeScriptPair(raw)
	if err != nil {
		return ReservationResult{}, err
	}

	switch status {
	case 1:
		return ReservationResult{Success: true, RemainingStock: value}, nil
	case 0:
		return ReservationResult{Success: false, AvailableStock: value}, nil
	default:
		return ReservationResult{}, ErrStockNotLoaded
	}
}

// RollbackReservation gives the reserved quantity back to the counter. The
// quantity comes from the reservation record, not the caller. A missing
// record (expired or never reserved) reports quantity 0.
func (c *Client) RollbackReservation(ctx context.Context, userID, productID string) (int, error) {
	keys := []string{stockKey(productID), reservationKey(userID, productID)}

	raw, err := c.rollbackScript.Run(ctx, c.rdb, keys).Result()
	if err != nil {
		return 0, fmt.Errorf("rollback stock script failed: %w", err)
	}

	status, qty, err := decodeScriptPair(raw)
	if err != nil {
		return 0, err
	}
	if status == 0 {
		return 0, nil
	}
	return qty, nil
}

// ConfirmReservation settles a reservation after payment success. The counter
// was decremented at reserve time, so this is record bookkeeping only.
func (c *Client) ConfirmReservation(ctx context.Context, userID, productID string) error {
	keys := []string{reservationKey(userID, productID)}

	_, err := c.confirmScript.Run(ctx, c.rdb, keys, int(confirmedAuditTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("confirm stock script failed: %w", err)
	}
	return nil
}

// SetStockLevel overwrites the counter unconditionally (admin resync).
func (c *Client) SetStockLevel(ctx context.Context, productID string, level int) error {
	if err := c.rdb.Set(ctx, stockKey(productID), level, 0).Err(); err != nil {
		return fmt.Errorf("set stock level failed: %w", err)
	}
	return nil
}

// SeedStockLevel writes the counter only if it does not exist, so a
// durable-ledger load cannot clobber in-flight reservations.
func (c *Client) SeedStockLevel(ctx context.Context, productID string, level int) error {
	if err := c.rdb.SetNX(ctx, stockKey(productID), level, 0).Err(); err != nil {
		return fmt.Errorf("seed stock level failed: %w", err)
	}
	return nil
}

// GetStockLevel reads the current counter. ErrStockNotLoaded when absent.
func (c *Client) GetStockLevel(ctx context.Context, productID string) (int, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Int()
	if err == redis.Nil {
		return 0, ErrStockNotLoaded
	}
	if err != nil {
		return 0, fmt.Errorf("get stock level failed: %w", err)
	}
	return val, nil
}

// InitStockLevels bulk-loads counters at startup via a pipeline.
func (c *Client) InitStockLevels(ctx context.Context, levels map[string]int) error {
	if len(levels) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for productID, level := range levels {
		pipe.Set(ctx, stockKey(productID), level, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("init stock levels failed: %w", err)
	}
	return nil
}

func decodeScriptPair(raw interface{}) (int, int, error) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected script result type %T", raw)
	}
	status, ok := pair[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script status type %T", pair[0])
	}
	value, ok := pair[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script value type %T", pair[1])
	}
	return int(status), int(value), nil
}
