package redisclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveStockAtomicConcurrentNoOversell(t *testing.T) {
	// This is a placeholder test - requires actual Redis connection
	// In real scenarios, use testcontainers or a Lua-capable miniredis

	t.Skip("Integration test - requires Redis")

	client, err := NewClient("localhost:6379", "", 1)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.SetStockLevel(ctx, "prod-1", 10))

	var successes int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := client.ReserveStockAtomic(ctx, "prod-1", fmt.Sprintf("user-%d", i), 1)
			if err == nil && result.Success {
				atomic.AddInt64(&successes, 1)
			}
		}(i)
	}
	wg.Wait()

	// 10 units, 20 competing reserves: exactly 10 win, never more
	assert.Equal(t, int64(10), successes)

	level, err := client.GetStockLevel(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, level)
}

func TestReserveStockAtomicConcurrentMixedQuantities(t *testing.T) {
	t.Skip("Integration test - requires Redis")

	client, err := NewClient("localhost:6379", "", 1)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.SetStockLevel(ctx, "prod-2", 2))

	quantities := []int{2, 1}
	results := make([]ReservationResult, len(quantities))
	errs := make([]error, len(quantities))

	var wg sync.WaitGroup
	for i, qty := range quantities {
		wg.Add(1)
		go func(i, qty int) {
			defer wg.Done()
			results[i], errs[i] = client.ReserveStockAtomic(ctx, "prod-2", fmt.Sprintf("user-%d", i), qty)
		}(i, qty)
	}
	wg.Wait()

	winners := 0
	reserved := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Success {
			winners++
			reserved += quantities[i]
		}
	}

	// Two units cannot satisfy both reserve(2) and reserve(1); whichever
	// script runs first wins and the other observes the shortage.
	assert.Equal(t, 1, winners)

	level, err := client.GetStockLevel(ctx, "prod-2")
	require.NoError(t, err)
	assert.Equal(t, 2-reserved, level)
}

func TestRollbackRestoresReservedQuantity(t *testing.T) {
	t.Skip("Integration test - requires Redis")

	client, err := NewClient("localhost:6379", "", 1)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.SetStockLevel(ctx, "prod-3", 5))

	result, err := client.ReserveStockAtomic(ctx, "prod-3", "user-1", 3)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.RemainingStock)

	qty, err := client.RollbackReservation(ctx, "user-1", "prod-3")
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	level, err := client.GetStockLevel(ctx, "prod-3")
	require.NoError(t, err)
	assert.Equal(t, 5, level)

	// The record is consumed: a second rollback restores nothing
	qty, err = client.RollbackReservation(ctx, "user-1", "prod-3")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}
