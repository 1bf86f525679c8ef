package webhook

import (
	"context"
	"testing"

	"inventory-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	assert.Equal(t, KindSucceeded, ParseEventKind(models.EventTypePaymentSucceeded))
	assert.Equal(t, KindFailed, ParseEventKind(models.EventTypePaymentFailed))
	assert.Equal(t, KindCanceled, ParseEventKind(models.EventTypePaymentCanceled))
	assert.Equal(t, KindRequiresAction, ParseEventKind(models.EventTypePaymentRequiresAction))
	assert.Equal(t, KindProcessing, ParseEventKind(models.EventTypePaymentProcessing))
	assert.Equal(t, KindUnknown, ParseEventKind("charge.refunded"))
	assert.Equal(t, KindUnknown, ParseEventKind(""))
}

func TestRouteEventMalformed(t *testing.T) {
	orders := newFakeOrderStore()
	handlers, _, _, _ := newTestHandlers(orders)
	router := NewRouter(NewEventCache(10), handlers)

	result := router.RouteEvent(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Error(t, result.Err)

	result = router.RouteEvent(context.Background(), &models.PaymentEvent{Type: models.EventTypePaymentFailed})
	assert.False(t, result.Success)
	assert.Error(t, result.Err)

	result = router.RouteEvent(context.Background(), &models.PaymentEvent{ID: "evt-1"})
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestRouteEventUnknownTypeIsNoOpSuccess(t *testing.T) {
	orders := newFakeOrderStore()
	handlers, _, rollbacker, _ := newTestHandlers(orders)
	router := NewRouter(NewEventCache(10), handlers)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     "charge.refunded",
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := router.RouteEvent(context.Background(), event)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "not handled")
	assert.Equal(t, 0, rollbacker.calls)
}

func TestRouteEventDuplicateSkipped(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 1})
	handlers, _, rollbacker, _ := newTestHandlers(orders)
	router := NewRouter(NewEventCache(10), handlers)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentFailed,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	first := router.RouteEvent(context.Background(), event)
	require.True(t, first.Success)
	require.Equal(t, 1, rollbacker.calls)

	second := router.RouteEvent(context.Background(), event)
	assert.True(t, second.Success)
	assert.Equal(t, "event already processed", second.Message)
	assert.Equal(t, 1, rollbacker.calls)
}

func TestRouteEventFailedValidationStaysRetriable(t *testing.T) {
	orders := newFakeOrderStore()
	handlers, _, _, _ := newTestHandlers(orders)
	router := NewRouter(NewEventCache(10), handlers)

	// order_id present but user_id missing: the success handler rejects it
	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentSucceeded,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	first := router.RouteEvent(context.Background(), event)
	require.False(t, first.Success)
	require.Error(t, first.Err)

	// The retry must reach the handler again, not the duplicate fast path
	second := router.RouteEvent(context.Background(), event)
	assert.False(t, second.Success)
	assert.Error(t, second.Err)
	assert.NotEqual(t, "event already processed", second.Message)
}

func TestRouteEventDispatches(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 1})
	handlers, _, _, _ := newTestHandlers(orders)
	router := NewRouter(NewEventCache(10), handlers)

	result := router.RouteEvent(context.Background(), successEvent("evt-1", "ord-1", "user-1"))

	assert.True(t, result.Success)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.Equal(t, models.PaymentStatusCompleted, orders.orders["ord-1"].PaymentStatus)
}
