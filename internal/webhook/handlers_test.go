package webhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	mu            sync.Mutex
	orders        map[string]*models.Order
	items         map[string][]models.OrderItem
	cartClears    int
	cartRestores  int
	cancelReasons map[string]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:        make(map[string]*models.Order),
		items:         make(map[string][]models.OrderItem),
		cancelReasons: make(map[string]string),
	}
}

func (f *fakeOrderStore) addOrder(orderID, userID, paymentStatus string, items ...models.OrderItem) {
	f.orders[orderID] = &models.Order{
		ID:            orderID,
		UserID:        userID,
		Status:        models.OrderStatusPending,
		PaymentStatus: paymentStatus,
	}
	f.items[orderID] = items
}

func (f *fakeOrderStore) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) GetOrderPaymentStatus(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return "", fmt.Errorf("order not found: %s", orderID)
	}
	return order.PaymentStatus, nil
}

func (f *fakeOrderStore) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}

func (f *fakeOrderStore) setStatus(orderID, status, paymentStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %s", orderID)
	}
	order.Status = status
	order.PaymentStatus = paymentStatus
	return nil
}

func (f *fakeOrderStore) MarkOrderCompleted(ctx context.Context, orderID, paymentIntentID string) error {
	return f.setStatus(orderID, models.OrderStatusConfirmed, models.PaymentStatusCompleted)
}

func (f *fakeOrderStore) MarkOrderFailed(ctx context.Context, orderID string) error {
	return f.setStatus(orderID, models.OrderStatusCanceled, models.PaymentStatusFailed)
}

func (f *fakeOrderStore) MarkOrderCanceled(ctx context.Context, orderID, reason string) error {
	f.mu.Lock()
	f.cancelReasons[orderID] = reason
	f.mu.Unlock()
	return f.setStatus(orderID, models.OrderStatusCanceled, models.PaymentStatusCanceled)
}

func (f *fakeOrderStore) MarkOrderRequiresAction(ctx context.Context, orderID string) error {
	return f.setStatus(orderID, models.OrderStatusPending, models.PaymentStatusRequiresAction)
}

func (f *fakeOrderStore) MarkOrderProcessing(ctx context.Context, orderID string) error {
	return f.setStatus(orderID, models.OrderStatusProcessing, models.PaymentStatusProcessing)
}

func (f *fakeOrderStore) ClearUserCart(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartClears++
	return 2, nil
}

func (f *fakeOrderStore) RestoreCartFromOrder(ctx context.Context, orderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartRestores++
	return len(f.items[orderID]), nil
}

type fakeConfirmer struct {
	mu    sync.Mutex
	calls [][]models.StockItem
}

func (f *fakeConfirmer) ConfirmReservations(ctx context.Context, items []models.StockItem, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, items)
}

type fakeRollbacker struct {
	mu     sync.Mutex
	calls  int
	orders []string
	result service.RollbackResult
}

func (f *fakeRollbacker) RollbackOrderStock(ctx context.Context, orderID, userID string, items []models.StockItem) service.RollbackResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.orders = append(f.orders, orderID)
	return f.result
}

type fakeDispatcher struct {
	mu            sync.Mutex
	notifications []string
	invoices      int
}

func (f *fakeDispatcher) SendNotification(ctx context.Context, userID, notificationType, title, body string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notificationType)
	return nil
}

func (f *fakeDispatcher) RequestInvoice(ctx context.Context, orderID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices++
	return nil
}

func (f *fakeDispatcher) invoiceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoices
}

func successEvent(eventID, orderID, userID string) *models.PaymentEvent {
	return &models.PaymentEvent{
		ID:       eventID,
		Type:     models.EventTypePaymentSucceeded,
		IntentID: "pi_123",
		Metadata: map[string]string{"order_id": orderID, "user_id": userID},
	}
}

func newTestHandlers(orders *fakeOrderStore) (*PaymentHandlers, *fakeConfirmer, *fakeRollbacker, *fakeDispatcher) {
	confirmer := &fakeConfirmer{}
	rollbacker := &fakeRollbacker{result: service.RollbackResult{
		Success: true,
		Method:  service.RollbackMethodBoth,
	}}
	dispatcher := &fakeDispatcher{}
	return NewPaymentHandlers(orders, confirmer, rollbacker, dispatcher), confirmer, rollbacker, dispatcher
}

func TestHandleSucceeded(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 2})
	handlers, confirmer, _, dispatcher := newTestHandlers(orders)

	result := handlers.HandleSucceeded(context.Background(), successEvent("evt-1", "ord-1", "user-1"))

	assert.True(t, result.Success)
	assert.Equal(t, "ord-1", result.OrderID)

	order := orders.orders["ord-1"]
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

	require.Len(t, confirmer.calls, 1)
	assert.Equal(t, []models.StockItem{{ProductID: "prod-1", Quantity: 2}}, confirmer.calls[0])

	assert.Equal(t, 1, orders.cartClears)
	assert.Contains(t, dispatcher.notifications, models.NotificationPaymentSuccess)

	// Invoice generation is detached and finishes after the result is returned
	assert.Eventually(t, func() bool {
		return dispatcher.invoiceCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleSucceededRedeliveredEvent(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 1})
	handlers, confirmer, _, dispatcher := newTestHandlers(orders)

	first := handlers.HandleSucceeded(context.Background(), successEvent("evt-1", "ord-1", "user-1"))
	require.True(t, first.Success)
	assert.Eventually(t, func() bool {
		return dispatcher.invoiceCount() == 1
	}, time.Second, 10*time.Millisecond)

	// Same order, different event ID: the payment status gate must stop it
	second := handlers.HandleSucceeded(context.Background(), successEvent("evt-2", "ord-1", "user-1"))

	assert.True(t, second.Success)
	assert.Equal(t, "order ord-1 already completed", second.Message)

	assert.Equal(t, 1, orders.cartClears)
	assert.Len(t, confirmer.calls, 1)
	assert.Equal(t, 1, dispatcher.invoiceCount())
}

func TestHandleSucceededMissingUserID(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending)
	handlers, _, _, dispatcher := newTestHandlers(orders)

	event := successEvent("evt-1", "ord-1", "")
	delete(event.Metadata, "user_id")

	result := handlers.HandleSucceeded(context.Background(), event)

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
	assert.Equal(t, 0, orders.cartClears)
	assert.Empty(t, dispatcher.notifications)
}

func TestHandleFailedRollsBackStock(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 3})
	handlers, _, rollbacker, dispatcher := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentFailed,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := handlers.HandleFailed(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, models.PaymentStatusFailed, orders.orders["ord-1"].PaymentStatus)
	assert.Equal(t, 1, rollbacker.calls)
	assert.Equal(t, []string{"ord-1"}, rollbacker.orders)
	assert.Equal(t, 1, orders.cartRestores)
	assert.Contains(t, dispatcher.notifications, models.NotificationPaymentFailed)
}

func TestHandleFailedRedeliveredEvent(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusFailed,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 3})
	handlers, _, rollbacker, _ := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-2",
		Type:     models.EventTypePaymentFailed,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := handlers.HandleFailed(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, "order ord-1 already failed", result.Message)
	assert.Equal(t, 0, rollbacker.calls)
	assert.Equal(t, 0, orders.cartRestores)
}

func TestHandleCanceledRecordsReason(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending,
		models.OrderItem{OrderID: "ord-1", ProductID: "prod-1", Quantity: 1})
	handlers, _, rollbacker, dispatcher := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentCanceled,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := handlers.HandleCanceled(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, models.PaymentStatusCanceled, orders.orders["ord-1"].PaymentStatus)
	assert.Equal(t, "customer canceled", orders.cancelReasons["ord-1"])
	assert.Equal(t, 1, rollbacker.calls)
	assert.Contains(t, dispatcher.notifications, models.NotificationPaymentCanceled)
}

func TestHandleRequiresActionLeavesStockAlone(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending)
	handlers, confirmer, rollbacker, _ := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentRequiresAction,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := handlers.HandleRequiresAction(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, models.PaymentStatusRequiresAction, orders.orders["ord-1"].PaymentStatus)
	assert.Equal(t, 0, rollbacker.calls)
	assert.Empty(t, confirmer.calls)
	assert.Equal(t, 0, orders.cartClears)
	assert.Equal(t, 0, orders.cartRestores)
}

func TestHandleProcessingLeavesStockAlone(t *testing.T) {
	orders := newFakeOrderStore()
	orders.addOrder("ord-1", "user-1", models.PaymentStatusPending)
	handlers, confirmer, rollbacker, _ := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentProcessing,
		Metadata: map[string]string{"order_id": "ord-1"},
	}

	result := handlers.HandleProcessing(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, models.PaymentStatusProcessing, orders.orders["ord-1"].PaymentStatus)
	assert.Equal(t, 0, rollbacker.calls)
	assert.Empty(t, confirmer.calls)
}

func TestHandleFailedUnknownOrder(t *testing.T) {
	orders := newFakeOrderStore()
	handlers, _, _, _ := newTestHandlers(orders)

	event := &models.PaymentEvent{
		ID:       "evt-1",
		Type:     models.EventTypePaymentFailed,
		Metadata: map[string]string{"order_id": "missing"},
	}

	result := handlers.HandleFailed(context.Background(), event)

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}
