package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubOrderStore struct {
	statuses map[string]string
}

func (s *stubOrderStore) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	if _, ok := s.statuses[orderID]; !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	return &models.Order{ID: orderID, UserID: "user-1"}, nil
}

func (s *stubOrderStore) GetOrderPaymentStatus(ctx context.Context, orderID string) (string, error) {
	status, ok := s.statuses[orderID]
	if !ok {
		return "", fmt.Errorf("order not found: %s", orderID)
	}
	return status, nil
}

func (s *stubOrderStore) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return nil, nil
}

func (s *stubOrderStore) MarkOrderCompleted(ctx context.Context, orderID, paymentIntentID string) error {
	s.statuses[orderID] = models.PaymentStatusCompleted
	return nil
}

func (s *stubOrderStore) MarkOrderFailed(ctx context.Context, orderID string) error {
	s.statuses[orderID] = models.PaymentStatusFailed
	return nil
}

func (s *stubOrderStore) MarkOrderCanceled(ctx context.Context, orderID, reason string) error {
	s.statuses[orderID] = models.PaymentStatusCanceled
	return nil
}

func (s *stubOrderStore) MarkOrderRequiresAction(ctx context.Context, orderID string) error {
	s.statuses[orderID] = models.PaymentStatusRequiresAction
	return nil
}

func (s *stubOrderStore) MarkOrderProcessing(ctx context.Context, orderID string) error {
	s.statuses[orderID] = models.PaymentStatusProcessing
	return nil
}

func (s *stubOrderStore) ClearUserCart(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubOrderStore) RestoreCartFromOrder(ctx context.Context, orderID string) (int, error) {
	return 0, nil
}

type stubConfirmer struct{}

func (stubConfirmer) ConfirmReservations(ctx context.Context, items []models.StockItem, userID string) {
}

type stubRollbacker struct{}

func (stubRollbacker) RollbackOrderStock(ctx context.Context, orderID, userID string, items []models.StockItem) service.RollbackResult {
	return service.RollbackResult{Success: true, Method: service.RollbackMethodBoth}
}

type stubDispatcher struct{}

func (stubDispatcher) SendNotification(ctx context.Context, userID, notificationType, title, body string, data map[string]string) error {
	return nil
}

func (stubDispatcher) RequestInvoice(ctx context.Context, orderID, userID string) error {
	return nil
}

func newWebhookTestServer(statuses map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	handlers := webhook.NewPaymentHandlers(
		&stubOrderStore{statuses: statuses},
		stubConfirmer{},
		stubRollbacker{},
		stubDispatcher{},
	)
	h := NewHandler(nil, nil, webhook.NewRouter(webhook.NewEventCache(10), handlers))

	router := gin.New()
	router.POST("/webhooks/payment", h.paymentWebhook)
	return router
}

func postEvent(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhookInvalidMetadataIsRetried(t *testing.T) {
	router := newWebhookTestServer(map[string]string{"ord-1": models.PaymentStatusPending})

	// order_id identifies the order but the success path also needs user_id
	w := postEvent(router, `{
		"id": "evt-1",
		"type": "payment_intent.succeeded",
		"metadata": {"order_id": "ord-1"}
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"received":false`)
}

func TestPaymentWebhookMalformedEventIsRetried(t *testing.T) {
	router := newWebhookTestServer(map[string]string{})

	w := postEvent(router, `{"type": "payment_intent.succeeded"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhookUnknownTypeAcknowledged(t *testing.T) {
	router := newWebhookTestServer(map[string]string{})

	w := postEvent(router, `{
		"id": "evt-1",
		"type": "charge.refunded",
		"metadata": {"order_id": "ord-1"}
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestPaymentWebhookProcessedEventAcknowledged(t *testing.T) {
	router := newWebhookTestServer(map[string]string{"ord-1": models.PaymentStatusPending})

	w := postEvent(router, `{
		"id": "evt-1",
		"type": "payment_intent.payment_failed",
		"metadata": {"order_id": "ord-1"}
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}
