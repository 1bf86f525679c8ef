package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// orderStore is the slice of the store the payment handlers need.
type orderStore interface {
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderPaymentStatus(ctx context.Context, orderID string) (string, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	MarkOrderCompleted(ctx context.Context, orderID, paymentIntentID string) error
	MarkOrderFailed(ctx context.Context, orderID string) error
	MarkOrderCanceled(ctx context.Context, orderID, reason string) error
	MarkOrderRequiresAction(ctx context.Context, orderID string) error
	MarkOrderProcessing(ctx context.Context, orderID string) error
	ClearUserCart(ctx context.Context, userID string) (int, error)
	RestoreCartFromOrder(ctx context.Context, orderID string) (int, error)
}

// stockConfirmer settles volatile reservations after payment success.
type stockConfirmer interface {
	ConfirmReservations(ctx context.Context, items []models.StockItem, userID string)
}

// stockRollbacker restores reserved stock across both ledgers.
type stockRollbacker interface {
	RollbackOrderStock(ctx context.Context, orderID, userID string, items []models.StockItem) service.RollbackResult
}

// sideEffectDispatcher hands notification and invoice work to the background
// worker. Dispatch failures are the caller's to log, never to propagate.
type sideEffectDispatcher interface {
	SendNotification(ctx context.Context, userID, notificationType, title, body string, data map[string]string) error
	RequestInvoice(ctx context.Context, orderID, userID string) error
}

const cancelReasonCustomer = "customer canceled"

// detachTimeout bounds detached side-effect work that outlives the webhook
// response.
const detachTimeout = 30 * time.Second

// PaymentHandlers drives order status transitions, stock confirmation and
// rollback from provider payment events. Only the status update itself is
// required to succeed; every side effect is best-effort and logged.
type PaymentHandlers struct {
	orders   orderStore
	stock    stockConfirmer
	rollback stockRollbacker
	effects  sideEffectDispatcher
	logger   *zap.Logger
}

// NewPaymentHandlers creates the handler set
func NewPaymentHandlers(orders orderStore, stock stockConfirmer, rollback stockRollbacker, effects sideEffectDispatcher) *PaymentHandlers {
	return &PaymentHandlers{
		orders:   orders,
		stock:    stock,
		rollback: rollback,
		effects:  effects,
		logger:   util.GetLogger(),
	}
}

// HandleSucceeded processes payment_intent.succeeded
func (h *PaymentHandlers) HandleSucceeded(ctx context.Context, event *models.PaymentEvent) Result {
	v := ValidateEvent(event, true)
	if !v.IsValid {
		return invalidEventResult(v)
	}

	if done, result := h.checkStatusGate(ctx, v.OrderID, models.PaymentStatusCompleted); done {
		return result
	}

	if err := h.orders.MarkOrderCompleted(ctx, v.OrderID, event.IntentID); err != nil {
		return Result{
			OrderID: v.OrderID,
			Message: "failed to mark order completed",
			Err:     err,
		}
	}

	h.logger.Info("Order payment completed",
		zap.String("order_id", v.OrderID),
		zap.String("intent_id", event.IntentID))

	// Stock was decremented at reserve time; only the reservation records
	// need settling. Best-effort.
	items, err := h.orders.GetOrderItemsByOrderID(ctx, v.OrderID)
	if err != nil {
		h.logger.Error("Failed to load order items for confirmation",
			zap.String("order_id", v.OrderID),
			zap.Error(err))
	} else {
		h.stock.ConfirmReservations(ctx, toStockItems(items), v.UserID)
	}

	if cleared, err := h.orders.ClearUserCart(ctx, v.UserID); err != nil {
		h.logger.Error("Cart clearing failed",
			zap.String("order_id", v.OrderID),
			zap.String("user_id", v.UserID),
			zap.Error(err))
	} else if cleared > 0 {
		h.logger.Info("Cart cleared",
			zap.String("user_id", v.UserID),
			zap.Int("items", cleared))
	}

	h.sendNotification(ctx, v.UserID, models.NotificationPaymentSuccess,
		"Payment successful", "Your payment was received and your order is being prepared.",
		map[string]string{"order_id": v.OrderID})

	// Invoice generation must never delay or fail the webhook response.
	h.detach("invoice", func(ctx context.Context) error {
		return h.effects.RequestInvoice(ctx, v.OrderID, v.UserID)
	})

	return Result{
		Success: true,
		OrderID: v.OrderID,
		Message: fmt.Sprintf("payment succeeded for order %s", v.OrderID),
	}
}

// HandleFailed processes payment_intent.payment_failed
func (h *PaymentHandlers) HandleFailed(ctx context.Context, event *models.PaymentEvent) Result {
	v := ValidateEvent(event, false)
	if !v.IsValid {
		return invalidEventResult(v)
	}

	if done, result := h.checkStatusGate(ctx, v.OrderID, models.PaymentStatusFailed); done {
		return result
	}

	if err := h.orders.MarkOrderFailed(ctx, v.OrderID); err != nil {
		return Result{
			OrderID: v.OrderID,
			Message: "failed to mark order failed",
			Err:     err,
		}
	}

	h.logger.Warn("Order payment failed", zap.String("order_id", v.OrderID))

	order, items := h.loadOrderForCompensation(ctx, v.OrderID)
	if order != nil {
		h.sendNotification(ctx, order.UserID, models.NotificationPaymentFailed,
			"Payment failed", "Your payment could not be processed. Please try again.",
			map[string]string{"order_id": v.OrderID})

		result := h.rollback.RollbackOrderStock(ctx, v.OrderID, order.UserID, items)
		if !result.Success {
			h.logger.Error("Stock rollback failed",
				zap.String("order_id", v.OrderID),
				zap.Strings("errors", result.Errors))
		}
	}

	if restored, err := h.orders.RestoreCartFromOrder(ctx, v.OrderID); err != nil {
		h.logger.Error("Cart restore failed",
			zap.String("order_id", v.OrderID),
			zap.Error(err))
	} else if restored > 0 {
		h.logger.Info("Cart restored from order",
			zap.String("order_id", v.OrderID),
			zap.Int("items", restored))
	}

	return Result{
		Success: true,
		OrderID: v.OrderID,
		Message: fmt.Sprintf("payment failed for order %s, stock rolled back", v.OrderID),
	}
}

// HandleCanceled processes payment_intent.canceled
func (h *PaymentHandlers) HandleCanceled(ctx context.Context, event *models.PaymentEvent) Result {
	v := ValidateEvent(event, false)
	if !v.IsValid {
		return invalidEventResult(v)
	}

	if done, result := h.checkStatusGate(ctx, v.OrderID, models.PaymentStatusCanceled); done {
		return result
	}

	if err := h.orders.MarkOrderCanceled(ctx, v.OrderID, cancelReasonCustomer); err != nil {
		return Result{
			OrderID: v.OrderID,
			Message: "failed to mark order canceled",
			Err:     err,
		}
	}

	h.logger.Warn("Order payment canceled", zap.String("order_id", v.OrderID))

	order, items := h.loadOrderForCompensation(ctx, v.OrderID)
	if order != nil {
		h.sendNotification(ctx, order.UserID, models.NotificationPaymentCanceled,
			"Payment canceled", "Your payment was canceled.",
			map[string]string{"order_id": v.OrderID})

		result := h.rollback.RollbackOrderStock(ctx, v.OrderID, order.UserID, items)
		if !result.Success {
			h.logger.Error("Stock rollback failed for canceled order",
				zap.String("order_id", v.OrderID),
				zap.Strings("errors", result.Errors))
		}
	}

	if restored, err := h.orders.RestoreCartFromOrder(ctx, v.OrderID); err != nil {
		h.logger.Error("Cart restore failed",
			zap.String("order_id", v.OrderID),
			zap.Error(err))
	} else if restored > 0 {
		h.logger.Info("Cart restored from order",
			zap.String("order_id", v.OrderID),
			zap.Int("items", restored))
	}

	return Result{
		Success: true,
		OrderID: v.OrderID,
		Message: fmt.Sprintf("payment canceled for order %s, stock rolled back", v.OrderID),
	}
}

// HandleRequiresAction processes payment_intent.requires_action. Funds are
// not settled yet, so the reservation stays held and stock is untouched.
func (h *PaymentHandlers) HandleRequiresAction(ctx context.Context, event *models.PaymentEvent) Result {
	v := ValidateEvent(event, false)
	if !v.IsValid {
		return invalidEventResult(v)
	}

	if done, result := h.checkStatusGate(ctx, v.OrderID, models.PaymentStatusRequiresAction); done {
		return result
	}

	if err := h.orders.MarkOrderRequiresAction(ctx, v.OrderID); err != nil {
		return Result{
			OrderID: v.OrderID,
			Message: "failed to mark order requires_action",
			Err:     err,
		}
	}

	h.logger.Info("Order requires additional authentication", zap.String("order_id", v.OrderID))

	return Result{
		Success: true,
		OrderID: v.OrderID,
		Message: fmt.Sprintf("order %s requires additional authentication", v.OrderID),
	}
}

// HandleProcessing processes payment_intent.processing. No stock mutation.
func (h *PaymentHandlers) HandleProcessing(ctx context.Context, event *models.PaymentEvent) Result {
	v := ValidateEvent(event, false)
	if !v.IsValid {
		return invalidEventResult(v)
	}

	if done, result := h.checkStatusGate(ctx, v.OrderID, models.PaymentStatusProcessing); done {
		return result
	}

	if err := h.orders.MarkOrderProcessing(ctx, v.OrderID); err != nil {
		return Result{
			OrderID: v.OrderID,
			Message: "failed to mark order processing",
			Err:     err,
		}
	}

	h.logger.Info("Order payment is processing", zap.String("order_id", v.OrderID))

	return Result{
		Success: true,
		OrderID: v.OrderID,
		Message: fmt.Sprintf("order %s payment is processing", v.OrderID),
	}
}

// checkStatusGate short-circuits with success when the order already carries
// the target payment status, so a redelivered event cannot re-run side
// effects. done=true means the caller should return the result as-is.
func (h *PaymentHandlers) checkStatusGate(ctx context.Context, orderID, target string) (bool, Result) {
	status, err := h.orders.GetOrderPaymentStatus(ctx, orderID)
	if err != nil {
		return true, Result{
			OrderID: orderID,
			Message: "failed to check order status",
			Err:     err,
		}
	}
	if status == target {
		h.logger.Info("Order already in target payment status, skipping",
			zap.String("order_id", orderID),
			zap.String("payment_status", status))
		util.DuplicateEventsTotal.Inc()
		return true, Result{
			Success: true,
			OrderID: orderID,
			Message: fmt.Sprintf("order %s already %s", orderID, target),
		}
	}
	return false, Result{}
}

// loadOrderForCompensation fetches the order and its items for rollback and
// notifications. Failures are logged and reported as a nil order; the caller
// still restores the cart, which only needs the order ID.
func (h *PaymentHandlers) loadOrderForCompensation(ctx context.Context, orderID string) (*models.Order, []models.StockItem) {
	order, err := h.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		h.logger.Error("Failed to load order for compensation",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, nil
	}

	items, err := h.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		h.logger.Error("Failed to load order items for compensation",
			zap.String("order_id", orderID),
			zap.Error(err))
		return order, nil
	}
	return order, toStockItems(items)
}

// sendNotification dispatches fire-and-forget; failures are logged only.
func (h *PaymentHandlers) sendNotification(ctx context.Context, userID, notificationType, title, body string, data map[string]string) {
	if userID == "" {
		return
	}
	if err := h.effects.SendNotification(ctx, userID, notificationType, title, body, data); err != nil {
		h.logger.Error("Failed to dispatch notification",
			zap.String("user_id", userID),
			zap.String("type", notificationType),
			zap.Error(err))
	}
}

// detach runs fn on its own goroutine with a fresh deadline so it can finish
// after the webhook response is sent. Panics and errors are logged, never
// propagated.
func (h *PaymentHandlers) detach(name string, fn func(context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Detached task panicked",
					zap.String("task", name),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			h.logger.Error("Detached task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

func invalidEventResult(v ValidationResult) Result {
	return Result{
		OrderID: v.OrderID,
		Message: "invalid event metadata",
		Err:     fmt.Errorf("webhook validation: %s", strings.Join(v.Errors, ", ")),
	}
}

func toStockItems(items []models.OrderItem) []models.StockItem {
	stockItems := make([]models.StockItem, len(items))
	for i, item := range items {
		stockItems[i] = models.StockItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return stockItems
}
