package worker

import (
	"context"
	"log"

	"inventory-service/internal/broker"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// NotificationSender delivers a notification to a user. Implementations talk
// to the external push gateway.
type NotificationSender interface {
	SendToUser(ctx context.Context, userID string, note Notification) error
}

// Notification is the payload handed to the push gateway
type Notification struct {
	Type  string            `json:"type"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// InvoiceGenerator triggers invoice generation for an order. Implementations
// talk to the external invoicing service.
type InvoiceGenerator interface {
	Generate(ctx context.Context, orderID, userID string) error
}

// SideEffectWorker consumes notification and invoice jobs from the
// side-effect topic. Delivery failures are logged and counted, never
// propagated: side effects must not affect stock or payment state.
type SideEffectWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSideEffectWorker creates a new side-effect worker
func NewSideEffectWorker(consumer *broker.Consumer, sender NotificationSender, invoices InvoiceGenerator) *SideEffectWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnNotificationRequested(func(ctx context.Context, event *models.NotificationRequestedEvent) error {
		err := sender.SendToUser(ctx, event.UserID, Notification{
			Type:  event.NotificationType,
			Title: event.Title,
			Body:  event.Body,
			Data:  event.Data,
		})
		if err != nil {
			util.SideEffectJobsTotal.WithLabelValues("notification", "failed").Inc()
			logger.Error("Notification delivery failed",
				zap.String("user_id", event.UserID),
				zap.String("type", event.NotificationType),
				zap.Error(err))
			return nil
		}
		util.SideEffectJobsTotal.WithLabelValues("notification", "delivered").Inc()
		return nil
	})

	eventHandler.OnInvoiceRequested(func(ctx context.Context, event *models.InvoiceRequestedEvent) error {
		err := invoices.Generate(ctx, event.OrderID, event.UserID)
		if err != nil {
			util.SideEffectJobsTotal.WithLabelValues("invoice", "failed").Inc()
			logger.Error("Invoice generation failed",
				zap.String("order_id", event.OrderID),
				zap.Error(err))
			return nil
		}
		util.SideEffectJobsTotal.WithLabelValues("invoice", "generated").Inc()
		logger.Info("Invoice generated", zap.String("order_id", event.OrderID))
		return nil
	})

	return &SideEffectWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *SideEffectWorker) Start(ctx context.Context) error {
	log.Println("Starting side-effect worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SideEffectWorker) Stop() error {
	log.Println("Stopping side-effect worker...")
	return w.consumer.Close()
}
