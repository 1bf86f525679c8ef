package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"inventory-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// SideEffectPublisher puts notification and invoice work on the side-effect
// topic. Publishing is the detachment point: once the message is written the
// webhook path is done with the side effect.
type SideEffectPublisher struct {
	producer *Producer
}

// NewSideEffectPublisher creates a new side-effect publisher
func NewSideEffectPublisher(producer *Producer) *SideEffectPublisher {
	return &SideEffectPublisher{producer: producer}
}

// SendNotification publishes a notification.requested event
func (sp *SideEffectPublisher) SendNotification(ctx context.Context, userID, notificationType, title, body string, data map[string]string) error {
	event := &models.NotificationRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationRequested,
			Timestamp: time.Now(),
		},
		UserID:           userID,
		NotificationType: notificationType,
		Title:            title,
		Body:             body,
		Data:             data,
	}

	key := fmt.Sprintf("user-%s", userID)
	return sp.producer.PublishEvent(ctx, key, event)
}

// RequestInvoice publishes an invoice.requested event
func (sp *SideEffectPublisher) RequestInvoice(ctx context.Context, orderID, userID string) error {
	event := &models.InvoiceRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInvoiceRequested,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		UserID:  userID,
	}

	key := fmt.Sprintf("order-%s", orderID)
	return sp.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes side-effect messages to registered callbacks
type EventHandler struct {
	onNotification func(context.Context, *models.NotificationRequestedEvent) error
	onInvoice      func(context.Context, *models.InvoiceRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnNotificationRequested registers a handler for notification.requested events
func (eh *EventHandler) OnNotificationRequested(handler func(context.Context, *models.NotificationRequestedEvent) error) {
	eh.onNotification = handler
}

// OnInvoiceRequested registers a handler for invoice.requested events
func (eh *EventHandler) OnInvoiceRequested(handler func(context.Context, *models.InvoiceRequestedEvent) error) {
	eh.onInvoice = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeNotificationRequested:
		if eh.onNotification != nil {
			var event models.NotificationRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal notification event: %w", err)
			}
			return eh.onNotification(ctx, &event)
		}

	case models.EventTypeInvoiceRequested:
		if eh.onInvoice != nil {
			var event models.InvoiceRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal invoice event: %w", err)
			}
			return eh.onInvoice(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
