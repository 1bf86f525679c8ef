package models

import "time"

// Provider event types as they appear on the wire. The router maps these onto
// a closed set of kinds; anything else is acknowledged as a no-op.
const (
	EventTypePaymentSucceeded      = "payment_intent.succeeded"
	EventTypePaymentFailed         = "payment_intent.payment_failed"
	EventTypePaymentCanceled       = "payment_intent.canceled"
	EventTypePaymentRequiresAction = "payment_intent.requires_action"
	EventTypePaymentProcessing     = "payment_intent.processing"
)

// PaymentEvent is a signature-verified, deserialized provider webhook event.
// Verification happens at the ingress layer before the event reaches the core.
type PaymentEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	IntentID  string            `json:"intent_id"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// Metadata keys the payment provider attaches to every intent at checkout.
const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"
)

// Side-effect event types published to the background worker topic.
const (
	EventTypeNotificationRequested = "notification.requested"
	EventTypeInvoiceRequested      = "invoice.requested"
)

// BaseEvent contains common fields for all side-effect events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationRequestedEvent asks the worker to push a notification to a user.
// Failures stay inside the worker; they never reach the webhook response path.
type NotificationRequestedEvent struct {
	BaseEvent
	UserID           string            `json:"user_id"`
	NotificationType string            `json:"notification_type"`
	Title            string            `json:"title"`
	Body             string            `json:"body"`
	Data             map[string]string `json:"data,omitempty"`
}

// Notification types
const (
	NotificationPaymentSuccess  = "payment_success"
	NotificationPaymentFailed   = "payment_failed"
	NotificationPaymentCanceled = "payment_canceled"
)

// InvoiceRequestedEvent asks the worker to trigger invoice generation.
type InvoiceRequestedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}
