package webhook

import (
	"context"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// EventKind is the closed set of provider event types the router understands.
// Unknown strings map to KindUnknown, which is acknowledged as a no-op so the
// provider does not retry indefinitely.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindSucceeded
	KindFailed
	KindCanceled
	KindRequiresAction
	KindProcessing
)

// ParseEventKind maps a wire event type onto the closed kind set
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case models.EventTypePaymentSucceeded:
		return KindSucceeded
	case models.EventTypePaymentFailed:
		return KindFailed
	case models.EventTypePaymentCanceled:
		return KindCanceled
	case models.EventTypePaymentRequiresAction:
		return KindRequiresAction
	case models.EventTypePaymentProcessing:
		return KindProcessing
	default:
		return KindUnknown
	}
}

// Result is the outcome of routing one event. Err is set only for cases the
// ingress layer should propagate for provider-level retry (malformed events);
// recognized-but-failed processing is acknowledged to avoid retry storms.
type Result struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// HandlerFunc processes one validated provider event.
type HandlerFunc func(ctx context.Context, event *models.PaymentEvent) Result

// Router dispatches provider events to their handlers behind the idempotency
// cache. The lookup table is built once at startup.
type Router struct {
	cache    *EventCache
	handlers map[EventKind]HandlerFunc
	logger   *zap.Logger
}

// NewRouter builds the dispatch table from the handler set
func NewRouter(cache *EventCache, handlers *PaymentHandlers) *Router {
	return &Router{
		cache: cache,
		handlers: map[EventKind]HandlerFunc{
			KindSucceeded:      handlers.HandleSucceeded,
			KindFailed:         handlers.HandleFailed,
			KindCanceled:       handlers.HandleCanceled,
			KindRequiresAction: handlers.HandleRequiresAction,
			KindProcessing:     handlers.HandleProcessing,
		},
		logger: util.GetLogger(),
	}
}

// RouteEvent validates the event shape, gates duplicates and dispatches to
// the matching handler. Unsupported types are no-op successes.
func (r *Router) RouteEvent(ctx context.Context, event *models.PaymentEvent) Result {
	ctx, span := util.StartSpan(ctx, "Router.RouteEvent")
	defer span.End()

	if event == nil || event.ID == "" || event.Type == "" {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return Result{
			Message: "malformed event",
			Err:     fmt.Errorf("event id or type missing"),
		}
	}

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if r.cache.Contains(event.ID) {
		r.logger.Info("Duplicate event skipped",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		util.DuplicateEventsTotal.Inc()
		util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
		return Result{Success: true, Message: "event already processed"}
	}

	kind := ParseEventKind(event.Type)
	handler, ok := r.handlers[kind]
	if !ok {
		r.cache.ProcessEvent(event.ID)
		r.logger.Info("Unhandled event type acknowledged",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		util.WebhookEventsTotal.WithLabelValues(event.Type, "unhandled").Inc()
		return Result{Success: true, Message: fmt.Sprintf("event type %s not handled", event.Type)}
	}

	r.logger.Info("Routing payment event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	result := handler(ctx, event)

	// The ID is recorded only after a non-erroring pass, so a provider retry
	// of an event that failed validation or processing is not swallowed as a
	// duplicate. Redelivery of a recorded ID is still caught above.
	if result.Err == nil {
		r.cache.ProcessEvent(event.ID)
	}

	outcome := "processed"
	if !result.Success {
		outcome = "failed"
	}
	util.WebhookEventsTotal.WithLabelValues(event.Type, outcome).Inc()

	return result
}
