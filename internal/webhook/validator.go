package webhook

import (
	"fmt"

	"inventory-service/internal/models"
)

// ValidationResult carries the identifiers extracted from event metadata.
type ValidationResult struct {
	IsValid bool
	OrderID string
	UserID  string
	Errors  []string
}

// ValidateEvent extracts the order and user identifiers a handler needs from
// the provider event. requireUserID is set only for the success path, which
// is the only one that clears carts and triggers invoicing.
func ValidateEvent(event *models.PaymentEvent, requireUserID bool) ValidationResult {
	result := ValidationResult{}

	if event == nil {
		result.Errors = append(result.Errors, "event is nil")
		return result
	}
	if event.ID == "" {
		result.Errors = append(result.Errors, "event id missing")
	}
	if event.Type == "" {
		result.Errors = append(result.Errors, "event type missing")
	}

	result.OrderID = event.Metadata[models.MetadataOrderID]
	result.UserID = event.Metadata[models.MetadataUserID]

	if result.OrderID == "" {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s not found in event metadata", models.MetadataOrderID))
	}
	if requireUserID && result.UserID == "" {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s not found in event metadata", models.MetadataUserID))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
