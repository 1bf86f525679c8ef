package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPNotificationSender posts notifications to the external push gateway.
type HTTPNotificationSender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotificationSender creates a sender for the given gateway URL
func NewHTTPNotificationSender(baseURL string) *HTTPNotificationSender {
	return &HTTPNotificationSender{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendToUser delivers a notification via the gateway
func (s *HTTPNotificationSender) SendToUser(ctx context.Context, userID string, note Notification) error {
	payload := struct {
		UserID string `json:"user_id"`
		Notification
	}{UserID: userID, Notification: note}

	return s.post(ctx, s.baseURL+"/notifications", payload)
}

func (s *HTTPNotificationSender) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}
	return nil
}

// HTTPInvoiceClient triggers invoice generation on the external invoicing
// service.
type HTTPInvoiceClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPInvoiceClient creates a client for the given invoicing service URL
func NewHTTPInvoiceClient(baseURL string) *HTTPInvoiceClient {
	return &HTTPInvoiceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate asks the invoicing service to generate an invoice for the order
func (c *HTTPInvoiceClient) Generate(ctx context.Context, orderID, userID string) error {
	payload := map[string]string{
		"order_id": orderID,
		"user_id":  userID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoicing service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("invoicing service returned %d", resp.StatusCode)
	}
	return nil
}
