// Package push sends notifications to resident devices through the
// external push provider.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultSendURL = "https://push.porteria.dev/v1/send"

// Client talks to the push provider's HTTP API.
type Client struct {
	httpClient *http.Client
	apiKey     string

	// Overridable URL for testing.
	sendURL string
	devMode bool
}

// NewClient creates a push client. An empty URL uses the default provider
// endpoint; dev mode logs instead of sending.
func NewClient(apiKey, sendURL string, devMode bool) *Client {
	if sendURL == "" {
		sendURL = defaultSendURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		sendURL:    sendURL,
		devMode:    devMode,
	}
}

// SendResult is the provider's delivery acknowledgment.
type SendResult struct {
	DeliveryID  string `json:"deliveryId"`
	DeviceCount int    `json:"deviceCount"`
}

// message is the provider wire format.
type message struct {
	To               []string               `json:"to"`
	Title            string                 `json:"title,omitempty"`
	Body             string                 `json:"body,omitempty"`
	Data             map[string]interface{} `json:"data,omitempty"`
	ContentAvailable bool                   `json:"contentAvailable,omitempty"`
}

// providerResponse is the provider's acknowledgment body.
type providerResponse struct {
	ID string `json:"id"`
}

// Send dispatches a visible prompt to the given device tokens and returns
// the provider's delivery acknowledgment id.
func (c *Client) Send(ctx context.Context, deviceTokens []string, title, body string, data map[string]interface{}) (*SendResult, error) {
	if len(deviceTokens) == 0 {
		return nil, fmt.Errorf("no device tokens")
	}

	if c.devMode {
		slog.Info("[DEV] push send", "devices", len(deviceTokens), "title", title)
		return &SendResult{DeliveryID: "dev", DeviceCount: len(deviceTokens)}, nil
	}

	resp, err := c.post(ctx, message{
		To:    deviceTokens,
		Title: title,
		Body:  body,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}

	return &SendResult{DeliveryID: resp.ID, DeviceCount: len(deviceTokens)}, nil
}

// Retract sends a silent content-available payload that updates local state
// on the devices without ringing, dismissing the original prompt.
func (c *Client) Retract(ctx context.Context, deviceTokens []string, notificationID string) error {
	if len(deviceTokens) == 0 {
		return nil
	}

	if c.devMode {
		slog.Info("[DEV] push retract", "devices", len(deviceTokens), "notification", notificationID)
		return nil
	}

	_, err := c.post(ctx, message{
		To:               deviceTokens,
		ContentAvailable: true,
		Data: map[string]interface{}{
			"type":           "retract",
			"notificationId": notificationID,
		},
	})
	return err
}

func (c *Client) post(ctx context.Context, msg message) (*providerResponse, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.sendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = fmt.Errorf("%w (also failed to close body: %v)", err, closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}
