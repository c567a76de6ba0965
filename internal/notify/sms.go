package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SMSGateway sends one text message to a phone number.
type SMSGateway interface {
	Send(ctx context.Context, phone, message string) error
}

// SMSClient wraps interactions with an HTTP SMS provider.
type SMSClient struct {
	baseURL    string
	apiKey     string
	sender     string
	httpClient *http.Client
}

// NewSMSClient constructs a new client.
func NewSMSClient(baseURL, apiKey, sender string) *SMSClient {
	return &SMSClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping checks if the remote SMS provider is available.
func (c *SMSClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	return nil
}

// Send posts one message to the provider.
func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"from": c.sender,
		"to":   phone,
		"body": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/messages", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("send failed with status %d", resp.StatusCode)
	}
	return nil
}

// MockGateway logs messages instead of sending them. Used in development and
// whenever no provider is configured.
type MockGateway struct {
	logger *slog.Logger
}

// NewMockGateway constructs a MockGateway.
func NewMockGateway(logger *slog.Logger) *MockGateway {
	return &MockGateway{logger: logger}
}

// Send logs the message.
func (g *MockGateway) Send(_ context.Context, phone, message string) error {
	g.logger.Info("mock sms", slog.String("to", phone), slog.String("message", message))
	return nil
}
