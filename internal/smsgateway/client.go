// Package smsgateway provides a webhook client for sending SMS via an external gateway.
package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Client posts SMS send requests to the gateway webhook.
type Client struct {
	webhookURL string
	sender     string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new SMS gateway client.
func NewClient(cfg *config.SMSConfig, log *logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		sender:     cfg.Sender,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Enabled reports whether the SMS channel is configured for delivery.
func (c *Client) Enabled() bool {
	return c.enabled
}

// message is the gateway webhook payload.
type message struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// Send posts one SMS to the gateway.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.enabled {
		c.log.Debug().Str("to", to).Msg("SMS channel disabled, skipping send")
		return nil
	}
	if c.webhookURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}

	payload, err := json.Marshal(message{To: to, From: c.sender, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	c.log.Debug().Str("to", to).Msg("SMS sent")
	return nil
}
