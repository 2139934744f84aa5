package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event is the JSON document posted to the webhook endpoint.
type Event struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Client posts events to a single configured URL.
type Client struct {
	url    string
	http   *http.Client
	signer *Signer
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds a client. An empty url yields a client whose Enabled reports false.
func NewClient(url string, timeout time.Duration, signer *Signer, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether a target URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// Send posts the event and fails on any non-2xx answer.
func (c *Client) Send(ctx context.Context, event Event) error {
	if !c.Enabled() {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer.Enabled() {
		sig, err := c.signer.Sign(body, c.now())
		if err != nil {
			return err
		}
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	c.logger.Debug("webhook delivered", zap.String("event", event.Event), zap.Int("status", resp.StatusCode))
	return nil
}
