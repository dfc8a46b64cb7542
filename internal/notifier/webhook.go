package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FairForge/notifier/internal/events"
)

// SignatureHeader carries the HMAC of the request body when a secret is set.
const SignatureHeader = "X-Notifier-Signature"

// WebhookDriver POSTs each notification envelope as JSON.
type WebhookDriver struct {
	url        string
	secret     string
	httpClient *http.Client
}

func NewWebhookDriver(url, secret string, timeout time.Duration) *WebhookDriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookDriver{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (d *WebhookDriver) Name() string { return "webhook" }

func (d *WebhookDriver) Send(ctx context.Context, topic string, n *events.Notification) error {
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("webhook: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Notifier-Webhooks/1.0")
	req.Header.Set("X-Event-Type", n.EventType)
	req.Header.Set("X-Event-ID", n.MessageID)
	req.Header.Set("X-Notifier-Topic", topic)
	if d.secret != "" {
		req.Header.Set(SignatureHeader, GenerateSignature(body, d.secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned %d", d.url, resp.StatusCode)
	}
	return nil
}

func (d *WebhookDriver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

// GenerateSignature generates HMAC-SHA256 signature
func GenerateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature verifies a webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
