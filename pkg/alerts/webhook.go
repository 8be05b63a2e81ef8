package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// Headers set on every webhook request.
const (
	HeaderEvent     = "X-Guardian-Event"
	HeaderSignature = "X-Signature-256"
)

// WebhookNotifier posts budget alerts and remediation summaries as JSON.
//
// The body is a chat-compatible envelope:
//
//	{"text": <report>, "event": "budget_alert", "timestamp": <RFC 3339>,
//	 "percent_used": 95, "alert": {...}}
//
// Slack, Discord and Teams incoming hooks render "text" and ignore the
// rest; other receivers read the structured "alert". percent_used is only
// present for budget alerts with a positive budget.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier. A non-empty secret signs
// every body with HMAC-SHA256 in the X-Signature-256 header.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	if secret != "" {
		n.secret = []byte(secret)
	}
	return n
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(w.envelope(alert))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AWS-Budget-Guardian/1.0")
	req.Header.Set(HeaderEvent, alert.Event)
	if w.secret != nil {
		req.Header.Set(HeaderSignature, "sha256="+sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s webhook: %w", alert.Event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type envelope struct {
	Text        string   `json:"text"`
	Event       string   `json:"event"`
	Timestamp   string   `json:"timestamp"`
	PercentUsed *float64 `json:"percent_used,omitempty"`
	Alert       Alert    `json:"alert"`
}

func (w *WebhookNotifier) envelope(alert Alert) envelope {
	env := envelope{
		Text:      alert.Report,
		Event:     alert.Event,
		Timestamp: w.now().UTC().Format(time.RFC3339),
		Alert:     alert,
	}
	if alert.Event == EventBudgetAlert && alert.Budget > 0 {
		pct := model.PercentUsed(alert.CurrentSpend, alert.Budget)
		env.PercentUsed = &pct
	}
	return env
}

func sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
