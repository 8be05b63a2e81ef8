package alerts

import (
	"context"
	"log/slog"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// Event names carried in notifier payloads.
const (
	EventBudgetAlert = "budget_alert"
	EventRemediation = "remediation_summary"
)

// Alert is a notification handed to every configured notifier.
// Report is the human-readable text and is delivered verbatim.
type Alert struct {
	Event        string           `json:"event"`
	CycleID      string           `json:"cycle_id,omitempty"`
	Level        model.AlertLevel `json:"level"`
	Subject      string           `json:"subject"`
	AccountID    string           `json:"account_id,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	CurrentSpend float64          `json:"current_spend"`
	Budget       float64          `json:"budget"`
	ThresholdPct float64          `json:"threshold_pct"`
	Report       string           `json:"report"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert with a single HTTP call; there are no retries.
	Send(ctx context.Context, alert Alert) error
}

// Broadcast sends alert to every notifier. Delivery failures are logged and
// do not stop the remaining notifiers. It returns the number of successful
// deliveries.
func Broadcast(ctx context.Context, notifiers []Notifier, alert Alert, logger *slog.Logger) int {
	delivered := 0
	for _, notifier := range notifiers {
		if err := notifier.Send(ctx, alert); err != nil {
			logger.Warn("send alert failed",
				"notifier", notifier.Name(),
				"event", alert.Event,
				"error", err,
			)
			continue
		}
		logger.Info("alert sent", "notifier", notifier.Name(), "event", alert.Event)
		delivered++
	}
	return delivered
}
