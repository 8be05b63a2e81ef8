package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// SlackNotifier sends alerts to a Slack incoming webhook as a coloured
// attachment.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	attachment := slackAttachment{
		Color:  levelColor(alert.Level),
		Title:  alert.Subject,
		Text:   alert.Report,
		Footer: "AWS Budget Guardian",
		Ts:     time.Now().Unix(),
	}

	if alert.Event == EventBudgetAlert {
		usage := model.PercentUsed(alert.CurrentSpend, alert.Budget)
		attachment.Fields = []slackField{
			{Title: "Level", Value: alert.Level.String(), Short: true},
			{Title: "Current Spend", Value: fmt.Sprintf("%s %.2f", alert.Currency, alert.CurrentSpend), Short: true},
			{Title: "Budget", Value: fmt.Sprintf("%s %.2f", alert.Currency, alert.Budget), Short: true},
			{Title: "Usage", Value: fmt.Sprintf("%.1f%%", usage), Short: true},
		}
		if alert.AccountID != "" {
			attachment.Fields = append(attachment.Fields, slackField{Title: "Account", Value: alert.AccountID, Short: true})
		}
	}

	payload := slackPayload{
		Channel:     s.channel,
		Attachments: []slackAttachment{attachment},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func levelColor(level model.AlertLevel) string {
	switch level {
	case model.LevelWarning:
		return "#ff9900" // orange
	case model.LevelCritical:
		return "#ff0000" // red
	case model.LevelEmergency:
		return "#cc0000" // dark red
	}
	return "#36a64f" // green
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
