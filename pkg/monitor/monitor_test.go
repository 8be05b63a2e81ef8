package monitor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/monitor"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/spend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	spend *model.Spend
	err   error
}

func (p staticProvider) MonthToDate(context.Context) (*model.Spend, error) {
	return p.spend, p.err
}

func spendOf(amount float64) staticProvider {
	return staticProvider{spend: &model.Spend{
		Amount:   amount,
		Currency: "USD",
		Services: []model.ServiceCost{
			{Service: "Amazon Elastic Compute Cloud - Compute", Amount: amount},
			{Service: "AWS Key Management Service", Amount: 0.001},
		},
	}}
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []model.Action
	envs  []map[string]string
	exit  int
}

func (e *recordingExecutor) Execute(_ context.Context, action model.Action, env map[string]string) (actions.ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, action)
	e.envs = append(e.envs, env)
	return actions.ExecResult{ExitCode: e.exit}, nil
}

type webhookCapture struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (c *webhookCapture) server(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			c.mu.Lock()
			c.payloads = append(c.payloads, payload)
			c.mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ec2Policy() model.ActionPolicy {
	return actions.DefaultPolicy([]string{"/usr/local/bin/guardian"})
}

func newMonitor(settings monitor.Settings, provider spend.Provider, notifiers []alerts.Notifier, exec actions.Executor) *monitor.Monitor {
	logger := testLogger()
	runner := actions.NewRunner(exec, actions.DefaultTimeout, logger)
	return monitor.New(settings, provider, notifiers, runner, ec2Policy(), logger).WithClock(func() time.Time { return asOf })
}

func defaultSettings() monitor.Settings {
	return monitor.Settings{
		Budget:         model.Budget{Amount: 10, Currency: "USD"},
		Percentages:    model.DefaultPercentages,
		ActionsEnabled: true,
		AccountID:      "111122223333",
	}
}

func TestMonitor_UnderBudget(t *testing.T) {
	capture := &webhookCapture{}
	srv := capture.server(t, http.StatusOK)
	exec := &recordingExecutor{}

	m := newMonitor(defaultSettings(), spendOf(5), []alerts.Notifier{alerts.NewWebhookNotifier(srv.URL, "")}, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelNone, res.Level)
	assert.InDelta(t, 50.0, res.PercentUsed, 1e-9)
	assert.Zero(t, res.Notified)
	assert.Empty(t, res.Actions)
	assert.Empty(t, capture.payloads)
	assert.Empty(t, exec.calls)
	assert.NotEmpty(t, res.CycleID)
}

func TestMonitor_WarningNotifiesWithoutActions(t *testing.T) {
	capture := &webhookCapture{}
	srv := capture.server(t, http.StatusOK)
	exec := &recordingExecutor{}

	m := newMonitor(defaultSettings(), spendOf(8), []alerts.Notifier{alerts.NewWebhookNotifier(srv.URL, "")}, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelWarning, res.Level)
	assert.Equal(t, 1, res.Notified)
	assert.Empty(t, exec.calls)

	require.Len(t, capture.payloads, 1)
	payload := capture.payloads[0]
	assert.Equal(t, alerts.EventBudgetAlert, payload["event"])
	assert.Equal(t, res.Report, payload["text"])
	alert, ok := payload["alert"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "warning", alert["level"])
	assert.Equal(t, 75.0, alert["threshold_pct"])
	assert.Equal(t, res.CycleID, alert["cycle_id"])
}

func TestMonitor_CriticalTriggersEC2AutoOff(t *testing.T) {
	capture := &webhookCapture{}
	srv := capture.server(t, http.StatusOK)
	exec := &recordingExecutor{}

	m := newMonitor(defaultSettings(), spendOf(9.5), []alerts.Notifier{alerts.NewWebhookNotifier(srv.URL, "")}, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelCritical, res.Level)
	assert.Contains(t, res.Report, "Consider running cost-saving measures:")
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "EC2 Auto-Off", exec.calls[0].Name)
	assert.Equal(t, []string{"/usr/local/bin/guardian", "ec2-auto-off"}, exec.calls[0].Command)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.StatusSuccess, res.Actions[0].Status)
}

func TestMonitor_EmergencyForcesLiveAction(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	exec := &recordingExecutor{}

	m := newMonitor(defaultSettings(), spendOf(12), nil, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelEmergency, res.Level)
	require.Len(t, exec.envs, 1)
	assert.Equal(t, "false", exec.envs[0]["DRY_RUN"])
	assert.Equal(t, "false", exec.envs[0]["GUARDIAN_DRY_RUN"])
}

func TestMonitor_DryRunNeverExecutes(t *testing.T) {
	settings := defaultSettings()
	settings.DryRun = true
	exec := &recordingExecutor{}

	m := newMonitor(settings, spendOf(12), nil, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, exec.calls)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.StatusDryRun, res.Actions[0].Status)
}

func TestMonitor_ActionsDisabled(t *testing.T) {
	settings := defaultSettings()
	settings.ActionsEnabled = false
	exec := &recordingExecutor{}

	m := newMonitor(settings, spendOf(12), nil, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelEmergency, res.Level)
	assert.Empty(t, exec.calls)
	assert.Empty(t, res.Actions)
}

func TestMonitor_FailedActionDoesNotFailCycle(t *testing.T) {
	exec := &recordingExecutor{exit: 2}

	m := newMonitor(defaultSettings(), spendOf(9.5), nil, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.StatusFailed, res.Actions[0].Status)
	assert.Equal(t, 2, res.Actions[0].ExitCode)
}

func TestMonitor_NotifierFailureIsNotFatal(t *testing.T) {
	capture := &webhookCapture{}
	down := capture.server(t, http.StatusServiceUnavailable)
	up := capture.server(t, http.StatusOK)
	exec := &recordingExecutor{}

	notifiers := []alerts.Notifier{
		alerts.NewWebhookNotifier(down.URL, ""),
		alerts.NewWebhookNotifier(up.URL, ""),
	}
	m := newMonitor(defaultSettings(), spendOf(9.5), notifiers, exec)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Notified)
	assert.Len(t, capture.payloads, 2)
	assert.Len(t, exec.calls, 1)
}

func TestMonitor_ZeroBudgetIsEmergency(t *testing.T) {
	settings := defaultSettings()
	settings.Budget.Amount = 0
	settings.ActionsEnabled = false

	m := newMonitor(settings, spendOf(0), nil, &recordingExecutor{})
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.LevelEmergency, res.Level)
	assert.Zero(t, res.PercentUsed)
}

func TestMonitor_SpendErrorIsFatal(t *testing.T) {
	exec := &recordingExecutor{}
	provider := staticProvider{err: spend.ErrNoCredentials}

	m := newMonitor(defaultSettings(), provider, nil, exec)
	res, err := m.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, spend.ErrNoCredentials))
	assert.Empty(t, exec.calls)
}

func TestMonitor_UniqueCycleIDs(t *testing.T) {
	m := newMonitor(defaultSettings(), spendOf(1), nil, &recordingExecutor{})

	first, err := m.Run(context.Background())
	require.NoError(t, err)
	second, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.CycleID, second.CycleID)
}
