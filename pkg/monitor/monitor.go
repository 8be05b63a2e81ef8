package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/spend"
)

// serviceLogFloor hides services whose month-to-date cost rounds to nothing.
const serviceLogFloor = 0.01

// Settings are the evaluation inputs of a cycle.
type Settings struct {
	Budget         model.Budget
	Percentages    model.Percentages
	ActionsEnabled bool
	DryRun         bool
	AccountID      string
}

// Result describes one finished cycle.
type Result struct {
	CycleID     string
	Spend       *model.Spend
	Thresholds  model.ThresholdSet
	Level       model.AlertLevel
	PercentUsed float64
	Report      string
	Notified    int
	Actions     []model.ActionResult
}

// Monitor runs evaluation cycles against a spend provider.
type Monitor struct {
	settings  Settings
	provider  spend.Provider
	notifiers []alerts.Notifier
	runner    *actions.Runner
	policy    model.ActionPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a monitor.
func New(settings Settings, provider spend.Provider, notifiers []alerts.Notifier, runner *actions.Runner, policy model.ActionPolicy, logger *slog.Logger) *Monitor {
	return &Monitor{
		settings:  settings,
		provider:  provider,
		notifiers: notifiers,
		runner:    runner,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for report dates.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Run executes one evaluation cycle. Only a failure to obtain the spend is
// returned as an error; notifier and action failures are logged and
// reflected in the result.
func (m *Monitor) Run(ctx context.Context) (*Result, error) {
	cycleID := uuid.New().String()
	logger := m.logger.With("cycle_id", cycleID)

	logger.Info("starting budget check",
		"budget", m.settings.Budget.Amount,
		"currency", m.settings.Budget.Currency,
		"actions_enabled", m.settings.ActionsEnabled,
		"dry_run", m.settings.DryRun,
	)

	current, err := m.provider.MonthToDate(ctx)
	if err != nil {
		logger.Error("fetch month-to-date spend failed", "error", err)
		return nil, fmt.Errorf("fetch month-to-date spend: %w", err)
	}

	currency := current.Currency
	if currency == "" {
		currency = m.settings.Budget.Currency
	}
	if m.settings.Budget.Currency != "" && !strings.EqualFold(m.settings.Budget.Currency, currency) {
		logger.Warn("budget currency differs from billing currency",
			"budget_currency", m.settings.Budget.Currency,
			"billing_currency", currency,
		)
	}

	for _, svc := range current.Services {
		if svc.Amount > serviceLogFloor {
			logger.Info("service cost", "service", svc.Service, "amount", svc.Amount, "currency", currency)
		}
	}

	budget := m.settings.Budget.Amount
	thresholds := CalculateThresholds(budget, m.settings.Percentages)
	level := Classify(current.Amount, thresholds)
	pct := model.PercentUsed(current.Amount, budget)

	logger.Info("month-to-date spend",
		"spend", current.Amount,
		"budget", budget,
		"percent_used", pct,
		"level", level,
	)

	report := FormatReport(ReportInput{
		Level:      level,
		Spend:      current.Amount,
		Budget:     budget,
		Currency:   currency,
		Thresholds: thresholds,
		AccountID:  m.settings.AccountID,
		AsOf:       m.now(),
	})

	result := &Result{
		CycleID:     cycleID,
		Spend:       current,
		Thresholds:  thresholds,
		Level:       level,
		PercentUsed: pct,
		Report:      report,
	}

	if level == model.LevelNone {
		logger.Info("budget within safe limits")
		for _, h := range Headroom(current.Amount, thresholds) {
			logger.Info("headroom",
				"level", h.Threshold.Level,
				"threshold", h.Threshold.Amount,
				"remaining", h.Remaining,
			)
		}
		return result, nil
	}

	th, _ := thresholds.For(level)
	logger.Warn("budget threshold crossed",
		"level", level,
		"threshold_pct", th.Percentage,
		"threshold", th.Amount,
		"spend", current.Amount,
	)

	if len(m.notifiers) == 0 {
		logger.Info("no notifier configured, skipping alert delivery")
	} else {
		result.Notified = alerts.Broadcast(ctx, m.notifiers, alerts.Alert{
			Event:        alerts.EventBudgetAlert,
			CycleID:      cycleID,
			Level:        level,
			Subject:      Subject(level),
			AccountID:    m.settings.AccountID,
			Currency:     currency,
			CurrentSpend: current.Amount,
			Budget:       budget,
			ThresholdPct: th.Percentage,
			Report:       report,
		}, logger)
	}

	authorized := actions.Authorize(level, m.policy, m.settings.ActionsEnabled)
	switch {
	case !m.settings.ActionsEnabled && level.AtLeast(model.LevelCritical):
		logger.Info("action triggers disabled, skipping remediation", "level", level)
	case len(authorized) > 0 && m.runner != nil:
		result.Actions = m.runner.Run(ctx, authorized, m.settings.DryRun)
	}

	logger.Info("budget check complete",
		"level", level,
		"notified", result.Notified,
		"actions", summarize(result.Actions),
	)
	return result, nil
}

// summarize renders action outcomes as "name=status" pairs for the log.
func summarize(results []model.ActionResult) string {
	if len(results) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Action.Name+"="+string(r.Status))
	}
	return strings.Join(parts, ", ")
}
