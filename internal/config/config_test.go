package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/internal/config"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Budget.Amount)
	assert.Equal(t, "USD", cfg.Budget.Currency)
	assert.Equal(t, 75.0, cfg.Thresholds.Warning)
	assert.Equal(t, 90.0, cfg.Thresholds.Critical)
	assert.Equal(t, 100.0, cfg.Thresholds.Emergency)
	assert.False(t, cfg.Actions.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Actions.Timeout)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, "#aws-costs", cfg.Alerts.Slack.Channel)
	assert.Equal(t, "auto-off", cfg.Remediation.TagKey)
	assert.Equal(t, "true", cfg.Remediation.TagValue)
	assert.Equal(t, 7, cfg.Snapshots.DailyRetentionDays)
	assert.Equal(t, 4, cfg.Snapshots.WeeklyRetentionWeeks)
	assert.Equal(t, 3, cfg.Snapshots.MonthlyRetentionMonths)
	assert.Equal(t, 1, cfg.Snapshots.MinAgeDays)
	assert.Empty(t, cfg.Snapshots.ExcludeTags)
	assert.Equal(t, 1.0, cfg.Snapshots.CostThreshold)
	assert.Equal(t, 14, cfg.Logs.DefaultRetentionDays)
	assert.Equal(t, 30, cfg.Logs.CriticalRetentionDays)
	assert.False(t, cfg.Logs.SetRetention)
	assert.False(t, cfg.Logs.DeleteEmpty)
	assert.Equal(t, 30, cfg.Logs.EmptyGroupDays)
	assert.Equal(t, "aws_budget_guardian", cfg.Metrics.Job)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
budget:
  amount: 250
thresholds:
  warning: 50
actions:
  enabled: true
  timeout: 90s
  policy_file: /etc/guardian/policy.yaml
aws:
  regions: [us-east-1, eu-west-1]
alerts:
  webhook:
    url: https://hooks.example.com/budget
    secret: s3cr3t
logging:
  level: debug
  format: text
`)
	err := os.WriteFile(cfgPath, data, 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 250.0, cfg.Budget.Amount)
	assert.Equal(t, 50.0, cfg.Thresholds.Warning)
	assert.Equal(t, 90.0, cfg.Thresholds.Critical)
	assert.True(t, cfg.Actions.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Actions.Timeout)
	assert.Equal(t, "/etc/guardian/policy.yaml", cfg.Actions.PolicyFile)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.AWS.Regions)
	assert.Equal(t, "https://hooks.example.com/budget", cfg.Alerts.Webhook.URL)
	assert.Equal(t, "s3cr3t", cfg.Alerts.Webhook.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GUARDIAN_LOGGING_LEVEL", "error")
	t.Setenv("GUARDIAN_BUDGET_AMOUNT", "42.5")
	t.Setenv("GUARDIAN_ALERTS_SLACK_ENABLED", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 42.5, cfg.Budget.Amount)
	assert.True(t, cfg.Alerts.Slack.Enabled)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("MONTHLY_BUDGET", "20")
	t.Setenv("WARNING_THRESHOLD", "60")
	t.Setenv("ENABLE_SCRIPT_TRIGGERS", "true")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("ALERT_WEBHOOK", "https://hooks.example.com/legacy")
	t.Setenv("REGIONS", "us-east-1, eu-central-1 ,")
	t.Setenv("TAG_KEY", "schedule")
	t.Setenv("SKIP_MULTI_AZ", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Budget.Amount)
	assert.Equal(t, 60.0, cfg.Thresholds.Warning)
	assert.True(t, cfg.Actions.Enabled)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "https://hooks.example.com/legacy", cfg.Alerts.Webhook.URL)
	assert.Equal(t, []string{"us-east-1", "eu-central-1"}, cfg.AWS.Regions)
	assert.Equal(t, "schedule", cfg.Remediation.TagKey)
	assert.True(t, cfg.Remediation.SkipMultiAZ)
}

func TestLoad_CleanupLegacyEnv(t *testing.T) {
	t.Setenv("DAILY_RETENTION_DAYS", "3")
	t.Setenv("MONTHLY_RETENTION_MONTHS", "12")
	t.Setenv("MIN_SNAPSHOT_AGE_DAYS", "2")
	t.Setenv("EXCLUDE_TAGS", "Retain, Backup")
	t.Setenv("COST_THRESHOLD", "5")
	t.Setenv("DEFAULT_RETENTION_DAYS", "60")
	t.Setenv("SET_RETENTION_POLICIES", "true")
	t.Setenv("DELETE_EMPTY_GROUPS", "true")
	t.Setenv("EXCLUDE_PATTERNS", "^/audit/,prod")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Snapshots.DailyRetentionDays)
	assert.Equal(t, 12, cfg.Snapshots.MonthlyRetentionMonths)
	assert.Equal(t, 2, cfg.Snapshots.MinAgeDays)
	assert.Equal(t, []string{"Retain", "Backup"}, cfg.Snapshots.ExcludeTags)
	assert.Equal(t, 5.0, cfg.Snapshots.CostThreshold)
	assert.Equal(t, 60, cfg.Logs.DefaultRetentionDays)
	assert.True(t, cfg.Logs.SetRetention)
	assert.True(t, cfg.Logs.DeleteEmpty)
	assert.Equal(t, []string{"^/audit/", "prod"}, cfg.Logs.ExcludePatterns)
}

func TestLoad_InvalidCleanupSettings(t *testing.T) {
	t.Setenv("GUARDIAN_SNAPSHOTS_DAILY_RETENTION_DAYS", "-1")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "snapshots.daily_retention_days")

	t.Setenv("GUARDIAN_SNAPSHOTS_DAILY_RETENTION_DAYS", "7")
	t.Setenv("EXCLUDE_PATTERNS", "(")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "logs.exclude_patterns")
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("MONTHLY_BUDGET", "20")
	t.Setenv("GUARDIAN_BUDGET_AMOUNT", "30")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("GUARDIAN_DRY_RUN", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Budget.Amount)
	assert.False(t, cfg.DryRun)
}

func TestLoad_ForceLiveEnvBeatsConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dry_run: true\n"), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.True(t, cfg.DryRun)

	for key, value := range actions.ForceLiveEnv() {
		t.Setenv(key, value)
	}
	cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	assert.False(t, cfg.DryRun)
}

func TestLoad_ForceLiveEnvBeatsLegacyDryRun(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("GUARDIAN_DRY_RUN", "true")
	for key, value := range actions.ForceLiveEnv() {
		t.Setenv(key, value)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, cfg.DryRun)
}

func TestLoad_ZeroBudgetAllowed(t *testing.T) {
	t.Setenv("MONTHLY_BUDGET", "0")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Budget.Amount)
}

func TestLoad_NegativeBudgetRejected(t *testing.T) {
	t.Setenv("MONTHLY_BUDGET", "-5")

	_, err := config.Load("")
	assert.ErrorContains(t, err, "budget.amount")
}

func TestLoad_NegativeThresholdRejected(t *testing.T) {
	t.Setenv("CRITICAL_THRESHOLD", "-10")

	_, err := config.Load("")
	assert.ErrorContains(t, err, "thresholds.critical must not be negative")
}

func TestLoad_ZeroThresholdAccepted(t *testing.T) {
	t.Setenv("WARNING_THRESHOLD", "0")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Thresholds.Warning)
}

func TestLoad_MisorderedThresholdsAccepted(t *testing.T) {
	t.Setenv("WARNING_THRESHOLD", "95")
	t.Setenv("CRITICAL_THRESHOLD", "80")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Percentages().Ordered())
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	t.Setenv("GUARDIAN_LOGGING_FORMAT", "xml")

	_, err := config.Load("")
	assert.ErrorContains(t, err, "logging.format")
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	err := os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	assert.Error(t, err)
}
