package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/spf13/viper"
)

// Config holds all AWS Budget Guardian configuration.
type Config struct {
	Budget      BudgetConfig      `mapstructure:"budget"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Actions     ActionsConfig     `mapstructure:"actions"`
	DryRun      bool              `mapstructure:"dry_run"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Snapshots   SnapshotsConfig   `mapstructure:"snapshots"`
	Logs        LogsConfig        `mapstructure:"logs"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// BudgetConfig defines the monthly budget.
type BudgetConfig struct {
	Amount   float64 `mapstructure:"amount"`
	Currency string  `mapstructure:"currency"`
}

// ThresholdsConfig defines the alert tiers as percentages of the budget.
type ThresholdsConfig struct {
	Warning   float64 `mapstructure:"warning"`
	Critical  float64 `mapstructure:"critical"`
	Emergency float64 `mapstructure:"emergency"`
}

// ActionsConfig defines remediation triggers.
type ActionsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PolicyFile string        `mapstructure:"policy_file"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings. The webhook is enabled
// whenever URL is set.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// AWSConfig defines the account and regions to work with.
type AWSConfig struct {
	Profile   string   `mapstructure:"profile"`
	AccountID string   `mapstructure:"account_id"`
	Regions   []string `mapstructure:"regions"`
}

// RemediationConfig defines which resources the auto-off commands touch.
type RemediationConfig struct {
	TagKey               string `mapstructure:"tag_key"`
	TagValue             string `mapstructure:"tag_value"`
	Hibernate            bool   `mapstructure:"hibernate"`
	SkipMultiAZ          bool   `mapstructure:"skip_multi_az"`
	SkipReadReplicas     bool   `mapstructure:"skip_read_replicas"`
	SkipClusterInstances bool   `mapstructure:"skip_cluster_instances"`
}

// SnapshotsConfig defines the EBS snapshot retention policy. A cleanup is
// only sent to the notifiers when its savings reach CostThreshold.
type SnapshotsConfig struct {
	DailyRetentionDays     int      `mapstructure:"daily_retention_days"`
	WeeklyRetentionWeeks   int      `mapstructure:"weekly_retention_weeks"`
	MonthlyRetentionMonths int      `mapstructure:"monthly_retention_months"`
	MinAgeDays             int      `mapstructure:"min_age_days"`
	ExcludeTags            []string `mapstructure:"exclude_tags"`
	CostThreshold          float64  `mapstructure:"cost_threshold"`
}

// LogsConfig defines CloudWatch log group retention management.
type LogsConfig struct {
	DefaultRetentionDays  int      `mapstructure:"default_retention_days"`
	CriticalRetentionDays int      `mapstructure:"critical_retention_days"`
	SetRetention          bool     `mapstructure:"set_retention"`
	DeleteEmpty           bool     `mapstructure:"delete_empty"`
	EmptyGroupDays        int      `mapstructure:"empty_group_days"`
	ExcludePatterns       []string `mapstructure:"exclude_patterns"`
}

// MetricsConfig defines the Prometheus Pushgateway target.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"budget.amount":                      "MONTHLY_BUDGET",
	"thresholds.warning":                 "WARNING_THRESHOLD",
	"thresholds.critical":                "CRITICAL_THRESHOLD",
	"thresholds.emergency":               "EMERGENCY_THRESHOLD",
	"actions.enabled":                    "ENABLE_SCRIPT_TRIGGERS",
	"dry_run":                            "DRY_RUN",
	"alerts.webhook.url":                 "ALERT_WEBHOOK",
	"aws.profile":                        "AWS_PROFILE",
	"aws.account_id":                     "AWS_ACCOUNT_ID",
	"aws.regions":                        "REGIONS",
	"remediation.tag_key":                "TAG_KEY",
	"remediation.tag_value":              "TAG_VALUE",
	"remediation.hibernate":              "HIBERNATE",
	"remediation.skip_multi_az":          "SKIP_MULTI_AZ",
	"remediation.skip_read_replicas":     "SKIP_READ_REPLICAS",
	"remediation.skip_cluster_instances": "SKIP_CLUSTER_INSTANCES",
	"snapshots.daily_retention_days":     "DAILY_RETENTION_DAYS",
	"snapshots.weekly_retention_weeks":   "WEEKLY_RETENTION_WEEKS",
	"snapshots.monthly_retention_months": "MONTHLY_RETENTION_MONTHS",
	"snapshots.min_age_days":             "MIN_SNAPSHOT_AGE_DAYS",
	"snapshots.exclude_tags":             "EXCLUDE_TAGS",
	"snapshots.cost_threshold":           "COST_THRESHOLD",
	"logs.default_retention_days":        "DEFAULT_RETENTION_DAYS",
	"logs.critical_retention_days":       "CRITICAL_LOG_RETENTION",
	"logs.set_retention":                 "SET_RETENTION_POLICIES",
	"logs.delete_empty":                  "DELETE_EMPTY_GROUPS",
	"logs.empty_group_days":              "EMPTY_GROUP_DAYS",
	"logs.exclude_patterns":              "EXCLUDE_PATTERNS",
}

const envPrefix = "GUARDIAN"

// Load reads configuration from file and environment variables.
// GUARDIAN_* variables take precedence over the legacy names.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".guardian"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("budget.amount", 10.00)
	v.SetDefault("budget.currency", "USD")
	v.SetDefault("thresholds.warning", model.DefaultPercentages.Warning)
	v.SetDefault("thresholds.critical", model.DefaultPercentages.Critical)
	v.SetDefault("thresholds.emergency", model.DefaultPercentages.Emergency)
	v.SetDefault("actions.enabled", false)
	v.SetDefault("actions.timeout", "5m")
	v.SetDefault("actions.policy_file", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("alerts.webhook.url", "")
	v.SetDefault("alerts.webhook.secret", "")
	v.SetDefault("alerts.slack.enabled", false)
	v.SetDefault("alerts.slack.webhook_url", "")
	v.SetDefault("alerts.slack.channel", "#aws-costs")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.account_id", "")
	v.SetDefault("aws.regions", []string{})
	v.SetDefault("remediation.tag_key", "auto-off")
	v.SetDefault("remediation.tag_value", "true")
	v.SetDefault("remediation.hibernate", false)
	v.SetDefault("remediation.skip_multi_az", false)
	v.SetDefault("remediation.skip_read_replicas", false)
	v.SetDefault("remediation.skip_cluster_instances", false)
	v.SetDefault("snapshots.daily_retention_days", 7)
	v.SetDefault("snapshots.weekly_retention_weeks", 4)
	v.SetDefault("snapshots.monthly_retention_months", 3)
	v.SetDefault("snapshots.min_age_days", 1)
	v.SetDefault("snapshots.exclude_tags", []string{})
	v.SetDefault("snapshots.cost_threshold", 1.0)
	v.SetDefault("logs.default_retention_days", 14)
	v.SetDefault("logs.critical_retention_days", 30)
	v.SetDefault("logs.set_retention", false)
	v.SetDefault("logs.delete_empty", false)
	v.SetDefault("logs.empty_group_days", 30)
	v.SetDefault("logs.exclude_patterns", []string{})
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "aws_budget_guardian")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AWS.Regions = splitList(cfg.AWS.Regions)
	cfg.Snapshots.ExcludeTags = splitList(cfg.Snapshots.ExcludeTags)
	cfg.Logs.ExcludePatterns = splitList(cfg.Logs.ExcludePatterns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no evaluation cycle can work with. Misordered
// thresholds are accepted and evaluated as given.
func (c *Config) Validate() error {
	if c.Budget.Amount < 0 {
		return fmt.Errorf("budget.amount must not be negative, got %.2f", c.Budget.Amount)
	}
	for name, pct := range map[string]float64{
		"thresholds.warning":   c.Thresholds.Warning,
		"thresholds.critical":  c.Thresholds.Critical,
		"thresholds.emergency": c.Thresholds.Emergency,
	} {
		if pct < 0 {
			return fmt.Errorf("%s must not be negative, got %.2f", name, pct)
		}
	}
	for name, n := range map[string]int{
		"snapshots.daily_retention_days":     c.Snapshots.DailyRetentionDays,
		"snapshots.weekly_retention_weeks":   c.Snapshots.WeeklyRetentionWeeks,
		"snapshots.monthly_retention_months": c.Snapshots.MonthlyRetentionMonths,
		"snapshots.min_age_days":             c.Snapshots.MinAgeDays,
		"logs.default_retention_days":        c.Logs.DefaultRetentionDays,
		"logs.critical_retention_days":       c.Logs.CriticalRetentionDays,
		"logs.empty_group_days":              c.Logs.EmptyGroupDays,
	} {
		if n < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, n)
		}
	}
	for _, p := range c.Logs.ExcludePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("logs.exclude_patterns: %w", err)
		}
	}
	if c.Actions.Timeout < 0 {
		return fmt.Errorf("actions.timeout must not be negative, got %s", c.Actions.Timeout)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Percentages returns the configured tier percentages.
func (c *Config) Percentages() model.Percentages {
	return model.Percentages{
		Warning:   c.Thresholds.Warning,
		Critical:  c.Thresholds.Critical,
		Emergency: c.Thresholds.Emergency,
	}
}

// splitList trims entries and expands comma-separated ones, so both a YAML
// list and REGIONS="us-east-1, eu-west-1" work.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
