package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/internal/config"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/spend"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "AWS Budget Guardian - threshold alerts and remediation for AWS spend",
	Long: `AWS Budget Guardian compares month-to-date AWS spend against a monthly budget.
Crossing a warning, critical or emergency threshold sends an alert, and the
critical and emergency tiers can trigger remediation such as stopping tagged
EC2 and RDS instances.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.guardian/config.yaml)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "log actions without performing them")
	rootCmd.PersistentFlags().String("webhook", "", "alert webhook URL")
}

// loadConfig loads the configuration and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		cfg.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("webhook") {
		cfg.Alerts.Webhook.URL, _ = flags.GetString("webhook")
	}
	if f := flags.Lookup("budget"); f != nil && f.Changed {
		cfg.Budget.Amount, _ = flags.GetFloat64("budget")
	}
	if f := flags.Lookup("enable-actions"); f != nil && f.Changed {
		cfg.Actions.Enabled, _ = flags.GetBool("enable-actions")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "text") {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initPolicy loads the action policy. Commands in the built-in policy and
// {self} placeholders run this binary with the same config file.
func initPolicy(cfg *config.Config) (model.ActionPolicy, error) {
	self, err := selfCommand()
	if err != nil {
		return model.ActionPolicy{}, err
	}

	if cfg.Actions.PolicyFile == "" {
		return actions.DefaultPolicy(self), nil
	}
	return actions.LoadPolicy(cfg.Actions.PolicyFile, self)
}

// selfCommand returns the running binary followed by --config when a config
// file was given, so a triggered remediation loads the settings of the
// cycle that triggered it.
func selfCommand() ([]string, error) {
	bin, err := os.Executable()
	if err != nil || bin == "" {
		bin = os.Args[0]
	}
	if cfgFile == "" {
		return []string{bin}, nil
	}

	path, err := filepath.Abs(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", cfgFile, err)
	}
	return []string{bin, "--config", path}, nil
}

// initAWS loads the SDK configuration and resolves the account ID when the
// config does not name one. A failed lookup only drops the ID from reports.
func initAWS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (aws.Config, string, error) {
	awsCfg, err := spend.LoadAWSConfig(ctx, cfg.AWS.Profile)
	if err != nil {
		return aws.Config{}, "", err
	}

	accountID := cfg.AWS.AccountID
	if accountID == "" {
		id, err := spend.ResolveAccountID(ctx, sts.NewFromConfig(awsCfg))
		if err != nil {
			logger.Warn("resolve AWS account ID failed", "error", err)
		} else {
			accountID = id
		}
	}
	return awsCfg, accountID, nil
}

// regions returns the configured regions, or the SDK default region.
func regions(cfg *config.Config, awsCfg aws.Config) []string {
	if len(cfg.AWS.Regions) > 0 {
		return cfg.AWS.Regions
	}
	return []string{awsCfg.Region}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
