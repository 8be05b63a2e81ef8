package cli

import (
	"context"
	"log/slog"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/internal/config"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/metrics"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/monitor"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/spend"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one budget evaluation cycle",
	Long: `Fetch month-to-date spend from Cost Explorer, classify it against the
configured thresholds, send alerts and run authorized remediation actions.
The command exits non-zero only when the spend cannot be obtained.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().Float64("budget", 0, "monthly budget (overrides budget.amount)")
	monitorCmd.Flags().Bool("enable-actions", false, "allow critical and emergency tiers to run remediation actions")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	if !cfg.Percentages().Ordered() {
		logger.Warn("thresholds are not ascending, tiers are evaluated as configured",
			"warning", cfg.Thresholds.Warning,
			"critical", cfg.Thresholds.Critical,
			"emergency", cfg.Thresholds.Emergency,
		)
	}

	policy, err := initPolicy(cfg)
	if err != nil {
		return err
	}

	awsCfg, accountID, err := initAWS(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runner := actions.NewRunner(actions.NewCommandExecutor(), cfg.Actions.Timeout, logger)
	m := monitor.New(
		monitor.Settings{
			Budget:         model.Budget{Amount: cfg.Budget.Amount, Currency: cfg.Budget.Currency},
			Percentages:    cfg.Percentages(),
			ActionsEnabled: cfg.Actions.Enabled,
			DryRun:         cfg.DryRun,
			AccountID:      accountID,
		},
		spend.NewCostExplorer(awsCfg),
		initNotifiers(cfg),
		runner,
		policy,
		logger,
	)

	res, err := m.Run(ctx)
	if err != nil {
		return err
	}

	printf(cmd, "%s\n", res.Report)
	pushMetrics(ctx, cfg, res, logger)
	return nil
}

// pushMetrics sends the cycle gauges to the Pushgateway when one is
// configured. Failures are logged and never change the exit code.
func pushMetrics(ctx context.Context, cfg *config.Config, res *monitor.Result, logger *slog.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}

	rec := metrics.NewRecorder()
	rec.Observe(res.Spend.Amount, cfg.Budget.Amount, res.PercentUsed, res.Level, res.Thresholds, res.Actions)
	if err := rec.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.Warn("push metrics failed", "url", cfg.Metrics.PushgatewayURL, "error", err)
		return
	}
	logger.Debug("metrics pushed", "url", cfg.Metrics.PushgatewayURL, "job", cfg.Metrics.Job)
}
