package cli

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/internal/config"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/remediation"
	"github.com/spf13/cobra"
)

var snapshotCleanupCmd = &cobra.Command{
	Use:   "ebs-snapshot-cleanup",
	Short: "Delete self-owned EBS snapshots past their retention",
	Long: `Delete EBS snapshots the retention policy no longer covers. Snapshots of the
last snapshots.daily_retention_days are kept, older ones survive as weekly
(Monday) or monthly (day 1 to 3) copies, and snapshots carrying any of
snapshots.exclude_tags are never touched.`,
	RunE: runSnapshotCleanup,
}

var logsOptimizeCmd = &cobra.Command{
	Use:   "cloudwatch-logs-optimize",
	Short: "Report or fix CloudWatch log groups with costly retention",
	Long: `Find log groups without retention, with retention over a year, or without
recent events. Retention is only changed with logs.set_retention and groups
are only deleted with logs.delete_empty; otherwise findings are reported.`,
	RunE: runLogsOptimize,
}

func init() {
	rootCmd.AddCommand(snapshotCleanupCmd)
	rootCmd.AddCommand(logsOptimizeCmd)
}

func snapshotRetention(cfg *config.Config) remediation.SnapshotRetention {
	return remediation.SnapshotRetention{
		DailyDays:     cfg.Snapshots.DailyRetentionDays,
		WeeklyWeeks:   cfg.Snapshots.WeeklyRetentionWeeks,
		MonthlyMonths: cfg.Snapshots.MonthlyRetentionMonths,
		MinAgeDays:    cfg.Snapshots.MinAgeDays,
		ExcludeTags:   cfg.Snapshots.ExcludeTags,
	}
}

func logRetention(cfg *config.Config) remediation.LogRetention {
	return remediation.LogRetention{
		DefaultDays:     cfg.Logs.DefaultRetentionDays,
		CriticalDays:    cfg.Logs.CriticalRetentionDays,
		SetPolicies:     cfg.Logs.SetRetention,
		DeleteEmpty:     cfg.Logs.DeleteEmpty,
		EmptyGroupDays:  cfg.Logs.EmptyGroupDays,
		ExcludePatterns: cfg.Logs.ExcludePatterns,
	}
}

func runSnapshotCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	awsCfg, accountID, err := initAWS(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cleaner := remediation.NewSnapshotCleaner(func(region string) remediation.SnapshotAPI {
		return ec2svc.NewFromConfig(awsCfg, func(o *ec2svc.Options) { o.Region = region })
	}, snapshotRetention(cfg), cfg.DryRun, logger)

	summary, runErr := cleaner.Run(ctx, regions(cfg, awsCfg))
	report(ctx, cmd, cfg, summary, accountID, cfg.Snapshots.CostThreshold, logger)
	return errors.Join(runErr, summary.Err())
}

func runLogsOptimize(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	awsCfg, accountID, err := initAWS(ctx, cfg, logger)
	if err != nil {
		return err
	}

	optimizer, err := remediation.NewLogOptimizer(func(region string) remediation.LogsAPI {
		return cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) { o.Region = region })
	}, logRetention(cfg), cfg.DryRun, logger)
	if err != nil {
		return err
	}

	summary, runErr := optimizer.Run(ctx, regions(cfg, awsCfg))
	report(ctx, cmd, cfg, summary, accountID, 0, logger)
	return errors.Join(runErr, summary.Err())
}
