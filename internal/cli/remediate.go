package cli

import (
	"context"
	"errors"
	"log/slog"

	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/internal/config"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/remediation"
	"github.com/spf13/cobra"
)

var ec2AutoOffCmd = &cobra.Command{
	Use:   "ec2-auto-off",
	Short: "Stop or hibernate running EC2 instances carrying the auto-off tag",
	RunE:  runEC2AutoOff,
}

var rdsAutoStopCmd = &cobra.Command{
	Use:   "rds-auto-stop",
	Short: "Stop available RDS instances carrying the auto-off tag",
	RunE:  runRDSAutoStop,
}

func init() {
	rootCmd.AddCommand(ec2AutoOffCmd)
	rootCmd.AddCommand(rdsAutoStopCmd)
}

func remediationOptions(cfg *config.Config) remediation.Options {
	return remediation.Options{
		TagKey:               cfg.Remediation.TagKey,
		TagValue:             cfg.Remediation.TagValue,
		Hibernate:            cfg.Remediation.Hibernate,
		DryRun:               cfg.DryRun,
		SkipMultiAZ:          cfg.Remediation.SkipMultiAZ,
		SkipReadReplicas:     cfg.Remediation.SkipReadReplicas,
		SkipClusterInstances: cfg.Remediation.SkipClusterInstances,
	}
}

func runEC2AutoOff(cmd *cobra.Command, _ []string) error {
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

	stopper := remediation.NewEC2Stopper(func(region string) remediation.EC2API {
		return ec2svc.NewFromConfig(awsCfg, func(o *ec2svc.Options) { o.Region = region })
	}, remediationOptions(cfg), logger)

	summary, runErr := stopper.Run(ctx, regions(cfg, awsCfg))
	report(ctx, cmd, cfg, summary, accountID, 0, logger)
	return errors.Join(runErr, summary.Err())
}

func runRDSAutoStop(cmd *cobra.Command, _ []string) error {
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

	stopper := remediation.NewRDSStopper(func(region string) remediation.RDSAPI {
		return rdssvc.NewFromConfig(awsCfg, func(o *rdssvc.Options) { o.Region = region })
	}, remediationOptions(cfg), logger)

	summary, runErr := stopper.Run(ctx, regions(cfg, awsCfg))
	report(ctx, cmd, cfg, summary, accountID, 0, logger)
	return errors.Join(runErr, summary.Err())
}

// report prints a remediation summary and sends it to the notifiers when
// any resource was touched and the estimated savings reach minSavings.
func report(ctx context.Context, cmd *cobra.Command, cfg *config.Config, summary *remediation.Summary, accountID string, minSavings float64, logger *slog.Logger) {
	if len(summary.Entries) == 0 {
		logger.Info("nothing to report", "summary", summary.Title)
		return
	}

	text := summary.Text()
	printf(cmd, "%s\n", text)

	if summary.EstimatedSavings < minSavings {
		logger.Info("savings below alert threshold, skipping notifiers",
			"estimated_savings", summary.EstimatedSavings,
			"threshold", minSavings,
		)
		return
	}
	notifiers := initNotifiers(cfg)
	if len(notifiers) == 0 {
		return
	}
	alerts.Broadcast(ctx, notifiers, alerts.Alert{
		Event:     alerts.EventRemediation,
		Subject:   summary.Title,
		AccountID: accountID,
		Report:    text,
	}, logger)
}
