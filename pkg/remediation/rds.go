package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
)

// RDSAPI is the subset of the RDS client used to stop instances.
// It satisfies rds.DescribeDBInstancesAPIClient for the SDK paginator.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rdssvc.DescribeDBInstancesInput, optFns ...func(*rdssvc.Options)) (*rdssvc.DescribeDBInstancesOutput, error)
	StopDBInstance(ctx context.Context, params *rdssvc.StopDBInstanceInput, optFns ...func(*rdssvc.Options)) (*rdssvc.StopDBInstanceOutput, error)
}

// defaultInstanceCost is the monthly compute estimate for unlisted classes.
const defaultInstanceCost = 50.0

// instanceMonthlyCost holds rough on-demand compute prices per class.
// Storage keeps billing while an instance is stopped.
var instanceMonthlyCost = map[string]float64{
	"db.t3.micro":  14.6,
	"db.t3.small":  29.2,
	"db.t3.medium": 58.4,
	"db.t3.large":  116.8,
	"db.t3.xlarge": 233.6,
	"db.m5.large":  131.4,
	"db.m5.xlarge": 262.8,
	"db.r5.large":  182.5,
	"db.r5.xlarge": 365.0,
}

// EstimateMonthlySavings sums the compute estimate of the given classes.
func EstimateMonthlySavings(classes []string) float64 {
	var total float64
	for _, c := range classes {
		if cost, ok := instanceMonthlyCost[c]; ok {
			total += cost
			continue
		}
		total += defaultInstanceCost
	}
	return total
}

// RDSStopper stops available RDS instances carrying the auto-off tag.
type RDSStopper struct {
	client func(region string) RDSAPI
	opts   Options
	logger *slog.Logger
}

// NewRDSStopper creates a stopper. client returns the RDS client of a region.
func NewRDSStopper(client func(region string) RDSAPI, opts Options, logger *slog.Logger) *RDSStopper {
	return &RDSStopper{client: client, opts: opts, logger: logger}
}

// Run scans every region and stops the matching instances. RDS has no
// DryRun parameter, so in dry run the stop is only logged.
func (s *RDSStopper) Run(ctx context.Context, regions []string) (*Summary, error) {
	summary := &Summary{
		Title:  "RDS auto-stop summary",
		DryRun: s.opts.DryRun,
		Notes: []string{
			"Note: Storage costs continue while instances are stopped",
			"Restart instances when needed with AWS console or CLI",
		},
	}

	var (
		errs    []error
		stopped []string
	)
	for _, region := range regions {
		s.logger.Info("scanning region for tagged RDS instances",
			"region", region,
			"tag", s.opts.TagKey+"="+s.opts.TagValue,
		)
		client := s.client(region)

		instances, err := s.tagged(ctx, client)
		if err != nil {
			s.logger.Error("list RDS instances failed", "region", region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", region, err))
			continue
		}
		s.logger.Info("matching RDS instances", "region", region, "count", len(instances))

		for _, db := range instances {
			entry := Entry{
				Region: region,
				ID:     aws.ToString(db.DBInstanceIdentifier),
				Class:  aws.ToString(db.DBInstanceClass),
				Engine: aws.ToString(db.Engine),
			}

			if reason := s.skipReason(db); reason != "" {
				s.logger.Info("skipping RDS instance", "region", region, "db_instance", entry.ID, "reason", reason)
				entry.Action = "skipped"
				entry.Outcome = OutcomeSkipped
				entry.Reason = reason
				summary.Entries = append(summary.Entries, entry)
				continue
			}

			entry.Action = "stopping"
			entry.Outcome = OutcomeRequested
			if err := s.stop(ctx, client, entry.ID); err != nil {
				entry.Outcome = OutcomeFailed
			} else {
				stopped = append(stopped, entry.Class)
			}
			summary.Entries = append(summary.Entries, entry)
		}
	}

	summary.EstimatedSavings = EstimateMonthlySavings(stopped)
	s.logger.Info("RDS auto-stop complete",
		"stopped", summary.Count(OutcomeRequested),
		"failed", summary.Count(OutcomeFailed),
		"skipped", summary.Count(OutcomeSkipped),
		"estimated_savings", summary.EstimatedSavings,
		"dry_run", s.opts.DryRun,
	)
	return summary, errors.Join(errs...)
}

func (s *RDSStopper) tagged(ctx context.Context, client RDSAPI) ([]rdstypes.DBInstance, error) {
	paginator := rdssvc.NewDescribeDBInstancesPaginator(client, &rdssvc.DescribeDBInstancesInput{})

	var out []rdstypes.DBInstance
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeDBInstances page: %w", err)
		}
		for _, db := range page.DBInstances {
			if hasTag(db.TagList, s.opts.TagKey, s.opts.TagValue) {
				out = append(out, db)
			}
		}
	}
	return out, nil
}

// skipReason returns why an instance must be left alone, or "" if it can be
// stopped.
func (s *RDSStopper) skipReason(db rdstypes.DBInstance) string {
	if s.opts.SkipMultiAZ && aws.ToBool(db.MultiAZ) {
		return "Multi-AZ instance (high availability)"
	}
	if s.opts.SkipReadReplicas && aws.ToString(db.ReadReplicaSourceDBInstanceIdentifier) != "" {
		return "Read replica instance"
	}
	if s.opts.SkipClusterInstances && aws.ToString(db.DBClusterIdentifier) != "" {
		return "Aurora cluster member"
	}

	status := strings.ToLower(aws.ToString(db.DBInstanceStatus))
	switch status {
	case "available":
		return ""
	case "stopped", "stopping":
		return "Already " + status
	default:
		return "Not available (status: " + status + ")"
	}
}

func (s *RDSStopper) stop(ctx context.Context, client RDSAPI, id string) error {
	if s.opts.DryRun {
		s.logger.Info("DRY RUN: would stop RDS instance", "db_instance", id)
		return nil
	}

	s.logger.Info("stopping RDS instance", "db_instance", id)
	_, err := client.StopDBInstance(ctx, &rdssvc.StopDBInstanceInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidDBInstanceState" {
		s.logger.Warn("RDS instance cannot be stopped in its current state", "db_instance", id, "error", err)
	} else {
		s.logger.Error("stop RDS instance failed", "db_instance", id, "error", err)
	}
	return err
}

func hasTag(tags []rdstypes.Tag, key, value string) bool {
	for _, t := range tags {
		if aws.ToString(t.Key) == key && aws.ToString(t.Value) == value {
			return true
		}
	}
	return false
}
