package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// SnapshotCostPerGBMonth is the EBS snapshot storage price used for
// savings estimates.
const SnapshotCostPerGBMonth = 0.05

// SnapshotAPI is the subset of the EC2 client used to clean up snapshots.
// It satisfies ec2.DescribeSnapshotsAPIClient for the SDK paginator.
type SnapshotAPI interface {
	DescribeSnapshots(ctx context.Context, params *ec2svc.DescribeSnapshotsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2svc.DeleteSnapshotInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DeleteSnapshotOutput, error)
}

// SnapshotVerdict is what the retention policy decides for one snapshot.
type SnapshotVerdict int

const (
	SnapshotKeep     SnapshotVerdict = iota // inside a retention window
	SnapshotTooYoung                        // younger than the minimum age
	SnapshotDelete                          // past every retention window
)

func (v SnapshotVerdict) String() string {
	switch v {
	case SnapshotKeep:
		return "keep"
	case SnapshotTooYoung:
		return "too_young"
	case SnapshotDelete:
		return "delete"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// SnapshotRetention is an age-bucketed retention policy. Every snapshot of
// the last DailyDays is kept. Older ones survive as weekly copies (taken on
// a Monday, within WeeklyWeeks) or monthly copies (taken on day 1 to 3 of a
// month, within MonthlyMonths of 30 days). Nothing younger than MinAgeDays
// is deleted, and snapshots carrying any ExcludeTags key are never touched.
type SnapshotRetention struct {
	DailyDays     int
	WeeklyWeeks   int
	MonthlyMonths int
	MinAgeDays    int
	ExcludeTags   []string
}

// DefaultSnapshotRetention keeps a week of dailies, four weeklies and three
// monthlies.
var DefaultSnapshotRetention = SnapshotRetention{
	DailyDays:     7,
	WeeklyWeeks:   4,
	MonthlyMonths: 3,
	MinAgeDays:    1,
}

// Classify applies the policy to a snapshot started at started. Dates are
// compared in UTC.
func (r SnapshotRetention) Classify(started, now time.Time) SnapshotVerdict {
	started, now = started.UTC(), now.UTC()
	daysAgo := func(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

	if started.After(daysAgo(r.MinAgeDays)) {
		return SnapshotTooYoung
	}
	if started.After(daysAgo(r.DailyDays)) {
		return SnapshotKeep
	}
	if started.After(daysAgo(7*r.WeeklyWeeks)) && started.Weekday() == time.Monday {
		return SnapshotKeep
	}
	if started.After(daysAgo(30*r.MonthlyMonths)) && started.Day() <= 3 {
		return SnapshotKeep
	}
	return SnapshotDelete
}

func (r SnapshotRetention) excluded(tags []ec2types.Tag) (string, bool) {
	for _, tag := range tags {
		key := aws.ToString(tag.Key)
		for _, ex := range r.ExcludeTags {
			if key == ex {
				return key, true
			}
		}
	}
	return "", false
}

// SnapshotCleaner deletes self-owned EBS snapshots the retention policy no
// longer covers.
type SnapshotCleaner struct {
	client    func(region string) SnapshotAPI
	retention SnapshotRetention
	dryRun    bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewSnapshotCleaner creates a cleaner. client returns the EC2 client of a
// region.
func NewSnapshotCleaner(client func(region string) SnapshotAPI, retention SnapshotRetention, dryRun bool, logger *slog.Logger) *SnapshotCleaner {
	return &SnapshotCleaner{
		client:    client,
		retention: retention,
		dryRun:    dryRun,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used to age snapshots.
func (c *SnapshotCleaner) WithClock(now func() time.Time) *SnapshotCleaner {
	c.now = now
	return c
}

// Run scans every region and deletes the expired snapshots. A region that
// cannot be listed is reported in the returned error after the remaining
// regions have been processed.
func (c *SnapshotCleaner) Run(ctx context.Context, regions []string) (*Summary, error) {
	r := c.retention
	summary := &Summary{
		Title:  "EBS snapshot cleanup summary",
		DryRun: c.dryRun,
		Notes: []string{
			fmt.Sprintf("Retention policy: %d days daily, %d weeks weekly, %d months monthly", r.DailyDays, r.WeeklyWeeks, r.MonthlyMonths),
			fmt.Sprintf("EBS snapshots cost $%.2f per GB per month", SnapshotCostPerGBMonth),
		},
	}
	now := c.now()

	var errs []error
	for _, region := range regions {
		c.logger.Info("scanning region for EBS snapshots", "region", region)
		client := c.client(region)

		snapshots, err := c.owned(ctx, client)
		if err != nil {
			c.logger.Error("list snapshots failed", "region", region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", region, err))
			continue
		}
		c.logger.Info("snapshots found", "region", region, "count", len(snapshots))

		for _, snap := range snapshots {
			id := aws.ToString(snap.SnapshotId)
			started := aws.ToTime(snap.StartTime)
			sizeGB := aws.ToInt32(snap.VolumeSize)
			ageDays := int(now.Sub(started).Hours() / 24)

			if key, ok := r.excluded(snap.Tags); ok {
				c.logger.Info("snapshot excluded by tag", "region", region, "snapshot_id", id, "tag", key)
				continue
			}

			verdict := r.Classify(started, now)
			if verdict != SnapshotDelete {
				c.logger.Debug("keeping snapshot", "region", region, "snapshot_id", id, "verdict", verdict.String(), "age_days", ageDays)
				continue
			}

			entry := Entry{
				Region:  region,
				ID:      id,
				Detail:  snapshotDetail(snap, sizeGB, ageDays),
				Action:  "deleting",
				Outcome: OutcomeRequested,
			}
			if err := c.delete(ctx, client, id); err != nil {
				c.logger.Error("delete snapshot failed", "region", region, "snapshot_id", id, "error", err)
				entry.Outcome = OutcomeFailed
			} else {
				summary.EstimatedSavings += float64(sizeGB) * SnapshotCostPerGBMonth
			}
			summary.Entries = append(summary.Entries, entry)
		}
	}

	c.logger.Info("EBS snapshot cleanup complete",
		"deleted", summary.Count(OutcomeRequested),
		"failed", summary.Count(OutcomeFailed),
		"estimated_savings", summary.EstimatedSavings,
		"dry_run", c.dryRun,
	)
	return summary, errors.Join(errs...)
}

func (c *SnapshotCleaner) owned(ctx context.Context, client SnapshotAPI) ([]ec2types.Snapshot, error) {
	paginator := ec2svc.NewDescribeSnapshotsPaginator(client, &ec2svc.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})

	var out []ec2types.Snapshot
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeSnapshots page: %w", err)
		}
		out = append(out, page.Snapshots...)
	}
	return out, nil
}

// delete issues DeleteSnapshot with the same dry-run handling as the EC2
// stopper. A snapshot that is already gone counts as deleted.
func (c *SnapshotCleaner) delete(ctx context.Context, client SnapshotAPI, id string) error {
	input := &ec2svc.DeleteSnapshotInput{SnapshotId: aws.String(id)}
	if c.dryRun {
		input.DryRun = aws.Bool(true)
	}

	_, err := client.DeleteSnapshot(ctx, input)
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "DryRunOperation":
			return nil
		case "InvalidSnapshot.NotFound":
			c.logger.Info("snapshot already deleted", "snapshot_id", id)
			return nil
		}
	}
	return err
}

// snapshotDetail names the snapshot by its Name tag or description, then
// its size and age.
func snapshotDetail(snap ec2types.Snapshot, sizeGB int32, ageDays int) string {
	name := aws.ToString(snap.Description)
	for _, tag := range snap.Tags {
		if strings.EqualFold(aws.ToString(tag.Key), "name") {
			name = aws.ToString(tag.Value)
			break
		}
	}
	size := fmt.Sprintf("%d GB, %d days old", sizeGB, ageDays)
	if name == "" {
		return size
	}
	return name + ", " + size
}
