package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
)

// LogStorageCostPerGBMonth is the CloudWatch Logs storage price used for
// savings estimates.
const LogStorageCostPerGBMonth = 0.03

// LogsAPI is the subset of the CloudWatch Logs client used to manage log
// group retention. It satisfies cloudwatchlogs.DescribeLogGroupsAPIClient
// for the SDK paginator.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	DeleteLogGroup(ctx context.Context, params *cloudwatchlogs.DeleteLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DeleteLogGroupOutput, error)
}

// LogIssue names a cost problem found on a log group.
type LogIssue string

const (
	IssueNoRetention        LogIssue = "no_retention"
	IssueExcessiveRetention LogIssue = "excessive_retention"
	IssueInactiveGroup      LogIssue = "inactive_group"
	IssueEmptyGroup         LogIssue = "empty_group"
)

// Priority returns HIGH, MEDIUM or LOW.
func (i LogIssue) Priority() string {
	switch i {
	case IssueNoRetention:
		return "HIGH"
	case IssueExcessiveRetention:
		return "MEDIUM"
	}
	return "LOW"
}

// LogRetention configures the log optimizer.
type LogRetention struct {
	DefaultDays     int
	CriticalDays    int
	SetPolicies     bool
	DeleteEmpty     bool
	EmptyGroupDays  int
	ExcludePatterns []string
}

// DefaultLogRetention reports findings without changing anything.
var DefaultLogRetention = LogRetention{
	DefaultDays:    14,
	CriticalDays:   30,
	EmptyGroupDays: 30,
}

// excessiveRetentionDays is the retention above which a group is flagged.
const excessiveRetentionDays = 365

// Substrings of lower-cased group names that ask for longer or shorter
// retention. Critical hints win.
var (
	criticalLogHints = []string{"/aws/lambda/", "/aws/apigateway/", "/aws/rds/", "prod", "security", "audit", "error"}
	debugLogHints    = []string{"debug", "dev", "test", "staging"}
)

// retentionValues are the only retention periods CloudWatch Logs accepts.
var retentionValues = []int32{1, 3, 5, 7, 14, 30, 60, 90, 120, 150, 180, 365, 400, 545, 731, 1096, 1827, 2192, 2557, 2922, 3288, 3653}

// SuggestRetention returns the retention in days a group should have:
// CriticalDays for production, security and AWS service logs, half of
// DefaultDays (at least 7) for debug and test logs, DefaultDays otherwise.
// The result is rounded up to a value CloudWatch Logs accepts.
func (r LogRetention) SuggestRetention(group string) int32 {
	name := strings.ToLower(group)
	days := r.DefaultDays
	switch {
	case containsAny(name, criticalLogHints):
		days = r.CriticalDays
	case containsAny(name, debugLogHints):
		days = max(7, r.DefaultDays/2)
	}
	return roundRetention(days)
}

func roundRetention(days int) int32 {
	for _, v := range retentionValues {
		if int(v) >= days {
			return v
		}
	}
	return retentionValues[len(retentionValues)-1]
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// LogOptimizer finds log groups with unbounded or excessive retention and
// groups that no longer receive events. Fixes are applied only when
// SetPolicies or DeleteEmpty allow it; otherwise findings are reported.
type LogOptimizer struct {
	client  func(region string) LogsAPI
	policy  LogRetention
	exclude []*regexp.Regexp
	dryRun  bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewLogOptimizer creates an optimizer. client returns the CloudWatch Logs
// client of a region. An exclude pattern that is not a valid regular
// expression is an error.
func NewLogOptimizer(client func(region string) LogsAPI, policy LogRetention, dryRun bool, logger *slog.Logger) (*LogOptimizer, error) {
	var exclude []*regexp.Regexp
	for _, p := range policy.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		exclude = append(exclude, re)
	}
	return &LogOptimizer{
		client:  client,
		policy:  policy,
		exclude: exclude,
		dryRun:  dryRun,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// WithClock replaces the clock used to age log groups.
func (o *LogOptimizer) WithClock(now func() time.Time) *LogOptimizer {
	o.now = now
	return o
}

type logFinding struct {
	issue     LogIssue
	detail    string
	retention int32
	savings   float64
}

// Run scans every region. A region that cannot be listed is reported in the
// returned error after the remaining regions have been processed.
func (o *LogOptimizer) Run(ctx context.Context, regions []string) (*Summary, error) {
	summary := &Summary{Title: "CloudWatch logs optimization summary", DryRun: o.dryRun}
	priorities := map[string]int{}

	var errs []error
	for _, region := range regions {
		o.logger.Info("scanning region for CloudWatch log groups", "region", region)
		client := o.client(region)

		groups, err := o.groups(ctx, client)
		if err != nil {
			o.logger.Error("list log groups failed", "region", region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", region, err))
			continue
		}

		for _, group := range groups {
			name := aws.ToString(group.LogGroupName)
			if o.excluded(name) {
				o.logger.Info("log group excluded", "region", region, "log_group", name)
				continue
			}

			for _, f := range o.assess(ctx, client, group) {
				priorities[f.issue.Priority()]++
				entry := o.apply(ctx, client, region, name, f)
				if entry.Outcome != OutcomeFailed {
					summary.EstimatedSavings += f.savings
				}
				summary.Entries = append(summary.Entries, entry)
			}
		}
	}

	if len(summary.Entries) > 0 {
		summary.Notes = append(summary.Notes, fmt.Sprintf("Priority: %d high, %d medium, %d low",
			priorities["HIGH"], priorities["MEDIUM"], priorities["LOW"]))
	}
	o.logger.Info("CloudWatch logs optimization complete",
		"findings", len(summary.Entries),
		"changed", summary.Count(OutcomeRequested),
		"failed", summary.Count(OutcomeFailed),
		"estimated_savings", summary.EstimatedSavings,
		"dry_run", o.dryRun,
	)
	return summary, errors.Join(errs...)
}

func (o *LogOptimizer) groups(ctx context.Context, client LogsAPI) ([]cwltypes.LogGroup, error) {
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(client, &cloudwatchlogs.DescribeLogGroupsInput{})

	var out []cwltypes.LogGroup
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeLogGroups page: %w", err)
		}
		out = append(out, page.LogGroups...)
	}
	return out, nil
}

func (o *LogOptimizer) excluded(name string) bool {
	for _, re := range o.exclude {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// assess returns the findings for one group: at most one retention finding
// and at most one deletion finding.
func (o *LogOptimizer) assess(ctx context.Context, client LogsAPI, group cwltypes.LogGroup) []logFinding {
	now := o.now()
	name := aws.ToString(group.LogGroupName)
	storedGB := float64(aws.ToInt64(group.StoredBytes)) / (1 << 30)
	created := time.UnixMilli(aws.ToInt64(group.CreationTime))
	ageDays := now.Sub(created).Hours() / 24
	current := aws.ToInt32(group.RetentionInDays)

	cost := storedGB * LogStorageCostPerGBMonth
	if current == 0 {
		// Without retention the group keeps growing.
		cost *= max(1, ageDays/30*0.1)
	}

	var findings []logFinding
	suggested := o.policy.SuggestRetention(name)
	switch {
	case current == 0:
		findings = append(findings, logFinding{
			issue:     IssueNoRetention,
			detail:    fmt.Sprintf("no retention policy, %.2f GB", storedGB),
			retention: suggested,
		})
	case current > excessiveRetentionDays && suggested < current:
		findings = append(findings, logFinding{
			issue:     IssueExcessiveRetention,
			detail:    fmt.Sprintf("retention %d days, %.2f GB", current, storedGB),
			retention: suggested,
			savings:   cost * 0.3,
		})
	}

	last, ok, err := o.lastEvent(ctx, client, name)
	switch {
	case err != nil:
		o.logger.Warn("read last event time failed", "log_group", name, "error", err)
	case ok:
		if idle := now.Sub(last).Hours() / 24; idle > float64(o.policy.EmptyGroupDays) {
			findings = append(findings, logFinding{
				issue:   IssueInactiveGroup,
				detail:  fmt.Sprintf("no events for %d days", int(idle)),
				savings: cost,
			})
		}
	case ageDays > float64(o.policy.EmptyGroupDays) && storedGB < 0.01:
		findings = append(findings, logFinding{
			issue:   IssueEmptyGroup,
			detail:  fmt.Sprintf("empty, %d days old", int(ageDays)),
			savings: cost,
		})
	}

	// Deleting the group makes a retention fix moot.
	if o.policy.DeleteEmpty && len(findings) > 0 {
		if del := findings[len(findings)-1]; del.issue == IssueInactiveGroup || del.issue == IssueEmptyGroup {
			return []logFinding{del}
		}
	}
	return findings
}

// lastEvent returns the newest event time across the group's streams. The
// second result is false when no stream has recorded an event.
func (o *LogOptimizer) lastEvent(ctx context.Context, client LogsAPI, group string) (time.Time, bool, error) {
	out, err := client.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(group),
		OrderBy:      cwltypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(1),
	})
	if err != nil {
		return time.Time{}, false, err
	}
	for _, stream := range out.LogStreams {
		if ts := aws.ToInt64(stream.LastEventTimestamp); ts > 0 {
			return time.UnixMilli(ts), true, nil
		}
	}
	return time.Time{}, false, nil
}

func (o *LogOptimizer) apply(ctx context.Context, client LogsAPI, region, group string, f logFinding) Entry {
	entry := Entry{
		Region:  region,
		ID:      group,
		Detail:  f.detail,
		Outcome: OutcomeReported,
		Reason:  string(f.issue),
	}

	switch f.issue {
	case IssueNoRetention, IssueExcessiveRetention:
		entry.Action = fmt.Sprintf("set retention to %d days", f.retention)
		if !o.policy.SetPolicies {
			return entry
		}
		entry.Outcome, entry.Reason = OutcomeRequested, ""
		if err := o.setRetention(ctx, client, group, f.retention); err != nil {
			entry.Outcome, entry.Reason = OutcomeFailed, err.Error()
		}
	default:
		entry.Action = "delete log group"
		if !o.policy.DeleteEmpty {
			return entry
		}
		entry.Outcome, entry.Reason = OutcomeRequested, ""
		if err := o.deleteGroup(ctx, client, group); err != nil {
			entry.Outcome, entry.Reason = OutcomeFailed, err.Error()
		}
	}
	return entry
}

// CloudWatch Logs has no DryRun parameter, so in dry run changes are only
// logged.
func (o *LogOptimizer) setRetention(ctx context.Context, client LogsAPI, group string, days int32) error {
	if o.dryRun {
		o.logger.Info("DRY RUN: would set log retention", "log_group", group, "days", days)
		return nil
	}
	o.logger.Info("setting log retention", "log_group", group, "days", days)
	_, err := client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(group),
		RetentionInDays: aws.Int32(days),
	})
	if err != nil {
		o.logger.Error("set log retention failed", "log_group", group, "error", err)
	}
	return err
}

func (o *LogOptimizer) deleteGroup(ctx context.Context, client LogsAPI, group string) error {
	if o.dryRun {
		o.logger.Info("DRY RUN: would delete log group", "log_group", group)
		return nil
	}
	o.logger.Info("deleting log group", "log_group", group)
	_, err := client.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{LogGroupName: aws.String(group)})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		o.logger.Info("log group already deleted", "log_group", group)
		return nil
	}
	o.logger.Error("delete log group failed", "log_group", group, "error", err)
	return err
}
