package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// EC2API is the subset of the EC2 client used to stop instances.
// It satisfies ec2.DescribeInstancesAPIClient for the SDK paginator.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2svc.DescribeInstancesInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2svc.StopInstancesInput, optFns ...func(*ec2svc.Options)) (*ec2svc.StopInstancesOutput, error)
}

// EC2Stopper stops or hibernates running instances carrying the auto-off tag.
type EC2Stopper struct {
	client func(region string) EC2API
	opts   Options
	logger *slog.Logger
}

// NewEC2Stopper creates a stopper. client returns the EC2 client of a region.
func NewEC2Stopper(client func(region string) EC2API, opts Options, logger *slog.Logger) *EC2Stopper {
	return &EC2Stopper{client: client, opts: opts, logger: logger}
}

// Run scans every region and stops the matching instances. A region that
// cannot be listed is reported in the returned error after the remaining
// regions have been processed.
func (s *EC2Stopper) Run(ctx context.Context, regions []string) (*Summary, error) {
	summary := &Summary{Title: "EC2 auto-off summary", DryRun: s.opts.DryRun}
	action := "stopping"
	if s.opts.Hibernate {
		action = "hibernating"
	}

	var errs []error
	for _, region := range regions {
		s.logger.Info("scanning region for tagged instances",
			"region", region,
			"tag", s.opts.TagKey+"="+s.opts.TagValue,
		)
		client := s.client(region)

		ids, err := s.runningTagged(ctx, client)
		if err != nil {
			s.logger.Error("list instances failed", "region", region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", region, err))
			continue
		}
		s.logger.Info("matching running instances", "region", region, "count", len(ids))

		for _, inst := range ids {
			s.logger.Info("stopping instance", "region", region, "instance_id", inst.id, "hibernate", s.opts.Hibernate)
			outcome := OutcomeRequested
			if err := s.stop(ctx, client, inst.id); err != nil {
				s.logger.Error("stop instance failed", "region", region, "instance_id", inst.id, "error", err)
				outcome = OutcomeFailed
			}
			summary.Entries = append(summary.Entries, Entry{
				Region:  region,
				ID:      inst.id,
				Class:   inst.class,
				Action:  action,
				Outcome: outcome,
			})
		}
	}

	return summary, errors.Join(errs...)
}

type ec2Instance struct {
	id    string
	class string
}

func (s *EC2Stopper) runningTagged(ctx context.Context, client EC2API) ([]ec2Instance, error) {
	input := &ec2svc.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
			{
				Name:   aws.String("tag:" + s.opts.TagKey),
				Values: []string{s.opts.TagValue},
			},
		},
	}

	paginator := ec2svc.NewDescribeInstancesPaginator(client, input)

	var out []ec2Instance
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances page: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				out = append(out, ec2Instance{
					id:    aws.ToString(inst.InstanceId),
					class: string(inst.InstanceType),
				})
			}
		}
	}
	return out, nil
}

// stop issues StopInstances. In dry run the call carries DryRun=true, and
// the DryRunOperation error AWS answers with means the stop would succeed.
func (s *EC2Stopper) stop(ctx context.Context, client EC2API, id string) error {
	input := &ec2svc.StopInstancesInput{InstanceIds: []string{id}}
	if s.opts.Hibernate {
		input.Hibernate = aws.Bool(true)
	}
	if s.opts.DryRun {
		input.DryRun = aws.Bool(true)
	}

	_, err := client.StopInstances(ctx, input)
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "DryRunOperation" {
		return nil
	}
	return err
}
