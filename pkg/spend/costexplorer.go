package spend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// CostMetric is the Cost Explorer metric summed into the spend.
const CostMetric = "BlendedCost"

// CostExplorerAPI is the subset of the Cost Explorer client we use.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *ce.GetCostAndUsageInput, optFns ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error)
}

// CostExplorer reads month-to-date spend from AWS Cost Explorer.
type CostExplorer struct {
	api         CostExplorerAPI
	credentials aws.CredentialsProvider
	now         func() time.Time
}

// NewCostExplorer creates a provider from an AWS config. Cost Explorer is a
// global service only reachable in us-east-1, so the region is pinned.
func NewCostExplorer(cfg aws.Config) *CostExplorer {
	ceCfg := cfg.Copy()
	ceCfg.Region = "us-east-1"
	return &CostExplorer{
		api:         ce.NewFromConfig(ceCfg),
		credentials: cfg.Credentials,
		now:         time.Now,
	}
}

// NewCostExplorerWithAPI creates a provider with a custom API implementation (for testing).
func NewCostExplorerWithAPI(api CostExplorerAPI, now func() time.Time) *CostExplorer {
	if now == nil {
		now = time.Now
	}
	return &CostExplorer{api: api, now: now}
}

// MonthToDate sums the blended cost of every service from the first of the
// current month through today. Services are returned sorted by cost,
// most expensive first.
func (c *CostExplorer) MonthToDate(ctx context.Context) (*model.Spend, error) {
	if c.credentials != nil {
		if _, err := c.credentials.Retrieve(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCredentials, err)
		}
	}

	start, end := model.MonthBounds(c.now())
	serviceTotals := make(map[string]float64)
	currency := ""

	var nextToken *string
	for {
		out, err := c.api.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(start.Format(time.DateOnly)),
				End:   aws.String(end.Format(time.DateOnly)),
			},
			Granularity: cetypes.GranularityMonthly,
			Metrics:     []string{CostMetric},
			GroupBy: []cetypes.GroupDefinition{
				{
					Key:  aws.String("SERVICE"),
					Type: cetypes.GroupDefinitionTypeDimension,
				},
			},
			NextPageToken: nextToken,
		})
		if err != nil {
			return nil, classify("GetCostAndUsage", err)
		}

		for _, result := range out.ResultsByTime {
			for _, group := range result.Groups {
				metric, ok := group.Metrics[CostMetric]
				if !ok {
					continue
				}
				service := "Unknown"
				if len(group.Keys) > 0 {
					service = group.Keys[0]
				}
				serviceTotals[service] += parseCostFloat(metric.Amount)
				if unit := aws.ToString(metric.Unit); unit != "" {
					currency = unit
				}
			}
		}

		if out.NextPageToken == nil {
			break
		}
		nextToken = out.NextPageToken
	}

	var total float64
	services := make([]model.ServiceCost, 0, len(serviceTotals))
	for service, amount := range serviceTotals {
		total += amount
		services = append(services, model.ServiceCost{Service: service, Amount: amount})
	}
	sort.Slice(services, func(i, j int) bool {
		if services[i].Amount == services[j].Amount {
			return services[i].Service < services[j].Service
		}
		return services[i].Amount > services[j].Amount
	})

	if currency == "" {
		currency = "USD"
	}

	return &model.Spend{
		Amount:      total,
		Currency:    currency,
		PeriodStart: start,
		PeriodEnd:   end,
		Services:    services,
	}, nil
}

func parseCostFloat(s *string) float64 {
	if s == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(*s, 64)
	return v
}
