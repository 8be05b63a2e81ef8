// Package metrics exposes the outcome of an evaluation cycle as Prometheus
// gauges. A cycle is a short-lived batch job, so the values are pushed to a
// Pushgateway instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the gauges of a single cycle on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	Spend         prometheus.Gauge
	Budget        prometheus.Gauge
	PercentUsed   prometheus.Gauge
	AlertLevel    prometheus.Gauge
	Thresholds    *prometheus.GaugeVec
	ActionResults *prometheus.GaugeVec
	LastSuccess   prometheus.Gauge
}

// NewRecorder registers all cycle gauges on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Spend: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_month_to_date_spend",
			Help: "Month-to-date AWS spend in the billing currency",
		}),
		Budget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_monthly_budget",
			Help: "Configured monthly budget",
		}),
		PercentUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_budget_used_percent",
			Help: "Share of the monthly budget already spent",
		}),
		AlertLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_alert_level",
			Help: "Alert tier of the last cycle (0=none, 1=warning, 2=critical, 3=emergency)",
		}),
		Thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_threshold_amount",
				Help: "Absolute spend cutoff of each tier",
			},
			[]string{"level"},
		),
		ActionResults: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_action_results",
				Help: "Remediation actions of the last cycle by outcome",
			},
			[]string{"status"},
		),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_last_success_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}),
	}

	r.registry.MustRegister(
		r.Spend,
		r.Budget,
		r.PercentUsed,
		r.AlertLevel,
		r.Thresholds,
		r.ActionResults,
		r.LastSuccess,
	)
	return r
}

// Observe copies a finished cycle into the gauges.
func (r *Recorder) Observe(spend, budget, percentUsed float64, level model.AlertLevel, ts model.ThresholdSet, results []model.ActionResult) {
	r.Spend.Set(spend)
	r.Budget.Set(budget)
	r.PercentUsed.Set(percentUsed)
	r.AlertLevel.Set(float64(level))

	for _, th := range ts.Descending() {
		r.Thresholds.WithLabelValues(th.Level.String()).Set(th.Amount)
	}

	for _, status := range []model.ActionStatus{
		model.StatusDryRun, model.StatusSuccess, model.StatusFailed, model.StatusTimeout, model.StatusError,
	} {
		r.ActionResults.WithLabelValues(string(status)).Set(0)
	}
	for _, res := range results {
		r.ActionResults.WithLabelValues(string(res.Status)).Inc()
	}

	r.LastSuccess.SetToCurrentTime()
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Push replaces the job's metric group on the Pushgateway at url.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
