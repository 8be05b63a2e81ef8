// Package monitor implements the budget evaluation cycle: thresholds are
// derived from the budget, the month-to-date spend is classified into a
// tier, a report is formatted and sent, and remediation actions run when
// the tier authorizes them.
package monitor

import "github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"

// CalculateThresholds derives the absolute cutoff of every tier.
// Percentages are used as given: a misordered set is not rejected or sorted.
func CalculateThresholds(budget float64, pct model.Percentages) model.ThresholdSet {
	return model.ThresholdSet{
		Warning:   threshold(model.LevelWarning, budget, pct.Warning),
		Critical:  threshold(model.LevelCritical, budget, pct.Critical),
		Emergency: threshold(model.LevelEmergency, budget, pct.Emergency),
	}
}

func threshold(level model.AlertLevel, budget, pct float64) model.Threshold {
	return model.Threshold{
		Level:      level,
		Percentage: pct,
		Amount:     budget * (pct / 100),
	}
}

// Classify returns the most severe tier whose cutoff spend has reached.
// Tiers are checked from emergency down, and a spend equal to a cutoff
// belongs to that tier. With a zero budget every cutoff is zero, so any
// non-negative spend is an emergency.
func Classify(spend float64, ts model.ThresholdSet) model.AlertLevel {
	for _, th := range ts.Descending() {
		if spend >= th.Amount {
			return th.Level
		}
	}
	return model.LevelNone
}
