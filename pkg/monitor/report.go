package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// RemediationSuggestions are appended to critical and emergency reports.
var RemediationSuggestions = []string{
	"Stop non-essential EC2 instances",
	"Review running services",
	"Check for unused resources",
}

// ReportInput is everything the report is built from.
type ReportInput struct {
	Level      model.AlertLevel
	Spend      float64
	Budget     float64
	Currency   string
	Thresholds model.ThresholdSet
	AccountID  string
	AsOf       time.Time
}

// Subject returns the one-line title of a report.
func Subject(level model.AlertLevel) string {
	if level == model.LevelNone {
		return "AWS Budget within safe limits"
	}
	return fmt.Sprintf("AWS Budget %s Alert", strings.ToUpper(level.String()))
}

// FormatReport renders the multi-line report handed to notifiers.
func FormatReport(in ReportInput) string {
	var b strings.Builder

	prefix := "OK"
	if in.Level != model.LevelNone {
		prefix = strings.ToUpper(in.Level.String())
	}
	fmt.Fprintf(&b, "%s - %s\n", prefix, Subject(in.Level))
	if in.AccountID != "" {
		fmt.Fprintf(&b, "Account: %s\n", in.AccountID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Current spend: %s\n", money(in.Currency, in.Spend))
	fmt.Fprintf(&b, "Monthly budget: %s\n", money(in.Currency, in.Budget))
	fmt.Fprintf(&b, "Usage: %.1f%% of budget\n", model.PercentUsed(in.Spend, in.Budget))

	if th, ok := in.Thresholds.For(in.Level); ok {
		fmt.Fprintf(&b, "Threshold: %.0f%% (%s)\n", th.Percentage, money(in.Currency, th.Amount))
	} else {
		headroom := Headroom(in.Spend, in.Thresholds)
		if len(headroom) > 0 {
			b.WriteString("\nHeadroom:\n")
			for _, h := range headroom {
				fmt.Fprintf(&b, "- %s threshold (%s): %s remaining\n",
					titleCase(h.Threshold.Level.String()),
					money(in.Currency, h.Threshold.Amount),
					money(in.Currency, h.Remaining),
				)
			}
		}
	}

	fmt.Fprintf(&b, "\nMonth-to-date as of %s\n", in.AsOf.UTC().Format(time.DateOnly))

	if in.Level.AtLeast(model.LevelCritical) {
		b.WriteString("\nConsider running cost-saving measures:\n")
		for _, s := range RemediationSuggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// HeadroomLine is the remaining distance from spend to one tier's cutoff.
type HeadroomLine struct {
	Threshold model.Threshold
	Remaining float64
}

// Headroom lists the tiers not yet reached, least severe first.
func Headroom(spend float64, ts model.ThresholdSet) []HeadroomLine {
	var out []HeadroomLine
	for _, th := range []model.Threshold{ts.Warning, ts.Critical, ts.Emergency} {
		if remaining := th.Amount - spend; remaining > 0 {
			out = append(out, HeadroomLine{Threshold: th, Remaining: remaining})
		}
	}
	return out
}

func money(currency string, amount float64) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
