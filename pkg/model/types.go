package model

import (
	"fmt"
	"strings"
	"time"
)

// AlertLevel is the severity tier assigned to a spend observation.
// Levels are totally ordered: LevelNone < LevelWarning < LevelCritical < LevelEmergency.
type AlertLevel int

const (
	LevelNone      AlertLevel = iota // Below the lowest threshold
	LevelWarning                     // Alert only
	LevelCritical                    // Alert and remediation
	LevelEmergency                   // Budget reached
)

// String returns the lower-case tier name.
func (l AlertLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MarshalText encodes the level by name.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Compare returns -1, 0 or +1 depending on whether l is less severe than,
// equal to, or more severe than other.
func (l AlertLevel) Compare(other AlertLevel) int {
	switch {
	case l < other:
		return -1
	case l > other:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other or more.
func (l AlertLevel) AtLeast(other AlertLevel) bool {
	return l.Compare(other) >= 0
}

// ParseAlertLevel converts a tier name to its AlertLevel.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return LevelNone, nil
	case "warning":
		return LevelWarning, nil
	case "critical":
		return LevelCritical, nil
	case "emergency":
		return LevelEmergency, nil
	}
	return LevelNone, fmt.Errorf("unknown alert level %q", s)
}

// Budget is the monthly spending limit for the account.
type Budget struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PercentUsed returns spend as a percentage of budget, or 0 when the
// budget is not positive.
func PercentUsed(spend, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return (spend / budget) * 100
}

// Percentages holds the configured tier percentages of the budget.
type Percentages struct {
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Emergency float64 `json:"emergency"`
}

// DefaultPercentages are the tier percentages used when none are configured.
var DefaultPercentages = Percentages{Warning: 75, Critical: 90, Emergency: 100}

// Ordered reports whether warning <= critical <= emergency.
func (p Percentages) Ordered() bool {
	return p.Warning <= p.Critical && p.Critical <= p.Emergency
}

// Threshold is the absolute cutoff of a single tier.
type Threshold struct {
	Level      AlertLevel `json:"level"`
	Percentage float64    `json:"percentage"`
	Amount     float64    `json:"amount"`
}

// ThresholdSet holds the three tiers derived from a budget.
type ThresholdSet struct {
	Warning   Threshold `json:"warning"`
	Critical  Threshold `json:"critical"`
	Emergency Threshold `json:"emergency"`
}

// Descending returns the tiers in evaluation order, most severe first.
func (ts ThresholdSet) Descending() []Threshold {
	return []Threshold{ts.Emergency, ts.Critical, ts.Warning}
}

// For returns the threshold of the given level. The second result is false
// for LevelNone.
func (ts ThresholdSet) For(level AlertLevel) (Threshold, bool) {
	switch level {
	case LevelWarning:
		return ts.Warning, true
	case LevelCritical:
		return ts.Critical, true
	case LevelEmergency:
		return ts.Emergency, true
	}
	return Threshold{}, false
}

// ServiceCost is the month-to-date cost of a single AWS service.
type ServiceCost struct {
	Service string  `json:"service"`
	Amount  float64 `json:"amount"`
}

// Spend is the observed month-to-date cost for one evaluation cycle.
type Spend struct {
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Services    []ServiceCost `json:"services,omitempty"`
}

// Action is a remediation command that may run when a tier is reached.
type Action struct {
	Name        string   `json:"name" yaml:"name"`
	Command     []string `json:"command" yaml:"command"`
	Description string   `json:"description" yaml:"description"`
}

// ActionPolicy maps alert levels to their ordered remediation actions.
// Only critical and emergency tiers carry actions; warning is alert-only.
type ActionPolicy struct {
	Critical  []Action `json:"critical" yaml:"critical"`
	Emergency []Action `json:"emergency" yaml:"emergency"`
}

// For returns the actions configured for level.
func (p ActionPolicy) For(level AlertLevel) []Action {
	switch level {
	case LevelCritical:
		return p.Critical
	case LevelEmergency:
		return p.Emergency
	}
	return nil
}

// ActionStatus is the outcome of an attempted action.
type ActionStatus string

const (
	StatusDryRun  ActionStatus = "dry-run"
	StatusSuccess ActionStatus = "success"
	StatusFailed  ActionStatus = "failed"
	StatusTimeout ActionStatus = "timeout"
	StatusError   ActionStatus = "error"
)

// ActionResult records what happened to one authorized action.
type ActionResult struct {
	Action   Action        `json:"action"`
	Status   ActionStatus  `json:"status"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// MonthBounds returns the first day of the month containing now and the
// exclusive end date covering today, both at UTC midnight.
func MonthBounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return start, end
}
