// Package remediation cuts AWS spend. The EC2 and RDS stoppers shut down
// tagged instances, the snapshot cleaner deletes EBS snapshots past their
// retention, and the log optimizer caps CloudWatch log retention. Each one
// scans a list of regions and returns a Summary that is logged and sent to
// the alert notifiers.
package remediation

import (
	"fmt"
	"strings"
)

// Outcome is the result of acting on a single resource.
type Outcome string

const (
	OutcomeRequested Outcome = "requested"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeReported  Outcome = "reported" // found, no action configured
)

// Options select resources and control how they are stopped.
type Options struct {
	TagKey    string
	TagValue  string
	Hibernate bool
	DryRun    bool

	SkipMultiAZ          bool
	SkipReadReplicas     bool
	SkipClusterInstances bool
}

// Entry records what happened to one resource.
type Entry struct {
	Region  string  `json:"region"`
	ID      string  `json:"id"`
	Class   string  `json:"class,omitempty"`
	Engine  string  `json:"engine,omitempty"`
	Detail  string  `json:"detail,omitempty"`
	Action  string  `json:"action"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Summary collects the entries of one remediation run.
type Summary struct {
	Title            string
	DryRun           bool
	Entries          []Entry
	EstimatedSavings float64
	Notes            []string
}

// Count returns the number of entries with the given outcome.
func (s *Summary) Count(outcome Outcome) int {
	n := 0
	for _, e := range s.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// Err reports failed entries as an error, so a remediation triggered by the
// monitor shows up as a failed action.
func (s *Summary) Err() error {
	failed := s.Count(OutcomeFailed)
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d resources failed", strings.ToLower(s.Title), failed, len(s.Entries))
}

// Text renders the summary for chat webhooks.
func (s *Summary) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	if s.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString(":\n")

	if s.EstimatedSavings > 0 {
		label := "Estimated monthly savings"
		if s.DryRun {
			label = "Potential monthly savings"
		}
		fmt.Fprintf(&b, "\n%s: $%.2f\n\n", label, s.EstimatedSavings)
	}

	for _, e := range s.Entries {
		id := e.ID
		var extra []string
		for _, v := range []string{e.Class, e.Detail} {
			if v != "" {
				extra = append(extra, v)
			}
		}
		if len(extra) > 0 {
			id = fmt.Sprintf("%s (%s)", e.ID, strings.Join(extra, ", "))
		}
		state := string(e.Outcome)
		if e.Reason != "" {
			state = e.Reason
		}
		fmt.Fprintf(&b, "- %s %s: %s (%s)\n", e.Region, id, e.Action, state)
	}

	if len(s.Notes) > 0 {
		b.WriteString("\n")
		for _, n := range s.Notes {
			b.WriteString(n + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
