package models

import (
	"fmt"
	"time"
)

// Violation pairs a sample with the threshold rule it breached. A
// sample that breaches several rules produces one violation per rule.
type Violation struct {
	// Sample is the reading that breached the rule
	Sample Sample `json:"sample"`

	// Metric, Op, Threshold and Severity are copied from the breached
	// rule so the violation stays self-contained after rules are gone
	Metric    string   `json:"metric"`
	Op        string   `json:"op"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`

	// Message is a human-readable description of the breach
	Message string `json:"message"`
}

// ObservedValue renders the sample value, preferring the categorical
// display form when the source provided one
func (v *Violation) ObservedValue() string {
	if v.Sample.Display != "" {
		return v.Sample.Display
	}
	return trimFloat(v.Sample.Value)
}

// Report is the ordered set of violations produced by one run. It is
// owned by the run that built it and discarded after delivery.
type Report struct {
	// RunID uniquely identifies the run that produced this report
	RunID string `json:"run_id"`

	// Instance names the monitoring instance (sessions, urls, connectors)
	Instance string `json:"instance"`

	// GeneratedAt is when the report was assembled
	GeneratedAt time.Time `json:"generated_at"`

	// Violations in final rendering order
	Violations []Violation `json:"violations"`

	// AllClear is set when the run produced no violations
	AllClear bool `json:"all_clear"`
}

// NewReport creates a report for one run, flagging it all-clear when
// the violation list is empty
func NewReport(runID, instance string, violations []Violation) *Report {
	return &Report{
		RunID:       runID,
		Instance:    instance,
		GeneratedAt: time.Now().UTC(),
		Violations:  violations,
		AllClear:    len(violations) == 0,
	}
}

// Subject builds the alert mail subject line for this report
func (r *Report) Subject() string {
	if r.AllClear {
		return fmt.Sprintf("OK: %s monitoring - all clear", r.Instance)
	}
	return fmt.Sprintf("ALERT: %s monitoring - %d issue(s) found", r.Instance, len(r.Violations))
}

// trimFloat renders a float without a trailing ".000000" for whole
// numbers, matching how thresholds are written in configuration
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// FormatValue is the shared float rendering used by reports and rules
func FormatValue(f float64) string {
	return trimFloat(f)
}
