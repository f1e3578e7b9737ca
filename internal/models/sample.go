package models

import (
	"errors"
	"strings"
	"time"
)

// Severity classifies how serious a threshold breach is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Well-known metric names shared between sources and rules.
const (
	// MetricUnreachable is emitted in place of a real reading when a
	// target could not be fetched at all.
	MetricUnreachable = "unreachable"
)

// Sample is one observed reading for a monitored entity, captured
// during a single run. Samples are created fresh each cycle and never
// referenced across runs.
type Sample struct {
	// Source identifies the monitored entity: a client/database pair,
	// a URL, or a connector task
	Source string `json:"source"`

	// Metric is the name rules match against, e.g. "session_usage",
	// "http_status", "task_errors"
	Metric string `json:"metric"`

	// Value is the observed numeric reading
	Value float64 `json:"value"`

	// Display optionally overrides how Value is rendered in reports,
	// e.g. "Timeout" or "Connection Error" for failed URL checks
	Display string `json:"display,omitempty"`

	// Labels carries source metadata copied from the metrics backend
	// (database, client, env, cluster, connector, server)
	Labels map[string]string `json:"labels,omitempty"`

	// Timestamp is when the reading was captured
	Timestamp time.Time `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptySource   = errors.New("sample source cannot be empty")
	ErrEmptyMetric   = errors.New("sample metric cannot be empty")
	ErrZeroTimestamp = errors.New("sample timestamp cannot be zero")
)

// Validate checks that the sample has all required fields
func (s *Sample) Validate() error {
	if s.Source == "" {
		return ErrEmptySource
	}
	if s.Metric == "" {
		return ErrEmptyMetric
	}
	if s.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// Normalize trims identifier fields and lower-cases the metric name so
// rule matching is not sensitive to configuration whitespace
func (s *Sample) Normalize() {
	s.Source = strings.TrimSpace(s.Source)
	s.Metric = strings.ToLower(strings.TrimSpace(s.Metric))
	s.Display = strings.TrimSpace(s.Display)
}

// Env returns the environment label, or "" when the sample has none
func (s *Sample) Env() string {
	if s.Labels == nil {
		return ""
	}
	return s.Labels["env"]
}

// IsProduction reports whether the sample belongs to a production
// environment, matching the reporting split used in alert mails
func (s *Sample) IsProduction() bool {
	return strings.Contains(strings.ToLower(s.Env()), "prd")
}

// Rank orders severities from least to most severe
func (sev Severity) Rank() int {
	switch sev {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// IsValid checks if the severity level is valid
func (sev Severity) IsValid() bool {
	switch sev {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}
