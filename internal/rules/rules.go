// Package rules matches observed samples against configured threshold
// rules and emits one violation per breached rule.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"oapmon/internal/models"
)

// Op is a comparison operator applied to a sample value
type Op string

const (
	OpGreater      Op = "gt"
	OpGreaterEqual Op = "ge"
	OpLess         Op = "lt"
	OpLessEqual    Op = "le"
	OpEqual        Op = "eq"
	OpNotEqual     Op = "ne"
)

// Rule errors
var (
	ErrUnknownOp       = errors.New("unknown comparison operator")
	ErrEmptyRuleMetric = errors.New("rule metric cannot be empty")
	ErrInvalidSeverity = errors.New("invalid rule severity")
)

// Rule is one configured threshold: when a sample's metric matches and
// the comparison holds against Value, the rule is breached. Rules are
// loaded at startup and read-only during a run.
type Rule struct {
	Metric   string          `yaml:"metric"`
	Op       Op              `yaml:"op"`
	Value    float64         `yaml:"value"`
	Severity models.Severity `yaml:"severity"`

	// Unit is a display-only suffix (e.g. "%", "s"); threshold values
	// themselves are unit-agnostic
	Unit string `yaml:"unit,omitempty"`
}

// Validate checks the rule is well-formed
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Metric) == "" {
		return ErrEmptyRuleMetric
	}
	if !r.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	switch r.Op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, r.Op)
	}
}

// Holds reports whether the comparison is true for the observed value
func (r *Rule) Holds(value float64) bool {
	switch r.Op {
	case OpGreater:
		return value > r.Value
	case OpGreaterEqual:
		return value >= r.Value
	case OpLess:
		return value < r.Value
	case OpLessEqual:
		return value <= r.Value
	case OpEqual:
		return value == r.Value
	case OpNotEqual:
		return value != r.Value
	default:
		return false
	}
}

// Symbol returns the operator in conventional notation for messages
func (o Op) Symbol() string {
	switch o {
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	default:
		return string(o)
	}
}

// Set is the full rule set for one monitoring instance, indexed by
// metric name with per-metric rules ordered by descending severity
type Set struct {
	byMetric map[string][]Rule
}

// NewSet validates and indexes the given rules
func NewSet(list []Rule) (*Set, error) {
	s := &Set{byMetric: make(map[string][]Rule, len(list))}
	for i := range list {
		r := list[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Metric, err)
		}
		metric := strings.ToLower(strings.TrimSpace(r.Metric))
		r.Metric = metric
		s.byMetric[metric] = append(s.byMetric[metric], r)
	}
	// Evaluate in descending severity order; rules of equal severity
	// keep configuration order
	for metric := range s.byMetric {
		sort.SliceStable(s.byMetric[metric], func(i, j int) bool {
			return s.byMetric[metric][i].Severity.Rank() > s.byMetric[metric][j].Severity.Rank()
		})
	}
	return s, nil
}

// Len returns the number of indexed rules
func (s *Set) Len() int {
	n := 0
	for _, rs := range s.byMetric {
		n += len(rs)
	}
	return n
}

// Evaluate applies every matching rule to every sample. A sample
// breaching several rules (warning and critical) yields one violation
// per breached rule; severity de-duplication is intentionally absent.
// Rules with no matching sample are ignored.
func (s *Set) Evaluate(samples []models.Sample) []models.Violation {
	var violations []models.Violation
	for _, sample := range samples {
		matching, ok := s.byMetric[sample.Metric]
		if !ok {
			continue
		}
		for _, rule := range matching {
			if !rule.Holds(sample.Value) {
				continue
			}
			violations = append(violations, models.Violation{
				Sample:    sample,
				Metric:    rule.Metric,
				Op:        rule.Op.Symbol(),
				Threshold: rule.Value,
				Severity:  rule.Severity,
				Message:   breachMessage(sample, rule),
			})
		}
	}
	return violations
}

// breachMessage builds the human-readable description of one breach,
// e.g. "ORCL1/acme: session_usage 97% >= 95%"
func breachMessage(sample models.Sample, rule Rule) string {
	observed := sample.Display
	if observed == "" {
		observed = models.FormatValue(sample.Value) + rule.Unit
	}
	if sample.Metric == models.MetricUnreachable {
		return fmt.Sprintf("%s: unreachable (%s)", sample.Source, observed)
	}
	return fmt.Sprintf("%s: %s %s %s %s%s",
		sample.Source, sample.Metric, observed,
		rule.Op.Symbol(), models.FormatValue(rule.Value), rule.Unit)
}
