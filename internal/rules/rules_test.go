package rules

import (
	"testing"
	"time"

	"oapmon/internal/models"
)

func sample(source, metric string, value float64) models.Sample {
	return models.Sample{
		Source:    source,
		Metric:    metric,
		Value:     value,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRuleHolds(t *testing.T) {
	tests := []struct {
		name  string
		op    Op
		value float64
		input float64
		want  bool
	}{
		{"gt true", OpGreater, 80, 81, true},
		{"gt false on equal", OpGreater, 80, 80, false},
		{"ge true on equal", OpGreaterEqual, 80, 80, true},
		{"ge false", OpGreaterEqual, 80, 79, false},
		{"lt true", OpLess, 10, 9, true},
		{"lt false", OpLess, 10, 10, false},
		{"le true on equal", OpLessEqual, 10, 10, true},
		{"eq true", OpEqual, 200, 200, true},
		{"eq false", OpEqual, 200, 404, false},
		{"ne true", OpNotEqual, 200, 503, true},
		{"ne false", OpNotEqual, 200, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{Metric: "m", Op: tt.op, Value: tt.value, Severity: models.SeverityWarning}
			if got := r.Holds(tt.input); got != tt.want {
				t.Errorf("Holds(%v) with %s %v = %v, want %v", tt.input, tt.op, tt.value, got, tt.want)
			}
		})
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid", Rule{Metric: "session_usage", Op: OpGreaterEqual, Value: 80, Severity: models.SeverityWarning}, false},
		{"empty metric", Rule{Op: OpGreaterEqual, Value: 80, Severity: models.SeverityWarning}, true},
		{"unknown op", Rule{Metric: "m", Op: "between", Value: 1, Severity: models.SeverityInfo}, true},
		{"bad severity", Rule{Metric: "m", Op: OpEqual, Value: 1, Severity: "fatal"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// A violation is produced for a sample and rule if and only if the
// rule's metric matches and the comparison holds.
func TestEvaluateMatchOnly(t *testing.T) {
	set, err := NewSet([]Rule{
		{Metric: "session_usage", Op: OpGreaterEqual, Value: 80, Severity: models.SeverityWarning},
		{Metric: "task_errors", Op: OpGreater, Value: 0, Severity: models.SeverityCritical},
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	samples := []models.Sample{
		sample("db1", "session_usage", 85),  // matches, breaches
		sample("db2", "session_usage", 40),  // matches, holds is false
		sample("db3", "queue_free_ratio", 0), // no matching rule
	}

	violations := set.Evaluate(samples)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if v.Sample.Source != "db1" || v.Metric != "session_usage" || v.Threshold != 80 {
		t.Errorf("unexpected violation: %+v", v)
	}
	if v.Severity != models.SeverityWarning {
		t.Errorf("expected warning severity, got %s", v.Severity)
	}
}

// A sample breaching a warning and a critical rule yields exactly two
// violations, critical first.
func TestEvaluateDoubleBreach(t *testing.T) {
	set, err := NewSet([]Rule{
		{Metric: "session_usage", Op: OpGreaterEqual, Value: 80, Severity: models.SeverityWarning, Unit: "%"},
		{Metric: "session_usage", Op: OpGreaterEqual, Value: 95, Severity: models.SeverityCritical, Unit: "%"},
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	violations := set.Evaluate([]models.Sample{sample("db1", "session_usage", 97)})
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
	if violations[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical first, got %s", violations[0].Severity)
	}
	if violations[1].Severity != models.SeverityWarning {
		t.Errorf("expected warning second, got %s", violations[1].Severity)
	}
}

func TestEvaluateUnreachable(t *testing.T) {
	set, err := NewSet([]Rule{
		{Metric: models.MetricUnreachable, Op: OpEqual, Value: 1, Severity: models.SeverityCritical},
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	s := sample("https://example.com/metrics", models.MetricUnreachable, 1)
	s.Display = "Timeout"

	violations := set.Evaluate([]models.Sample{s})
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if got := violations[0].Message; got != "https://example.com/metrics: unreachable (Timeout)" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestEvaluateEmptyRules(t *testing.T) {
	set, err := NewSet(nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if got := set.Evaluate([]models.Sample{sample("db1", "session_usage", 99)}); len(got) != 0 {
		t.Errorf("expected no violations, got %d", len(got))
	}
}

func TestNewSetRejectsInvalidRule(t *testing.T) {
	if _, err := NewSet([]Rule{{Metric: "m", Op: "~", Value: 1, Severity: models.SeverityInfo}}); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}
