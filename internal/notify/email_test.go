package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"oapmon/internal/models"
)

func sampleViolation() models.Violation {
	return models.Violation{
		Sample: models.Sample{
			Source:    "ORCL1",
			Metric:    "session_usage",
			Value:     97,
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Metric:   "session_usage",
		Op:       ">=",
		Severity: models.SeverityCritical,
		Message:  "ORCL1: session_usage 97 >= 95",
	}
}

func TestEmailSendsViolationReport(t *testing.T) {
	var captured *gomail.Message
	e := &Email{
		Sender:     "monitor@example.com",
		Recipients: []string{"ops@example.com"},
		send: func(m *gomail.Message) error {
			captured = m
			return nil
		},
	}

	rep := models.NewReport("run-1", "sessions", []models.Violation{sampleViolation()})
	csv := []byte("source,metric,value\nORCL1,session_usage,97\n")
	if err := e.Send(context.Background(), rep, "<html>body</html>", csv); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if captured == nil {
		t.Fatal("transport never called")
	}

	var buf bytes.Buffer
	if _, err := captured.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "ALERT: sessions monitoring") {
		t.Error("subject missing from message")
	}
	if !strings.Contains(raw, "sessions-violations.csv") {
		t.Error("csv attachment missing from message")
	}
	if !strings.Contains(raw, "ops@example.com") {
		t.Error("recipient missing from message")
	}
}

// Suppression is decided before the transport is touched.
func TestEmailSuppressesAllClear(t *testing.T) {
	calls := 0
	e := &Email{
		Sender:           "monitor@example.com",
		Recipients:       []string{"ops@example.com"},
		SuppressAllClear: true,
		send: func(m *gomail.Message) error {
			calls++
			return nil
		},
	}

	rep := models.NewReport("run-2", "urls", nil)
	if err := e.Send(context.Background(), rep, "<html>all clear</html>", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 0 {
		t.Errorf("transport called %d times for suppressed all-clear", calls)
	}
}

func TestEmailAllClearMailWhenNotSuppressed(t *testing.T) {
	var captured *gomail.Message
	e := &Email{
		Sender:     "monitor@example.com",
		Recipients: []string{"ops@example.com"},
		send: func(m *gomail.Message) error {
			captured = m
			return nil
		},
	}

	rep := models.NewReport("run-3", "urls", nil)
	if err := e.Send(context.Background(), rep, "<html>all clear</html>", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if captured == nil {
		t.Fatal("expected all-clear mail when suppression is off")
	}

	var buf bytes.Buffer
	if _, err := captured.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "OK: urls monitoring - all clear") {
		t.Error("all-clear subject missing")
	}
	if strings.Contains(raw, "violations.csv") {
		t.Error("all-clear mail must not carry an attachment")
	}
}

func TestEmailNoRecipients(t *testing.T) {
	e := &Email{Sender: "monitor@example.com"}
	rep := models.NewReport("run-4", "sessions", []models.Violation{sampleViolation()})
	err := e.Send(context.Background(), rep, "<html></html>", nil)
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestEmailTransportFailure(t *testing.T) {
	e := &Email{
		Sender:     "monitor@example.com",
		Recipients: []string{"ops@example.com"},
		send: func(m *gomail.Message) error {
			return errors.New("connection refused")
		},
	}
	rep := models.NewReport("run-5", "sessions", []models.Violation{sampleViolation()})
	err := e.Send(context.Background(), rep, "<html></html>", nil)
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestEmailCancelledContext(t *testing.T) {
	calls := 0
	e := &Email{
		Sender:     "monitor@example.com",
		Recipients: []string{"ops@example.com"},
		send: func(m *gomail.Message) error {
			calls++
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := models.NewReport("run-6", "sessions", []models.Violation{sampleViolation()})
	if err := e.Send(ctx, rep, "<html></html>", nil); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if calls != 0 {
		t.Error("transport must not be called after cancellation")
	}
}
