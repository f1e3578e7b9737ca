package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"oapmon/internal/logger"
	"oapmon/internal/models"
)

// Publisher errors
var (
	ErrPublisherClosed = errors.New("alert publisher is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert event")
)

// AlertEvent is the wire form of one violation on the alert stream
type AlertEvent struct {
	RunID     string           `json:"run_id"`
	Instance  string           `json:"instance"`
	EmittedAt time.Time        `json:"emitted_at"`
	Violation models.Violation `json:"violation"`
}

// AlertPublisher streams violations to a Kafka topic, keyed by source
// so consumers see per-target ordering. It is an optional secondary
// channel: publish failures are logged by callers, never fatal.
type AlertPublisher struct {
	writer *kafka.Writer
	closed atomic.Bool

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewAlertPublisher creates a publisher for the given brokers and topic
func NewAlertPublisher(brokers []string, topic string) (*AlertPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Partition by key
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Async:        false, // Sync for reliability
	}
	return &AlertPublisher{writer: writer}, nil
}

// PublishReport emits one event per violation in a single batch write
func (p *AlertPublisher) PublishReport(ctx context.Context, report *models.Report) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if report.AllClear {
		return nil
	}

	log := logger.WithComponent("alert_publisher")

	messages := make([]kafka.Message, 0, len(report.Violations))
	for _, v := range report.Violations {
		event := AlertEvent{
			RunID:     report.RunID,
			Instance:  report.Instance,
			EmittedAt: report.GeneratedAt,
			Violation: v,
		}
		data, err := json.Marshal(event)
		if err != nil {
			p.failed.Add(1)
			return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(v.Sample.Source),
			Value: data,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(report.RunID)},
				{Key: "instance", Value: []byte(report.Instance)},
				{Key: "severity", Value: []byte(v.Severity)},
			},
			Time: report.GeneratedAt,
		})
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.failed.Add(uint64(len(messages)))
		return err
	}
	p.published.Add(uint64(len(messages)))

	log.Info().
		Str("run_id", report.RunID).
		Int("events", len(messages)).
		Dur("duration", time.Since(start)).
		Msg("alert events published")
	return nil
}

// Stats returns published/failed event counts
func (p *AlertPublisher) Stats() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}

// Close flushes and closes the underlying writer
func (p *AlertPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	published, failed := p.Stats()
	log := logger.WithComponent("alert_publisher")
	log.Info().
		Uint64("published", published).
		Uint64("failed", failed).
		Msg("alert publisher closing")
	return p.writer.Close()
}
