// Package notify delivers finished reports. Email is the primary
// channel; a Kafka alert stream can be enabled alongside it for
// downstream consumers.
package notify

import (
	"context"
	"errors"

	"oapmon/internal/models"
)

// Delivery errors
var (
	// ErrDelivery wraps transport failures. Losing the report means
	// losing the monitoring signal, so callers treat it as fatal for
	// the run; the next scheduled invocation is the retry.
	ErrDelivery = errors.New("report delivery failed")
)

// Sender delivers one report rendered as an HTML body and CSV rows.
// Send must be idempotent at the call level: re-sending the same
// report duplicates only the message, never monitored state.
type Sender interface {
	Send(ctx context.Context, report *models.Report, htmlBody string, csvRows []byte) error
}
