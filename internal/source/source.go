// Package source fetches current readings from external systems: the
// Prometheus query API and plain HTTP endpoints. Fetching is read-only
// and must not mutate external state.
package source

import (
	"context"
	"errors"
	"time"

	"oapmon/internal/models"
)

// Fetch errors
var (
	// ErrAllTargetsFailed signals total fetch failure: nothing in the
	// batch could be reached, so the run cannot produce a useful report
	ErrAllTargetsFailed = errors.New("all targets failed to fetch")
)

// Result is the outcome of one batch fetch. A single unreachable
// target never aborts the batch; it is recorded in Unreachable so the
// evaluator can surface it as a violation instead of dropping it.
type Result struct {
	// Samples are readings fetched successfully
	Samples []models.Sample

	// Unreachable holds one sample per failed target, with Metric set
	// to models.MetricUnreachable and Display naming the failure class
	Unreachable []models.Sample
}

// Source fetches the current readings for one batch of targets. The
// error return is reserved for total failure; per-target failures are
// reported through Result.Unreachable.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Result, error)
}

// UnreachableSample builds the placeholder reading recorded when a
// target cannot be fetched
func UnreachableSample(target, reason string, labels map[string]string) models.Sample {
	return models.Sample{
		Source:    target,
		Metric:    models.MetricUnreachable,
		Value:     1,
		Display:   reason,
		Labels:    labels,
		Timestamp: time.Now().UTC(),
	}
}
