// Package runner drives one polling cycle: fetch readings, evaluate
// thresholds, build the report, deliver it. Each cycle runs to
// completion and exits; repetition comes from the external scheduler.
package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"oapmon/internal/logger"
	"oapmon/internal/models"
	"oapmon/internal/notify"
	"oapmon/internal/report"
	"oapmon/internal/rules"
	"oapmon/internal/source"
)

// Stage is the current phase of a run
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageEvaluating Stage = "evaluating"
	StageReporting  Stage = "reporting"
	StageNotifying  Stage = "notifying"
	StageFailed     Stage = "failed"
)

// Instance wires one monitoring instance's collaborators into a run
type Instance struct {
	// Name identifies the instance (sessions, urls, connectors)
	Name string

	Source   source.Source
	Rules    *rules.Set
	Notifier notify.Sender

	// Publisher optionally streams violations to Kafka; publish
	// failures are logged, never fatal (mail is the primary signal)
	Publisher *notify.AlertPublisher

	// OnSamples optionally persists every reading (good and
	// unreachable) before evaluation; errors are logged and the run
	// continues so the report still goes out
	OnSamples func(ctx context.Context, samples []models.Sample) error
}

// Run executes one cycle for the instance
type Run struct {
	id    string
	inst  Instance
	stage Stage
}

// New prepares a run in the idle state
func New(inst Instance) *Run {
	return &Run{
		id:    uuid.NewString(),
		inst:  inst,
		stage: StageIdle,
	}
}

// ID returns the run identifier stamped on the report
func (r *Run) ID() string { return r.id }

// Stage returns the phase the run is in, or reached before failing
func (r *Run) Stage() Stage { return r.stage }

// Execute drives the cycle to completion. A partial fetch failure (some
// targets unreachable) still proceeds through evaluation, reporting and
// delivery; only total fetch failure or delivery failure aborts.
func (r *Run) Execute(ctx context.Context) (*models.Report, error) {
	log := logger.WithRun(r.inst.Name, r.id)

	r.stage = StageFetching
	log.Info().Str("stage", string(r.stage)).Msg("run started")

	res, err := r.inst.Source.Fetch(ctx)
	if err != nil {
		r.stage = StageFailed
		return nil, fmt.Errorf("fetching: %w", err)
	}

	samples := make([]models.Sample, 0, len(res.Samples)+len(res.Unreachable))
	samples = append(samples, res.Samples...)
	samples = append(samples, res.Unreachable...)

	log.Info().
		Int("samples", len(res.Samples)).
		Int("unreachable", len(res.Unreachable)).
		Msg("fetch complete")

	if r.inst.OnSamples != nil {
		if err := r.inst.OnSamples(ctx, samples); err != nil {
			log.Error().Err(err).Msg("sample persistence failed, continuing")
		}
	}

	r.stage = StageEvaluating
	violations := r.inst.Rules.Evaluate(samples)
	log.Info().
		Str("stage", string(r.stage)).
		Int("violations", len(violations)).
		Msg("evaluation complete")

	r.stage = StageReporting
	rep := report.Build(r.id, r.inst.Name, violations)

	htmlBody, err := report.HTML(rep)
	if err != nil {
		r.stage = StageFailed
		return nil, fmt.Errorf("reporting: %w", err)
	}
	csvRows, err := report.CSV(rep)
	if err != nil {
		r.stage = StageFailed
		return nil, fmt.Errorf("reporting: %w", err)
	}

	r.stage = StageNotifying
	if err := r.inst.Notifier.Send(ctx, rep, htmlBody, csvRows); err != nil {
		r.stage = StageFailed
		return rep, fmt.Errorf("notifying: %w", err)
	}

	if r.inst.Publisher != nil && !rep.AllClear {
		if err := r.inst.Publisher.PublishReport(ctx, rep); err != nil {
			log.Error().Err(err).Msg("alert stream publish failed, continuing")
		}
	}

	r.stage = StageIdle
	log.Info().
		Bool("all_clear", rep.AllClear).
		Int("violations", len(rep.Violations)).
		Msg("run complete")
	return rep, nil
}
