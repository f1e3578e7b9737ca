package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"oapmon/internal/logger"
	"oapmon/internal/models"
)

// Prometheus errors
var (
	ErrNonVectorResult = errors.New("query did not return an instant vector")
)

// Query is one named instant query whose result series become samples
// under the given metric name
type Query struct {
	Name   string
	PromQL string
	Metric string
}

// Prometheus fetches instant query results from a Prometheus-compatible
// API and converts each series into a sample. One source instance may
// track several queries (the Debezium checks); a failing query is
// recorded as unreachable without aborting the remaining queries.
type Prometheus struct {
	name    string
	api     v1.API
	queries []Query
	labels  []string
	timeout time.Duration
}

// NewPrometheus builds a source for the given base URL and queries.
// labels names the series labels copied onto samples and joined (in
// order) to form the sample's source identifier.
func NewPrometheus(name, baseURL string, queries []Query, labels []string, timeout time.Duration) (*Prometheus, error) {
	client, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	return &Prometheus{
		name:    name,
		api:     v1.NewAPI(client),
		queries: queries,
		labels:  labels,
		timeout: timeout,
	}, nil
}

// Name implements Source
func (p *Prometheus) Name() string { return p.name }

// Fetch runs every configured query. It fails outright only when no
// query could be executed at all.
func (p *Prometheus) Fetch(ctx context.Context) (Result, error) {
	log := logger.WithComponent("prometheus_source")

	var res Result
	failed := 0

	for _, q := range p.queries {
		samples, err := p.runQuery(ctx, q)
		if err != nil {
			failed++
			log.Error().
				Err(err).
				Str("query", q.Name).
				Msg("prometheus query failed")
			res.Unreachable = append(res.Unreachable, UnreachableSample(
				q.Name, classifyFetchError(err), map[string]string{"query": q.Name}))
			continue
		}
		log.Debug().
			Str("query", q.Name).
			Int("series", len(samples)).
			Msg("prometheus query returned")
		res.Samples = append(res.Samples, samples...)
	}

	if failed == len(p.queries) {
		return Result{}, fmt.Errorf("%w: %s", ErrAllTargetsFailed, p.name)
	}
	SortSamples(res.Samples)
	return res, nil
}

// runQuery executes one instant query and converts the result vector
func (p *Prometheus) runQuery(ctx context.Context, q Query) ([]models.Sample, error) {
	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, warnings, err := p.api.Query(qctx, q.PromQL, time.Now())
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		log := logger.WithComponent("prometheus_source")
		for _, w := range warnings {
			log.Warn().
				Str("query", q.Name).
				Str("warning", w).
				Msg("prometheus query warning")
		}
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNonVectorResult, value.Type())
	}

	samples := make([]models.Sample, 0, len(vector))
	for _, series := range vector {
		s := models.Sample{
			Source:    p.sourceID(series.Metric),
			Metric:    q.Metric,
			Value:     float64(series.Value),
			Labels:    p.copyLabels(series.Metric),
			Timestamp: series.Timestamp.Time().UTC(),
		}
		s.Normalize()
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("series %s: %w", series.Metric.String(), err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// sourceID joins the configured label values into a stable identifier,
// e.g. database/client/env -> "ORCL1/acme/prd1"
func (p *Prometheus) sourceID(metric model.Metric) string {
	parts := make([]string, 0, len(p.labels))
	for _, l := range p.labels {
		if v, ok := metric[model.LabelName(l)]; ok && v != "" {
			parts = append(parts, string(v))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "/")
	}
	// No configured labels present; fall back to the full series name
	// so distinct series never collapse into one source
	return metric.String()
}

// copyLabels extracts the configured labels, recording "N/A" for any
// that the series does not carry
func (p *Prometheus) copyLabels(metric model.Metric) map[string]string {
	if len(p.labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.labels))
	for _, l := range p.labels {
		if v, ok := metric[model.LabelName(l)]; ok && v != "" {
			out[l] = string(v)
		} else {
			out[l] = "N/A"
		}
	}
	return out
}

// classifyFetchError maps transport errors to the short failure class
// shown in reports
func classifyFetchError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "Connection Error"
	}
}

// SortSamples orders samples by source then metric; used by sources
// whose backing API returns series in arbitrary order
func SortSamples(samples []models.Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Source != samples[j].Source {
			return samples[i].Source < samples[j].Source
		}
		return samples[i].Metric < samples[j].Metric
	})
}
