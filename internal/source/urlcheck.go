package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"oapmon/internal/logger"
	"oapmon/internal/models"
)

// MetricHTTPStatus is the metric name carried by URL check samples
const MetricHTTPStatus = "http_status"

// URLCheck probes every URL in a batch with a GET request and records
// the observed status code and response latency. Checks run on a
// bounded worker pool; a failing URL becomes an unreachable entry and
// never blocks the remaining URLs.
type URLCheck struct {
	URLs    []string
	Client  *http.Client
	Timeout time.Duration
	Workers int

	// Retries re-attempts transport failures (not HTTP error codes)
	// before recording the URL as unreachable
	Retries  int
	RetryMin time.Duration
	RetryMax time.Duration
}

// Name implements Source
func (u *URLCheck) Name() string { return "urls" }

// Fetch checks all URLs. It fails outright only when every URL in the
// batch was unreachable.
func (u *URLCheck) Fetch(ctx context.Context) (Result, error) {
	if len(u.URLs) == 0 {
		return Result{}, nil
	}

	log := logger.WithComponent("url_source")

	type slot struct {
		sample models.Sample
		failed bool
	}
	slots := make([]slot, len(u.URLs))

	fanOut(ctx, u.Workers, len(u.URLs), func(ctx context.Context, i int) {
		target := u.URLs[i]
		sample, err := u.checkOne(ctx, target)
		if err != nil {
			log.Warn().
				Err(err).
				Str("url", target).
				Msg("url check failed")
			slots[i] = slot{
				sample: UnreachableSample(target, classifyURLError(err), urlLabels(target)),
				failed: true,
			}
			return
		}
		slots[i] = slot{sample: sample}
	})

	// A canceled run leaves undispatched slots zero-valued; those are
	// not observations and must not flow into an all-clear report
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("url batch aborted: %w", err)
	}

	var res Result
	failed := 0
	for _, s := range slots {
		if s.failed {
			failed++
			res.Unreachable = append(res.Unreachable, s.sample)
			continue
		}
		res.Samples = append(res.Samples, s.sample)
	}

	if failed == len(u.URLs) {
		return Result{}, fmt.Errorf("%w: %d urls", ErrAllTargetsFailed, len(u.URLs))
	}
	return res, nil
}

// checkOne performs the GET for a single URL, retrying transport
// failures with exponential backoff when configured
func (u *URLCheck) checkOne(ctx context.Context, target string) (models.Sample, error) {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}

	b := &backoff.Backoff{
		Min:    u.RetryMin,
		Max:    u.RetryMax,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= u.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return models.Sample{}, ctx.Err()
			}
		}

		status, latency, err := u.get(ctx, client, target)
		if err != nil {
			lastErr = err
			continue
		}

		return models.Sample{
			Source: target,
			Metric: MetricHTTPStatus,
			Value:  float64(status),
			Labels: withLatency(urlLabels(target), latency),
			// Observed at completion of the request
			Timestamp: time.Now().UTC(),
		}, nil
	}
	return models.Sample{}, lastErr
}

func (u *URLCheck) get(ctx context.Context, client *http.Client, target string) (int, time.Duration, error) {
	timeout := u.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, latency, nil
}

// urlLabels derives client and environment from the URL path, matching
// the batch URL layout: /<client>/<group>/<env-source>/metrics where
// the environment is the first three letters of the fifth segment.
// URLs without the full layout keep both labels at "N/A".
func urlLabels(target string) map[string]string {
	labels := map[string]string{"client": "N/A", "env": "N/A"}
	parts := strings.Split(target, "/")
	if len(parts) <= 5 {
		return labels
	}
	if parts[3] != "" {
		labels["client"] = parts[3]
	}
	if len(parts[5]) >= 3 {
		labels["env"] = strings.ToUpper(parts[5][:3])
	}
	return labels
}

func withLatency(labels map[string]string, latency time.Duration) map[string]string {
	labels["latency_ms"] = fmt.Sprintf("%d", latency.Milliseconds())
	return labels
}

// classifyURLError maps a transport failure to the short status shown
// in reports
func classifyURLError(err error) string {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(),
		errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "Connection Error"
	}
}
