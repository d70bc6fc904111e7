package caselens

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caselens/caselens/internal/domain"
	similarityuc "github.com/caselens/caselens/internal/usecase/similarity"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	results    prometheus.Histogram
	failures   *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caselens",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "SDK operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caselens",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "caselens",
			Subsystem: "sdk",
			Name:      "find_similar_results",
			Help:      "Number of matches returned by successful FindSimilar calls.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caselens",
			Subsystem: "sdk",
			Name:      "find_similar_failures_total",
			Help:      "Failed FindSimilar calls by pipeline stage.",
		}, []string{"stage"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.results); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.failures); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("caselens: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("caselens: register metric: %w", err)
	}
	return nil
}

// outcome labels an operation result. Lookup failures reuse the service's
// labels so SDK and server dashboards line up.
func outcome(err error) string {
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return "not_found"
	}
	return similarityuc.Outcome(err)
}

// lookupStage returns the failing stage of a FindSimilar error, or "validate"
// when the request never reached the pipeline.
func lookupStage(err error) string {
	var le *domain.LookupError
	if errors.As(err, &le) {
		return le.Stage
	}
	return "validate"
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error, attrs ...slog.Attr) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	label := outcome(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, label).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+4)
	args = append(args, slog.String("op", op), slog.Duration("duration", dur))
	for _, a := range attrs {
		args = append(args, a)
	}
	if err != nil {
		args = append(args, slog.String("outcome", label), slog.Any("error", err))
		o.logger.Warn("operation failed", args...)
		return
	}
	o.logger.Debug("operation completed", args...)
}

// observeFind records a FindSimilar call: requested k, result count on
// success, failing stage on error.
func (o *observer) observeFind(start time.Time, k, results int, err error) {
	if o == nil {
		return
	}
	if err != nil {
		stage := lookupStage(err)
		if o.metrics != nil {
			o.metrics.failures.WithLabelValues(stage).Inc()
		}
		o.observe("find_similar", start, err, slog.Int("k", k), slog.String("stage", stage))
		return
	}
	if o.metrics != nil {
		o.metrics.results.Observe(float64(results))
	}
	o.observe("find_similar", start, nil, slog.Int("k", k), slog.Int("results", results))
}
