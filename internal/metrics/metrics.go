// Package metrics exports search statistics to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/litescript/ls-sunfix/internal/locate"
)

// Collector bundles the estimator metrics. It implements locate.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Estimates         *prometheus.CounterVec
	EstimateDurations prometheus.Histogram
	LastErrorScore    prometheus.Gauge

	StageEvaluations *prometheus.CounterVec
	StageSkipped     *prometheus.CounterVec
	StageDurations   *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns
// the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	estimates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunfix_estimates_total",
		Help: "Completed position estimates, labeled by confidence tier.",
	}, []string{"confidence"}), "sunfix_estimates_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sunfix_estimate_duration_seconds",
		Help:    "Wall time of a full multi-stage estimate.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}), "sunfix_estimate_duration_seconds")
	if err != nil {
		return nil, err
	}

	lastScore, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sunfix_last_error_score",
		Help: "Error score of the most recent estimate.",
	}), "sunfix_last_error_score")
	if err != nil {
		return nil, err
	}

	evaluations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunfix_stage_evaluations_total",
		Help: "Grid cells scored, labeled by search stage.",
	}, []string{"stage"}), "sunfix_stage_evaluations_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sunfix_stage_skipped_total",
		Help: "Grid cells skipped for falling outside the valid coordinate range, labeled by search stage.",
	}, []string{"stage"}), "sunfix_stage_skipped_total")
	if err != nil {
		return nil, err
	}

	stageDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sunfix_stage_duration_seconds",
		Help:    "Wall time of one search stage.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"stage"}), "sunfix_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Estimates:         estimates,
		EstimateDurations: durations,
		LastErrorScore:    lastScore,
		StageEvaluations:  evaluations,
		StageSkipped:      skipped,
		StageDurations:    stageDurations,
	}, nil
}

// ObserveStage records one finished stage.
func (c *Collector) ObserveStage(stage locate.StageResult, took time.Duration) {
	if c == nil {
		return
	}
	name := stage.Stage.Name
	if name == "" {
		name = "unnamed"
	}
	c.StageEvaluations.WithLabelValues(name).Add(float64(stage.Evaluations))
	c.StageSkipped.WithLabelValues(name).Add(float64(stage.Skipped))
	c.StageDurations.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveEstimate records one finished estimate.
func (c *Collector) ObserveEstimate(result locate.Result, took time.Duration) {
	if c == nil {
		return
	}
	c.Estimates.WithLabelValues(result.Confidence.String()).Inc()
	c.EstimateDurations.Observe(took.Seconds())
	c.LastErrorScore.Set(result.ErrorScore)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ locate.Recorder = (*Collector)(nil)

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
