// Package locate inverts the solar ephemeris: given the sun's observed
// azimuth and elevation at a known instant it searches for the place on
// Earth that would see the sun there.
package locate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/litescript/ls-sunfix/internal/astro"
	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/logging"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

// Errors returned by Estimate.
var (
	ErrInvalidObservation = errors.New("invalid observation")
	ErrInvalidGuess       = errors.New("invalid initial guess")
)

// Recorder receives the outcome of every stage and estimate.
type Recorder interface {
	ObserveStage(stage StageResult, took time.Duration)
	ObserveEstimate(result Result, took time.Duration)
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger used for the refinement trace.
func WithLogger(l *logging.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l.With("locate")
		}
	}
}

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Estimator) { e.recorder = r }
}

// Estimator runs the multi-resolution grid search. It holds only immutable
// configuration and is safe for concurrent use.
type Estimator struct {
	cfg      Config
	eph      astro.Ephemeris
	proj     geo.Projection
	logger   *logging.Logger
	recorder Recorder
}

// New validates cfg and returns an Estimator.
func New(cfg Config, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Stages = append([]SearchStage(nil), cfg.Stages...)

	e := &Estimator{
		cfg:    cfg,
		eph:    astro.Ephemeris{TZOffsetHours: cfg.TZOffsetHours},
		proj:   cfg.projection(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EstimatePosition runs a one-off search with cfg.
func EstimatePosition(obs sensor.Observation, guess geo.GeoPosition, cfg Config) (Result, error) {
	e, err := New(cfg)
	if err != nil {
		return Result{}, err
	}
	return e.Estimate(obs, guess)
}

// Config returns a copy of the estimator's configuration.
func (e *Estimator) Config() Config {
	c := e.cfg
	c.Stages = append([]SearchStage(nil), e.cfg.Stages...)
	return c
}

// sunFunc evaluates the modeled sun direction for a candidate position.
type sunFunc func(latDeg, lonDeg float64) (astro.Horizontal, error)

// Estimate searches for the position whose modeled sun best matches obs,
// starting from guess. It never fails for a valid observation: the best
// candidate is always returned together with its error score.
func (e *Estimator) Estimate(obs sensor.Observation, guess geo.GeoPosition) (Result, error) {
	if err := obs.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidObservation, err)
	}
	if err := guess.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidGuess, err)
	}

	start := time.Now()
	fn, err := e.eph.SunFunc(obs.Time)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidObservation, err)
	}
	sun := sunFunc(fn)

	stages := make([]StageResult, 0, len(e.cfg.Stages)+1)
	center := guess
	for _, stage := range e.cfg.Stages {
		stageStart := time.Now()
		sr := e.searchStage(obs, center, stage, sun)
		took := time.Since(stageStart)

		e.logger.Debug("stage %s: center %s error %.4f (%d evaluated, %d skipped, %v)",
			stage.Name, sr.Center, sr.ErrorScore, sr.Evaluations, sr.Skipped, took)
		if e.recorder != nil {
			e.recorder.ObserveStage(sr, took)
		}

		stages = append(stages, sr)
		center = sr.Center
	}

	if e.cfg.Polish {
		polishStart := time.Now()
		if sr, ok := e.polish(obs, stages[len(stages)-1], sun); ok {
			took := time.Since(polishStart)
			e.logger.Debug("polish: center %s error %.4f (%d evaluated)", sr.Center, sr.ErrorScore, sr.Evaluations)
			if e.recorder != nil {
				e.recorder.ObserveStage(sr, took)
			}
			stages = append(stages, sr)
		}
	}

	final := stages[len(stages)-1]
	if e.cfg.Return == ReturnLegacyFine {
		// Legacy: the last grid stage is computed and logged, then dropped.
		final = stages[len(e.cfg.Stages)-2]
		last := stages[len(stages)-1]
		e.logger.Debug("legacy return: discarding %s estimate %s (error %.4f)",
			last.Stage.Name, last.Center, last.ErrorScore)
	}

	res := Result{
		Position:   final.Center.Round(e.cfg.RoundDecimals),
		ErrorScore: final.ErrorScore,
		Stages:     stages,
		Confidence: ConfidenceFor(final.ErrorScore),
		Return:     e.cfg.Return,
	}
	if h, err := sun(final.Center.LatDeg, final.Center.LonDeg); err == nil {
		res.Modeled = Direction{AzimuthDeg: h.AzDeg, ElevationDeg: h.ElDeg}
		res.AngularResidualDeg = astro.AngularSeparation(h.AzDeg, h.ElDeg, obs.AzimuthDeg, obs.ElevationDeg)
	}

	took := time.Since(start)
	e.logger.Info("estimated location %s error %.4f (%s)", res.Position, res.ErrorScore, res.Confidence)
	if e.recorder != nil {
		e.recorder.ObserveEstimate(res, took)
	}
	return res, nil
}

// Score returns the weighted residual between a modeled sun direction and
// the observation: |Δaz| + ElevationWeight·|Δel|.
func (e *Estimator) Score(h astro.Horizontal, obs sensor.Observation) float64 {
	dAz := math.Abs(h.AzDeg - obs.AzimuthDeg)
	if e.cfg.WrapAzimuth && dAz > 180 {
		dAz = 360 - dAz
	}
	return dAz + e.cfg.ElevationWeight*math.Abs(h.ElDeg-obs.ElevationDeg)
}

// searchStage scans the stage's window around center and returns the first
// candidate with the lowest score in row-major order. Out-of-range cells are
// skipped, never clamped.
func (e *Estimator) searchStage(obs sensor.Observation, center geo.GeoPosition, stage SearchStage, sun sunFunc) StageResult {
	w := e.proj.NewWindow(center, stage.RadiusKm, stage.StepKm)

	candidates := make([]geo.GeoPosition, 0, w.Size())
	scores := make([]float64, 0, w.Size())
	skipped := 0

	w.Each(func(p geo.GeoPosition, inRange bool) bool {
		if !inRange {
			skipped++
			return true
		}
		h, err := sun(p.LatDeg, p.LonDeg)
		if err != nil {
			skipped++
			return true
		}
		candidates = append(candidates, p)
		scores = append(scores, e.Score(h, obs))
		return true
	})

	sr := StageResult{
		Stage:       stage,
		Center:      center,
		ErrorScore:  math.Inf(1),
		Evaluations: len(scores),
		Skipped:     skipped,
	}
	if len(scores) == 0 {
		return sr
	}

	best := floats.MinIdx(scores)
	sr.Center = candidates[best]
	sr.ErrorScore = scores[best]
	return sr
}
