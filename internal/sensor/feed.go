package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/litescript/ls-sunfix/internal/logging"
)

// HeadingSample is one compass update.
type HeadingSample struct {
	MagneticDeg float64
	AccuracyDeg float64 // negative when uncalibrated
	Time        time.Time
}

// PitchSample is one inclination update.
type PitchSample struct {
	PitchDeg float64
	Time     time.Time
}

// Feed pairs the latest heading with the latest pitch and turns every
// update into an Observation. Producers push on Headings and Pitches;
// consumers either drain Observations or poll Latest on demand.
type Feed struct {
	cfg    BuilderConfig
	logger *logging.Logger

	headings     chan HeadingSample
	pitches      chan PitchSample
	observations chan Observation

	mu     sync.RWMutex
	latest Observation
	ok     bool
}

// NewFeed creates a feed. buffer sizes the input channels.
func NewFeed(cfg BuilderConfig, buffer int, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Discard()
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Feed{
		cfg:          cfg,
		logger:       logger.With("sensor"),
		headings:     make(chan HeadingSample, buffer),
		pitches:      make(chan PitchSample, buffer),
		observations: make(chan Observation, 1),
	}
}

// Headings is the compass input. Close it to signal the end of input.
func (f *Feed) Headings() chan<- HeadingSample { return f.headings }

// Pitches is the inclination input. Close it to signal the end of input.
func (f *Feed) Pitches() chan<- PitchSample { return f.pitches }

// Observations delivers built observations. It holds at most one pending
// value; a slow consumer only ever sees the newest one. Closed when Run
// returns.
func (f *Feed) Observations() <-chan Observation { return f.observations }

// Latest returns the most recent observation, if any.
func (f *Feed) Latest() (Observation, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.ok
}

// Run consumes samples until ctx is done or both inputs are closed.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.observations)

	var (
		heading     HeadingSample
		pitch       PitchSample
		haveHeading bool
		havePitch   bool
	)
	headings, pitches := f.headings, f.pitches

	for headings != nil || pitches != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case h, open := <-headings:
			if !open {
				headings = nil
				continue
			}
			if h.AccuracyDeg < 0 {
				f.logger.Debug("dropping uncalibrated heading %.1f", h.MagneticDeg)
				continue
			}
			heading, haveHeading = h, true

		case p, open := <-pitches:
			if !open {
				pitches = nil
				continue
			}
			pitch, havePitch = p, true
		}

		if !haveHeading || !havePitch {
			continue
		}

		stamp := heading.Time
		if pitch.Time.After(stamp) {
			stamp = pitch.Time
		}
		obs, err := Build(Reading{
			MagneticHeadingDeg: heading.MagneticDeg,
			HeadingAccuracyDeg: heading.AccuracyDeg,
			PitchDeg:           pitch.PitchDeg,
			Time:               stamp,
		}, f.cfg)
		if err != nil {
			if !errors.Is(err, ErrInvalidReading) {
				return err
			}
			f.logger.Warn("skipping reading: %v", err)
			continue
		}

		f.publish(obs)
	}
	return nil
}

func (f *Feed) publish(obs Observation) {
	f.mu.Lock()
	f.latest, f.ok = obs, true
	f.mu.Unlock()

	// Replace a pending value rather than block the sensor loop.
	select {
	case f.observations <- obs:
	default:
		select {
		case <-f.observations:
		default:
		}
		select {
		case f.observations <- obs:
		default:
		}
	}
}
