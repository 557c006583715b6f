// Package state provides thread-safe session state for the application.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/locate"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

// EventType represents the type of state change event.
type EventType string

const (
	EventEstimate          EventType = "ESTIMATE"
	EventConfidenceChanged EventType = "CONFIDENCE_CHANGED"
	EventJump              EventType = "JUMP"
	EventError             EventType = "ERROR"
)

// Event represents a notable change between estimates.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Position  geo.GeoPosition `json:"position"`
	Detail    string          `json:"detail,omitempty"`
}

// Estimate is one completed search with its inputs.
type Estimate struct {
	Observation sensor.Observation
	Guess       geo.GeoPosition
	Result      locate.Result
	Took        time.Duration
}

// Manager handles all shared session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	// Current inputs
	observation    sensor.Observation
	hasObservation bool
	guess          geo.GeoPosition
	lastError      error

	// Estimate history, oldest first
	history       []Estimate
	maxHistoryLen int

	// Event log (ring buffer)
	events       []Event
	maxEvents    int
	eventWriteAt int

	jumpThresholdKm float64
}

// Config holds configuration for the state manager.
type Config struct {
	MaxHistoryLen int
	MaxEvents     int

	// JumpThresholdKm is the distance between consecutive estimates that
	// raises a JUMP event.
	JumpThresholdKm float64

	// Guess seeds the initial search center.
	Guess geo.GeoPosition
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistoryLen:   50,
		MaxEvents:       50,
		JumpThresholdKm: 25,
		Guess:           geo.GeoPosition{LatDeg: 34.0, LonDeg: -116.0},
	}
}

// NewManager creates a new state manager.
func NewManager(cfg Config) *Manager {
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 50
	}
	maxHistory := cfg.MaxHistoryLen
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Manager{
		guess:           cfg.Guess,
		maxHistoryLen:   maxHistory,
		maxEvents:       maxEvents,
		events:          make([]Event, 0, maxEvents),
		jumpThresholdKm: cfg.JumpThresholdKm,
	}
}

// SetObservation stores the latest fused sensor observation.
func (m *Manager) SetObservation(obs sensor.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observation = obs
	m.hasObservation = true
}

// Observation returns the latest observation, if any.
func (m *Manager) Observation() (sensor.Observation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observation, m.hasObservation
}

// Guess returns the current initial guess.
func (m *Manager) Guess() geo.GeoPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guess
}

// SetGuess replaces the initial guess.
func (m *Manager) SetGuess(p geo.GeoPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guess = p
}

// Record stores the outcome of an estimate. A non-nil err is logged as an
// ERROR event and leaves the history untouched.
func (m *Manager) Record(est Estimate, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err
	if err != nil {
		m.addEvent(Event{
			Type:      EventError,
			Timestamp: est.Observation.Time,
			Position:  est.Guess,
			Detail:    err.Error(),
		})
		return
	}

	// Detect events before appending
	m.detectEvents(est)

	m.history = append(m.history, est)
	if len(m.history) > m.maxHistoryLen {
		m.history = m.history[1:]
	}
}

// detectEvents compares a new estimate with the previous one.
func (m *Manager) detectEvents(est Estimate) {
	ts := est.Observation.Time
	pos := est.Result.Position

	m.addEvent(Event{
		Type:      EventEstimate,
		Timestamp: ts,
		Position:  pos,
		Detail:    fmt.Sprintf("error %.4f", est.Result.ErrorScore),
	})

	if len(m.history) == 0 {
		return
	}
	prev := m.history[len(m.history)-1].Result

	if prev.Confidence != est.Result.Confidence {
		m.addEvent(Event{
			Type:      EventConfidenceChanged,
			Timestamp: ts,
			Position:  pos,
			Detail:    fmt.Sprintf("%s -> %s", prev.Confidence, est.Result.Confidence),
		})
	}

	if m.jumpThresholdKm > 0 {
		if d := geo.DistanceKm(prev.Position, pos); d > m.jumpThresholdKm {
			m.addEvent(Event{
				Type:      EventJump,
				Timestamp: ts,
				Position:  pos,
				Detail:    fmt.Sprintf("moved %.1f km", d),
			})
		}
	}
}

// addEvent adds an event to the ring buffer.
func (m *Manager) addEvent(e Event) {
	if len(m.events) < m.maxEvents {
		m.events = append(m.events, e)
	} else {
		m.events[m.eventWriteAt] = e
		m.eventWriteAt = (m.eventWriteAt + 1) % m.maxEvents
	}
}

// Snapshot represents an immutable snapshot of current state.
type Snapshot struct {
	Observation    sensor.Observation
	HasObservation bool
	Guess          geo.GeoPosition
	Last           *Estimate
	LastError      error
	History        []Estimate
	Events         []Event
}

// Snapshot returns a consistent snapshot of current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]Estimate, len(m.history))
	copy(history, m.history)

	var last *Estimate
	if n := len(history); n > 0 {
		e := history[n-1]
		last = &e
	}

	return Snapshot{
		Observation:    m.observation,
		HasObservation: m.hasObservation,
		Guess:          m.guess,
		Last:           last,
		LastError:      m.lastError,
		History:        history,
		Events:         m.getEventsOrdered(),
	}
}

// getEventsOrdered returns events in chronological order.
func (m *Manager) getEventsOrdered() []Event {
	if len(m.events) == 0 {
		return nil
	}

	// If buffer isn't full yet, just copy
	if len(m.events) < m.maxEvents {
		result := make([]Event, len(m.events))
		copy(result, m.events)
		return result
	}

	// Ring buffer is full, reorder from oldest to newest
	result := make([]Event, m.maxEvents)
	for i := 0; i < m.maxEvents; i++ {
		result[i] = m.events[(m.eventWriteAt+i)%m.maxEvents]
	}
	return result
}

// RecentEvents returns the last n events.
func (m *Manager) RecentEvents(n int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.getEventsOrdered()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// DriftKmPerHour returns how fast the last two estimates moved apart,
// measured against their observation times. Zero when fewer than two
// estimates exist or the times do not advance.
func (m *Manager) DriftKmPerHour() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.history)
	if n < 2 {
		return 0
	}
	p1 := m.history[n-2]
	p2 := m.history[n-1]

	hours := p2.Observation.Time.Sub(p1.Observation.Time).Hours()
	if hours <= 0 {
		return 0
	}
	return geo.DistanceKm(p1.Result.Position, p2.Result.Position) / hours
}

// HasEstimate returns true once at least one estimate succeeded.
func (m *Manager) HasEstimate() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history) > 0
}
