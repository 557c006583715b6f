// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-sunfix/internal/astro"
	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/locate"
	"github.com/litescript/ls-sunfix/internal/report"
	"github.com/litescript/ls-sunfix/internal/sensor"
	"github.com/litescript/ls-sunfix/internal/state"
	"github.com/litescript/ls-sunfix/internal/version"
)

// Msg types for Bubble Tea
type (
	// TickMsg triggers periodic UI updates.
	TickMsg time.Time

	// AnimTickMsg drives the spinner while an estimate runs.
	AnimTickMsg time.Time

	// ObservationMsg carries an observation from the sensor feed. It fills
	// the direct fields and switches to direct input.
	ObservationMsg struct {
		Observation sensor.Observation
	}

	// estimateDoneMsg signals a finished estimate.
	estimateDoneMsg struct {
		estimate state.Estimate
		err      error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	// Dependencies
	state     *state.Manager
	estimator *locate.Estimator
	builder   sensor.BuilderConfig
	now       func() time.Time

	// Form state
	mode   InputMode
	values [numFields]string
	focus  int

	// UI state
	width     int
	height    int
	ready     bool
	running   bool
	animTick  int
	statusMsg string

	snapshot state.Snapshot

	// Daylight at the last fix
	daylight    astro.DaylightWindow
	hasDaylight bool
}

// New creates a new root UI model. now supplies the observation time when
// the time field is left empty.
func New(stateMgr *state.Manager, est *locate.Estimator, builder sensor.BuilderConfig, now func() time.Time) Model {
	if now == nil {
		now = time.Now
	}
	m := Model{
		state:     stateMgr,
		estimator: est,
		builder:   builder,
		now:       now,
		snapshot:  stateMgr.Snapshot(),
	}
	guess := stateMgr.Guess()
	m.values[fieldDeclination] = formatCoord(builder.DeclinationDeg)
	m.values[fieldLat] = formatCoord(guess.LatDeg)
	m.values[fieldLon] = formatCoord(guess.LonDeg)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd := m.handleKey(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		cmds = append(cmds, tickCmd())
		// Pick up observations recorded by other goroutines
		m.snapshot = m.state.Snapshot()

	case AnimTickMsg:
		if m.running {
			m.animTick++
			cmds = append(cmds, animTickCmd())
		}

	case ObservationMsg:
		obs := msg.Observation
		m.state.SetObservation(obs)
		m.mode = InputDirect
		m.focus = 0
		m.values[fieldAzimuth] = formatCoord(obs.AzimuthDeg)
		m.values[fieldElevation] = formatCoord(obs.ElevationDeg)
		m.values[fieldTime] = obs.Time.UTC().Format(time.RFC3339)
		m.snapshot = m.state.Snapshot()

	case estimateDoneMsg:
		m.running = false
		m.state.Record(msg.estimate, msg.err)
		m.snapshot = m.state.Snapshot()
		if msg.err != nil {
			m.statusMsg = ""
		} else {
			m.statusMsg = fmt.Sprintf("Estimated in %s", msg.estimate.Took.Round(time.Millisecond))
			day, err := report.Daylight(msg.estimate.Result.Position, msg.estimate.Observation.Time)
			m.daylight, m.hasDaylight = day, err == nil
		}
	}

	return m, tea.Batch(cmds...)
}

// handleKey applies one key press to the form.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	fields := visibleFields(m.mode)

	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit

	case "tab", "down":
		m.focus = (m.focus + 1) % len(fields)
	case "shift+tab", "up":
		m.focus = (m.focus + len(fields) - 1) % len(fields)

	case "ctrl+t":
		if m.mode == InputSensor {
			m.mode = InputDirect
		} else {
			m.mode = InputSensor
		}
		m.focus = 0

	case "backspace":
		id := fields[m.focus]
		if v := m.values[id]; v != "" {
			r := []rune(v)
			m.values[id] = string(r[:len(r)-1])
		}
	case "ctrl+u":
		m.values[fields[m.focus]] = ""

	case "ctrl+g":
		// Use the last fix as the next guess
		if m.snapshot.Last != nil {
			p := m.snapshot.Last.Result.Position
			m.state.SetGuess(p)
			m.values[fieldLat] = formatCoord(p.LatDeg)
			m.values[fieldLon] = formatCoord(p.LonDeg)
			m.statusMsg = "Guess set to " + p.String()
		}

	case "enter":
		return m.submit()

	default:
		if msg.Type == tea.KeyRunes {
			id := fields[m.focus]
			for _, r := range msg.Runes {
				if acceptsRune(r) {
					m.values[id] += string(r)
				}
			}
		}
	}
	return nil
}

// submit validates the form and starts an estimate.
func (m *Model) submit() tea.Cmd {
	if m.running {
		return nil
	}
	obs, guess, err := parseForm(m.values, m.mode, m.builder, m.now)
	if err != nil {
		m.statusMsg = "Invalid input: " + err.Error()
		return nil
	}
	m.state.SetObservation(obs)
	m.running = true
	m.statusMsg = ""
	return tea.Batch(runEstimate(m.estimator, obs, guess), animTickCmd())
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.renderHeader() + "\n" + m.renderForm() + "\n" + m.renderResult() + m.renderEvents() + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(renderGradient("☀ LS-SUNFIX"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Position from a sun sighting · v%s", version.Version)))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderResult() string {
	last := m.snapshot.Last
	if last == nil {
		return dimStyle.Render("  No estimate yet") + "\n"
	}
	res := last.Result

	var b strings.Builder
	b.WriteString("  " + report.Headline(res) + "\n")
	b.WriteString(fmt.Sprintf("  observed az %.2f° el %.2f° · modeled az %.2f° el %.2f° · residual %.3f°\n",
		last.Observation.AzimuthDeg, last.Observation.ElevationDeg,
		res.Modeled.AzimuthDeg, res.Modeled.ElevationDeg, res.AngularResidualDeg))
	b.WriteString(fmt.Sprintf("  %s from guess %s\n",
		report.FormatDistance(geo.DistanceKm(last.Guess, res.Position)), last.Guess))

	if m.hasDaylight {
		var day strings.Builder
		report.WriteDaylight(&day, m.daylight)
		for _, line := range strings.Split(strings.TrimRight(day.String(), "\n"), "\n")[1:] {
			b.WriteString(dimStyle.Render("  "+line) + "\n")
		}
	}

	b.WriteString("\n" + sectionStyle.Render("  Stages") + "\n")
	for _, s := range res.Stages {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %-11s %-22s %10.4f %7d cells", s.Stage.Name, s.Center, s.ErrorScore, s.Evaluations)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderEvents() string {
	events := m.snapshot.Events
	if len(events) == 0 {
		return ""
	}
	if len(events) > 5 {
		events = events[len(events)-5:]
	}

	var b strings.Builder
	b.WriteString("\n" + sectionStyle.Render("  Events") + "\n")
	for _, e := range events {
		line := fmt.Sprintf("  %s %-18s %s", e.Timestamp.UTC().Format("15:04:05"), e.Type, e.Detail)
		if e.Type == state.EventError {
			b.WriteString(errorStyle.Render(line))
		} else {
			b.WriteString(dimStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderFooter() string {
	accentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	// Animated spinner frames
	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	var status string
	switch {
	case m.running:
		status = accentStyle.Render(spinnerFrames[m.animTick%len(spinnerFrames)]) + " Estimating..."
	case strings.HasPrefix(m.statusMsg, "Invalid"):
		status = errorStyle.Render(m.statusMsg)
	case m.snapshot.LastError != nil:
		status = errorStyle.Render("ERROR: " + m.snapshot.LastError.Error())
	case m.statusMsg != "":
		status = dimStyle.Render(m.statusMsg)
	default:
		status = dimStyle.Render("Ready")
	}

	help := dimStyle.Render("tab: next | enter: estimate | ctrl+t: input mode | ctrl+g: use fix as guess | esc: quit")
	return "  " + status + "  " + dimStyle.Render("|") + "  " + help
}

// renderGradient renders text with a horizontal sunrise gradient.
func renderGradient(text string) string {
	runes := []rune(text)
	var b strings.Builder
	for i, r := range runes {
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(gradientColor(i, len(runes))))
		b.WriteString(style.Render(string(r)))
	}
	return b.String()
}

// gradientColor returns a hex color for a position in the title gradient:
// gold -> orange -> red.
func gradientColor(col, width int) string {
	x := 0.0
	if width > 1 {
		x = float64(col) / float64(width-1)
	}

	var r, g, b float64
	if x < 0.5 {
		// Gold (#FACC15) to orange (#F97316)
		t := x / 0.5
		r = 250 + t*(249-250)
		g = 204 + t*(115-204)
		b = 21 + t*(22-21)
	} else {
		// Orange to red (#DC2626)
		t := (x - 0.5) / 0.5
		r = 249 + t*(220-249)
		g = 115 + t*(38-115)
		b = 22 + t*(38-22)
	}

	return fmt.Sprintf("#%02X%02X%02X", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v float64) int {
	i := int(v)
	if i < 0 {
		return 0
	}
	if i > 255 {
		return 255
	}
	return i
}

func runEstimate(est *locate.Estimator, obs sensor.Observation, guess geo.GeoPosition) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		res, err := est.Estimate(obs, guess)
		return estimateDoneMsg{
			estimate: state.Estimate{Observation: obs, Guess: guess, Result: res, Took: time.Since(start)},
			err:      err,
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func animTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}

// ForwardObservations delivers every observation from a sensor feed to the
// program via send (usually tea.Program.Send) until in closes or ctx is done.
func ForwardObservations(ctx context.Context, in <-chan sensor.Observation, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-in:
			if !ok {
				return
			}
			send(ObservationMsg{Observation: obs})
		}
	}
}
