// Package report renders estimates as JSON and as a text summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-sunfix/internal/astro"
	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/locate"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

// EstimateExport is the JSON-serializable representation of one estimate.
type EstimateExport struct {
	ObservedAt         time.Time          `json:"observed_at"`
	Observation        sensor.Observation `json:"observation"`
	Guess              geo.GeoPosition    `json:"guess"`
	Position           geo.GeoPosition    `json:"position"`
	ErrorScore         float64            `json:"error_score"`
	AngularResidualDeg float64            `json:"angular_residual_deg"`
	Modeled            locate.Direction   `json:"modeled"`
	Confidence         string             `json:"confidence"`
	ReturnMode         string             `json:"return_mode"`
	DistanceFromGuess  float64            `json:"distance_from_guess_km"`
	Sidereal           *locate.Direction  `json:"sidereal,omitempty"`
	SiderealDeltaDeg   float64            `json:"sidereal_delta_deg,omitempty"`
	Stages             []StageExport      `json:"stages"`
	Daylight           *DaylightExport    `json:"daylight,omitempty"`
}

// DaylightExport is the sun's day at the estimated position. Missing
// crossings are omitted.
type DaylightExport struct {
	Sunrise         *time.Time `json:"sunrise,omitempty"`
	SolarNoon       time.Time  `json:"solar_noon"`
	Sunset          *time.Time `json:"sunset,omitempty"`
	MaxElevationDeg float64    `json:"max_elevation_deg"`
	DayLengthHours  float64    `json:"day_length_hours"`
	PolarDay        bool       `json:"polar_day,omitempty"`
	PolarNight      bool       `json:"polar_night,omitempty"`
}

// StageExport is a JSON-friendly stage trace entry.
type StageExport struct {
	Name        string          `json:"name"`
	RadiusKm    float64         `json:"radius_km"`
	StepKm      float64         `json:"step_km"`
	Center      geo.GeoPosition `json:"center"`
	ErrorScore  float64         `json:"error_score"`
	Evaluations int             `json:"evaluations"`
	Skipped     int             `json:"skipped"`
}

// ExportEstimate converts an estimate to an exportable format. Infinite
// scores (a stage with no in-range cell) are exported as -1 since JSON has
// no infinity.
func ExportEstimate(obs sensor.Observation, guess geo.GeoPosition, res locate.Result) *EstimateExport {
	export := &EstimateExport{
		ObservedAt:         obs.Time,
		Observation:        obs,
		Guess:              guess,
		Position:           res.Position,
		ErrorScore:         finiteOr(res.ErrorScore, -1),
		AngularResidualDeg: res.AngularResidualDeg,
		Modeled:            res.Modeled,
		Confidence:         res.Confidence.String(),
		ReturnMode:         res.Return.String(),
		DistanceFromGuess:  geo.DistanceKm(guess, res.Position),
	}
	if sid, delta, ok := siderealCheck(res.Position, obs.Time, res.Modeled); ok {
		export.Sidereal = &sid
		export.SiderealDeltaDeg = delta
	}
	for _, s := range res.Stages {
		export.Stages = append(export.Stages, StageExport{
			Name:        s.Stage.Name,
			RadiusKm:    s.Stage.RadiusKm,
			StepKm:      s.Stage.StepKm,
			Center:      s.Center,
			ErrorScore:  finiteOr(s.ErrorScore, -1),
			Evaluations: s.Evaluations,
			Skipped:     s.Skipped,
		})
	}
	return export
}

// siderealCheck recomputes the sun at pos through RA/Dec and sidereal time
// and returns its angular distance from the modeled direction.
func siderealCheck(pos geo.GeoPosition, t time.Time, modeled locate.Direction) (locate.Direction, float64, bool) {
	h, err := astro.SiderealSunAt(pos.LatDeg, pos.LonDeg, t)
	if err != nil {
		return locate.Direction{}, 0, false
	}
	sid := locate.Direction{AzimuthDeg: h.AzDeg, ElevationDeg: h.ElDeg}
	return sid, astro.AngularSeparation(h.AzDeg, h.ElDeg, modeled.AzimuthDeg, modeled.ElevationDeg), true
}

// WithDaylight attaches the daylight window at the estimated position.
func (e *EstimateExport) WithDaylight(d astro.DaylightWindow) *EstimateExport {
	export := &DaylightExport{
		SolarNoon:       d.SolarNoon,
		MaxElevationDeg: d.MaxElevation,
		DayLengthHours:  d.DayLength().Hours(),
		PolarDay:        d.PolarDay,
		PolarNight:      d.PolarNight,
	}
	if !d.Sunrise.IsZero() {
		t := d.Sunrise
		export.Sunrise = &t
	}
	if !d.Sunset.IsZero() {
		t := d.Sunset
		export.Sunset = &t
	}
	e.Daylight = export
	return e
}

// Daylight computes the daylight window around t at pos, sampling from
// twelve hours before t to twelve hours after.
func Daylight(pos geo.GeoPosition, t time.Time) (astro.DaylightWindow, error) {
	return astro.NewEphemeris().Daylight(pos.LatDeg, pos.LonDeg, t.Add(-12*time.Hour), 10*time.Minute)
}

// WriteDaylight writes the daylight window as summary lines.
func WriteDaylight(w io.Writer, d astro.DaylightWindow) {
	fmt.Fprintln(w, strings.Repeat("─", 72))
	switch {
	case d.PolarDay:
		fmt.Fprintf(w, "Daylight   polar day, noon %s at %.1f°\n", formatClock(d.SolarNoon), d.MaxElevation)
	case d.PolarNight:
		fmt.Fprintf(w, "Daylight   polar night, sun peaks at %.1f°\n", d.MaxElevation)
	default:
		fmt.Fprintf(w, "Daylight   rise %s  noon %s  set %s  (%s)\n",
			formatClock(d.Sunrise), formatClock(d.SolarNoon), formatClock(d.Sunset), formatDayLength(d.DayLength()))
		fmt.Fprintf(w, "           peak elevation %.1f° (%s)\n", d.MaxElevation, astro.GetElevationTier(d.MaxElevation))
	}
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.UTC().Format("15:04Z")
}

func formatDayLength(d time.Duration) string {
	if d <= 0 {
		return "length unknown"
	}
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// WriteJSON writes the estimate as indented JSON.
func (e *EstimateExport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

var (
	headlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	confidenceStyles = map[locate.Confidence]lipgloss.Style{
		locate.ConfidenceHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("46")),  // green
		locate.ConfidenceMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("226")), // yellow
		locate.ConfidenceLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // red
	}
)

// Headline returns the one-line styled result used by the CLI and the UI.
func Headline(res locate.Result) string {
	conf := confidenceStyles[res.Confidence].Render(res.Confidence.String())
	return headlineStyle.Render("Estimated location: "+res.Position.String()) +
		fmt.Sprintf("  error %.4f (%s)", res.ErrorScore, conf)
}

// WriteSummaryTable writes a plain text summary with the stage trace.
func WriteSummaryTable(w io.Writer, obs sensor.Observation, guess geo.GeoPosition, res locate.Result) {
	fmt.Fprintf(w, "Sun fix @ %s\n", obs.Time.UTC().Format(time.RFC3339))
	fmt.Fprintln(w, strings.Repeat("─", 72))
	fmt.Fprintf(w, "Observed   az %7.2f°  el %6.2f°\n", obs.AzimuthDeg, obs.ElevationDeg)
	fmt.Fprintf(w, "Modeled    az %7.2f°  el %6.2f°  (residual %.3f°)\n",
		res.Modeled.AzimuthDeg, res.Modeled.ElevationDeg, res.AngularResidualDeg)
	fmt.Fprintf(w, "Guess      %s\n", guess)
	fmt.Fprintf(w, "Position   %s  (%s from guess)\n", res.Position, FormatDistance(geo.DistanceKm(guess, res.Position)))
	fmt.Fprintf(w, "Error      %s  confidence %s  return %s\n", formatScore(res.ErrorScore), res.Confidence, res.Return)
	if sid, delta, ok := siderealCheck(res.Position, obs.Time, res.Modeled); ok {
		fmt.Fprintf(w, "Sidereal   az %7.2f°  el %6.2f°  (%.3f° from model)\n", sid.AzimuthDeg, sid.ElevationDeg, delta)
	}
	subLat, subLon := astro.SubsolarPoint(obs.Time)
	fmt.Fprintf(w, "Subsolar   %s\n", geo.GeoPosition{LatDeg: subLat, LonDeg: subLon})

	if len(res.Stages) == 0 {
		return
	}

	fmt.Fprintln(w, strings.Repeat("─", 72))
	fmt.Fprintf(w, "%-11s %-9s %-8s %-22s %-10s %6s %6s\n",
		"Stage", "Radius", "Step", "Center", "Error", "Cells", "Skip")
	fmt.Fprintln(w, strings.Repeat("─", 72))
	for _, s := range res.Stages {
		radius, step := "-", "-"
		if s.Stage.StepKm > 0 {
			radius = FormatDistance(s.Stage.RadiusKm)
			step = FormatDistance(s.Stage.StepKm)
		}
		fmt.Fprintf(w, "%-11s %-9s %-8s %-22s %-10s %6d %6d\n",
			truncateStr(s.Stage.Name, 11),
			radius,
			step,
			s.Center,
			formatScore(s.ErrorScore),
			s.Evaluations,
			s.Skipped,
		)
	}
}

// FormatDistance returns a human-readable distance.
func FormatDistance(km float64) string {
	switch {
	case km < 0:
		return "N/A"
	case km < 1:
		return strconv.FormatFloat(km*1000, 'f', 0, 64) + " m"
	case km < 10:
		return strconv.FormatFloat(km, 'f', 2, 64) + " km"
	case km < 100:
		return strconv.FormatFloat(km, 'f', 1, 64) + " km"
	default:
		return strconv.FormatFloat(km, 'f', 0, 64) + " km"
	}
}

func formatScore(score float64) string {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return "none"
	}
	return strconv.FormatFloat(score, 'f', 4, 64)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}
