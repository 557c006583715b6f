package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

// InputMode selects how the sun direction is entered.
type InputMode int

const (
	// InputSensor takes a magnetic heading, pitch and declination.
	InputSensor InputMode = iota
	// InputDirect takes a true azimuth and elevation.
	InputDirect
)

func (m InputMode) String() string {
	if m == InputDirect {
		return "Direct"
	}
	return "Sensor"
}

type fieldID int

const (
	fieldHeading fieldID = iota
	fieldPitch
	fieldDeclination
	fieldAzimuth
	fieldElevation
	fieldTime
	fieldLat
	fieldLon
	numFields
)

var fieldLabels = [numFields]string{
	fieldHeading:     "Heading (mag °)",
	fieldPitch:       "Pitch (°)",
	fieldDeclination: "Declination (°)",
	fieldAzimuth:     "Azimuth (°)",
	fieldElevation:   "Elevation (°)",
	fieldTime:        "Time (RFC3339)",
	fieldLat:         "Guess latitude",
	fieldLon:         "Guess longitude",
}

// errEmptyField is wrapped when a required field has no value.
var errEmptyField = errors.New("required")

// visibleFields returns the fields shown in the given mode, in tab order.
func visibleFields(mode InputMode) []fieldID {
	if mode == InputDirect {
		return []fieldID{fieldAzimuth, fieldElevation, fieldTime, fieldLat, fieldLon}
	}
	return []fieldID{fieldHeading, fieldPitch, fieldDeclination, fieldTime, fieldLat, fieldLon}
}

// acceptsRune reports whether r may be typed into a numeric or timestamp
// field.
func acceptsRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case strings.ContainsRune(".-+:TZtz", r):
		return true
	}
	return false
}

func parseField(values [numFields]string, id fieldID) (float64, error) {
	s := strings.TrimSpace(values[id])
	if s == "" {
		return 0, fmt.Errorf("%s: %w", fieldLabels[id], errEmptyField)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", fieldLabels[id], s)
	}
	return v, nil
}

// parseForm turns the form values into an observation and a guess. An empty
// time field means now.
func parseForm(values [numFields]string, mode InputMode, builder sensor.BuilderConfig, now func() time.Time) (sensor.Observation, geo.GeoPosition, error) {
	t := now()
	if s := strings.TrimSpace(values[fieldTime]); s != "" {
		parsed, err := time.Parse(time.RFC3339, strings.ToUpper(s))
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, fmt.Errorf("%s: %q is not RFC3339", fieldLabels[fieldTime], s)
		}
		t = parsed
	}

	var obs sensor.Observation
	switch mode {
	case InputDirect:
		az, err := parseField(values, fieldAzimuth)
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
		el, err := parseField(values, fieldElevation)
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
		obs = sensor.Observation{AzimuthDeg: az, ElevationDeg: el, Time: t}
		if err := obs.Validate(); err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
	default:
		heading, err := parseField(values, fieldHeading)
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
		pitch, err := parseField(values, fieldPitch)
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
		cfg := builder
		if d, err := parseField(values, fieldDeclination); err == nil {
			cfg.DeclinationDeg = d
		} else if !errors.Is(err, errEmptyField) {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
		obs, err = sensor.Build(sensor.Reading{MagneticHeadingDeg: heading, PitchDeg: pitch, Time: t}, cfg)
		if err != nil {
			return sensor.Observation{}, geo.GeoPosition{}, err
		}
	}

	lat, err := parseField(values, fieldLat)
	if err != nil {
		return sensor.Observation{}, geo.GeoPosition{}, err
	}
	lon, err := parseField(values, fieldLon)
	if err != nil {
		return sensor.Observation{}, geo.GeoPosition{}, err
	}
	guess := geo.GeoPosition{LatDeg: lat, LonDeg: lon}
	if err := guess.Validate(); err != nil {
		return sensor.Observation{}, geo.GeoPosition{}, err
	}
	return obs, guess, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// renderForm draws the visible fields with the focused one highlighted.
func (m Model) renderForm() string {
	var b strings.Builder

	tabs := []InputMode{InputSensor, InputDirect}
	var parts []string
	for _, mode := range tabs {
		if mode == m.mode {
			parts = append(parts, activeTabStyle.Render("▶ "+mode.String()))
		} else {
			parts = append(parts, dimStyle.Render("  "+mode.String()))
		}
	}
	b.WriteString("  " + strings.Join(parts, "  ") + "\n\n")

	for i, id := range visibleFields(m.mode) {
		label := fmt.Sprintf("%-17s", fieldLabels[id])
		value := m.values[id]
		if i == m.focus {
			b.WriteString(focusStyle.Render("▶ "+label) + " " + valueStyle.Render(value) + cursorStyle.Render("█"))
		} else {
			if value == "" && id == fieldTime {
				value = dimStyle.Render("now")
			}
			b.WriteString(labelStyle.Render("  "+label) + " " + value)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var (
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	focusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)
