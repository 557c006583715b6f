package locate

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if len(cfg.Stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(cfg.Stages))
	}
	want := []SearchStage{
		{Name: "coarse", RadiusKm: 1000, StepKm: 50},
		{Name: "fine", RadiusKm: 50, StepKm: 1},
		{Name: "extra-fine", RadiusKm: 1, StepKm: 0.1},
	}
	for i, s := range cfg.Stages {
		if s != want[i] {
			t.Errorf("stage %d = %+v, want %+v", i, s, want[i])
		}
	}
	if cfg.ElevationWeight != 10 {
		t.Errorf("ElevationWeight = %v, want 10", cfg.ElevationWeight)
	}
	if cfg.TZOffsetHours != -7 {
		t.Errorf("TZOffsetHours = %v, want -7", cfg.TZOffsetHours)
	}
	if cfg.Return != ReturnMostRefined || cfg.Polish || cfg.WrapAzimuth {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSearchStage_Cells(t *testing.T) {
	tests := []struct {
		stage SearchStage
		want  int
	}{
		{SearchStage{RadiusKm: 1000, StepKm: 50}, 41 * 41},
		{SearchStage{RadiusKm: 50, StepKm: 1}, 101 * 101},
		{SearchStage{RadiusKm: 1, StepKm: 0.1}, 21 * 21},
		{SearchStage{RadiusKm: 5, StepKm: 10}, 1},
		{SearchStage{RadiusKm: 1e12, StepKm: 1e-12}, math.MaxInt},
	}
	for _, tt := range tests {
		if got := tt.stage.Cells(); got != tt.want {
			t.Errorf("%+v.Cells() = %d, want %d", tt.stage, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no stages", func(c *Config) { c.Stages = nil }},
		{"zero step", func(c *Config) { c.Stages[1].StepKm = 0 }},
		{"negative radius", func(c *Config) { c.Stages[0].RadiusKm = -1 }},
		{"NaN radius", func(c *Config) { c.Stages[2].RadiusKm = math.NaN() }},
		{"infinite radius", func(c *Config) { c.Stages[0].RadiusKm = math.Inf(1) }},
		{"too many cells", func(c *Config) { c.Stages = []SearchStage{{Name: "huge", RadiusKm: 1000, StepKm: 0.1}} }},
		{"not finer", func(c *Config) { c.Stages[1].RadiusKm = 1000 }},
		{"step not finer", func(c *Config) { c.Stages[2].StepKm = 1 }},
		{"negative weight", func(c *Config) { c.ElevationWeight = -1 }},
		{"NaN weight", func(c *Config) { c.ElevationWeight = math.NaN() }},
		{"zone offset", func(c *Config) { c.TZOffsetHours = 15 }},
		{"km factor", func(c *Config) { c.KmPerDegLon = 0 }},
		{"legacy one stage", func(c *Config) {
			c.Return = ReturnLegacyFine
			c.Stages = c.Stages[:1]
		}},
		{"legacy with polish", func(c *Config) {
			c.Return = ReturnLegacyFine
			c.Polish = true
		}},
		{"unknown return", func(c *Config) { c.Return = ReturnMode(7) }},
		{"round decimals", func(c *Config) { c.RoundDecimals = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_ValidVariants(t *testing.T) {
	single := DefaultConfig()
	single.Stages = []SearchStage{{Name: "only", RadiusKm: 10, StepKm: 1}}

	weightless := DefaultConfig()
	weightless.ElevationWeight = 0

	legacy := DefaultConfig()
	legacy.Return = ReturnLegacyFine

	for name, cfg := range map[string]Config{"single": single, "weightless": weightless, "legacy": legacy} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v", name, err)
		}
	}
}

func TestEstimator_ConfigIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg.Stages[0].RadiusKm = 1

	got := e.Config()
	if got.Stages[0].RadiusKm != 1000 {
		t.Errorf("estimator shares the caller's stage slice")
	}
	got.Stages[0].RadiusKm = 2
	if e.Config().Stages[0].RadiusKm != 1000 {
		t.Errorf("Config() exposes the estimator's stage slice")
	}
}

func TestReturnMode_String(t *testing.T) {
	if ReturnMostRefined.String() != "most-refined" || ReturnLegacyFine.String() != "legacy-fine" {
		t.Errorf("got %q, %q", ReturnMostRefined, ReturnLegacyFine)
	}
	if ReturnMode(9).String() != "unknown" {
		t.Errorf("got %q", ReturnMode(9))
	}
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Confidence
	}{
		{0, ConfidenceHigh},
		{0.49, ConfidenceHigh},
		{0.5, ConfidenceMedium},
		{4.99, ConfidenceMedium},
		{5, ConfidenceLow},
		{math.Inf(1), ConfidenceLow},
	}
	for _, tt := range tests {
		if got := ConfidenceFor(tt.score); got != tt.want {
			t.Errorf("ConfidenceFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}

	b, err := ConfidenceMedium.MarshalText()
	if err != nil || string(b) != "medium" {
		t.Errorf("MarshalText() = %q, %v", b, err)
	}
}
