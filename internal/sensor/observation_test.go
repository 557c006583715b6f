package sensor

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBuildObservation(t *testing.T) {
	tests := []struct {
		name        string
		heading     float64
		pitch       float64
		declination float64
		wantAz      float64
		wantEl      float64
	}{
		{"steep, no flip", 170, 60, 0, 170, 30},
		{"flat, heading below 180 flips up", 100, 10, 0, 280, 80},
		{"flat, heading above 180 flips down", 250, 30, 0, 70, 60},
		{"declination added before flip", 170, 20, 10.97, 0.97, 70},
		{"declination wraps past north", 355, 50, 10.97, 5.97, 40},
		{"wrapped heading then flipped", 355, 10, 10.97, 185.97, 80},
		{"exactly 180 true heading flips to 0", 180, 10, 0, 0, 80},
		{"threshold pitch is not flipped", 90, 45, 0, 90, 45},
		{"vertical pitch puts sun on the horizon", 200, 90, 0, 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := BuildObservation(tt.heading, tt.pitch, tt.declination)
			if err != nil {
				t.Fatalf("BuildObservation: %v", err)
			}
			if math.Abs(obs.AzimuthDeg-tt.wantAz) > 1e-9 {
				t.Errorf("Az = %v, want %v", obs.AzimuthDeg, tt.wantAz)
			}
			if math.Abs(obs.ElevationDeg-tt.wantEl) > 1e-9 {
				t.Errorf("El = %v, want %v", obs.ElevationDeg, tt.wantEl)
			}
			if obs.AzimuthDeg < 0 || obs.AzimuthDeg >= 360 {
				t.Errorf("Az = %v outside [0,360)", obs.AzimuthDeg)
			}
		})
	}
}

func TestBuildObservation_AmbiguityFlip(t *testing.T) {
	flat, err := BuildObservation(0, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	steep, err := BuildObservation(0, 60, 0)
	if err != nil {
		t.Fatal(err)
	}

	diff := math.Mod(math.Abs(flat.AzimuthDeg-steep.AzimuthDeg), 360)
	if math.Abs(diff-180) > 1e-9 {
		t.Errorf("flat Az = %v, steep Az = %v, want 180° apart", flat.AzimuthDeg, steep.AzimuthDeg)
	}
}

func TestBuildObservation_CustomPolicy(t *testing.T) {
	never := FlipPolicy{ThresholdDeg: -1}
	obs, err := BuildObservation(100, 10, 0, never)
	if err != nil {
		t.Fatal(err)
	}
	if obs.AzimuthDeg != 100 {
		t.Errorf("Az = %v, want 100 with flipping disabled", obs.AzimuthDeg)
	}
}

func TestBuildObservation_InvalidReading(t *testing.T) {
	tests := []struct {
		name                 string
		heading, pitch, decl float64
	}{
		{"NaN heading", math.NaN(), 50, 0},
		{"infinite declination", 10, 50, math.Inf(1)},
		{"negative pitch", 10, -5, 0},
		{"pitch past vertical", 10, 181, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildObservation(tt.heading, tt.pitch, tt.decl)
			if !errors.Is(err, ErrInvalidReading) {
				t.Errorf("error = %v, want ErrInvalidReading", err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	ts := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)

	obs, err := Build(Reading{MagneticHeadingDeg: 230, HeadingAccuracyDeg: 5, PitchDeg: 50, Time: ts}, DefaultBuilderConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !obs.Time.Equal(ts) {
		t.Errorf("Time = %v, want %v", obs.Time, ts)
	}
	if math.Abs(obs.AzimuthDeg-240.97) > 1e-9 {
		t.Errorf("Az = %v, want 240.97", obs.AzimuthDeg)
	}
	if err := obs.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	_, err = Build(Reading{MagneticHeadingDeg: 230, HeadingAccuracyDeg: -1, PitchDeg: 50, Time: ts}, DefaultBuilderConfig())
	if !errors.Is(err, ErrUncalibrated) {
		t.Errorf("uncalibrated error = %v, want ErrUncalibrated", err)
	}
}

func TestObservation_Validate(t *testing.T) {
	ts := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		obs  Observation
		ok   bool
	}{
		{"valid", Observation{180, 45, ts}, true},
		{"azimuth 360", Observation{360, 45, ts}, false},
		{"negative azimuth", Observation{-1, 45, ts}, false},
		{"elevation above zenith", Observation{10, 90.5, ts}, false},
		{"NaN elevation", Observation{10, math.NaN(), ts}, false},
		{"no timestamp", Observation{10, 10, time.Time{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if tt.ok != (err == nil) {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidObservation) {
				t.Errorf("Validate() = %v, want ErrInvalidObservation", err)
			}
		})
	}
}

func TestAttitudeHelpers(t *testing.T) {
	if got := PitchFromAttitude(math.Pi / 4); math.Abs(got-45) > 1e-9 {
		t.Errorf("PitchFromAttitude(π/4) = %v, want 45", got)
	}
	if got := PitchFromAccel(-1, 0, 0); math.Abs(got-90) > 1e-9 {
		t.Errorf("PitchFromAccel(-1,0,0) = %v, want 90", got)
	}
	if got := PitchFromAccel(0, 0, 1); math.Abs(got) > 1e-9 {
		t.Errorf("PitchFromAccel(0,0,1) = %v, want 0", got)
	}
}
