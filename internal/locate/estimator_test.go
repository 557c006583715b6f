package locate

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/litescript/ls-sunfix/internal/astro"
	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

// observe returns the observation a perfect sensor would make at p.
func observe(t *testing.T, p geo.GeoPosition, tm time.Time) sensor.Observation {
	t.Helper()
	h, err := astro.NewEphemeris().SunAt(p.LatDeg, p.LonDeg, tm)
	if err != nil {
		t.Fatalf("SunAt(%v): %v", p, err)
	}
	return sensor.Observation{AzimuthDeg: h.AzDeg, ElevationDeg: h.ElDeg, Time: tm}
}

func mustEstimator(t *testing.T, cfg Config, opts ...Option) *Estimator {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEstimate_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pos  geo.GeoPosition
		time time.Time
	}{
		{"Mojave afternoon", geo.GeoPosition{LatDeg: 34, LonDeg: -116}, time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)},
		{"Sydney winter noon", geo.GeoPosition{LatDeg: -33.9, LonDeg: 151.2}, time.Date(2024, 6, 21, 2, 0, 0, 0, time.UTC)},
		{"London morning", geo.GeoPosition{LatDeg: 51.5, LonDeg: -0.1}, time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)},
		{"near the antimeridian", geo.GeoPosition{LatDeg: 10, LonDeg: 179.95}, time.Date(2024, 6, 21, 23, 0, 0, 0, time.UTC)},
		{"arctic midnight sun", geo.GeoPosition{LatDeg: 85, LonDeg: 30}, time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC)},
	}

	e := mustEstimator(t, DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Estimate(observe(t, tt.pos, tt.time), tt.pos)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if d := geo.DistanceKm(res.Position, tt.pos); d > 0.1 {
				t.Errorf("Position = %v, %.3f km from %v", res.Position, d, tt.pos)
			}
			if res.ErrorScore > 1e-9 {
				t.Errorf("ErrorScore = %v, want ~0", res.ErrorScore)
			}
			if res.Confidence != ConfidenceHigh {
				t.Errorf("Confidence = %v, want high", res.Confidence)
			}
			if res.AngularResidualDeg > 1e-6 {
				t.Errorf("AngularResidualDeg = %v, want ~0", res.AngularResidualDeg)
			}
		})
	}
}

func TestEstimate_ConvergesFromNearbyGuess(t *testing.T) {
	truth := geo.GeoPosition{LatDeg: 34, LonDeg: -116}
	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	obs := observe(t, truth, tm)

	// ~3 km north-east of the truth
	guess := geo.GeoPosition{LatDeg: 34.02, LonDeg: -115.98}

	e := mustEstimator(t, DefaultConfig())
	res, err := e.Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if d := geo.DistanceKm(res.Position, truth); d > 3 {
		t.Errorf("Position = %v is %.3f km from the truth", res.Position, d)
	}

	h, _ := astro.NewEphemeris().SunAt(guess.LatDeg, guess.LonDeg, tm)
	if res.ErrorScore >= e.Score(h, obs) {
		t.Errorf("ErrorScore %v not better than the guess's %v", res.ErrorScore, e.Score(h, obs))
	}
}

func TestEstimate_MonotonicRefinement(t *testing.T) {
	tm := time.Date(2024, 9, 1, 17, 30, 0, 0, time.UTC)
	obs := observe(t, geo.GeoPosition{LatDeg: 40.7, LonDeg: -74}, tm)

	e := mustEstimator(t, DefaultConfig())
	for _, guess := range []geo.GeoPosition{
		{LatDeg: 34, LonDeg: -116},
		{LatDeg: 45, LonDeg: -80},
		{LatDeg: 0, LonDeg: 0},
	} {
		res, err := e.Estimate(obs, guess)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if len(res.Stages) != 3 {
			t.Fatalf("got %d stages, want 3", len(res.Stages))
		}
		for i := 1; i < len(res.Stages); i++ {
			if res.Stages[i].ErrorScore > res.Stages[i-1].ErrorScore {
				t.Errorf("guess %v: stage %s error %v > stage %s error %v", guess,
					res.Stages[i].Stage.Name, res.Stages[i].ErrorScore,
					res.Stages[i-1].Stage.Name, res.Stages[i-1].ErrorScore)
			}
		}
	}
}

func TestEstimate_SolsticeScenario(t *testing.T) {
	obs := sensor.Observation{
		AzimuthDeg:   180,
		ElevationDeg: 45,
		Time:         time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
	}
	guess := geo.GeoPosition{LatDeg: 34.0, LonDeg: -116.0}

	e := mustEstimator(t, DefaultConfig())
	first, err := e.Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := e.Estimate(obs, guess)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}

	if first.Position != first.Position.Round(4) {
		t.Errorf("Position %v not rounded to 4 decimals", first.Position)
	}
	if !first.Position.InRange() {
		t.Errorf("Position %v out of range", first.Position)
	}
	if math.IsInf(first.ErrorScore, 0) || math.IsNaN(first.ErrorScore) {
		t.Errorf("ErrorScore = %v, want finite", first.ErrorScore)
	}
	// The coarse window is 1000 km wide each way; later stages only add ~51 km.
	if d := geo.DistanceKm(first.Position, guess); d > 1000*math.Sqrt2+60 {
		t.Errorf("Position %v is %.0f km from the guess, outside the search window", first.Position, d)
	}

	// The best fit lies far north of the guess, so the coarse stage stops on
	// the window's top edge and the later stages refine from there.
	if want := (geo.GeoPosition{LatDeg: 43.4685, LonDeg: -104.5378}); first.Position != want {
		t.Errorf("Position = %v, want %v", first.Position, want)
	}
	if math.Abs(first.ErrorScore-509.0256) > 1e-3 {
		t.Errorf("ErrorScore = %.4f, want 509.0256", first.ErrorScore)
	}
	if first.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %v, want low", first.Confidence)
	}
	if len(first.Stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(first.Stages))
	}
	coarse := first.Stages[0]
	if wantLat := guess.LatDeg + 20*50/111.0; math.Abs(coarse.Center.LatDeg-wantLat) > 1e-9 {
		t.Errorf("coarse center lat = %.6f, want top edge %.6f", coarse.Center.LatDeg, wantLat)
	}
	if math.Abs(coarse.Center.LonDeg-(-105.1644)) > 1e-4 {
		t.Errorf("coarse center lon = %.6f, want -105.1644", coarse.Center.LonDeg)
	}
	if coarse.Evaluations != 1681 || coarse.Skipped != 0 {
		t.Errorf("coarse evaluated %d skipped %d, want 1681/0", coarse.Evaluations, coarse.Skipped)
	}
}

func TestEstimate_SkipsCellsBeyondPole(t *testing.T) {
	tm := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	obs := observe(t, geo.GeoPosition{LatDeg: 85, LonDeg: 10}, tm)

	t.Run("default stages", func(t *testing.T) {
		res, err := mustEstimator(t, DefaultConfig()).Estimate(obs, geo.GeoPosition{LatDeg: 89.99, LonDeg: 0})
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		coarse := res.Stages[0]
		// Rows above the pole are dropped; one column each side of the
		// center already lies beyond ±180° this close to the pole.
		if coarse.Evaluations != 21 || coarse.Skipped != 102 {
			t.Errorf("coarse evaluations/skipped = %d/%d, want 21/102", coarse.Evaluations, coarse.Skipped)
		}
		for _, s := range res.Stages {
			if !s.Center.InRange() {
				t.Errorf("stage %s center %v out of range", s.Stage.Name, s.Center)
			}
		}
	})

	t.Run("single wide stage", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Stages = []SearchStage{{Name: "only", RadiusKm: 50, StepKm: 10}}
		res, err := mustEstimator(t, cfg).Estimate(obs, geo.GeoPosition{LatDeg: 89.9, LonDeg: 0})
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		s := res.Stages[0]
		// 11x11 cells: 4 rows beyond 90°N, 4 columns beyond ±180°.
		if s.Evaluations != 49 || s.Skipped != 72 {
			t.Errorf("evaluations/skipped = %d/%d, want 49/72", s.Evaluations, s.Skipped)
		}
		if s.Center.LatDeg > 90 {
			t.Errorf("center latitude %v beyond the pole", s.Center.LatDeg)
		}
	})

	t.Run("far column near the pole", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Stages = []SearchStage{{Name: "only", RadiusKm: 50, StepKm: 10}}
		center := geo.GeoPosition{LatDeg: 89.9, LonDeg: -170}

		// The sighting was taken two rows south and five columns east of
		// the center, an in-range cell more than 180° of longitude away.
		w := geo.DefaultProjection().NewWindow(center, 50, 10)
		truth := geo.GeoPosition{LatDeg: center.LatDeg + float64(-2)*w.LatStep, LonDeg: center.LonDeg + float64(5)*w.LonStep}
		if !truth.InRange() {
			t.Fatalf("truth %v out of range", truth)
		}

		res, err := mustEstimator(t, cfg).Estimate(observe(t, truth, tm), center)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		s := res.Stages[0]
		if s.Evaluations != 42 {
			t.Errorf("evaluations = %d, want 42", s.Evaluations)
		}
		if res.Position != truth.Round(4) {
			t.Errorf("Position = %v, want %v", res.Position, truth.Round(4))
		}
		if res.ErrorScore > 1e-9 {
			t.Errorf("ErrorScore = %v, want 0", res.ErrorScore)
		}
	})

	t.Run("antimeridian", func(t *testing.T) {
		obs := observe(t, geo.GeoPosition{LatDeg: 10, LonDeg: 179.95}, time.Date(2024, 6, 21, 23, 0, 0, 0, time.UTC))
		res, err := mustEstimator(t, DefaultConfig()).Estimate(obs, geo.GeoPosition{LatDeg: 10, LonDeg: 179.95})
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if res.Stages[0].Skipped != 20*41 {
			t.Errorf("coarse skipped = %d, want %d", res.Stages[0].Skipped, 20*41)
		}
	})
}

func TestEstimate_LegacyFineReturn(t *testing.T) {
	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	obs := observe(t, geo.GeoPosition{LatDeg: 34, LonDeg: -116}, tm)
	guess := geo.GeoPosition{LatDeg: 35, LonDeg: -117}

	cfg := DefaultConfig()
	cfg.Return = ReturnLegacyFine
	res, err := mustEstimator(t, cfg).Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if len(res.Stages) != 3 {
		t.Fatalf("got %d stages, want all 3 computed", len(res.Stages))
	}
	fine := res.Stages[1]
	if res.Position != fine.Center.Round(4) {
		t.Errorf("Position = %v, want fine center %v", res.Position, fine.Center.Round(4))
	}
	if res.ErrorScore != fine.ErrorScore {
		t.Errorf("ErrorScore = %v, want fine score %v", res.ErrorScore, fine.ErrorScore)
	}

	refined, err := mustEstimator(t, DefaultConfig()).Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if refined.ErrorScore > res.ErrorScore {
		t.Errorf("most-refined score %v worse than legacy %v", refined.ErrorScore, res.ErrorScore)
	}
}

func TestEstimate_PolishNeverWorsens(t *testing.T) {
	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	obs := observe(t, geo.GeoPosition{LatDeg: 34.01234, LonDeg: -116.05678}, tm)
	guess := geo.GeoPosition{LatDeg: 34, LonDeg: -116}

	plain, err := mustEstimator(t, DefaultConfig()).Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Polish = true
	polished, err := mustEstimator(t, cfg).Estimate(obs, guess)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if polished.ErrorScore > plain.ErrorScore {
		t.Errorf("polished score %v > plain %v", polished.ErrorScore, plain.ErrorScore)
	}
	if n := len(polished.Stages); n == 4 {
		if polished.Stages[3].Stage.Name != "polish" {
			t.Errorf("extra stage named %q, want polish", polished.Stages[3].Stage.Name)
		}
		if polished.Stages[3].ErrorScore >= polished.Stages[2].ErrorScore {
			t.Error("polish stage kept without improving the score")
		}
	} else if n != 3 {
		t.Errorf("got %d stages, want 3 or 4", n)
	}
	if !polished.Position.InRange() {
		t.Errorf("polished position %v out of range", polished.Position)
	}
}

func TestEstimate_InvalidInput(t *testing.T) {
	e := mustEstimator(t, DefaultConfig())
	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	guess := geo.GeoPosition{LatDeg: 34, LonDeg: -116}

	tests := []struct {
		name    string
		obs     sensor.Observation
		guess   geo.GeoPosition
		wantErr error
	}{
		{"azimuth out of range", sensor.Observation{AzimuthDeg: 400, ElevationDeg: 10, Time: tm}, guess, ErrInvalidObservation},
		{"NaN elevation", sensor.Observation{AzimuthDeg: 10, ElevationDeg: math.NaN(), Time: tm}, guess, ErrInvalidObservation},
		{"missing time", sensor.Observation{AzimuthDeg: 10, ElevationDeg: 10}, guess, ErrInvalidObservation},
		{"guess beyond pole", sensor.Observation{AzimuthDeg: 10, ElevationDeg: 10, Time: tm}, geo.GeoPosition{LatDeg: 91}, ErrInvalidGuess},
		{"NaN guess", sensor.Observation{AzimuthDeg: 10, ElevationDeg: 10, Time: tm}, geo.GeoPosition{LonDeg: math.NaN()}, ErrInvalidGuess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Estimate(tt.obs, tt.guess)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Estimate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Wrapped causes stay visible.
	_, err := e.Estimate(sensor.Observation{AzimuthDeg: 400, Time: tm}, guess)
	if !errors.Is(err, sensor.ErrInvalidObservation) {
		t.Errorf("error %v does not wrap sensor.ErrInvalidObservation", err)
	}
}

func TestScore(t *testing.T) {
	obs := sensor.Observation{AzimuthDeg: 359, ElevationDeg: 40}
	h := astro.Horizontal{AzDeg: 1, ElDeg: 41.5}

	cfg := DefaultConfig()
	plain := mustEstimator(t, cfg)
	if got := plain.Score(h, obs); math.Abs(got-(358+15)) > 1e-9 {
		t.Errorf("Score = %v, want 373", got)
	}

	cfg.WrapAzimuth = true
	cfg.ElevationWeight = 2
	wrapped := mustEstimator(t, cfg)
	if got := wrapped.Score(h, obs); math.Abs(got-(2+3)) > 1e-9 {
		t.Errorf("wrapped Score = %v, want 5", got)
	}
}

type fakeRecorder struct {
	stages    []StageResult
	estimates []Result
}

func (f *fakeRecorder) ObserveStage(s StageResult, _ time.Duration) { f.stages = append(f.stages, s) }
func (f *fakeRecorder) ObserveEstimate(r Result, _ time.Duration) { f.estimates = append(f.estimates, r) }

func TestEstimate_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	e := mustEstimator(t, DefaultConfig(), WithRecorder(rec), WithLogger(nil))

	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	res, err := e.Estimate(observe(t, geo.GeoPosition{LatDeg: 34, LonDeg: -116}, tm), geo.GeoPosition{LatDeg: 34.5, LonDeg: -116.5})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if len(rec.stages) != 3 {
		t.Fatalf("recorded %d stages, want 3", len(rec.stages))
	}
	for i, s := range rec.stages {
		if !reflect.DeepEqual(s, res.Stages[i]) {
			t.Errorf("recorded stage %d = %+v, want %+v", i, s, res.Stages[i])
		}
	}
	if len(rec.estimates) != 1 || !reflect.DeepEqual(rec.estimates[0], res) {
		t.Errorf("recorded estimates = %+v", rec.estimates)
	}
	if got := rec.stages[0].Evaluations + rec.stages[0].Skipped; got != DefaultStages()[0].Cells() {
		t.Errorf("coarse cells = %d, want %d", got, DefaultStages()[0].Cells())
	}
}

func TestEstimatePosition(t *testing.T) {
	tm := time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC)
	p := geo.GeoPosition{LatDeg: 34, LonDeg: -116}

	res, err := EstimatePosition(observe(t, p, tm), p, DefaultConfig())
	if err != nil {
		t.Fatalf("EstimatePosition: %v", err)
	}
	if res.Position != p {
		t.Errorf("Position = %v, want %v", res.Position, p)
	}

	bad := DefaultConfig()
	bad.Stages = nil
	if _, err := EstimatePosition(observe(t, p, tm), p, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}
