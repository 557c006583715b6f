package locate

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/sensor"
)

const (
	polishSimplexDeg   = 0.001 // ~110 m
	polishMaxFuncEvals = 2000
)

// polish minimizes the score with Nelder-Mead starting from the last grid
// stage's center. The result is only used when it is in range and strictly
// better than the grid.
func (e *Estimator) polish(obs sensor.Observation, from StageResult, sun sunFunc) (StageResult, bool) {
	evals := 0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			evals++
			p := geo.GeoPosition{LatDeg: x[0], LonDeg: x[1]}
			if !p.InRange() {
				return math.Inf(1)
			}
			h, err := sun(p.LatDeg, p.LonDeg)
			if err != nil {
				return math.Inf(1)
			}
			return e.Score(h, obs)
		},
	}
	settings := &optimize.Settings{FuncEvaluations: polishMaxFuncEvals}
	method := &optimize.NelderMead{SimplexSize: polishSimplexDeg}

	res, err := optimize.Minimize(problem, []float64{from.Center.LatDeg, from.Center.LonDeg}, settings, method)
	if res == nil {
		e.logger.Debug("polish: %v", err)
		return StageResult{}, false
	}
	if err != nil {
		// Evaluation limits still leave a usable best point.
		e.logger.Debug("polish stopped early: %v", err)
	}

	best := geo.GeoPosition{LatDeg: res.X[0], LonDeg: res.X[1]}
	if !best.InRange() || !(res.F < from.ErrorScore) {
		return StageResult{}, false
	}

	return StageResult{
		Stage:       SearchStage{Name: "polish"},
		Center:      best,
		ErrorScore:  res.F,
		Evaluations: evals,
	}, true
}
