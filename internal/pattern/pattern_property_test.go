package pattern

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/verte-zerg/keyguard/internal/model"
)

// buildTimings lays out key presses gaps apart, each held for the matching dwell.
func buildTimings(gaps, dwells []float64) []model.KeyTiming {
	n := len(gaps)
	if len(dwells) < n {
		n = len(dwells)
	}
	timings := make([]model.KeyTiming, 0, n)
	at := 0.0
	for i := 0; i < n; i++ {
		at += gaps[i]
		timings = append(timings, released("k", at, at+dwells[i]))
	}
	return timings
}

func TestProperty_Derive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	gaps := gen.SliceOfN(12, gen.Float64Range(0, 400))
	dwells := gen.SliceOfN(12, gen.Float64Range(1, 250))

	properties.Property("derive is deterministic", prop.ForAll(
		func(g, d []float64) bool {
			timings := buildTimings(g, d)
			a, errA := Derive(timings)
			b, errB := Derive(timings)
			if errA != nil || errB != nil {
				return false
			}
			return a.TotalTime == b.TotalTime && a.AveragePressTime == b.AveragePressTime
		},
		gaps, dwells,
	))

	properties.Property("total time is never negative", prop.ForAll(
		func(g, d []float64) bool {
			p, err := Derive(buildTimings(g, d))
			return err == nil && p.TotalTime >= 0
		},
		gaps, dwells,
	))

	properties.TestingRun(t)
}

func TestProperty_Similarity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	positive := gen.Float64Range(0.001, 10000)

	properties.Property("self similarity is exactly one", prop.ForAll(
		func(total, press float64) bool {
			p := model.KeystrokePattern{TotalTime: total, AveragePressTime: press}
			return Similarity(p, p) == 1
		},
		positive, positive,
	))

	properties.Property("similarity is symmetric", prop.ForAll(
		func(t1, p1, t2, p2 float64) bool {
			a := model.KeystrokePattern{TotalTime: t1, AveragePressTime: p1}
			b := model.KeystrokePattern{TotalTime: t2, AveragePressTime: p2}
			return Similarity(a, b) == Similarity(b, a)
		},
		positive, positive, positive, positive,
	))

	properties.Property("match agrees with threshold", prop.ForAll(
		func(t1, p1, t2, p2 float64) bool {
			a := model.KeystrokePattern{TotalTime: t1, AveragePressTime: p1}
			b := model.KeystrokePattern{TotalTime: t2, AveragePressTime: p2}
			return IsMatch(a, b) == (Similarity(a, b) >= DefaultThreshold)
		},
		positive, positive, positive, positive,
	))

	properties.TestingRun(t)
}
