// Package pattern derives keystroke fingerprints and scores their similarity.
package pattern

import (
	"math"

	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"
)

// DefaultThreshold is the minimum similarity accepted as the same typist.
const DefaultThreshold = 0.75

// ErrEmptyPattern is returned when no key timing was ever closed, for example
// when the phrase was pasted instead of typed.
var ErrEmptyPattern = xerrors.New("no completed key timings to derive a pattern from")

// Derive reduces raw timings to a fingerprint. Open timings take part in the
// earliest press but are otherwise ignored.
func Derive(timings []model.KeyTiming) (model.KeystrokePattern, error) {
	if len(timings) == 0 {
		return model.KeystrokePattern{}, ErrEmptyPattern
	}
	firstPress := timings[0].PressTime
	lastRelease := math.Inf(-1)
	var dwellSum float64
	closed := 0
	for _, t := range timings {
		if t.PressTime < firstPress {
			firstPress = t.PressTime
		}
		if !t.Closed() {
			continue
		}
		closed++
		dwellSum += t.Dwell()
		if *t.ReleaseTime > lastRelease {
			lastRelease = *t.ReleaseTime
		}
	}
	if closed == 0 {
		return model.KeystrokePattern{}, ErrEmptyPattern
	}
	return model.KeystrokePattern{
		Timings:          model.CloneTimings(timings),
		TotalTime:        lastRelease - firstPress,
		AveragePressTime: dwellSum / float64(closed),
	}, nil
}

// Similarity scores two patterns. Identical patterns score 1. The score is
// not clamped and goes negative when one value dwarfs the other.
func Similarity(a, b model.KeystrokePattern) float64 {
	timingDiff := relDiff(a.TotalTime, b.TotalTime)
	pressDiff := relDiff(a.AveragePressTime, b.AveragePressTime)
	return 1 - (timingDiff+pressDiff)/2
}

// IsMatch reports whether the patterns score at least DefaultThreshold.
func IsMatch(a, b model.KeystrokePattern) bool {
	return Similarity(a, b) >= DefaultThreshold
}

// Matcher compares patterns against a configurable threshold.
// The zero value uses DefaultThreshold.
type Matcher struct {
	Threshold float64
}

// Compare returns the similarity score and whether it reaches the threshold.
func (m Matcher) Compare(a, b model.KeystrokePattern) (float64, bool) {
	score := Similarity(a, b)
	return score, score >= m.threshold()
}

func (m Matcher) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultThreshold
	}
	return m.Threshold
}

// relDiff is |x-y| / max(x, y). Equal values differ by 0, which also covers
// the 0/0 case.
func relDiff(x, y float64) float64 {
	if x == y {
		return 0
	}
	return math.Abs(x-y) / math.Max(x, y)
}
