package capture

import (
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
)

// OutcomeKind tags the variant carried by an Outcome.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	// OutcomeCaptured carries the pattern recorded in enroll mode.
	OutcomeCaptured
	// OutcomeMatched carries the score of an accepted verify attempt.
	OutcomeMatched
	// OutcomeRejected carries the score of a verify attempt below threshold.
	OutcomeRejected
	// OutcomeError carries the error that stopped the attempt.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCaptured:
		return model.AttemptCaptured
	case OutcomeMatched:
		return model.AttemptMatched
	case OutcomeRejected:
		return model.AttemptRejected
	case OutcomeError:
		return model.AttemptFailed
	default:
		return "none"
	}
}

// Outcome is the result of a completed attempt. Only the fields that belong to
// Kind are set.
type Outcome struct {
	Kind    OutcomeKind
	Mode    model.Mode
	Pattern model.KeystrokePattern
	Score   float64
	Err     error
}

// Matched reports whether a verify attempt was accepted.
func (o Outcome) Matched() bool {
	return o.Kind == OutcomeMatched
}

// Attempt converts the outcome into a history record. Configuration errors are
// not attempts and return false.
func (o Outcome) Attempt(userID string) (model.Attempt, bool) {
	switch o.Kind {
	case OutcomeNone:
		return model.Attempt{}, false
	case OutcomeError:
		if !xerrors.Is(o.Err, pattern.ErrEmptyPattern) {
			return model.Attempt{}, false
		}
	}
	return model.Attempt{
		UserID:           userID,
		Mode:             o.Mode,
		Outcome:          o.Kind.String(),
		Similarity:       o.Score,
		TotalTime:        o.Pattern.TotalTime,
		AveragePressTime: o.Pattern.AveragePressTime,
		KeyCount:         len(o.Pattern.Timings),
	}, true
}
