package tui

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/capture"
	"github.com/verte-zerg/keyguard/internal/pattern"
)

type severity int

const (
	severityInfo severity = iota
	severitySuccess
	severityError
)

// notice is the user-facing message for an outcome.
type notice struct {
	title    string
	body     string
	severity severity
}

func (n notice) empty() bool {
	return n.title == ""
}

func noticeFor(out capture.Outcome) notice {
	switch out.Kind {
	case capture.OutcomeCaptured:
		return notice{
			title:    "Pattern Recorded",
			body:     "Your typing pattern has been successfully captured.",
			severity: severitySuccess,
		}
	case capture.OutcomeMatched:
		return notice{
			title:    "Authentication Successful",
			body:     fmt.Sprintf("Your typing pattern matches the recorded pattern (similarity %.2f).", out.Score),
			severity: severitySuccess,
		}
	case capture.OutcomeRejected:
		return notice{
			title:    "Authentication Failed",
			body:     fmt.Sprintf("Your typing pattern does not match (similarity %.2f). Please try again.", out.Score),
			severity: severityError,
		}
	case capture.OutcomeError:
		return errorNotice(out.Err)
	default:
		return notice{}
	}
}

func errorNotice(err error) notice {
	switch {
	case xerrors.Is(err, capture.ErrMissingReference):
		return notice{
			title:    "No Enrolled Pattern",
			body:     "Record your typing pattern before verifying.",
			severity: severityError,
		}
	case xerrors.Is(err, pattern.ErrEmptyPattern):
		return notice{
			title:    "Nothing Recorded",
			body:     "No keystrokes were captured. Type the phrase instead of pasting it.",
			severity: severityError,
		}
	default:
		return notice{title: "Error", body: err.Error(), severity: severityError}
	}
}
