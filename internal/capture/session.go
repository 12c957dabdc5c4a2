// Package capture records timed key events for one typing attempt and turns
// the finished attempt into an enroll or verify outcome.
package capture

import (
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingReference is returned when verify mode is started without a reference pattern.
	ErrMissingReference = xerrors.New("verify mode requires a reference pattern")
	// ErrEmptyPhrase is returned when a session is started without a target phrase.
	ErrEmptyPhrase = xerrors.New("target phrase is empty")
	// ErrUnknownMode is returned for modes other than enroll and verify.
	ErrUnknownMode = xerrors.New("unknown capture mode")
)

// KeyEvent is a key-down or key-up notification. At is a monotonic timestamp
// in milliseconds.
type KeyEvent struct {
	Key string
	At  float64
}

// Session owns one recording attempt. Events must be delivered serially; a
// Session is not safe for concurrent use.
type Session struct {
	matcher pattern.Matcher

	state     State
	phrase    string
	mode      model.Mode
	reference *model.KeystrokePattern

	timings []model.KeyTiming
	text    string
	last    Outcome
}

// NewSession returns an idle session using the given matcher.
func NewSession(matcher pattern.Matcher) *Session {
	return &Session{matcher: matcher}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// LastOutcome returns the outcome of the most recent completed attempt.
func (s *Session) LastOutcome() Outcome { return s.last }

// Phrase returns the target phrase of the current attempt.
func (s *Session) Phrase() string { return s.phrase }

// Mode returns the mode of the current attempt.
func (s *Session) Mode() model.Mode { return s.mode }

// Text returns the typed text seen so far.
func (s *Session) Text() string { return s.text }

// Timings returns a deep copy of the buffered timings.
func (s *Session) Timings() []model.KeyTiming {
	return model.CloneTimings(s.timings)
}

// Start begins a new recording and discards anything buffered before. In
// verify mode reference must be set; otherwise the session moves straight to
// the error state.
func (s *Session) Start(phrase string, mode model.Mode, reference *model.KeystrokePattern) error {
	s.Reset()
	s.phrase = phrase
	s.mode = mode
	switch {
	case phrase == "":
		return s.fail(ErrEmptyPhrase)
	case mode != model.ModeEnroll && mode != model.ModeVerify:
		return s.fail(xerrors.Errorf("mode %q: %w", mode, ErrUnknownMode))
	case mode == model.ModeVerify && reference == nil:
		return s.fail(ErrMissingReference)
	}
	if mode == model.ModeVerify {
		ref := *reference
		s.reference = &ref
	}
	s.state = StateRecording
	return nil
}

// Reset abandons any attempt and returns to idle.
func (s *Session) Reset() {
	s.state = StateIdle
	s.phrase = ""
	s.mode = ""
	s.reference = nil
	s.timings = nil
	s.text = ""
	s.last = Outcome{}
}

// OnKeyDown opens a timing for the key.
func (s *Session) OnKeyDown(ev KeyEvent) {
	if s.state != StateRecording {
		return
	}
	s.timings = append(s.timings, model.KeyTiming{Key: ev.Key, PressTime: ev.At})
}

// OnKeyUp closes the most recent open timing for the key. A release without
// a matching press is ignored.
func (s *Session) OnKeyUp(ev KeyEvent) {
	if s.state != StateRecording {
		return
	}
	for i := len(s.timings) - 1; i >= 0; i-- {
		t := &s.timings[i]
		if t.Key != ev.Key || t.Closed() {
			continue
		}
		release := ev.At
		if release < t.PressTime {
			release = t.PressTime
		}
		t.ReleaseTime = &release
		return
	}
}

// OnTextChange records the typed text. Once it equals the phrase the
// recording stops and the outcome is returned with ok set.
func (s *Session) OnTextChange(text string) (Outcome, bool) {
	if s.state != StateRecording {
		return Outcome{}, false
	}
	s.text = text
	if text != s.phrase {
		return Outcome{}, false
	}
	return s.complete(), true
}

func (s *Session) complete() Outcome {
	p, err := pattern.Derive(s.timings)
	if err != nil {
		_ = s.fail(err)
		return s.last
	}
	if s.mode == model.ModeEnroll {
		return s.finish(StateSuccess, Outcome{Kind: OutcomeCaptured, Pattern: p})
	}
	score, ok := s.matcher.Compare(p, *s.reference)
	if ok {
		return s.finish(StateSuccess, Outcome{Kind: OutcomeMatched, Pattern: p, Score: score})
	}
	return s.finish(StateError, Outcome{Kind: OutcomeRejected, Pattern: p, Score: score})
}

func (s *Session) finish(state State, out Outcome) Outcome {
	out.Mode = s.mode
	s.state = state
	s.last = out
	return out
}

func (s *Session) fail(err error) error {
	s.finish(StateError, Outcome{Kind: OutcomeError, Err: err})
	return err
}
