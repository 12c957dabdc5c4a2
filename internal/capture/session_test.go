package capture

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
)

type keyPress struct {
	key            string
	press, release float64
}

// typePhrase feeds each press/release pair in order, then the final text.
func typePhrase(s *Session, presses []keyPress, text string) (Outcome, bool) {
	for _, p := range presses {
		s.OnKeyDown(KeyEvent{Key: p.key, At: p.press})
		s.OnKeyUp(KeyEvent{Key: p.key, At: p.release})
	}
	return s.OnTextChange(text)
}

var thPresses = []keyPress{
	{key: "t", press: 0, release: 50},
	{key: "h", press: 60, release: 100},
}

func TestEnrollCapturesPattern(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.Equal(t, StateIdle, s.State())
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	require.Equal(t, StateRecording, s.State())

	out, ok := typePhrase(s, thPresses, "th")
	require.True(t, ok)
	require.Equal(t, StateSuccess, s.State())
	require.Equal(t, OutcomeCaptured, out.Kind)
	require.Equal(t, model.ModeEnroll, out.Mode)
	require.Equal(t, 100.0, out.Pattern.TotalTime)
	require.Equal(t, 45.0, out.Pattern.AveragePressTime)
	require.Equal(t, out, s.LastOutcome())
}

func TestVerifyIdenticalTimingMatches(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	ref := model.KeystrokePattern{TotalTime: 100, AveragePressTime: 45}
	require.NoError(t, s.Start("th", model.ModeVerify, &ref))

	out, ok := typePhrase(s, thPresses, "th")
	require.True(t, ok)
	require.Equal(t, StateSuccess, s.State())
	require.Equal(t, OutcomeMatched, out.Kind)
	require.True(t, out.Matched())
	require.Equal(t, 1.0, out.Score)
}

func TestVerifySlowerReferenceRejected(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	ref := model.KeystrokePattern{TotalTime: 1000, AveragePressTime: 45}
	require.NoError(t, s.Start("th", model.ModeVerify, &ref))

	out, ok := typePhrase(s, thPresses, "th")
	require.True(t, ok)
	require.Equal(t, StateError, s.State())
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Less(t, out.Score, pattern.DefaultThreshold)
}

func TestVerifyWithoutReferenceFailsOnStart(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	err := s.Start("th", model.ModeVerify, nil)
	require.True(t, xerrors.Is(err, ErrMissingReference))
	require.Equal(t, StateError, s.State())
	require.Equal(t, OutcomeError, s.LastOutcome().Kind)

	// Events are not recorded after a configuration error.
	s.OnKeyDown(KeyEvent{Key: "t", At: 0})
	require.Empty(t, s.Timings())
}

func TestStartValidatesInput(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.True(t, xerrors.Is(s.Start("", model.ModeEnroll, nil), ErrEmptyPhrase))
	require.True(t, xerrors.Is(s.Start("th", model.Mode("login"), nil), ErrUnknownMode))
}

func TestRestartDiscardsBuffer(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	s.OnKeyDown(KeyEvent{Key: "t", At: 0})
	s.OnKeyUp(KeyEvent{Key: "t", At: 10})
	s.OnKeyDown(KeyEvent{Key: "h", At: 20})
	s.OnTextChange("t")
	require.Len(t, s.Timings(), 2)

	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	require.Empty(t, s.Text())
	s.OnKeyDown(KeyEvent{Key: "t", At: 100})
	require.Len(t, s.Timings(), 1)
}

func TestKeyUpWithoutPressIsNoop(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	s.OnKeyDown(KeyEvent{Key: "t", At: 0})
	s.OnKeyUp(KeyEvent{Key: "t", At: 30})
	before := s.Timings()

	s.OnKeyUp(KeyEvent{Key: "x", At: 40})
	s.OnKeyUp(KeyEvent{Key: "t", At: 50})
	require.Equal(t, before, s.Timings())
}

func TestTimingsCopyIsDetached(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	for _, p := range thPresses {
		s.OnKeyDown(KeyEvent{Key: p.key, At: p.press})
		s.OnKeyUp(KeyEvent{Key: p.key, At: p.release})
	}

	snap := s.Timings()
	*snap[0].ReleaseTime = 9000
	snap[1].PressTime = -1
	require.Equal(t, 50.0, *s.Timings()[0].ReleaseTime)

	out, ok := s.OnTextChange("th")
	require.True(t, ok)
	require.Equal(t, 100.0, out.Pattern.TotalTime)
	require.Equal(t, 45.0, out.Pattern.AveragePressTime)
}

func TestKeyUpClosesMostRecentOpenTiming(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("oo", model.ModeEnroll, nil))
	s.OnKeyDown(KeyEvent{Key: "o", At: 0})
	s.OnKeyUp(KeyEvent{Key: "o", At: 20})
	s.OnKeyDown(KeyEvent{Key: "o", At: 30})
	s.OnKeyDown(KeyEvent{Key: "o", At: 35})
	s.OnKeyUp(KeyEvent{Key: "o", At: 60})

	timings := s.Timings()
	require.Len(t, timings, 3)
	require.Equal(t, 20.0, *timings[0].ReleaseTime)
	require.False(t, timings[1].Closed())
	require.Equal(t, 60.0, *timings[2].ReleaseTime)
}

func TestRecordingStopsAtPhraseMatch(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	s.OnKeyDown(KeyEvent{Key: "t", At: 0})
	s.OnKeyUp(KeyEvent{Key: "t", At: 50})
	s.OnKeyDown(KeyEvent{Key: "h", At: 60})

	out, ok := s.OnTextChange("th")
	require.True(t, ok)
	require.Equal(t, OutcomeCaptured, out.Kind)
	// The trailing h is still open and only counts toward the earliest press.
	require.Equal(t, 50.0, out.Pattern.TotalTime)
	require.Equal(t, 50.0, out.Pattern.AveragePressTime)

	s.OnKeyUp(KeyEvent{Key: "h", At: 100})
	s.OnKeyDown(KeyEvent{Key: "x", At: 120})
	require.False(t, s.Timings()[1].Closed())
	require.Len(t, s.Timings(), 2)

	_, ok = s.OnTextChange("th")
	require.False(t, ok)
}

func TestPastedPhraseYieldsEmptyPattern(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))

	out, ok := s.OnTextChange("th")
	require.True(t, ok)
	require.Equal(t, OutcomeError, out.Kind)
	require.True(t, xerrors.Is(out.Err, pattern.ErrEmptyPattern))
	require.Equal(t, StateError, s.State())

	attempt, ok := out.Attempt("alice")
	require.True(t, ok)
	require.Equal(t, model.AttemptFailed, attempt.Outcome)
}

func TestPartialTextKeepsRecording(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("the", model.ModeEnroll, nil))
	_, ok := s.OnTextChange("th")
	require.False(t, ok)
	_, ok = s.OnTextChange("thx")
	require.False(t, ok)
	require.Equal(t, StateRecording, s.State())
	require.Equal(t, "thx", s.Text())
}

func TestResetAbandonsAttempt(t *testing.T) {
	s := NewSession(pattern.Matcher{})
	require.NoError(t, s.Start("th", model.ModeEnroll, nil))
	s.OnKeyDown(KeyEvent{Key: "t", At: 0})
	s.Reset()
	require.Equal(t, StateIdle, s.State())
	require.Empty(t, s.Timings())
	_, ok := s.OnTextChange("th")
	require.False(t, ok)
}

func TestOutcomeAttempt(t *testing.T) {
	out := Outcome{
		Kind:    OutcomeRejected,
		Mode:    model.ModeVerify,
		Score:   0.5,
		Pattern: model.KeystrokePattern{TotalTime: 10, AveragePressTime: 2, Timings: make([]model.KeyTiming, 3)},
	}
	attempt, ok := out.Attempt("bob")
	require.True(t, ok)
	require.Equal(t, "bob", attempt.UserID)
	require.Equal(t, model.AttemptRejected, attempt.Outcome)
	require.Equal(t, 3, attempt.KeyCount)

	_, ok = Outcome{Kind: OutcomeError, Err: ErrMissingReference}.Attempt("bob")
	require.False(t, ok)
}

func TestStamperUsesClockOffsets(t *testing.T) {
	clock := quartz.NewMock(t)
	stamper := NewStamper(clock)

	require.Equal(t, KeyEvent{Key: "t", At: 0}, stamper.Event("t"))
	clock.Advance(50 * time.Millisecond)
	require.Equal(t, 50.0, stamper.Event("t").At)
	clock.Advance(1500 * time.Microsecond)
	require.Equal(t, 51.5, stamper.Event("h").At)

	stamper.Arm()
	require.Equal(t, 0.0, stamper.Event("x").At)
}
