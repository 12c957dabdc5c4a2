// Package script reads recorded key events from TOML files and replays them
// into a capture session.
package script

import (
	"io"
	"math"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/capture"
)

// Event kinds.
const (
	KindDown = "down"
	KindUp   = "up"
	KindText = "text"
)

// Event is one recorded input notification. Text is only used by text events.
type Event struct {
	Kind string  `toml:"kind"`
	Key  string  `toml:"key"`
	At   float64 `toml:"at"`
	Text string  `toml:"text"`
}

// Press is a key held from Down to Up. It expands into a down and an up event.
type Press struct {
	Key  string   `toml:"key"`
	Down float64  `toml:"down"`
	Up   *float64 `toml:"up"`
}

// Script is a replayable typing attempt.
type Script struct {
	Phrase  string  `toml:"phrase"`
	Events  []Event `toml:"event"`
	Presses []Press `toml:"press"`
}

// Load decodes a script file.
func Load(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return Script{}, xerrors.Errorf("open script: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close for read-only script.
			_ = cerr
		}
	}()
	return Decode(f)
}

// Decode parses a script and validates its events.
func Decode(r io.Reader) (Script, error) {
	var s Script
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return Script{}, xerrors.Errorf("decode script: %w", err)
	}
	for i, ev := range s.Events {
		if !finite(ev.At) {
			return Script{}, xerrors.Errorf("event %d: timestamp %v is not finite", i, ev.At)
		}
		switch ev.Kind {
		case KindDown, KindUp:
			if ev.Key == "" {
				return Script{}, xerrors.Errorf("event %d: %s event without key", i, ev.Kind)
			}
		case KindText:
		default:
			return Script{}, xerrors.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
	}
	for i, p := range s.Presses {
		if p.Key == "" {
			return Script{}, xerrors.Errorf("press %d: missing key", i)
		}
		if !finite(p.Down) || (p.Up != nil && !finite(*p.Up)) {
			return Script{}, xerrors.Errorf("press %d: timestamps must be finite", i)
		}
		if p.Up != nil && *p.Up < p.Down {
			return Script{}, xerrors.Errorf("press %d: released before pressed", i)
		}
	}
	return s, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Timeline merges raw events and expanded presses, ordered by time. Events
// sharing a timestamp keep their file order, raw events first.
func (s Script) Timeline() []Event {
	events := make([]Event, 0, len(s.Events)+2*len(s.Presses))
	events = append(events, s.Events...)
	for _, p := range s.Presses {
		events = append(events, Event{Kind: KindDown, Key: p.Key, At: p.Down})
		if p.Up != nil {
			events = append(events, Event{Kind: KindUp, Key: p.Key, At: *p.Up})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At < events[j].At
	})
	return events
}

// Replay feeds the timeline into a started session. When the script carries
// no text events the phrase is submitted once all key events are delivered.
// It returns the outcome and whether the attempt completed.
func (s Script) Replay(session *capture.Session) (capture.Outcome, bool) {
	sawText := false
	for _, ev := range s.Timeline() {
		switch ev.Kind {
		case KindDown:
			session.OnKeyDown(capture.KeyEvent{Key: ev.Key, At: ev.At})
		case KindUp:
			session.OnKeyUp(capture.KeyEvent{Key: ev.Key, At: ev.At})
		case KindText:
			sawText = true
			if out, ok := session.OnTextChange(ev.Text); ok {
				return out, true
			}
		}
	}
	if sawText {
		return capture.Outcome{}, false
	}
	return session.OnTextChange(session.Phrase())
}
