package capture

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
)

func TestProperty_SessionBuffer(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	keys := gen.SliceOf(gen.OneConstOf("a", "b", "c", "Shift"), reflect.TypeOf(""))

	properties.Property("restart drops every buffered timing", prop.ForAll(
		func(pressed []string) bool {
			s := NewSession(pattern.Matcher{})
			if err := s.Start("abc", model.ModeEnroll, nil); err != nil {
				return false
			}
			for i, key := range pressed {
				s.OnKeyDown(KeyEvent{Key: key, At: float64(i * 10)})
			}
			if err := s.Start("abc", model.ModeEnroll, nil); err != nil {
				return false
			}
			s.OnKeyDown(KeyEvent{Key: "a", At: 1000})
			return len(s.Timings()) == 1
		},
		keys,
	))

	properties.Property("unmatched key-up leaves the buffer unchanged", prop.ForAll(
		func(pressed []string) bool {
			s := NewSession(pattern.Matcher{})
			if err := s.Start("abc", model.ModeEnroll, nil); err != nil {
				return false
			}
			for i, key := range pressed {
				s.OnKeyDown(KeyEvent{Key: key, At: float64(i * 10)})
			}
			before := s.Timings()
			s.OnKeyUp(KeyEvent{Key: "never-pressed", At: 5000})
			after := s.Timings()
			if len(before) != len(after) {
				return false
			}
			for i := range before {
				if before[i].Key != after[i].Key || before[i].PressTime != after[i].PressTime || after[i].Closed() {
					return false
				}
			}
			return true
		},
		keys,
	))

	properties.TestingRun(t)
}
