package capture

import (
	"time"

	"github.com/coder/quartz"
)

// Stamper timestamps raw key names against a clock. Timestamps are
// milliseconds since the stamper was last armed; with a real clock they come
// from the monotonic reading, so wall-clock jumps never make them go back.
type Stamper struct {
	clock quartz.Clock
	epoch time.Time
}

// NewStamper returns a stamper armed at the clock's current time.
func NewStamper(clock quartz.Clock) *Stamper {
	s := &Stamper{clock: clock}
	s.Arm()
	return s
}

// Arm resets the epoch to now.
func (s *Stamper) Arm() {
	s.epoch = s.clock.Now("capture", "arm")
}

// Event stamps key with the current offset from the epoch.
func (s *Stamper) Event(key string) KeyEvent {
	elapsed := s.clock.Since(s.epoch, "capture", "event")
	return KeyEvent{Key: key, At: float64(elapsed) / float64(time.Millisecond)}
}
