// Package model defines shared data structures.
package model

import "time"

// Mode selects what a capture session does with the derived pattern.
type Mode string

const (
	// ModeEnroll records a new reference pattern.
	ModeEnroll Mode = "enroll"
	// ModeVerify compares a fresh pattern against a reference pattern.
	ModeVerify Mode = "verify"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeEnroll, ModeVerify:
		return Mode(s), true
	default:
		return "", false
	}
}

// KeyTiming is one observed key interaction. Times are monotonic milliseconds.
// A nil ReleaseTime marks an open timing.
type KeyTiming struct {
	Key         string   `json:"key"`
	PressTime   float64  `json:"pressTime"`
	ReleaseTime *float64 `json:"releaseTime"`
}

// Closed reports whether the key-up for this timing was observed.
func (t KeyTiming) Closed() bool {
	return t.ReleaseTime != nil
}

// Dwell returns how long the key was held. It is zero for open timings.
func (t KeyTiming) Dwell() float64 {
	if t.ReleaseTime == nil {
		return 0
	}
	return *t.ReleaseTime - t.PressTime
}

// CloneTimings deep-copies timings, release times included.
func CloneTimings(timings []KeyTiming) []KeyTiming {
	out := make([]KeyTiming, len(timings))
	for i, t := range timings {
		out[i] = t
		if t.ReleaseTime != nil {
			release := *t.ReleaseTime
			out[i].ReleaseTime = &release
		}
	}
	return out
}

// KeystrokePattern is the fingerprint of one completed typing pass.
type KeystrokePattern struct {
	Timings          []KeyTiming `json:"timings"`
	TotalTime        float64     `json:"totalTime"`
	AveragePressTime float64     `json:"averagePressTime"`
}

// Settings defines the authentication settings resolved from flags and config.
type Settings struct {
	User      string
	Phrase    string
	Mode      Mode
	Threshold float64
}

// Enrollment is the stored reference pattern of a user.
type Enrollment struct {
	UserID     string
	Phrase     string
	Pattern    KeystrokePattern
	EnrolledAt time.Time
}

// Outcome labels for recorded attempts.
const (
	AttemptCaptured = "captured"
	AttemptMatched  = "matched"
	AttemptRejected = "rejected"
	AttemptFailed   = "failed"
)

// Attempt is one completed capture session as stored in the history.
type Attempt struct {
	ID               string
	UserID           string
	Mode             Mode
	Outcome          string
	Similarity       float64
	TotalTime        float64
	AveragePressTime float64
	KeyCount         int
	CreatedAt        time.Time
}

// HistoryConfig defines filters for the attempt history.
type HistoryConfig struct {
	User  string
	Since *time.Time
	Last  int
}
