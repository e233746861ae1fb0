package core

import "time"

// Category is a rate-limit bucket with its own ceiling
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryWrite   Category = "write"
	CategoryGeneral Category = "general"
)

// RateDecision is the outcome of a single admission check
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (d RateDecision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
