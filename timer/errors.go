package timer

import "errors"

var (
	// ErrRegistrationFailed is returned by Sleep when the wake service could
	// not schedule the alarm for a new cycle. The returned error also wraps
	// the wake service's error.
	ErrRegistrationFailed = errors.New("wake registration failed")

	// ErrInterrupted is returned by Sleep when its context ends before the
	// caller was released. The returned error also wraps ctx.Err().
	ErrInterrupted = errors.New("sleep interrupted")

	// ErrNegativeDuration is returned by Sleep for durations below zero.
	ErrNegativeDuration = errors.New("negative sleep duration")
)
