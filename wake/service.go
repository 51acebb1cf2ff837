package wake

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRunning is returned by Register when the service is not started.
	ErrNotRunning = errors.New("wake service is not running")
	// ErrExhausted is returned by Register when every handle of the service is
	// held by an outstanding registration.
	ErrExhausted = errors.New("no wake handles available")
	// ErrUnsupported is returned when a backend is not available on this
	// platform.
	ErrUnsupported = errors.New("wake backend not supported on this platform")
	// ErrInvalidDuration is returned by Register for negative durations.
	ErrInvalidDuration = errors.New("invalid wake duration")
)

// Handle identifies one outstanding registration with a Service. Handles are
// comparable; the zero Handle never identifies a registration.
type Handle struct {
	action string
	id     int
}

// NewHandle returns the handle for registration id of the given action.
func NewHandle(action string, id int) Handle {
	return Handle{action: action, id: id}
}

// ID returns the numeric part of the handle.
func (h Handle) ID() int { return h.id }

// Action returns the action name the handle belongs to.
func (h Handle) Action() string { return h.action }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s.%d", h.action, h.id)
}

// MarshalText renders h as its String form, so structured logs and JSON show
// "action.id" rather than an empty object.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// Callback is invoked when a registration fires. It runs on a goroutine owned
// by the Service and receives the handle Register returned.
type Callback func(Handle)

//go:generate mockery --case underscore --name Service

// Service is the contract a Wake Service fulfills.
//
// Register schedules a one-shot wake no earlier than d from now. The callback
// is invoked exactly once per successful Register, asynchronously, unless the
// registration is canceled first. Implementations must never invoke the
// callback from within Register itself.
//
// Cancel revokes a registration. It is safe to call for a registration that
// already fired or was already canceled, in which case it does nothing.
type Service interface {
	Register(d time.Duration, cb Callback) (Handle, error)
	Cancel(h Handle) error
}
