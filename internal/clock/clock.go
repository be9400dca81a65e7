// Package clock abstracts wall time and delayed callbacks so phase timers
// can be driven by tests.
package clock

import (
	"time"

	wallclock "github.com/benbjohnson/clock"
)

// Timer is a cancellable delayed callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

var system = wallclock.New()

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time { return system.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return system.AfterFunc(d, f)
}
