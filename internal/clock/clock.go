// Package clock abstracts wall-clock reads and one-shot callbacks so the
// scheduler can be driven by real time in production and by a fake clock in
// tests.
package clock

import "time"

// Timer is the cancel handle for a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock provides time-related operations.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the default Clock implementation using the standard library.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemClock) Now() time.Time {
	return time.Now()
}
