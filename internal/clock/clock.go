// Package clock is the time seam used by the session engine and manager so
// debounce/stall timing can be driven deterministically in tests instead of
// sleeping through the production defaults.
package clock

import "time"

// Clock abstracts wall-clock time and timer creation.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer the engine needs.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
