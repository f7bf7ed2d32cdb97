package refresh

import "time"

// Clock abstracts time for the scheduler so tests can drive timer fires
// deterministically.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn in its own goroutine after d elapses and
	// returns a handle that can cancel the pending call.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call
	// was still pending.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }
