// Package clock abstracts the host time source used by the lock,
// backup, and transaction-timeout code, so tests can substitute a fake
// or simulated source of Now() instead of depending on the wall clock.
package clock

import "time"

// Clock is the full interface offered by this package's implementations.
// Its Now method alone is the same shape as github.com/jacobsa/timeutil's
// Clock interface, so any value here is usable directly wherever that
// narrower interface is expected.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// New returns the real wall-clock implementation, the default for every
// caller outside of tests.
func New() Clock {
	return RealClock{}
}
