package reconcile

import "time"

// Clock abstracts wall time for the poller so cadence decisions are testable
// without sleeping. Implemented by realClock (production) and
// testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
