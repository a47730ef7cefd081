package tokens

import "time"

// Clock abstracts time for the refresh scheduler so tests can drive
// slot lifecycles deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
	// After returns a channel that delivers the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// systemClock is the Clock used outside of tests.
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}
