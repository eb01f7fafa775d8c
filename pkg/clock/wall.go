package clock

import "time"

// TimeProvider supplies version timestamps for writes that did not pin one
// explicitly. Swappable in tests.
type TimeProvider interface {
	Now() time.Time
}

// Wall reads the system clock.
type Wall struct{}

func (Wall) Now() time.Time {
	return time.Now()
}

// Fixed always returns the same instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time {
	return f.T
}
