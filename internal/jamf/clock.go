package jamf

import "time"

// Clock abstracts time.Now so token age can be controlled in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}
