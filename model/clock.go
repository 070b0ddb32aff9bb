package model

import "time"

// Clock supplies the current time to session construction and access tracking.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using time.Now()
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock implements Clock using a fixed time
type FixedClock struct {
	Fixed time.Time
}

func (fc FixedClock) Now() time.Time {
	return fc.Fixed
}
