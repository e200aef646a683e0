// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements monitor.Clock. Now keeps the monotonic reading so
// response times and cycle durations survive wall-clock steps; callers
// convert to UTC where a time is formatted or persisted.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time with its monotonic reading.
func (Clock) Now() time.Time {
	return time.Now()
}
