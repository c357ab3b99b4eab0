// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements crawler.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Rendering in the report's zone happens at projection.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
