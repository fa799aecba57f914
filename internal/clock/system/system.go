// Package system is the wall-clock implementation of the scraper.Clock
// seam. Scrape cycles and the scheduler take their notion of time from it
// so tests can substitute a fake.
package system

import "time"

// Clock reads the system clock.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current instant in UTC, the zone every snapshot
// timestamp is recorded in.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
