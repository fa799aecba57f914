// Package snapshot holds the single shared scrape result and the store that
// reconciles the background writer with concurrent HTTP readers.
package snapshot

import (
	"time"

	"github.com/minvand/companion/internal/meter"
)

// Snapshot is the current result record exposed to readers. It is immutable
// once constructed and replaced wholesale after every completed cycle.
type Snapshot struct {
	// OK is true iff the most recent cycle produced a valid reading.
	OK bool
	// Error is the human-readable failure cause, empty when OK.
	Error string
	// Reading is the parsed meter reading. Present when OK; on a failed
	// cycle the scheduler may retain the last known reading here for
	// observability while OK is false.
	Reading *meter.Reading
	// Raw is the matched source substring the reading was parsed from.
	Raw string
	// ScrapedAt is the UTC instant this snapshot was produced.
	ScrapedAt time.Time
}

// NotStarted is the snapshot a process starts with, before the first cycle
// completes.
func NotStarted(at time.Time) Snapshot {
	return Failure("not started", at)
}

// Success builds a snapshot for a successfully parsed reading.
func Success(reading meter.Reading, raw string, at time.Time) Snapshot {
	return Snapshot{
		OK:        true,
		Reading:   &reading,
		Raw:       raw,
		ScrapedAt: at.UTC(),
	}
}

// Failure builds a snapshot for a failed cycle.
func Failure(cause string, at time.Time) Snapshot {
	return Snapshot{
		OK:        false,
		Error:     cause,
		ScrapedAt: at.UTC(),
	}
}
