// Package scraper runs the recurring scrape cycle and publishes snapshots.
package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/minvand/companion/internal/meter"
	"github.com/minvand/companion/internal/metrics"
	"github.com/minvand/companion/internal/portal"
	"github.com/minvand/companion/internal/snapshot"
)

// DashboardFetcher is the session driver seam. The production implementation
// is *portal.Driver.
type DashboardFetcher interface {
	FetchDashboardText(ctx context.Context, creds portal.Credentials) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Cycle performs one full scrape attempt: drive the browser session, extract
// the reading, and fold the outcome into a snapshot.
type Cycle struct {
	fetcher DashboardFetcher
	creds   portal.Credentials
	clock   Clock
	logger  *zap.Logger
}

// NewCycle constructs a Cycle.
func NewCycle(fetcher DashboardFetcher, creds portal.Credentials, clock Clock, logger *zap.Logger) *Cycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cycle{fetcher: fetcher, creds: creds, clock: clock, logger: logger}
}

// Run executes one cycle. It never returns an error: every driver and
// extraction failure is mapped to a failure snapshot, so the scheduler only
// ever receives a completed snapshot.
func (c *Cycle) Run(ctx context.Context) snapshot.Snapshot {
	start := c.clock.Now()

	text, err := c.fetcher.FetchDashboardText(ctx, c.creds)
	if err != nil {
		c.logger.Warn("dashboard fetch failed", zap.Error(err))
		return c.fail(err, start)
	}

	reading, raw, err := meter.Extract(text)
	if err != nil {
		c.logger.Warn("extraction failed", zap.Error(err))
		return c.fail(err, start)
	}

	now := c.clock.Now()
	metrics.ObserveCycle("success", now.Sub(start))
	metrics.SetReading(reading.Volume, reading.ReadAt)
	c.logger.Info("reading scraped",
		zap.Float64("volume_m3", reading.Volume),
		zap.Time("read_at", reading.ReadAt),
	)
	return snapshot.Success(reading, raw, now)
}

func (c *Cycle) fail(err error, start time.Time) snapshot.Snapshot {
	now := c.clock.Now()
	metrics.ObserveCycle(outcomeLabel(err), now.Sub(start))
	return snapshot.Failure(err.Error(), now)
}

// outcomeLabel maps a cycle failure onto its taxonomy name for metrics.
func outcomeLabel(err error) string {
	var driverErr *portal.Error
	if errors.As(err, &driverErr) {
		return string(driverErr.Kind)
	}
	switch {
	case errors.Is(err, meter.ErrPatternNotFound):
		return "PatternNotFound"
	case errors.Is(err, meter.ErrMalformedNumber):
		return "MalformedNumber"
	case errors.Is(err, meter.ErrMalformedDate):
		return "MalformedDate"
	}
	return "error"
}
