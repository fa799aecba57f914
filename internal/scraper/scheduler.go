package scraper

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minvand/companion/internal/snapshot"
)

// PollConfig holds the adaptive schedule knobs, all as durations.
type PollConfig struct {
	// Idle is the spacing between cycles while no fresh data is expected.
	Idle time.Duration
	// ProbeAfter is how old the last value change must be before the
	// scheduler starts probing for the next one.
	ProbeAfter time.Duration
	// Probe is the spacing between cycles while probing.
	Probe time.Duration
	// ProbeMax bounds a probe window before falling back to idle.
	ProbeMax time.Duration
	// Min is the hard floor between consecutive cycle starts.
	Min time.Duration
	// Jitter is the maximum random extra delay added to every sleep, so many
	// installations do not hit the portal at the exact same second.
	Jitter time.Duration
}

// CycleRunner is what the scheduler drives; the production implementation is
// *Cycle.
type CycleRunner interface {
	Run(ctx context.Context) snapshot.Snapshot
}

// Scheduler runs cycles forever on an adaptive interval. Cycles are fully
// serialized: the next one is scheduled strictly after the previous one
// completes, so a slow cycle can never overlap the next.
type Scheduler struct {
	cycle   CycleRunner
	store   *snapshot.Store
	clock   Clock
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
	cfg     PollConfig
	logger  *zap.Logger
}

// NewScheduler constructs a Scheduler publishing into store.
func NewScheduler(cycle CycleRunner, store *snapshot.Store, cfg PollConfig, clock Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Idle < cfg.Min {
		cfg.Idle = cfg.Min
	}
	if cfg.Probe < cfg.Min {
		cfg.Probe = cfg.Min
	}
	var limiter *rate.Limiter
	if cfg.Min > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Min), 1)
	}
	return &Scheduler{
		cycle:   cycle,
		store:   store,
		clock:   clock,
		limiter: limiter,
		sleep:   sleepContext,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks until ctx is canceled. The first cycle starts immediately; the
// loop survives any number of consecutive failures.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("idle", s.cfg.Idle),
		zap.Duration("probe_after", s.cfg.ProbeAfter),
		zap.Duration("probe", s.cfg.Probe),
		zap.Duration("probe_max", s.cfg.ProbeMax),
		zap.Duration("min", s.cfg.Min),
		zap.Duration("jitter", s.cfg.Jitter),
	)

	var (
		lastKey    string
		lastChange time.Time
		probeStart time.Time
		probing    bool
		backoff    = s.cfg.Min
	)

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		snap := s.cycle.Run(ctx)
		if ctx.Err() != nil {
			// Shutdown abandoned the in-flight cycle; do not publish its
			// partial outcome.
			return
		}
		s.publish(snap)

		now := s.clock.Now()
		var wait time.Duration
		if !snap.OK {
			backoff = minDuration(backoff*2, s.cfg.Idle)
			wait = backoff
			s.logger.Warn("cycle failed",
				zap.String("error", snap.Error),
				zap.Duration("backoff", wait),
			)
		} else {
			backoff = s.cfg.Min
			if key := readingKey(snap); key != lastKey {
				lastKey = key
				lastChange = now
				probing = false
				s.logger.Info("new reading detected", zap.String("reading", key))
			}
			wait = s.nextWait(now, lastChange, &probing, &probeStart)
		}

		if err := s.sleep(ctx, s.withJitter(wait)); err != nil {
			return
		}
	}
}

// publish retains the last good reading on failure snapshots so state_raw
// keeps showing it while ok is false, then swaps the store.
func (s *Scheduler) publish(snap snapshot.Snapshot) {
	if !snap.OK {
		if prev := s.store.Get(); prev.Reading != nil {
			snap.Reading = prev.Reading
			snap.Raw = prev.Raw
		}
	}
	s.store.Set(snap)
}

// nextWait decides the idle/probe spacing after a successful cycle.
func (s *Scheduler) nextWait(now, lastChange time.Time, probing *bool, probeStart *time.Time) time.Duration {
	if lastChange.IsZero() {
		// No value change observed yet; look again reasonably soon.
		return clampDuration(minDuration(s.cfg.Idle, 5*time.Minute), s.cfg.Min, s.cfg.Idle)
	}

	age := now.Sub(lastChange)
	if !*probing {
		if s.cfg.ProbeAfter > 0 && age >= s.cfg.ProbeAfter {
			*probing = true
			*probeStart = now
			s.logger.Info("entering probe mode", zap.Duration("data_age", age))
			return s.cfg.Probe
		}
		return s.cfg.Idle
	}

	if now.Sub(*probeStart) >= s.cfg.ProbeMax {
		*probing = false
		s.logger.Info("probe window expired, returning to idle")
		return s.cfg.Idle
	}
	return s.cfg.Probe
}

func (s *Scheduler) withJitter(d time.Duration) time.Duration {
	if s.cfg.Jitter <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(s.cfg.Jitter)))
	if err != nil {
		return d + s.cfg.Jitter/2
	}
	return d + time.Duration(n.Int64())
}

// readingKey identifies a reading for change detection.
func readingKey(snap snapshot.Snapshot) string {
	if snap.Reading == nil {
		return ""
	}
	return fmt.Sprintf("%s|%.3f", snap.Reading.ReadAt.Format("2006-01-02T15:04"), snap.Reading.Volume)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
