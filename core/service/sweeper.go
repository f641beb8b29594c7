package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SweepFunc removes expired state and reports how many entries it dropped.
type SweepFunc func(ctx context.Context) (int64, error)

// Sweeper runs a SweepFunc on a fixed interval.
type Sweeper struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
}

// NewSweeper creates a sweeper.
func NewSweeper(name string, interval time.Duration, sweep SweepFunc) *Sweeper {
	return &Sweeper{name: name, interval: interval, sweep: sweep}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	n, err := s.sweep(ctx)
	if err != nil {
		log.Warn().Err(err).Str("sweeper", s.name).Msg("Sweep failed")
		return
	}
	if n > 0 {
		log.Debug().Str("sweeper", s.name).Int64("removed", n).Msg("Swept expired entries")
	}
}

// RateLimitSweep adapts RateLimiter.Sweep to a SweepFunc.
func RateLimitSweep(l *RateLimiter) SweepFunc {
	return func(context.Context) (int64, error) {
		return int64(l.Sweep()), nil
	}
}
