// Package worker runs background maintenance for the account service.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/beststore/accounts/internal/observability"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

var ErrNoTTL = errors.New("reset token ttl is not configured")

// Purger removes reset requests created at or before cutoff.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Interval time.Duration
	TTL      time.Duration
	// Attempts bounds retries of one sweep; the next tick starts over.
	Attempts uint64
}

// Sweeper periodically purges reset requests older than TTL. Expiry is
// already enforced on redemption; this only reclaims storage.
type Sweeper struct {
	cfg    Config
	purger Purger
	log    *slog.Logger
	prom   *observability.Prom
	now    func() time.Time
	// first retry delay; doubles per attempt
	retryBase time.Duration

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, purger Purger, log *slog.Logger, prom *observability.Prom) (*Sweeper, error) {
	if cfg.TTL <= 0 {
		return nil, ErrNoTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sweeper{
		cfg:    cfg,
		purger: purger,
		log:    log,
		prom:   prom,
		now:    time.Now,

		retryBase: 200 * time.Millisecond,
	}, nil
}

func (s *Sweeper) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}

func (s *Sweeper) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

// SweepOnce purges everything past the TTL, retrying transient failures
// with exponential backoff.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.TTL)

	var purged int64
	b := retry.WithMaxRetries(s.cfg.Attempts-1, retry.NewExponential(s.retryBase))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		n, err := s.purger.PurgeOlderThan(ctx, cutoff)
		purged += n
		if err != nil {
			s.log.WarnContext(ctx, "reset sweep attempt failed", "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if purged > 0 && s.prom != nil {
		s.prom.ResetsPurged.Add(float64(purged))
	}
	if err != nil {
		return purged, oops.In("worker").Code("reset_sweep_failed").With("cutoff", cutoff).Wrap(err)
	}
	return purged, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.setReady(true)
	defer s.setReady(false)

	s.log.InfoContext(ctx, "reset sweeper started", "interval", s.cfg.Interval.String(), "ttl", s.cfg.TTL.String())

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "reset sweeper received shutdown signal")
			return nil

		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.ErrorContext(ctx, "reset sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.InfoContext(ctx, "reset requests purged", "count", n)
			}
		}
	}
}
