// Package jobsweeper periodically removes expired ingestion jobs.
package jobsweeper

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/metrics"
)

// DefaultInterval is the sweep period New uses when given a non-positive interval.
const DefaultInterval = time.Hour

// Cleaner is the part of the job tracker the sweeper drives.
type Cleaner interface {
	JobCleanup(ctx context.Context) (int, apperrors.Error)
}

// Sweeper runs JobCleanup on a fixed interval. A failed sweep is retried with backoff and
// then left to the next tick.
type Sweeper struct {
	Cleaner    Cleaner
	Interval   time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

// New returns a sweeper with the default retry policy.
func New(cleaner Cleaner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		Cleaner:    cleaner,
		Interval:   interval,
		Attempts:   3,
		RetryDelay: time.Second,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).Info().Msg("job sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup with retries and returns the number of removed jobs.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var removed int
	err := retry.Do(func() error {
		n, err := s.Cleaner.JobCleanup(ctx)
		if err != nil {
			return err
		}
		removed = n
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(s.Attempts),
		retry.Delay(s.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("job cleanup failed, retrying")
		}),
	)
	if err != nil {
		metrics.CleanupFailures.Inc()
		log.Ctx(ctx).Error().Err(err).Msg("job cleanup failed")
		return 0, err
	}
	if removed > 0 {
		log.Ctx(ctx).Info().Int("removed", removed).Msg("expired jobs removed")
	}
	return removed, nil
}
