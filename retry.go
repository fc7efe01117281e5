package instactl

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs a remote call up to MaxRetries+1 times, pausing a random
// duration from Delay between attempts. Only TransientError is retried.
type Retrier struct {
	MaxRetries int
	Delay      DelayRange
	Sleep      SleepFunc
	Logger     *zap.SugaredLogger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRetrier builds a Retrier from the config with the real sleep.
func NewRetrier(cfg Config, logger *zap.SugaredLogger) *Retrier {
	return &Retrier{
		MaxRetries: cfg.MaxRetries,
		Delay:      cfg.DelayRange,
		Sleep:      Sleep,
		Logger:     logger,
	}
}

// Seed makes the delay sequence deterministic.
func (r *Retrier) Seed(seed int64) {
	r.mu.Lock()
	r.rnd = rand.New(rand.NewSource(seed))
	r.mu.Unlock()
}

// NextDelay draws a pause uniformly from [Delay.Min, Delay.Max], both ends
// included.
func (r *Retrier) NextDelay() time.Duration {
	lo, hi := r.Delay.Min(), r.Delay.Max()
	if hi <= lo {
		return lo
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rnd == nil {
		r.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return lo + time.Duration(r.rnd.Int63n(int64(hi-lo)+1))
}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. The last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	maxRetries := r.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := r.NextDelay()
			logger.Infow("Retrying after error", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
			if serr := sleep(ctx, wait); serr != nil {
				return err
			}
		}
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		logger.Warnw("Transient failure", "op", op, "attempt", attempt+1, "error", err)
	}

	logger.Errorw("Giving up", "op", op, "attempts", maxRetries+1, "error", err)
	return err
}
