package instactl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestRetrier(maxRetries int, delay DelayRange) (*Retrier, *sleepRecorder) {
	rec := &sleepRecorder{}
	r := &Retrier{MaxRetries: maxRetries, Delay: delay, Sleep: rec.sleep}
	r.Seed(1)
	return r, rec
}

func TestRetrier_NextDelayWithinRange(t *testing.T) {
	ranges := []DelayRange{{2, 5}, {0, 0}, {0.5, 0.75}, {3, 3}, {0, 60}}
	for _, dr := range ranges {
		t.Run(dr.String(), func(t *testing.T) {
			r, _ := newTestRetrier(3, dr)
			for i := 0; i < 2000; i++ {
				d := r.NextDelay()
				require.GreaterOrEqual(t, d, dr.Min())
				require.LessOrEqual(t, d, dr.Max())
			}
		})
	}
}

func TestRetrier_PermanentTransientMakesMaxRetriesPlusOneAttempts(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3, 7} {
		r, rec := newTestRetrier(maxRetries, DelayRange{2, 5})

		attempts := 0
		err := r.Do(context.Background(), "upload", func(context.Context) error {
			attempts++
			return &TransientError{Op: "upload", Err: errors.New("timeout")}
		})

		require.Error(t, err)
		assert.True(t, IsTransient(err))
		assert.Equal(t, maxRetries+1, attempts)
		assert.Len(t, rec.waits, maxRetries)
		for _, w := range rec.waits {
			assert.GreaterOrEqual(t, w, 2*time.Second)
			assert.LessOrEqual(t, w, 5*time.Second)
		}
	}
}

func TestRetrier_SucceedsOnFourthAttempt(t *testing.T) {
	r, rec := newTestRetrier(3, DelayRange{2, 5})

	attempts := 0
	err := r.Do(context.Background(), "upload", func(context.Context) error {
		attempts++
		if attempts < 4 {
			return &TransientError{Op: "upload", Err: errors.New("503")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Len(t, rec.waits, 3)
}

func TestRetrier_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := []error{
		&AuthError{Op: "login", Err: errors.New("bad_password")},
		&NotFoundError{Name: "nonexistent_user_xyz"},
		&MediaError{Path: "x.jpg", Reason: "file not found"},
		&UploadError{Op: "photo upload", Err: errors.New("rejected")},
		errors.New("plain"),
	}
	for _, perr := range permanent {
		t.Run(perr.Error(), func(t *testing.T) {
			r, rec := newTestRetrier(5, DelayRange{1, 2})
			attempts := 0
			err := r.Do(context.Background(), "op", func(context.Context) error {
				attempts++
				return perr
			})
			assert.Same(t, perr, err)
			assert.Equal(t, 1, attempts)
			assert.Empty(t, rec.waits)
		})
	}
}

func TestRetrier_ReturnsLastError(t *testing.T) {
	r, _ := newTestRetrier(2, DelayRange{})
	errs := []error{
		&TransientError{Op: "op", Err: errors.New("first")},
		&TransientError{Op: "op", Err: errors.New("second")},
		&TransientError{Op: "op", Err: errors.New("third")},
	}
	i := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		e := errs[i]
		i++
		return e
	})
	assert.Same(t, errs[2], err)
}

func TestRetrier_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Retrier{MaxRetries: 10, Delay: DelayRange{1, 1}, Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	attempts := 0
	err := r.Do(ctx, "op", func(context.Context) error {
		attempts++
		return &TransientError{Op: "op", Err: errors.New("flaky")}
	})

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 1, attempts)
}

func TestSleep_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, Sleep(context.Background(), 0))
}
