package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"coursehub.org/internal/obs"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 50 * time.Millisecond
	defaultMaxDelay   = time.Second
)

// Postgres SQLSTATEs worth replaying the whole operation for.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Classifier reports whether err is transient.
type Classifier func(err error) bool

// Retrier replays store operations that failed transiently.
type Retrier struct {
	maxRetries uint64
	base       time.Duration
	cap        time.Duration
	transient  Classifier
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithMaxRetries sets how many times an operation is replayed after the first attempt.
func WithMaxRetries(n uint64) RetryOption {
	return func(r *Retrier) { r.maxRetries = n }
}

// WithBackoff sets the exponential base delay and its cap.
func WithBackoff(base, limit time.Duration) RetryOption {
	return func(r *Retrier) {
		if base > 0 {
			r.base = base
		}
		if limit > 0 {
			r.cap = limit
		}
	}
}

// WithClassifier overrides the transient-error predicate.
func WithClassifier(c Classifier) RetryOption {
	return func(r *Retrier) {
		if c != nil {
			r.transient = c
		}
	}
}

// NewRetrier returns a Retrier with the default policy: 3 retries, exponential
// backoff starting at 50ms capped at 1s, Postgres transient classification.
func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxRetries: defaultMaxRetries,
		base:       defaultBaseDelay,
		cap:        defaultMaxDelay,
		transient:  IsTransientPG,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn, replaying it while it fails with a transient error. The last
// error is returned unwrapped.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}
	backoff := retry.NewExponential(r.base)
	backoff = retry.WithCappedDuration(r.cap, backoff)
	backoff = retry.WithMaxRetries(r.maxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			obs.StoreRetry()
		}
		attempt++
		err := fn(ctx)
		if err != nil && r.transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransientPG classifies connection loss, timeouts, serialization failures
// and deadlocks as transient.
func IsTransientPG(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
