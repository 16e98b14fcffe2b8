package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(opts ...RetryOption) *Retrier {
	return NewRetrier(append([]RetryOption{WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)...)
}

func TestRetrierReplaysTransientErrors(t *testing.T) {
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("query: %w", driver.ErrBadConn)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierStopsAfterMaxRetries(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxRetries(2)).Do(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: pgSerializationFailure}
	})
	require.Error(t, err)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "final error must be returned unwrapped, got %v", err)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestRetrierDoesNotReplayPermanentErrors(t *testing.T) {
	calls := 0
	unique := &pgconn.PgError{Code: "23505"}
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return unique
	})
	assert.ErrorIs(t, err, unique)
	assert.Equal(t, 1, calls)
}

func TestNilRetrierRunsOnce(t *testing.T) {
	var r *Retrier
	calls := 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	assert.Equal(t, 1, calls)
}

func TestIsTransientPG(t *testing.T) {
	assert.False(t, IsTransientPG(nil))
	assert.False(t, IsTransientPG(context.Canceled))
	assert.False(t, IsTransientPG(errors.New("syntax error")))
	assert.True(t, IsTransientPG(driver.ErrBadConn))
	assert.True(t, IsTransientPG(&pgconn.PgError{Code: pgDeadlockDetected}))
	assert.False(t, IsTransientPG(&pgconn.PgError{Code: "23503"}))
}
