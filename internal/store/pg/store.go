// Package pg is the PostgreSQL implementation of the credential and
// academics stores, on database/sql with the pgx driver.
package pg

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/dbx"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres implementation of the credential and academics stores.
type Store struct {
	*repo
	db    *sql.DB
	retry *dbx.Retrier
}

var (
	_ auth.UserStore  = (*Store)(nil)
	_ academics.Store = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithRetrier replaces the default retry policy.
func WithRetrier(r *dbx.Retrier) Option {
	return func(s *Store) { s.retry = r }
}

// Open connects through the pgx stdlib driver and tunes the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, retry: dbx.NewRetrier()}
	for _, opt := range opts {
		opt(s)
	}
	s.repo = &repo{q: db, retry: s.retry}
	return s
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates missing tables and indexes. Every statement is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schemaSQL)
		return err
	})
}

// InTx runs fn in a read-committed transaction whose reads take key-share
// locks. The whole transaction is replayed on transient failures.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx academics.Repo) error) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx dbx.DBTX) error {
			return fn(ctx, &repo{q: tx, lock: true})
		})
	})
}

// repo executes statements against a pool or a transaction. Pool-backed repos
// retry each statement; transactional ones leave retries to InTx.
type repo struct {
	q     dbx.DBTX
	lock  bool
	retry *dbx.Retrier
}

func (r *repo) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.retry.Do(ctx, fn)
}

func (r *repo) locking(query string) string {
	if r.lock {
		return query + " for key share"
	}
	return query
}

func count(ctx context.Context, q dbx.DBTX, query, arg string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, query, arg).Scan(&n)
	return n, err
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
