package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"chat-archive/config"
	"chat-archive/pkg/metrics"
)

const defaultMaxAttempts = 5

// Postgres SQLSTATEs treated as transient contention.
var lockedSQLStates = map[string]bool{
	"55P03": true, // lock_not_available
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// IsLocked reports whether err means the store was temporarily locked by
// another writer.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return lockedSQLStates[pgErr.Code]
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return lockedSQLStates[string(pqErr.Code)]
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RetryPolicy retries operations that fail with IsLocked. The n-th retry
// waits n*10*BaseDelay, so the first retry is immediate.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewRetryPolicy(cfg config.Retry) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
}

type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	d := b.base * time.Duration(10*b.attempt)
	b.attempt++
	return d
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxAttempts
	}

	operation := func() (struct{}, error) {
		err := op()
		if err != nil && !IsLocked(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&linearBackOff{base: p.BaseDelay}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.LockRetries.Inc()
			zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Msg("storage locked, retrying")
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
