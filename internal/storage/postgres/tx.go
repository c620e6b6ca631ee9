package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

const DefaultLockTimeout = 3 * time.Second

type txKey struct{}

// db is embedded by every repository. Repositories built on the same pool
// join each other's transactions through the context.
type db struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type Option func(*db)

// WithLockTimeout bounds how long a statement in a unit of work waits for a
// row lock before failing with domain.ErrLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *db) { o.lockTimeout = d }
}

func newDB(pool *pgxpool.Pool, opts []Option) db {
	d := db{pool: pool, lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d db) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, d.pool, d.lockTimeout, fn)
}

func withTx(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapTxError(fmt.Errorf("begin: %w", err))
	}

	if lockTimeout > 0 {
		ms := strconv.FormatInt(lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return mapTxError(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (d db) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return d.pool.Exec(ctx, sql, args...)
}

func (d db) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return d.pool.QueryRow(ctx, sql, args...)
}

func (d db) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return d.pool.Query(ctx, sql, args...)
}

// mapTxError turns lock waits, serialization failures and deadlocks into
// domain.ErrLockTimeout. Everything else passes through.
func mapTxError(err error) error {
	if err == nil || domain.IsTransient(err) {
		return err
	}
	if isLockTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isInvalidUUID(err error) bool {
	return pgCode(err) == "22P02"
}

func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}

func isLockTimeout(err error) bool {
	switch pgCode(err) {
	case "55P03", "40001", "40P01":
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
