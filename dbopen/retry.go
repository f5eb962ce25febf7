package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retry runs fn until it succeeds, fails with a non-BUSY error, or has been
// tried maxRetries times. Backoff is 100, then 200 ms.
func retry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	for i := range maxRetries {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			return zero, err
		}
		if err := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return zero, fmt.Errorf("dbopen: context cancelled during retry: %w", err)
		}
	}
	return zero, fmt.Errorf("dbopen: max retries exceeded")
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// on SQLITE_BUSY.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := retry(ctx, func() (struct{}, error) {
		return struct{}{}, runOnce(ctx, db, fn)
	})
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec executes a statement, retrying on SQLITE_BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return retry(ctx, func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

// Query runs a query, retrying on SQLITE_BUSY. The caller closes the rows.
func Query(ctx context.Context, db *sql.DB, query string, args ...any) (*sql.Rows, error) {
	return retry(ctx, func() (*sql.Rows, error) {
		return db.QueryContext(ctx, query, args...)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
