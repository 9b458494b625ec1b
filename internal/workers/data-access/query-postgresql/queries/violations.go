// internal/workers/data-access/query-postgresql/queries/violations.go
package queries

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const insertViolationSQL = `
	INSERT INTO user_violations (user_id_hash, violation_type, violation_count, violation_message, severity, is_active)
	VALUES ($1, $2, $3, $4, $5, TRUE)`

// InsertViolation writes one user_violations row. count is the running count
// for the violation type.
func InsertViolation(ctx context.Context, q Querier, userIDHash, violationType string, count int, message, severity string) error {
	if userIDHash == "" || violationType == "" {
		return ErrMissingParam
	}
	_, err := q.ExecContext(ctx, insertViolationSQL, userIDHash, violationType, count, message, severity)
	return err
}

const latestViolationCountSQL = `
	SELECT violation_count
	FROM user_violations
	WHERE user_id_hash = $1 AND violation_type = $2
	ORDER BY created_at DESC
	LIMIT 1`

// LatestViolationCount returns the most recent count for the violation type,
// or 0 if the user has none.
func LatestViolationCount(ctx context.Context, q Querier, userIDHash, violationType string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, latestViolationCountSQL, userIDHash, violationType).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

const accountStatusSQL = `
	SELECT is_disabled, suspended_until
	FROM account_status
	WHERE user_id_hash = $1`

// AccountStatus returns the stored standing. A user without a row is in good
// standing.
func AccountStatus(ctx context.Context, q Querier, userIDHash string) (disabled bool, suspendedUntil *time.Time, err error) {
	var until sql.NullTime
	err = q.QueryRowContext(ctx, accountStatusSQL, userIDHash).Scan(&disabled, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if until.Valid {
		t := until.Time
		suspendedUntil = &t
	}
	return disabled, suspendedUntil, nil
}

const disableAccountSQL = `
	INSERT INTO account_status (user_id_hash, is_disabled, updated_at)
	VALUES ($1, TRUE, now())
	ON CONFLICT (user_id_hash) DO UPDATE SET is_disabled = TRUE, updated_at = now()`

func DisableAccount(ctx context.Context, q Querier, userIDHash string) error {
	_, err := q.ExecContext(ctx, disableAccountSQL, userIDHash)
	return err
}

const suspendAccountSQL = `
	INSERT INTO account_status (user_id_hash, suspended_until, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (user_id_hash) DO UPDATE SET suspended_until = $2, updated_at = now()`

func SuspendAccount(ctx context.Context, q Querier, userIDHash string, until time.Time) error {
	_, err := q.ExecContext(ctx, suspendAccountSQL, userIDHash, until)
	return err
}
