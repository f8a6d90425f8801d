package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (wren.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
// The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wren.sessions (
			id, user_id, refresh_token_hash,
			remember_me, device_info, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, row.ID, row.UserID, row.RefreshTokenHash, row.RememberMe, row.DeviceInfo, row.CreatedAt, row.ExpiresAt)
	return err
}

// GetByRefreshHash loads a session by refresh token hash.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	var row Row
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_token_hash, remember_me, device_info, created_at, expires_at
		FROM wren.sessions
		WHERE refresh_token_hash = $1
	`, refreshHash).Scan(
		&row.ID, &row.UserID, &row.RefreshTokenHash,
		&row.RememberMe, &row.DeviceInfo, &row.CreatedAt, &row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrInvalidToken
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// RotateRefresh replaces the session's hash and expiry in place.
//
// The lookup and overwrite run inside one transaction with the row locked
// (SELECT ... FOR UPDATE), so two concurrent rotations of the same token
// serialize: the loser re-runs the lookup against the new hash and misses.
func (s *PostgresStore) RotateRefresh(ctx context.Context, in RotateInput) (Row, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row, err := getByRefreshHashForUpdateTx(ctx, tx, in.OldHash)
	if err != nil {
		return Row{}, err
	}

	// Expiry is terminal: delete the row so the token cannot be retried.
	if !row.ExpiresAt.After(in.Now) {
		if _, err := tx.Exec(ctx, `DELETE FROM wren.sessions WHERE id = $1`, row.ID); err != nil {
			return Row{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Row{}, err
		}
		return Row{}, ErrTokenExpired
	}

	ttl := in.TTL
	if row.RememberMe {
		ttl = in.RememberTTL
	}
	newExp := in.Now.Add(ttl)

	if _, err := tx.Exec(ctx, `
		UPDATE wren.sessions
		SET refresh_token_hash = $2, expires_at = $3
		WHERE id = $1
	`, row.ID, in.NewHash, newExp); err != nil {
		return Row{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Row{}, err
	}

	row.RefreshTokenHash = in.NewHash
	row.ExpiresAt = newExp
	return row, nil
}

// DeleteByRefreshHash removes the matching session (idempotent).
func (s *PostgresStore) DeleteByRefreshHash(ctx context.Context, refreshHash string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM wren.sessions WHERE refresh_token_hash = $1
	`, refreshHash)
	return err
}

// DeleteExpiredForUser garbage-collects the user's expired sessions.
func (s *PostgresStore) DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM wren.sessions WHERE user_id = $1 AND expires_at < $2
	`, userID, now)
	return err
}

func getByRefreshHashForUpdateTx(ctx context.Context, tx pgx.Tx, refreshHash string) (Row, error) {
	var row Row
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, refresh_token_hash, remember_me, device_info, created_at, expires_at
		FROM wren.sessions
		WHERE refresh_token_hash = $1
		FOR UPDATE
	`, refreshHash).Scan(
		&row.ID, &row.UserID, &row.RefreshTokenHash,
		&row.RememberMe, &row.DeviceInfo, &row.CreatedAt, &row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrInvalidToken
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

var _ Store = (*PostgresStore)(nil)
