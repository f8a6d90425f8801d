package emailtoken

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (wren.email_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed email token store.
// The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new token row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wren.email_tokens (
			id, user_id, token, kind, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, row.ID, row.UserID, row.Token, string(row.Kind), row.CreatedAt, row.ExpiresAt)
	return err
}

// GetByToken loads a row by its plaintext token value and kind.
func (s *PostgresStore) GetByToken(ctx context.Context, kind Kind, token string) (Row, error) {
	var row Row
	var kindStr string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token, kind, created_at, expires_at
		FROM wren.email_tokens
		WHERE token = $1 AND kind = $2
	`, token, string(kind)).Scan(
		&row.ID, &row.UserID, &row.Token, &kindStr, &row.CreatedAt, &row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrInvalidToken
	}
	if err != nil {
		return Row{}, err
	}
	row.Kind = Kind(kindStr)
	return row, nil
}

// DeleteByID removes a single row (idempotent).
func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM wren.email_tokens WHERE id = $1
	`, id)
	return err
}

// DeleteForUserKind removes the user's tokens of a kind.
func (s *PostgresStore) DeleteForUserKind(ctx context.Context, userID string, kind Kind) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM wren.email_tokens WHERE user_id = $1 AND kind = $2
	`, userID, string(kind))
	return err
}

var _ Store = (*PostgresStore)(nil)
