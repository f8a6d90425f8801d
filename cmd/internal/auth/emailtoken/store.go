package emailtoken

import (
	"context"
	"time"
)

// Kind distinguishes the two token purposes.
type Kind string

const (
	KindVerify Kind = "verify"
	KindReset  Kind = "reset"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool { return k == KindVerify || k == KindReset }

// Row is a persisted one-shot token.
//
// Token is stored plaintext and doubles as the lookup key.
type Row struct {
	ID        string
	UserID    string
	Token     string
	Kind      Kind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists email tokens.
//
// Implementations must treat (Kind, Token) as the lookup key and must not
// return rows of a different kind for a matching token value.
type Store interface {
	// Create inserts a new token row.
	Create(ctx context.Context, row Row) error

	// GetByToken returns the row whose token value and kind match.
	// Returns ErrInvalidToken when no such row exists.
	GetByToken(ctx context.Context, kind Kind, token string) (Row, error)

	// DeleteByID removes a single row. Deleting an absent row is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// DeleteForUserKind removes every row of the given kind owned by the
	// user. Used so that reissuing invalidates prior tokens.
	DeleteForUserKind(ctx context.Context, userID string, kind Kind) error
}
