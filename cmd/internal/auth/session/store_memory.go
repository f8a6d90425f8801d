package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development mode and tests.
// A single mutex serializes rotation, which gives the same no-double-spend
// guarantee the Postgres row lock provides.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Row // keyed by refresh token hash
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

// Create inserts a new session row.
func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.RefreshTokenHash] = row
	return nil
}

// GetByRefreshHash loads a session by refresh token hash.
func (s *MemoryStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[refreshHash]
	if !ok {
		return Row{}, ErrInvalidToken
	}
	return row, nil
}

// RotateRefresh replaces the session's hash and expiry in place.
func (s *MemoryStore) RotateRefresh(ctx context.Context, in RotateInput) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[in.OldHash]
	if !ok {
		return Row{}, ErrInvalidToken
	}

	if !row.ExpiresAt.After(in.Now) {
		delete(s.rows, in.OldHash)
		return Row{}, ErrTokenExpired
	}

	ttl := in.TTL
	if row.RememberMe {
		ttl = in.RememberTTL
	}

	delete(s.rows, in.OldHash)
	row.RefreshTokenHash = in.NewHash
	row.ExpiresAt = in.Now.Add(ttl)
	s.rows[in.NewHash] = row
	return row, nil
}

// DeleteByRefreshHash removes the matching session (idempotent).
func (s *MemoryStore) DeleteByRefreshHash(ctx context.Context, refreshHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, refreshHash)
	return nil
}

// DeleteExpiredForUser garbage-collects the user's expired sessions.
func (s *MemoryStore) DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, row := range s.rows {
		if row.UserID == userID && !row.ExpiresAt.After(now) {
			delete(s.rows, hash)
		}
	}
	return nil
}

// CountForUser reports live session rows for a user (test helper).
func (s *MemoryStore) CountForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.UserID == userID {
			n++
		}
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
