package emailtoken

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in development mode and unit tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Row // keyed by row id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	return nil
}

func (s *MemoryStore) GetByToken(ctx context.Context, kind Kind, token string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Kind == kind && row.Token == token {
			return row, nil
		}
	}
	return Row{}, ErrInvalidToken
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) DeleteForUserKind(ctx context.Context, userID string, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range s.rows {
		if row.UserID == userID && row.Kind == kind {
			delete(s.rows, id)
		}
	}
	return nil
}

// CountForUser reports how many rows of a kind the user owns. Test helper.
func (s *MemoryStore) CountForUser(userID string, kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.UserID == userID && row.Kind == kind {
			n++
		}
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
