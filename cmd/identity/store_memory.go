package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"wren/cmd/identity/ids"
)

// MemoryStore is an in-memory Store for development mode and tests.
// It enforces the same uniqueness and comparison policy as PostgresStore.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*memUser // keyed by user id
}

type memUser struct {
	user         User
	passwordHash string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memUser)}
}

// CreateUser registers a password-origin user.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	username := NormalizeUsername(in.Username)
	displayName := strings.TrimSpace(in.DisplayName)

	if email == "" || username == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and username are required"}
	}
	if displayName == "" {
		displayName = username
	}
	if strings.TrimSpace(in.Password) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	userID, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if field, taken := s.lookupTakenLocked(email, username, ""); taken {
		return User{}, ConflictError{Op: op, Field: field}
	}

	u := User{
		ID:          userID,
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	s.users[userID] = &memUser{user: u, passwordHash: pwHash}
	return u, nil
}

// CreateProviderUser registers a provider-origin user.
func (s *MemoryStore) CreateProviderUser(ctx context.Context, in CreateProviderUserInput) (User, error) {
	const op = "identity.CreateProviderUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	username := NormalizeUsername(in.Username)
	providerID := strings.TrimSpace(in.ProviderID)
	displayName := strings.TrimSpace(in.DisplayName)

	if email == "" || username == "" || providerID == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email, username and provider id are required"}
	}
	if displayName == "" {
		displayName = username
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	userID, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if field, taken := s.lookupTakenLocked(email, username, providerID); taken {
		return User{}, ConflictError{Op: op, Field: field}
	}

	u := User{
		ID:            userID,
		Email:         email,
		Username:      username,
		DisplayName:   displayName,
		EmailVerified: true,
		ProviderID:    &providerID,
		CreatedAt:     now,
	}
	s.users[userID] = &memUser{user: u}
	return u, nil
}

// GetUserByLogin resolves an identifier that may be an email or a username.
func (s *MemoryStore) GetUserByLogin(ctx context.Context, identifier string) (UserAuth, error) {
	const op = "identity.GetUserByLogin"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "identifier is required"}
	}
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	emailNorm := NormalizeEmail(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mu := range s.users {
		if NormalizeEmail(mu.user.Email) == emailNorm || mu.user.Username == identifier {
			return UserAuth{User: mu.user, PasswordHash: mu.passwordHash}, nil
		}
	}
	return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
}

// GetUserByID loads a user by id.
func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if mu, ok := s.users[userID]; ok {
		return mu.user, nil
	}
	return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
}

// GetUserByEmail loads a user by email (case-insensitive).
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	emailNorm := NormalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mu := range s.users {
		if NormalizeEmail(mu.user.Email) == emailNorm {
			return mu.user, nil
		}
	}
	return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
}

// GetUserByProvider loads a user by external provider id.
func (s *MemoryStore) GetUserByProvider(ctx context.Context, providerID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	providerID = strings.TrimSpace(providerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mu := range s.users {
		if mu.user.ProviderID != nil && *mu.user.ProviderID == providerID {
			return mu.user, nil
		}
	}
	return User{}, NotFoundError{Op: "identity.GetUserByProvider", Resource: "user"}
}

// SetPasswordHash replaces the stored hash.
func (s *MemoryStore) SetPasswordHash(ctx context.Context, userID, passwordHash string, _ time.Time) error {
	const op = "identity.SetPasswordHash"

	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	mu.passwordHash = passwordHash
	return nil
}

// MarkEmailVerified flips the advisory verification flag (idempotent).
func (s *MemoryStore) MarkEmailVerified(ctx context.Context, userID string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.MarkEmailVerified", Resource: "user"}
	}
	mu.user.EmailVerified = true
	return nil
}

// LinkProvider attaches an external provider id to an existing account.
func (s *MemoryStore) LinkProvider(ctx context.Context, userID, providerID string, _ time.Time) error {
	const op = "identity.LinkProvider"

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider id is required"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, mu := range s.users {
		if id == userID {
			continue
		}
		if mu.user.ProviderID != nil && *mu.user.ProviderID == providerID {
			return ConflictError{Op: op, Field: "provider_id"}
		}
	}

	mu, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	mu.user.ProviderID = &providerID
	return nil
}

// lookupTakenLocked reports whether email/username/provider are already taken.
// Caller must hold mu.
func (s *MemoryStore) lookupTakenLocked(email, username, providerID string) (field string, taken bool) {
	emailNorm := NormalizeEmail(email)
	for _, mu := range s.users {
		if NormalizeEmail(mu.user.Email) == emailNorm {
			return "email", true
		}
		if mu.user.Username == username {
			return "username", true
		}
		if providerID != "" && mu.user.ProviderID != nil && *mu.user.ProviderID == providerID {
			return "provider_id", true
		}
	}
	return "", false
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)
