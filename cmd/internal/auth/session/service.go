package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"wren/cmd/identity"
	"wren/cmd/identity/ids"
)

// Service implements the high-level auth session operations for Wren.
//
// It orchestrates the credential store, the session store, and the access
// token signer, and defines the rotation/invalidation policy: refresh tokens
// are single-use and are replaced in place on every redemption.
type Service struct {
	cfg    Config
	users  identity.Store
	store  Store
	tokens AccessTokenManager
	events EventPublisher

	// dummyHash absorbs the password-verify cost when the login identifier
	// matches no user, so the two failure paths take comparable time.
	dummyHash string
}

// EventPublisher pushes session lifecycle events to live subscribers.
// The realtime hub satisfies this; the default is a no-op.
type EventPublisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, any) error { return nil }

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEventPublisher injects the realtime publisher used for lifecycle
// events such as session.revoked.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if s == nil || p == nil {
			return
		}
		s.events = p
	}
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
}

// LoginInput describes a password login request.
type LoginInput struct {
	EmailOrUsername string
	Password        string
	RememberMe      bool
	DeviceInfo      string
}

// Credentials is the result of login or refresh: a fresh token pair plus the
// public user projection. RefreshToken is the only copy of the plain token;
// it must be delivered to the client and never logged.
type Credentials struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	User         identity.User
}

// NewService constructs a Service with the provided configuration and collaborators.
func NewService(cfg Config, users identity.Store, store Store, tokens AccessTokenManager, opts ...Option) *Service {
	s := &Service{cfg: cfg, users: users, store: store, tokens: tokens, events: noopPublisher{}}
	if hash, err := identity.HashPassword("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = hash
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *Service) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

// Register creates a new user with an unverified email.
// Verification is advisory: it does not gate login.
// Returns identity.ConflictError when the email or username is taken.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (identity.User, error) {
	return s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:       in.Email,
		Username:    in.Username,
		Password:    in.Password,
		DisplayName: in.DisplayName,
		Now:         now,
	})
}

// Login authenticates by email or username and issues a fresh token pair.
//
// Unknown identifier and wrong password both fail with ErrInvalidCredentials;
// a dummy hash verification keeps the unknown-identifier path from returning
// measurably faster.
func (s *Service) Login(ctx context.Context, now time.Time, in LoginInput) (Credentials, error) {
	ua, err := s.users.GetUserByLogin(ctx, in.EmailOrUsername)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			if s.dummyHash != "" {
				_, _ = identity.VerifyPassword(in.Password, s.dummyHash)
			}
			return Credentials{}, ErrInvalidCredentials
		}
		return Credentials{}, err
	}

	if ua.PasswordHash == "" {
		// Provider-origin account without a password yet.
		return Credentials{}, ErrInvalidCredentials
	}
	ok, err := identity.VerifyPassword(in.Password, ua.PasswordHash)
	if err != nil || !ok {
		return Credentials{}, ErrInvalidCredentials
	}

	return s.issue(ctx, now, ua.User, in.RememberMe, in.DeviceInfo)
}

// LoginWithProvider issues a session for a user already authenticated by an
// external OAuth provider. The provider handshake itself happens outside this
// core; by the time this runs the user id is trusted.
func (s *Service) LoginWithProvider(ctx context.Context, now time.Time, userID, deviceInfo string) (Credentials, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	// Provider logins are long-lived by convention.
	return s.issue(ctx, now, u, true, deviceInfo)
}

func (s *Service) issue(ctx context.Context, now time.Time, u identity.User, rememberMe bool, deviceInfo string) (Credentials, error) {
	// Opportunistic GC of this user's expired sessions.
	if err := s.store.DeleteExpiredForUser(ctx, u.ID, now); err != nil {
		return Credentials{}, err
	}

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Credentials{}, err
	}
	refreshExp := now.Add(s.refreshTTL(rememberMe))

	sessionID, err := ids.NewULID(now)
	if err != nil {
		return Credentials{}, err
	}

	var device *string
	if d := strings.TrimSpace(deviceInfo); d != "" {
		device = &d
	}

	if err := s.store.Create(ctx, Row{
		ID:               sessionID,
		UserID:           u.ID,
		RefreshTokenHash: refreshHash,
		RememberMe:       rememberMe,
		DeviceInfo:       device,
		CreatedAt:        now,
		ExpiresAt:        refreshExp,
	}); err != nil {
		return Credentials{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(u.ID, u.Username, now)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
		User:         u,
	}, nil
}

// Refresh redeems a refresh token for a new token pair, rotating the stored
// token in place. The presented token is dead after this call regardless of
// outcome: on success it was overwritten, on expiry the row was deleted.
//
// If an attacker and the legitimate user hold the same token, only the first
// redemption succeeds; the second fails with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (Credentials, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	// Sanity bounds to avoid hashing pathological inputs.
	if refreshToken == "" || len(refreshToken) > 4096 {
		return Credentials{}, ErrInvalidToken
	}

	newPlain, newHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Credentials{}, err
	}

	row, err := s.store.RotateRefresh(ctx, RotateInput{
		Now:         now,
		OldHash:     hashRefreshTokenHex(refreshToken),
		NewHash:     newHash,
		TTL:         s.cfg.RefreshTTL,
		RememberTTL: s.cfg.RefreshTTLRemember,
	})
	if err != nil {
		return Credentials{}, err
	}

	u, err := s.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		return Credentials{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(u.ID, u.Username, now)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		SessionID:    row.ID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newPlain,
		RefreshExp:   row.ExpiresAt,
		User:         u,
	}, nil
}

// Logout deletes the session matching the refresh token.
// Unknown, already-rotated, or twice-presented tokens are a silent no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return nil
	}
	hash := hashRefreshTokenHex(refreshToken)

	row, err := s.store.GetByRefreshHash(ctx, hash)
	if errors.Is(err, ErrInvalidToken) {
		// No matching session: already a no-op.
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteByRefreshHash(ctx, hash); err != nil {
		return err
	}

	// Push failure must not fail logout.
	_ = s.events.Publish(ctx, "user:"+row.UserID, "session.revoked", map[string]string{
		"sessionId": row.ID,
	})
	return nil
}

// VerifyAccess verifies an access token and returns its claims.
func (s *Service) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	return s.tokens.Verify(token, now)
}
