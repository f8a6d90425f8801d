package emailtoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"wren/cmd/identity"
	"wren/cmd/identity/ids"
	"wren/cmd/internal/mail"
	"wren/cmd/internal/realtime"
)

// Limit on caller-supplied token values before any store lookup.
const maxTokenLen = 4096

// Service implements the one-shot email token lifecycle: issue verification
// and reset tokens, deliver them by email, and consume them exactly once.
type Service struct {
	cfg    Config
	users  identity.Store
	store  Store
	sender mail.Sender
	events realtime.Publisher
}

// NewService wires the token manager. Nil sender or events fall back to
// no-op implementations so callers can run without mail or realtime.
func NewService(cfg Config, users identity.Store, store Store, sender mail.Sender, events realtime.Publisher) *Service {
	if sender == nil {
		sender = mail.NoopSender{}
	}
	if events == nil {
		events = realtime.NoopPublisher{}
	}
	return &Service{cfg: cfg, users: users, store: store, sender: sender, events: events}
}

// SendVerification issues a fresh verification token for the user and emails
// the confirmation link. Any prior unconsumed verification token is deleted.
//
// Returns ErrAlreadyVerified when there is nothing to verify and
// ErrUserNotFound for an unknown user id.
func (s *Service) SendVerification(ctx context.Context, now time.Time, userID string) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}

	raw, err := s.issue(ctx, now, u.ID, KindVerify)
	if err != nil {
		return err
	}

	body, err := mail.RenderVerification(mail.TemplateData{
		DisplayName: u.DisplayName,
		Link:        s.link("/auth/verify-email", raw),
		TTLHours:    int(s.cfg.VerifyTTL / time.Hour),
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, mail.Message{
		To:       u.Email,
		Subject:  "Verify your Wren email",
		HTMLBody: body,
	})
}

// SendReset issues a fresh password-reset token for the account registered
// under email and delivers the reset link. Any prior unconsumed reset token
// is deleted.
//
// Returns ErrUserNotFound for an unknown email. HTTP callers must not
// surface that distinction to clients.
func (s *Service) SendReset(ctx context.Context, now time.Time, email string) error {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}

	raw, err := s.issue(ctx, now, u.ID, KindReset)
	if err != nil {
		return err
	}

	body, err := mail.RenderPasswordReset(mail.TemplateData{
		DisplayName: u.DisplayName,
		Link:        s.link("/reset-password", raw),
		TTLHours:    ttlHoursAtLeastOne(s.cfg.ResetTTL),
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, mail.Message{
		To:       u.Email,
		Subject:  "Reset your Wren password",
		HTMLBody: body,
	})
}

// VerifyEmail consumes a verification token and marks the owning user's
// email as verified. The token is single-use: the row is deleted on success
// and on observed expiry.
func (s *Service) VerifyEmail(ctx context.Context, now time.Time, token string) (identity.User, error) {
	row, err := s.consume(ctx, now, KindVerify, token)
	if err != nil {
		return identity.User{}, err
	}

	if err := s.users.MarkEmailVerified(ctx, row.UserID, now); err != nil {
		return identity.User{}, err
	}
	if err := s.store.DeleteByID(ctx, row.ID); err != nil {
		return identity.User{}, err
	}

	u, err := s.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		return identity.User{}, err
	}

	// Push failure must not fail verification.
	_ = s.events.Publish(ctx, realtime.UserRoom(u.ID), "email.verified", map[string]string{
		"userId": u.ID,
	})
	return u, nil
}

// ResetPassword consumes a reset token and replaces the owning user's
// password hash. The token is single-use.
func (s *Service) ResetPassword(ctx context.Context, now time.Time, token, newPassword string) error {
	row, err := s.consume(ctx, now, KindReset, token)
	if err != nil {
		return err
	}

	hash, err := identity.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPasswordHash(ctx, row.UserID, hash, now); err != nil {
		return err
	}
	if err := s.store.DeleteByID(ctx, row.ID); err != nil {
		return err
	}

	_ = s.events.Publish(ctx, realtime.UserRoom(row.UserID), "password.reset", map[string]string{
		"userId": row.UserID,
	})
	return nil
}

// issue replaces any prior token of the kind with a freshly generated one
// and returns the raw token value for link embedding.
func (s *Service) issue(ctx context.Context, now time.Time, userID string, kind Kind) (string, error) {
	if err := s.store.DeleteForUserKind(ctx, userID, kind); err != nil {
		return "", err
	}

	raw, err := newOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		return "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}

	row := Row{
		ID:        id,
		UserID:    userID,
		Token:     raw,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ttl(kind)),
	}
	if err := s.store.Create(ctx, row); err != nil {
		return "", err
	}
	return raw, nil
}

// consume validates and looks up a raw token. Expired rows are deleted
// before the error is returned; successful lookups are deleted by the
// caller after the kind's side effect lands.
func (s *Service) consume(ctx context.Context, now time.Time, kind Kind, token string) (Row, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLen {
		return Row{}, ErrInvalidToken
	}

	row, err := s.store.GetByToken(ctx, kind, token)
	if err != nil {
		return Row{}, err
	}
	if !row.ExpiresAt.After(now) {
		if err := s.store.DeleteByID(ctx, row.ID); err != nil {
			return Row{}, err
		}
		return Row{}, ErrTokenExpired
	}
	return row, nil
}

func (s *Service) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.cfg.PublicBaseURL, path, token)
}

func newOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func ttlHoursAtLeastOne(d time.Duration) int {
	h := int(d / time.Hour)
	if h < 1 {
		h = 1
	}
	return h
}
