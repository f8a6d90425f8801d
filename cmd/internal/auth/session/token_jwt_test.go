package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T, secret string) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.JWTSecret = secret
	m, err := NewHS256Manager(cfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	return m
}

func TestHS256Manager_IssueAndVerify(t *testing.T) {
	m := newTestManager(t, strings.Repeat("k", 32))
	now := time.Now().UTC()

	tok, exp, err := m.Issue("user-1", "alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(DefaultConfig().AccessTokenTTL); !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "wren" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestHS256Manager_RejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, strings.Repeat("k", 32))
	now := time.Now().UTC()

	tok, _, err := m.Issue("user-1", "alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	after := now.Add(DefaultConfig().AccessTokenTTL + DefaultConfig().ClockSkew + time.Minute)
	if _, err := m.Verify(tok, after); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestHS256Manager_ClockSkewTolerance(t *testing.T) {
	m := newTestManager(t, strings.Repeat("k", 32))
	now := time.Now().UTC()

	tok, exp, err := m.Issue("user-1", "alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Just inside the skew window past expiry.
	if _, err := m.Verify(tok, exp.Add(DefaultConfig().ClockSkew-time.Second)); err != nil {
		t.Fatalf("within skew window: %v", err)
	}
}

func TestHS256Manager_RejectsWrongKey(t *testing.T) {
	issuer := newTestManager(t, strings.Repeat("a", 32))
	verifier := newTestManager(t, strings.Repeat("b", 32))
	now := time.Now().UTC()

	tok, _, err := issuer.Issue("user-1", "alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestHS256Manager_RejectsGarbage(t *testing.T) {
	m := newTestManager(t, strings.Repeat("k", 32))
	now := time.Now().UTC()

	for _, tok := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJub25lIn0.e30."} {
		if _, err := m.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestNewHS256Manager_RequiresSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "short"
	if _, err := NewHS256Manager(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for weak secret, got %v", err)
	}
}
