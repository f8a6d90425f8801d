package emailtoken

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when WREN_DATABASE_URL is set.

func TestPostgresStore_CreateGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenTokenTestPool(t)
	defer pool.Close()
	mustEnsureTokenTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := Row{
		ID:        ulid.Make().String(),
		UserID:    ulid.Make().String(),
		Token:     "tok-" + ulid.Make().String(),
		Kind:      KindVerify,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := store.Create(ctx, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteByID(ctx, row.ID) })

	got, err := store.GetByToken(ctx, KindVerify, row.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got.ID != row.ID || got.UserID != row.UserID || got.Kind != KindVerify {
		t.Fatalf("row mismatch: %+v", got)
	}

	// Kinds are isolated: the same value under another kind misses.
	if _, err := store.GetByToken(ctx, KindReset, row.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("cross-kind lookup: got %v, want ErrInvalidToken", err)
	}

	// DeleteByID is idempotent.
	for i := 0; i < 2; i++ {
		if err := store.DeleteByID(ctx, row.ID); err != nil {
			t.Fatalf("DeleteByID call %d: %v", i, err)
		}
	}
	if _, err := store.GetByToken(ctx, KindVerify, row.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("after delete: got %v, want ErrInvalidToken", err)
	}
}

func TestPostgresStore_DeleteForUserKind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenTokenTestPool(t)
	defer pool.Close()
	mustEnsureTokenTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := ulid.Make().String()

	mk := func(kind Kind) Row {
		return Row{
			ID:        ulid.Make().String(),
			UserID:    userID,
			Token:     "tok-" + ulid.Make().String(),
			Kind:      kind,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}
	}
	verifyRow, resetRow := mk(KindVerify), mk(KindReset)
	for _, r := range []Row{verifyRow, resetRow} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create %s: %v", r.Kind, err)
		}
		id := r.ID
		t.Cleanup(func() { _ = store.DeleteByID(ctx, id) })
	}

	if err := store.DeleteForUserKind(ctx, userID, KindVerify); err != nil {
		t.Fatalf("DeleteForUserKind: %v", err)
	}

	if _, err := store.GetByToken(ctx, KindVerify, verifyRow.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify token should be gone: %v", err)
	}
	// The other kind is untouched.
	if _, err := store.GetByToken(ctx, KindReset, resetRow.Token); err != nil {
		t.Fatalf("reset token should survive: %v", err)
	}
}

// ---- helpers ----

func mustOpenTokenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("WREN_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: WREN_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse WREN_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		t.Skipf("integration test skipped: Postgres unreachable (WREN_DATABASE_URL set): %v", err)
	}
	c.Release()

	return pool
}

func mustEnsureTokenTable(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS wren`); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wren.email_tokens (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			token      TEXT NOT NULL,
			kind       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT uq_email_tokens_token_kind UNIQUE (token, kind)
		)
	`); err != nil {
		t.Fatalf("create email_tokens table: %v", err)
	}
}
