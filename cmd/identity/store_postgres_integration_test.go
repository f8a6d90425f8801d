package identity

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

// Integration tests are opt-in and require WREN_DATABASE_URL.
// Each test runs against a throwaway schema that is dropped on cleanup.

func TestPostgresStore_CreateAndLookup(t *testing.T) {
	setFastArgon(t)

	ctx := context.Background()
	pool := mustOpenIdentityTestPool(t)
	defer pool.Close()
	schema := mustCreateIdentitySchema(ctx, t, pool)

	store := mustNewIdentityStore(t, pool, schema)
	now := time.Now().UTC().Truncate(time.Microsecond)

	u, err := store.CreateUser(ctx, CreateUserInput{
		Email:       "Casey@Example.com",
		Username:    "casey",
		Password:    "password123",
		DisplayName: "Casey",
		Now:         now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.EmailVerified {
		t.Fatalf("unexpected user: %+v", u)
	}

	// Email lookup is case-insensitive.
	got, err := store.GetUserByEmail(ctx, "casey@example.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("email lookup id mismatch: %q vs %q", got.ID, u.ID)
	}

	// Login works by username and verifies the stored hash.
	auth, err := store.GetUserByLogin(ctx, "casey")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	ok, err := VerifyPassword("password123", auth.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword: ok=%v err=%v", ok, err)
	}

	if _, err := store.GetUserByLogin(ctx, "nobody"); !IsNotFound(err) {
		t.Fatalf("unknown login: got %v, want not found", err)
	}
}

func TestPostgresStore_ConflictFields(t *testing.T) {
	setFastArgon(t)

	ctx := context.Background()
	pool := mustOpenIdentityTestPool(t)
	defer pool.Close()
	schema := mustCreateIdentitySchema(ctx, t, pool)

	store := mustNewIdentityStore(t, pool, schema)
	now := time.Now().UTC()

	if _, err := store.CreateUser(ctx, CreateUserInput{
		Email: "dup@example.com", Username: "dupuser", Password: "password123", Now: now,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := store.CreateUser(ctx, CreateUserInput{
		Email: "DUP@example.com", Username: "otheruser", Password: "password123", Now: now,
	})
	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("email conflict: got %v", err)
	}

	_, err = store.CreateUser(ctx, CreateUserInput{
		Email: "other@example.com", Username: "dupuser", Password: "password123", Now: now,
	})
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("username conflict: got %v", err)
	}
}

func TestPostgresStore_PasswordResetAndVerifyFlags(t *testing.T) {
	setFastArgon(t)

	ctx := context.Background()
	pool := mustOpenIdentityTestPool(t)
	defer pool.Close()
	schema := mustCreateIdentitySchema(ctx, t, pool)

	store := mustNewIdentityStore(t, pool, schema)
	now := time.Now().UTC()

	u, err := store.CreateUser(ctx, CreateUserInput{
		Email: "reset@example.com", Username: "resetuser", Password: "oldpassword1", Now: now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	newHash, err := HashPassword("newpassword12")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := store.SetPasswordHash(ctx, u.ID, newHash, now.Add(time.Minute)); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}

	auth, err := store.GetUserByLogin(ctx, "resetuser")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if ok, _ := VerifyPassword("oldpassword1", auth.PasswordHash); ok {
		t.Fatalf("old password still verifies")
	}
	if ok, _ := VerifyPassword("newpassword12", auth.PasswordHash); !ok {
		t.Fatalf("new password does not verify")
	}

	if err := store.MarkEmailVerified(ctx, u.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	got, err := store.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.EmailVerified {
		t.Fatalf("email_verified not set")
	}
}

func TestPostgresStore_ProviderUsers(t *testing.T) {
	setFastArgon(t)

	ctx := context.Background()
	pool := mustOpenIdentityTestPool(t)
	defer pool.Close()
	schema := mustCreateIdentitySchema(ctx, t, pool)

	store := mustNewIdentityStore(t, pool, schema)
	now := time.Now().UTC()

	u, err := store.CreateProviderUser(ctx, CreateProviderUserInput{
		Email:      "oauth@example.com",
		Username:   "oauthuser",
		ProviderID: "github|12345",
		Now:        now,
	})
	if err != nil {
		t.Fatalf("CreateProviderUser: %v", err)
	}
	if !u.EmailVerified {
		t.Fatalf("provider users start verified: %+v", u)
	}

	got, err := store.GetUserByProvider(ctx, "github|12345")
	if err != nil {
		t.Fatalf("GetUserByProvider: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("provider lookup mismatch")
	}

	// Provider accounts have no password, so password login must miss.
	auth, err := store.GetUserByLogin(ctx, "oauthuser")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if auth.PasswordHash != "" {
		t.Fatalf("expected empty password hash, got %q", auth.PasswordHash)
	}
}

// ---- helpers ----

func setFastArgon(t *testing.T) {
	t.Helper()
	t.Setenv("WREN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WREN_ARGON2_ITERATIONS", "1")
}

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenIdentityTestPool(t *testing.T) *pgxpool.Pool {
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

func mustCreateIdentitySchema(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "wren_it_" + strings.ToLower(ulid.Make().String())

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+quoteIdent(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := pool.Exec(dropCtx, `DROP SCHEMA `+quoteIdent(schema)+` CASCADE`); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	if _, err := pool.Exec(ctx, `
		CREATE TABLE `+quoteIdent(schema)+`.users (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL,
			email_norm     TEXT NOT NULL,
			username       TEXT NOT NULL,
			display_name   TEXT NOT NULL,
			bio            TEXT,
			avatar_url     TEXT,
			password_hash  TEXT,
			provider_id    TEXT,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			CONSTRAINT uq_users_email_norm  UNIQUE (email_norm),
			CONSTRAINT uq_users_username    UNIQUE (username),
			CONSTRAINT uq_users_provider_id UNIQUE (provider_id)
		)
	`); err != nil {
		t.Fatalf("create users table: %v", err)
	}

	return schema
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
