package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when WREN_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_RotateRefresh_InPlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenSessionTestPool(t)
	defer pool.Close()
	mustEnsureSessionTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := newTestSessionRow(t, now, now.Add(time.Hour))
	if err := store.Create(ctx, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { cleanupSessionRow(ctx, t, pool, row.ID) })

	newHash := "hash-" + ulid.Make().String()
	rotated, err := store.RotateRefresh(ctx, RotateInput{
		Now:         now.Add(time.Minute),
		OldHash:     row.RefreshTokenHash,
		NewHash:     newHash,
		TTL:         time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("RotateRefresh: %v", err)
	}
	if rotated.ID != row.ID {
		t.Fatalf("rotation must keep the row id: got %q want %q", rotated.ID, row.ID)
	}
	if rotated.RefreshTokenHash != newHash {
		t.Fatalf("hash not replaced")
	}

	// The predecessor hash no longer matches anything.
	if _, err := store.GetByRefreshHash(ctx, row.RefreshTokenHash); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old hash lookup: got %v, want ErrInvalidToken", err)
	}
	if _, err := store.GetByRefreshHash(ctx, newHash); err != nil {
		t.Fatalf("new hash lookup: %v", err)
	}
}

func TestPostgresStore_RotateRefresh_ExpiredDeletesRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenSessionTestPool(t)
	defer pool.Close()
	mustEnsureSessionTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := newTestSessionRow(t, now.Add(-2*time.Hour), now.Add(-time.Hour))
	if err := store.Create(ctx, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { cleanupSessionRow(ctx, t, pool, row.ID) })

	_, err := store.RotateRefresh(ctx, RotateInput{
		Now:     now,
		OldHash: row.RefreshTokenHash,
		NewHash: "hash-" + ulid.Make().String(),
		TTL:     time.Hour,
	})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}

	// The row is gone, so a retry sees a plain invalid token.
	_, err = store.RotateRefresh(ctx, RotateInput{
		Now:     now,
		OldHash: row.RefreshTokenHash,
		NewHash: "hash-" + ulid.Make().String(),
		TTL:     time.Hour,
	})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("retry: got %v, want ErrInvalidToken", err)
	}
}

func TestPostgresStore_RotateRefresh_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenSessionTestPool(t)
	defer pool.Close()
	mustEnsureSessionTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := newTestSessionRow(t, now, now.Add(time.Hour))
	if err := store.Create(ctx, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { cleanupSessionRow(ctx, t, pool, row.ID) })

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.RotateRefresh(ctx, RotateInput{
				Now:         now.Add(time.Minute),
				OldHash:     row.RefreshTokenHash,
				NewHash:     "hash-" + ulid.Make().String(),
				TTL:         time.Hour,
				RememberTTL: 30 * 24 * time.Hour,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInvalidToken):
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", winners)
	}
}

func TestPostgresStore_DeleteByRefreshHash_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustOpenSessionTestPool(t)
	defer pool.Close()
	mustEnsureSessionTable(ctx, t, pool)

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := newTestSessionRow(t, now, now.Add(time.Hour))
	if err := store.Create(ctx, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { cleanupSessionRow(ctx, t, pool, row.ID) })

	for i := 0; i < 2; i++ {
		if err := store.DeleteByRefreshHash(ctx, row.RefreshTokenHash); err != nil {
			t.Fatalf("DeleteByRefreshHash call %d: %v", i, err)
		}
	}
	if _, err := store.GetByRefreshHash(ctx, row.RefreshTokenHash); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

// ---- helpers ----

func newTestSessionRow(t *testing.T, createdAt, expiresAt time.Time) Row {
	t.Helper()
	device := "wren-test/1.0"
	return Row{
		ID:               ulid.Make().String(),
		UserID:           ulid.Make().String(),
		RefreshTokenHash: "hash-" + ulid.Make().String(),
		RememberMe:       false,
		DeviceInfo:       &device,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
	}
}

func mustOpenSessionTestPool(t *testing.T) *pgxpool.Pool {
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

func mustEnsureSessionTable(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS wren`); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wren.sessions (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			refresh_token_hash TEXT NOT NULL,
			remember_me        BOOLEAN NOT NULL DEFAULT FALSE,
			device_info        TEXT,
			created_at         TIMESTAMPTZ NOT NULL,
			expires_at         TIMESTAMPTZ NOT NULL,
			CONSTRAINT uq_sessions_refresh_token_hash UNIQUE (refresh_token_hash)
		)
	`); err != nil {
		t.Fatalf("create sessions table: %v", err)
	}
}

func cleanupSessionRow(ctx context.Context, t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	if _, err := pool.Exec(ctx, `DELETE FROM wren.sessions WHERE id = $1`, id); err != nil {
		t.Logf("cleanup session %s: %v", id, err)
	}
}
