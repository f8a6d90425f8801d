package identity

import (
	"context"
	"testing"
	"time"
)

func fastArgon2(t *testing.T) {
	t.Helper()
	t.Setenv("WREN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WREN_ARGON2_ITERATIONS", "1")
}

func TestMemoryStore_CreateUser_EnforcesUniqueness(t *testing.T) {
	fastArgon2(t)

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	_, err := st.CreateUser(ctx, CreateUserInput{
		Email: "a@x.com", Username: "alice", Password: "password123", DisplayName: "Alice", Now: now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Same email, different username.
	_, err = st.CreateUser(ctx, CreateUserInput{
		Email: "a@x.com", Username: "bob", Password: "password123", DisplayName: "Bob", Now: now,
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	// Email comparison is case-insensitive.
	_, err = st.CreateUser(ctx, CreateUserInput{
		Email: "A@X.COM", Username: "carol", Password: "password123", DisplayName: "Carol", Now: now,
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict for case-folded duplicate email, got %v", err)
	}

	// Same username, different email.
	_, err = st.CreateUser(ctx, CreateUserInput{
		Email: "b@x.com", Username: "alice", Password: "password123", DisplayName: "Alice2", Now: now,
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
}

func TestMemoryStore_GetUserByLogin_EmailOrUsername(t *testing.T) {
	fastArgon2(t)

	ctx := context.Background()
	st := NewMemoryStore()

	created, err := st.CreateUser(ctx, CreateUserInput{
		Email: "a@x.com", Username: "alice", Password: "password123", DisplayName: "Alice",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.EmailVerified {
		t.Fatalf("new users must start unverified")
	}

	byEmail, err := st.GetUserByLogin(ctx, "A@x.Com")
	if err != nil {
		t.Fatalf("GetUserByLogin(email): %v", err)
	}
	if byEmail.User.ID != created.ID {
		t.Fatalf("email lookup returned wrong user")
	}

	byUsername, err := st.GetUserByLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByLogin(username): %v", err)
	}
	if byUsername.User.ID != created.ID {
		t.Fatalf("username lookup returned wrong user")
	}

	// Username comparison is exact.
	if _, err := st.GetUserByLogin(ctx, "ALICE"); !IsNotFound(err) {
		t.Fatalf("expected not found for case-mismatched username, got %v", err)
	}

	ok, err := VerifyPassword("password123", byEmail.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrongpass", byEmail.PasswordHash)
	if err != nil || ok {
		t.Fatalf("wrong password verified: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_PasswordResetAndVerifyFlags(t *testing.T) {
	fastArgon2(t)

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	u, err := st.CreateUser(ctx, CreateUserInput{
		Email: "a@x.com", Username: "alice", Password: "password123", Now: now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	newHash, err := HashPassword("new-password-99")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := st.SetPasswordHash(ctx, u.ID, newHash, now); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}

	ua, err := st.GetUserByLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if ok, _ := VerifyPassword("new-password-99", ua.PasswordHash); !ok {
		t.Fatalf("new password does not verify after reset")
	}
	if ok, _ := VerifyPassword("password123", ua.PasswordHash); ok {
		t.Fatalf("old password still verifies after reset")
	}

	if err := st.MarkEmailVerified(ctx, u.ID, now); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	got, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.EmailVerified {
		t.Fatalf("EmailVerified not set")
	}

	if err := st.MarkEmailVerified(ctx, "01XXXXXXXXXXXXXXXXXXXXXXXX", now); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestMemoryStore_ProviderLinking(t *testing.T) {
	fastArgon2(t)

	ctx := context.Background()
	st := NewMemoryStore()

	u, err := st.CreateUser(ctx, CreateUserInput{
		Email: "a@x.com", Username: "alice", Password: "password123",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := st.LinkProvider(ctx, u.ID, "google:123", time.Time{}); err != nil {
		t.Fatalf("LinkProvider: %v", err)
	}

	got, err := st.GetUserByProvider(ctx, "google:123")
	if err != nil {
		t.Fatalf("GetUserByProvider: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("provider lookup returned wrong user")
	}

	// Password-based origin survives linking.
	ua, err := st.GetUserByLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if ua.PasswordHash == "" {
		t.Fatalf("password hash lost after provider link")
	}

	// A provider id cannot be attached to two accounts.
	other, err := st.CreateUser(ctx, CreateUserInput{
		Email: "b@x.com", Username: "bob", Password: "password123",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := st.LinkProvider(ctx, other.ID, "google:123", time.Time{}); !IsConflict(err) {
		t.Fatalf("expected conflict for duplicate provider id, got %v", err)
	}
}
