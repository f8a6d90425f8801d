package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wren/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Unique violations are mapped to ConflictError with a stable logical field.
// - Schema management lives outside this repo; no migrations are run here.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "wren").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "wren",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, email, email_norm, username, display_name, bio, avatar_url, email_verified, provider_id, created_at`

// CreateUser registers a password-origin user.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := NormalizeUsername(in.Email) // trim only; case preserved for display
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

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, username, display_name,
		     password_hash, email_verified, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)`,
		userID, email, NormalizeEmail(email), username, displayName, pwHash, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:          userID,
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
	}, nil
}

// CreateProviderUser registers a provider-origin user from a first OAuth login.
func (s *PostgresStore) CreateProviderUser(ctx context.Context, in CreateProviderUserInput) (User, error) {
	const op = "identity.CreateProviderUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := NormalizeUsername(in.Email)
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

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, username, display_name,
		     provider_id, email_verified, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)`,
		userID, email, NormalizeEmail(email), username, displayName, providerID, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:            userID,
		Email:         email,
		Username:      username,
		DisplayName:   displayName,
		EmailVerified: true,
		ProviderID:    &providerID,
		CreatedAt:     now,
	}, nil
}

// GetUserByLogin resolves an identifier that may be an email or a username.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, identifier string) (UserAuth, error) {
	const op = "identity.GetUserByLogin"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "identifier is required"}
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, COALESCE(password_hash, '')
		 FROM `+users+`
		 WHERE email_norm = $1 OR username = $2`,
		NormalizeEmail(identifier), identifier,
	)

	var ua UserAuth
	if err := scanUserAuth(row, &ua); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	return ua, nil
}

// GetUserByID loads a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, userID)

	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail loads a user by email (case-insensitive).
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE email_norm = $1`,
		NormalizeEmail(email))

	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByProvider loads a user by external provider id.
func (s *PostgresStore) GetUserByProvider(ctx context.Context, providerID string) (User, error) {
	const op = "identity.GetUserByProvider"

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE provider_id = $1`,
		strings.TrimSpace(providerID))

	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// SetPasswordHash replaces the stored hash.
func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	const op = "identity.SetPasswordHash"

	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// MarkEmailVerified flips the advisory verification flag (idempotent).
func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.MarkEmailVerified"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
		userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// LinkProvider attaches an external provider id to an existing account.
func (s *PostgresStore) LinkProvider(ctx context.Context, userID, providerID string, now time.Time) error {
	const op = "identity.LinkProvider"

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider id is required"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET provider_id = $2, updated_at = $3 WHERE id = $1`,
		userID, providerID, now)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner, u *User) error {
	var emailNorm string
	return r.Scan(
		&u.ID, &u.Email, &emailNorm, &u.Username, &u.DisplayName,
		&u.Bio, &u.AvatarURL, &u.EmailVerified, &u.ProviderID, &u.CreatedAt,
	)
}

func scanUserAuth(r rowScanner, ua *UserAuth) error {
	var emailNorm string
	return r.Scan(
		&ua.User.ID, &ua.User.Email, &emailNorm, &ua.User.Username, &ua.User.DisplayName,
		&ua.User.Bio, &ua.User.AvatarURL, &ua.User.EmailVerified, &ua.User.ProviderID, &ua.User.CreatedAt,
		&ua.PasswordHash,
	)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring heuristics.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "uq_users_username":
		return "username", true
	case "uq_users_provider_id":
		return "provider_id", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "provider"):
			return "provider_id", true
		default:
			return "unique", true
		}
	}
}
