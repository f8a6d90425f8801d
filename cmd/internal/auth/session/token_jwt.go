package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the minimal identity envelope propagated across HTTP/WS.
type AccessClaims struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(userID, username string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

type jwtClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"uname"`
	jwt.RegisteredClaims
}

type hs256Manager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewHS256Manager builds an AccessTokenManager signing HS256 JWTs with the
// configured symmetric secret. It enforces issuer, algorithm, and expiration
// rules; clock skew is tolerated via a verification leeway.
func NewHS256Manager(cfg Config) (AccessTokenManager, error) {
	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return nil, ErrConfig
	}

	return &hs256Manager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.JWTSecret),
	}, nil
}

func (m *hs256Manager) Issue(userID, username string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *hs256Manager) Verify(token string, now time.Time) (AccessClaims, error) {
	var claims jwtClaims

	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == "" || claims.Username == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Issuer:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
