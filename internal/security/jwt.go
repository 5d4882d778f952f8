package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only error verification ever returns. Callers must
// not be able to tell an expired token from a forged one.
var ErrInvalidToken = errors.New("invalid token")

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

type Claims struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email,omitempty"`
	Kind   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	ClockSkew     time.Duration
}

// keyDomain is one secret plus the token kind it is allowed to sign.
type keyDomain struct {
	kind   TokenKind
	secret []byte
	ttl    time.Duration
}

// JWTManager signs and verifies HS256 tokens in two independent key domains.
type JWTManager struct {
	access    keyDomain
	refresh   keyDomain
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
}

func NewJWTManager(cfg Config, now func() time.Time) *JWTManager {
	if now == nil {
		now = time.Now
	}

	return &JWTManager{
		access:    keyDomain{kind: KindAccess, secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
		refresh:   keyDomain{kind: KindRefresh, secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		now:       now,
	}
}

func (m *JWTManager) AccessTTL() time.Duration { return m.access.ttl }

// IssueAccessToken signs a short-lived credential carrying userId and email.
func (m *JWTManager) IssueAccessToken(userID, email string) (string, error) {
	return m.sign(m.access, userID, email)
}

// IssueRefreshToken signs a long-lived credential carrying only userId.
func (m *JWTManager) IssueRefreshToken(userID string) (string, error) {
	return m.sign(m.refresh, userID, "")
}

func (m *JWTManager) VerifyAccessToken(token string) (*Claims, error) {
	return m.verify(m.access, token)
}

func (m *JWTManager) VerifyRefreshToken(token string) (*Claims, error) {
	return m.verify(m.refresh, token)
}

func (m *JWTManager) sign(d keyDomain, userID, email string) (string, error) {
	if len(d.secret) == 0 {
		return "", errors.New("security: signing secret is not configured")
	}
	now := m.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Kind:   d.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}

func (m *JWTManager) verify(d keyDomain, token string) (claims *Claims, err error) {
	// jwt parsing of hostile input must never escape as a panic either
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, ErrInvalidToken
		}
	}()

	if len(d.secret) == 0 || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	out := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, out, func(*jwt.Token) (any, error) {
		return d.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// tokens minted elsewhere carry only {userId, email, iat, exp}; the
	// secret alone decides the domain then
	if (out.Kind != "" && out.Kind != d.kind) || strings.TrimSpace(out.UserID) == "" {
		return nil, ErrInvalidToken
	}

	return out, nil
}
