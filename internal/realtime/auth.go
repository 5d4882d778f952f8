package realtime

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/security"
)

// ErrAuthenticationFailed is the only error a rejected handshake ever sees.
var ErrAuthenticationFailed = errors.New("authentication failed")

const bearerPrefix = "Bearer "

type TokenVerifier interface {
	VerifyAccessToken(token string) (*security.Claims, error)
}

type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(v TokenVerifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// Authenticate admits a connection whose handshake carries a valid access
// token in its "token" field.
func (a *Authenticator) Authenticate(connID string, handshake map[string]any) (*Session, error) {
	raw, ok := handshake["token"].(string)
	if !ok {
		slog.Debug("realtime auth rejected", "conn", connID, "reason", "missing token")
		return nil, ErrAuthenticationFailed
	}
	return a.AuthenticateToken(connID, raw)
}

func (a *Authenticator) AuthenticateToken(connID, raw string) (*Session, error) {
	token := ExtractToken(raw)
	if token == "" {
		slog.Debug("realtime auth rejected", "conn", connID, "reason", "empty token")
		return nil, ErrAuthenticationFailed
	}

	claims, err := a.verifier.VerifyAccessToken(token)
	if err != nil || claims == nil {
		slog.Debug("realtime auth rejected", "conn", connID, "reason", "invalid token")
		return nil, ErrAuthenticationFailed
	}

	return newSession(connID, claims.UserID, claims.Email, claims.IssuedAtTime(), claims.ExpiresAtTime()), nil
}

// ExtractToken trims raw, strips a case-sensitive "Bearer " prefix and trims
// again. An empty result means there is no credential.
func ExtractToken(raw string) string {
	token := strings.TrimSpace(raw)
	token = strings.TrimPrefix(token, bearerPrefix)
	return strings.TrimSpace(token)
}
