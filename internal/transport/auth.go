package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"planetarena/server/internal/auth"
)

// ErrMissingToken is returned when a protected endpoint receives no token.
var ErrMissingToken = errors.New("missing auth token")

// Authenticator decides whether an upgrade request may open a session. The
// returned subject is only used for logging.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// AllowAll admits every request.
type AllowAll struct{}

// Authenticate implements Authenticator.
func (AllowAll) Authenticate(*http.Request) (string, error) { return "", nil }

// JWTAuthenticator requires an HS256 token in the auth_token query parameter or
// the X-Auth-Token header.
type JWTAuthenticator struct {
	verifier *auth.TokenVerifier
}

// NewJWTAuthenticator builds an authenticator for the shared secret.
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	verifier, err := auth.NewTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &JWTAuthenticator{verifier: verifier}, nil
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
