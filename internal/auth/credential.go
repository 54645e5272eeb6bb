package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissing = errors.New("credential missing")
	ErrExpired = errors.New("credential expired")
)

// Credential carries the bearer token issued by the session collaborator.
// The chat core never refreshes it; expiry is surfaced to the owner.
type Credential struct {
	token string
}

func NewCredential(token string) *Credential {
	return &Credential{token: token}
}

func (c *Credential) Token() string {
	if c == nil {
		return ""
	}
	return c.token
}

// Check inspects the token's registered claims without verifying the
// signature (the signing key lives server-side), so an already-expired
// credential can be surfaced before a request is even attempted. Opaque
// non-JWT tokens pass through and are judged by the server.
func (c *Credential) Check(now time.Time) error {
	if c == nil || c.token == "" {
		return ErrMissing
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		log.Debug().Err(err).Msg("[auth] token is not a JWT, deferring to server")
		return nil
	}

	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
		log.Warn().Time("expired_at", claims.ExpiresAt.Time).Msg("[auth] bearer credential expired")
		return ErrExpired
	}
	return nil
}
