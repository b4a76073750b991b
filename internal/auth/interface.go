package auth

import "jokernotes/internal/domain/models"

// JWTVerifier checks bearer tokens. JWKSVerifier serves deployed
// environments; SecretVerifier signs and checks HS256 tokens locally.
type JWTVerifier interface {
	// VerifyToken returns the claims of a valid token, or an error wrapping
	// domain.ErrUnauthorized for a bad signature, expiry, issuer, or subject
	VerifyToken(tokenString string) (*models.Claims, error)

	// Close stops background key refresh, if any
	Close() error
}
