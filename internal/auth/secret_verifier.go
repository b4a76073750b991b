package auth

import (
	"errors"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
)

// SecretVerifier implements JWTVerifier for HS256 tokens signed with a
// shared secret. Used in development and tests where no JWKS endpoint exists.
type SecretVerifier struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewSecretVerifier creates an HS256 verifier
func NewSecretVerifier(secret, issuer string, logger *slog.Logger) (JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &SecretVerifier{secret: []byte(secret), issuer: issuer, logger: logger}, nil
}

// VerifyToken validates an HS256 token
func (v *SecretVerifier) VerifyToken(tokenString string) (*models.Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		v.logger.Debug("token rejected", "error", err.Error())
		return nil, domain.ErrUnauthorized
	}

	return checkClaims(token, v.logger)
}

// Close is a no-op
func (v *SecretVerifier) Close() error {
	return nil
}

// SignHS256 issues a token for claims. Used by tests and local tooling.
func SignHS256(secret string, claims *models.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
