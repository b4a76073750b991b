package models

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT claims issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated" or "anon"
	SessionID            string `json:"session_id"`
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}

// Identity is the authenticated principal behind a request.
// A nil *Identity means the caller is anonymous.
type Identity struct {
	UserID string
}

// NewIdentity returns nil for an empty user ID so anonymous callers
// are always represented the same way.
func NewIdentity(userID string) *Identity {
	if userID == "" {
		return nil
	}
	return &Identity{UserID: userID}
}
