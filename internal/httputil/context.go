package httputil

import (
	"context"
	"net/http"

	"jokernotes/internal/domain/models"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity attaches the authenticated caller to the request context
func WithIdentity(r *http.Request, identity *models.Identity) *http.Request {
	ctx := context.WithValue(r.Context(), identityKey, identity)
	return r.WithContext(ctx)
}

// GetIdentity returns the caller, or nil for anonymous requests
func GetIdentity(r *http.Request) *models.Identity {
	identity, _ := r.Context().Value(identityKey).(*models.Identity)
	return identity
}

// GetUserID returns the caller's user ID, or "" for anonymous requests
func GetUserID(r *http.Request) string {
	if identity := GetIdentity(r); identity != nil {
		return identity.UserID
	}
	return ""
}
