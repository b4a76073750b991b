package auth

import (
	"fmt"

	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
)

// OwnerPolicy implements AccessPolicy using ownership plus the published flag.
// Only the owner may write; anyone may read a published, non-archived document.
type OwnerPolicy struct{}

// NewOwnerPolicy creates the ownership-based access policy
func NewOwnerPolicy() services.AccessPolicy {
	return OwnerPolicy{}
}

// RequireAuthenticated returns the caller's user ID
func (OwnerPolicy) RequireAuthenticated(caller *models.Identity) (string, error) {
	if caller == nil || caller.UserID == "" {
		return "", &domain.UnauthorizedError{Message: "not authenticated"}
	}
	return caller.UserID, nil
}

// RequireOwner checks the caller owns doc
func (p OwnerPolicy) RequireOwner(caller *models.Identity, doc *models.Document) error {
	userID, err := p.RequireAuthenticated(caller)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return &domain.ForbiddenError{Message: fmt.Sprintf("access denied to document %s", doc.ID)}
	}
	return nil
}

// CanRead short-circuits for public documents before looking at the caller,
// which is what lets anonymous preview links work.
func (p OwnerPolicy) CanRead(caller *models.Identity, doc *models.Document) error {
	if doc.IsPubliclyReadable() {
		return nil
	}
	return p.RequireOwner(caller, doc)
}
