package services

import "jokernotes/internal/domain/models"

// AccessPolicy decides who may read or write a document.
// Implementations are pure: they never touch storage.
//
// Services check existence before calling RequireOwner or CanRead, so a
// missing document is always reported as not found rather than forbidden.
type AccessPolicy interface {
	// RequireAuthenticated returns the caller's user ID, or domain.ErrUnauthorized
	// when there is no identity
	RequireAuthenticated(caller *models.Identity) (string, error)

	// RequireOwner returns domain.ErrForbidden when the caller does not own doc
	RequireOwner(caller *models.Identity, doc *models.Document) error

	// CanRead allows public documents to anyone and private ones to their owner.
	// Fails with domain.ErrUnauthorized (no caller) or domain.ErrForbidden.
	CanRead(caller *models.Identity, doc *models.Document) error
}
