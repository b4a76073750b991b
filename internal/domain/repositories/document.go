package repositories

import (
	"context"

	"jokernotes/internal/domain/models"
)

// DocumentRepository defines data access operations for documents.
// Listings go through the by_owner and by_owner_parent indexes only and
// are ordered by created_at descending.
type DocumentRepository interface {
	// Create inserts a new document, assigning ID (if empty), CreatedAt and UpdatedAt
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document by ID, returns domain.ErrNotFound if absent
	GetByID(ctx context.Context, id string) (*models.Document, error)

	// Patch atomically writes the fields present in patch and returns the updated row
	Patch(ctx context.Context, id string, patch *models.DocumentPatch) (*models.Document, error)

	// Delete hard-deletes a single row and returns it
	Delete(ctx context.Context, id string) (*models.Document, error)

	// DetachChildren clears parent_id on every direct child of parentID owned by ownerID
	// and returns the detached documents
	DetachChildren(ctx context.Context, ownerID, parentID string) ([]models.Document, error)

	// ListByOwnerParent lists documents through by_owner_parent.
	// parentID nil selects roots; archived nil selects both states.
	ListByOwnerParent(ctx context.Context, ownerID string, parentID *string, archived *bool) ([]models.Document, error)

	// ListByOwner lists documents through by_owner filtered on is_archived
	ListByOwner(ctx context.Context, ownerID string, archived bool) ([]models.Document, error)

	// DeleteAllByOwner removes every document of an owner (seeding only)
	DeleteAllByOwner(ctx context.Context, ownerID string) error
}
