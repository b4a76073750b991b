package services

import (
	"context"
	"io"

	"jokernotes/internal/domain/models"
)

// DocumentService is the query and mutation surface over the document tree.
// caller is nil for anonymous requests.
type DocumentService interface {
	// Create inserts a new document owned by the caller
	Create(ctx context.Context, caller *models.Identity, req *CreateDocumentRequest) (*models.Document, error)

	// GetByID returns a document the caller may read
	GetByID(ctx context.Context, caller *models.Identity, id string) (*models.Document, error)

	// ListChildren returns the caller's active children of parentID (roots when nil)
	ListChildren(ctx context.Context, caller *models.Identity, parentID *string) ([]models.Document, error)

	// ListTrash returns all of the caller's archived documents
	ListTrash(ctx context.Context, caller *models.Identity) ([]models.Document, error)

	// ListSearchable returns the caller's active documents, optionally filtered by title
	ListSearchable(ctx context.Context, caller *models.Identity, query string) ([]models.Document, error)

	// Update patches user-editable fields
	Update(ctx context.Context, caller *models.Identity, id string, req *UpdateDocumentRequest) (*models.Document, error)

	// Archive moves a document to the trash and schedules its subtree
	Archive(ctx context.Context, caller *models.Identity, id string) (*models.LifecycleResult, error)

	// Restore takes a document out of the trash and schedules its subtree
	Restore(ctx context.Context, caller *models.Identity, id string) (*models.LifecycleResult, error)

	// Remove hard-deletes one document, detaching its children to root
	Remove(ctx context.Context, caller *models.Identity, id string) (*models.Document, error)

	// RemoveIcon clears the icon glyph
	RemoveIcon(ctx context.Context, caller *models.Identity, id string) (*models.Document, error)

	// RemoveCoverImage clears the cover image reference
	RemoveCoverImage(ctx context.Context, caller *models.Identity, id string) (*models.Document, error)

	// UploadCoverImage stores an image and points the cover reference at it
	UploadCoverImage(ctx context.Context, caller *models.Identity, id string, upload *CoverUpload) (*models.Document, error)
}

// CreateDocumentRequest represents a document creation request
type CreateDocumentRequest struct {
	Title    string  `json:"title"`
	ParentID *string `json:"parent_id,omitempty"`
}

// OptionalText tracks tri-state semantics for a text field update.
// This is transport-agnostic (no JSON tags) - handler maps from httputil.OptionalString.
//   - Present=false: field absent from request (don't change)
//   - Present=true, Value=nil: field is null (clear)
//   - Present=true, Value=&"text": field has value
type OptionalText struct {
	Present bool
	Value   *string
}

// IsNull reports an explicit clear
func (o OptionalText) IsNull() bool {
	return o.Present && o.Value == nil
}

// Text returns a present OptionalText holding s
func Text(s string) OptionalText {
	return OptionalText{Present: true, Value: &s}
}

// NullText returns a present OptionalText that clears the field
func NullText() OptionalText {
	return OptionalText{Present: true}
}

// UpdateDocumentRequest represents a partial update.
// Absent fields are left alone; null clears content, cover and icon,
// and resets the title to the default.
type UpdateDocumentRequest struct {
	Title         OptionalText
	Content       OptionalText
	CoverImageRef OptionalText
	IconGlyph     OptionalText
	IsPublished   *bool
}

// CoverUpload is an image received from the client
type CoverUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
