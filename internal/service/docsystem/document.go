package docsystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jokernotes/internal/changefeed"
	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/repositories"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/metrics"
	"jokernotes/internal/storage"
)

// documentService implements the DocumentService interface
type documentService struct {
	docRepo    repositories.DocumentRepository
	txManager  repositories.TransactionManager
	policy     services.AccessPolicy
	propagator services.TreePropagator
	publisher  services.ChangePublisher
	covers     services.CoverStore // nil when object storage is not configured
	logger     *slog.Logger
	now        func() time.Time
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	txManager repositories.TransactionManager,
	policy services.AccessPolicy,
	propagator services.TreePropagator,
	publisher services.ChangePublisher,
	covers services.CoverStore,
	logger *slog.Logger,
) services.DocumentService {
	return &documentService{
		docRepo:    docRepo,
		txManager:  txManager,
		policy:     policy,
		propagator: propagator,
		publisher:  publisher,
		covers:     covers,
		logger:     logger,
		now:        time.Now,
	}
}

// Create creates a new document, optionally under a parent the caller owns
func (s *documentService) Create(ctx context.Context, caller *models.Identity, req *services.CreateDocumentRequest) (doc *models.Document, err error) {
	defer observe("create", &err)

	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}

	// Empty parent_id means root level
	if req.ParentID != nil && *req.ParentID == "" {
		req.ParentID = nil
	}
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		parent, err := s.docRepo.GetByID(ctx, *req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("invalid parent: %w", err)
		}
		if err := s.policy.RequireOwner(caller, parent); err != nil {
			return nil, err
		}
	}

	doc = &models.Document{
		Title:    models.NormalizeTitle(req.Title),
		OwnerID:  userID,
		ParentID: req.ParentID,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.publish(ctx, changefeed.NewEvent(models.ChangeCreated, doc))

	s.logger.Info("document created",
		"id", doc.ID,
		"owner_id", userID,
		"parent_id", req.ParentID,
	)

	return doc, nil
}

// GetByID returns a document the caller may read. Existence is checked
// before access so a missing id is always not found.
func (s *documentService) GetByID(ctx context.Context, caller *models.Identity, id string) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanRead(caller, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListChildren returns the caller's active documents under parentID
func (s *documentService) ListChildren(ctx context.Context, caller *models.Identity, parentID *string) ([]models.Document, error) {
	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if err := validateParentFilter(parentID); err != nil {
		return nil, err
	}

	archived := false
	return s.docRepo.ListByOwnerParent(ctx, userID, parentID, &archived)
}

// ListTrash returns every archived document of the caller
func (s *documentService) ListTrash(ctx context.Context, caller *models.Identity) ([]models.Document, error) {
	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}
	return s.docRepo.ListByOwner(ctx, userID, true)
}

// ListSearchable returns the caller's active documents whose title
// contains query, ignoring case. An empty query matches everything.
func (s *documentService) ListSearchable(ctx context.Context, caller *models.Identity, query string) ([]models.Document, error) {
	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if err := validateSearchQuery(query); err != nil {
		return nil, err
	}

	docs, err := s.docRepo.ListByOwner(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return docs, nil
	}

	needle := strings.ToLower(query)
	matches := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.Contains(strings.ToLower(doc.Title), needle) {
			matches = append(matches, doc)
		}
	}
	return matches, nil
}

// Update patches the fields present in req
func (s *documentService) Update(ctx context.Context, caller *models.Identity, id string, req *services.UpdateDocumentRequest) (doc *models.Document, err error) {
	defer observe("update", &err)

	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}

	existing, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkCoverRef(userID, req.CoverImageRef); err != nil {
		return nil, err
	}

	patch := &models.DocumentPatch{IsPublished: req.IsPublished}
	if req.Title.Present {
		var title string
		if req.Title.Value != nil {
			title = *req.Title.Value
		}
		title = models.NormalizeTitle(title)
		patch.Title = &title
	}
	if req.Content.Present {
		if req.Content.IsNull() {
			patch.ClearContent = true
		} else {
			patch.Content = req.Content.Value
		}
	}
	if req.CoverImageRef.Present {
		if req.CoverImageRef.IsNull() {
			patch.ClearCoverImage = true
		} else {
			patch.CoverImageRef = req.CoverImageRef.Value
		}
	}
	if req.IconGlyph.Present {
		if req.IconGlyph.IsNull() {
			patch.ClearIcon = true
		} else {
			patch.IconGlyph = req.IconGlyph.Value
		}
	}

	if patch.IsEmpty() {
		return existing, nil
	}

	doc, err = s.docRepo.Patch(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.releaseCover(ctx, existing.OwnerID, existing.CoverImageRef, doc.CoverImageRef)
	s.publish(ctx, changefeed.NewEvent(models.ChangeUpdated, doc))

	s.logger.Info("document updated",
		"id", doc.ID,
		"owner_id", doc.OwnerID,
	)

	return doc, nil
}

// Archive moves the document to the trash. Descendants follow on the
// propagator; the returned result carries the job ID.
func (s *documentService) Archive(ctx context.Context, caller *models.Identity, id string) (result *models.LifecycleResult, err error) {
	defer observe("archive", &err)

	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwned(ctx, caller, id); err != nil {
		return nil, err
	}

	archived := true
	doc, err := s.docRepo.Patch(ctx, id, &models.DocumentPatch{IsArchived: &archived})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, changefeed.NewEvent(models.ChangeArchived, doc))

	jobID := s.propagator.Enqueue(ctx, id, userID, true)

	s.logger.Info("document archived",
		"id", id,
		"owner_id", userID,
		"propagation_id", jobID,
	)

	return &models.LifecycleResult{Document: doc, PropagationID: jobID}, nil
}

// Restore takes the document out of the trash. A restored document whose
// parent is still archived moves to the root level in the same write.
func (s *documentService) Restore(ctx context.Context, caller *models.Identity, id string) (result *models.LifecycleResult, err error) {
	defer observe("restore", &err)

	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	var formerParent *string
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		existing, err := s.loadOwned(txCtx, caller, id)
		if err != nil {
			return err
		}

		archived := false
		patch := &models.DocumentPatch{IsArchived: &archived}

		if existing.ParentID != nil {
			parent, err := s.docRepo.GetByID(txCtx, *existing.ParentID)
			switch {
			case err == nil:
				if parent.IsArchived {
					patch.ClearParent = true
					formerParent = existing.ParentID
				}
			case errors.Is(err, domain.ErrNotFound):
				// dangling parent reference is left as is
			default:
				return fmt.Errorf("load parent: %w", err)
			}
		}

		doc, err = s.docRepo.Patch(txCtx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	if formerParent != nil {
		s.publish(ctx, changefeed.NewEvent(models.ChangeRestored, doc, formerParent))
	} else {
		s.publish(ctx, changefeed.NewEvent(models.ChangeRestored, doc))
	}

	jobID := s.propagator.Enqueue(ctx, id, userID, false)

	s.logger.Info("document restored",
		"id", id,
		"owner_id", userID,
		"detached_from", formerParent,
		"propagation_id", jobID,
	)

	return &models.LifecycleResult{Document: doc, PropagationID: jobID}, nil
}

// Remove hard-deletes one document. Its direct children move to the root
// level in the same transaction and keep their archived state.
func (s *documentService) Remove(ctx context.Context, caller *models.Identity, id string) (deleted *models.Document, err error) {
	defer observe("remove", &err)

	if _, err := s.policy.RequireAuthenticated(caller); err != nil {
		return nil, err
	}

	var detached []models.Document
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		existing, err := s.loadOwned(txCtx, caller, id)
		if err != nil {
			return err
		}

		detached, err = s.docRepo.DetachChildren(txCtx, existing.OwnerID, id)
		if err != nil {
			return fmt.Errorf("detach children: %w", err)
		}

		deleted, err = s.docRepo.Delete(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.releaseCover(ctx, deleted.OwnerID, deleted.CoverImageRef, nil)
	s.publish(ctx, changefeed.NewEvent(models.ChangeRemoved, deleted))
	for i := range detached {
		s.publish(ctx, changefeed.NewEvent(models.ChangeUpdated, &detached[i], &id))
	}

	s.logger.Info("document removed",
		"id", id,
		"owner_id", deleted.OwnerID,
		"detached_children", len(detached),
	)

	return deleted, nil
}

// RemoveIcon clears the icon glyph
func (s *documentService) RemoveIcon(ctx context.Context, caller *models.Identity, id string) (doc *models.Document, err error) {
	defer observe("remove_icon", &err)

	if _, err := s.policy.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if _, err := s.loadOwned(ctx, caller, id); err != nil {
		return nil, err
	}

	doc, err = s.docRepo.Patch(ctx, id, &models.DocumentPatch{ClearIcon: true})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, changefeed.NewEvent(models.ChangeUpdated, doc))
	return doc, nil
}

// RemoveCoverImage clears the cover reference and deletes the stored object
func (s *documentService) RemoveCoverImage(ctx context.Context, caller *models.Identity, id string) (doc *models.Document, err error) {
	defer observe("remove_cover_image", &err)

	if _, err := s.policy.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	existing, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	doc, err = s.docRepo.Patch(ctx, id, &models.DocumentPatch{ClearCoverImage: true})
	if err != nil {
		return nil, err
	}

	s.releaseCover(ctx, existing.OwnerID, existing.CoverImageRef, nil)
	s.publish(ctx, changefeed.NewEvent(models.ChangeUpdated, doc))
	return doc, nil
}

// UploadCoverImage stores the image and points the cover reference at it
func (s *documentService) UploadCoverImage(ctx context.Context, caller *models.Identity, id string, upload *services.CoverUpload) (doc *models.Document, err error) {
	defer observe("upload_cover_image", &err)

	userID, err := s.policy.RequireAuthenticated(caller)
	if err != nil {
		return nil, err
	}
	if s.covers == nil {
		return nil, fmt.Errorf("cover image storage: %w", domain.ErrNotImplemented)
	}

	existing, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := validateCoverUpload(upload); err != nil {
		return nil, err
	}

	key := storage.CoverKey(userID, id, upload.Filename, s.now())
	ref, err := s.covers.Upload(ctx, key, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return nil, err
	}

	doc, err = s.docRepo.Patch(ctx, id, &models.DocumentPatch{CoverImageRef: &ref})
	if err != nil {
		// the new object is unreferenced now
		s.releaseCover(ctx, userID, &ref, nil)
		return nil, err
	}

	s.releaseCover(ctx, existing.OwnerID, existing.CoverImageRef, doc.CoverImageRef)
	s.publish(ctx, changefeed.NewEvent(models.ChangeUpdated, doc))

	s.logger.Info("cover image uploaded",
		"id", id,
		"owner_id", userID,
		"size", upload.Size,
	)

	return doc, nil
}

// loadOwned fetches a document and checks the caller owns it
func (s *documentService) loadOwned(ctx context.Context, caller *models.Identity, id string) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireOwner(caller, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// checkCoverRef rejects a cover reference into the store that belongs to
// another user. External URLs are accepted as they are.
func (s *documentService) checkCoverRef(userID string, ref services.OptionalText) error {
	if s.covers == nil || ref.Value == nil {
		return nil
	}
	if s.covers.Contains(*ref.Value) && !s.covers.OwnedBy(*ref.Value, userID) {
		return fmt.Errorf("%w: cover_image_ref: must be an image you uploaded", domain.ErrValidation)
	}
	return nil
}

// releaseCover removes the stored object behind previous once nothing
// references it. Only objects kept for ownerID are removed. Failures are
// logged; the document write already committed.
func (s *documentService) releaseCover(ctx context.Context, ownerID string, previous, current *string) {
	if s.covers == nil || previous == nil {
		return
	}
	if current != nil && *current == *previous {
		return
	}
	if !s.covers.OwnedBy(*previous, ownerID) {
		return
	}
	if err := s.covers.Remove(ctx, *previous); err != nil {
		s.logger.Warn("failed to remove cover image", "ref", *previous, "error", err)
	}
}

func (s *documentService) publish(ctx context.Context, evt models.ChangeEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish change event failed", "type", evt.Type, "document_id", evt.DocumentID, "error", err)
	}
}

func observe(operation string, err *error) {
	metrics.DocumentOperations.WithLabelValues(operation, metrics.Outcome(*err)).Inc()
}
