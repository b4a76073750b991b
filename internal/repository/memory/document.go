package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/repositories"
)

// rootKey stands in for a nil parent in the by_owner_parent index
const rootKey = ""

type ownerParentKey struct {
	ownerID  string
	parentID string
}

type row struct {
	doc *models.Document
	seq uint64 // insertion order, breaks created_at ties
}

// DocumentRepository is an in-process store with the same two indexes as the
// Postgres schema. Every method is atomic with respect to the others.
type DocumentRepository struct {
	mu            sync.RWMutex
	rows          map[string]*row
	byOwner       map[string]map[string]struct{}
	byOwnerParent map[ownerParentKey]map[string]struct{}
	seq           uint64
	lastCreated   time.Time
	now           func() time.Time
}

// NewDocumentRepository creates an empty in-memory document store
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		rows:          make(map[string]*row),
		byOwner:       make(map[string]map[string]struct{}),
		byOwnerParent: make(map[ownerParentKey]map[string]struct{}),
		now:           time.Now,
	}
}

var _ repositories.DocumentRepository = (*DocumentRepository)(nil)

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := r.rows[doc.ID]; exists {
		return fmt.Errorf("create document %s: duplicate id", doc.ID)
	}

	// created_at is the sole sort key, keep it strictly increasing
	created := r.now().UTC().Truncate(time.Microsecond)
	if !created.After(r.lastCreated) {
		created = r.lastCreated.Add(time.Microsecond)
	}
	r.lastCreated = created
	doc.CreatedAt = created
	doc.UpdatedAt = created

	r.seq++
	r.rows[doc.ID] = &row{doc: doc.Clone(), seq: r.seq}
	r.index(doc)
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rw, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return rw.doc.Clone(), nil
}

// Patch writes the fields present in patch
func (r *DocumentRepository) Patch(ctx context.Context, id string, patch *models.DocumentPatch) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if patch.IsEmpty() {
		return rw.doc.Clone(), nil
	}

	r.unindex(rw.doc)
	patch.Apply(rw.doc)
	rw.doc.UpdatedAt = r.now().UTC()
	r.index(rw.doc)

	return rw.doc.Clone(), nil
}

// Delete hard-deletes a single row
func (r *DocumentRepository) Delete(ctx context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	r.unindex(rw.doc)
	delete(r.rows, id)
	return rw.doc, nil
}

// DetachChildren moves the direct children of parentID to root
func (r *DocumentRepository) DetachChildren(ctx context.Context, ownerID, parentID string) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byOwnerParent[ownerParentKey{ownerID: ownerID, parentID: parentID}]
	detached := make([]models.Document, 0, len(ids))
	for _, rw := range r.sorted(ids) {
		r.unindex(rw.doc)
		rw.doc.ParentID = nil
		rw.doc.UpdatedAt = r.now().UTC()
		r.index(rw.doc)
		detached = append(detached, *rw.doc.Clone())
	}
	return detached, nil
}

// ListByOwnerParent lists documents through the (owner, parent) index
func (r *DocumentRepository) ListByOwnerParent(ctx context.Context, ownerID string, parentID *string, archived *bool) ([]models.Document, error) {
	key := ownerParentKey{ownerID: ownerID, parentID: rootKey}
	if parentID != nil {
		key.parentID = *parentID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	documents := make([]models.Document, 0)
	for _, rw := range r.sorted(r.byOwnerParent[key]) {
		if archived != nil && rw.doc.IsArchived != *archived {
			continue
		}
		documents = append(documents, *rw.doc.Clone())
	}
	return documents, nil
}

// ListByOwner lists documents through the (owner) index
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string, archived bool) ([]models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	documents := make([]models.Document, 0)
	for _, rw := range r.sorted(r.byOwner[ownerID]) {
		if rw.doc.IsArchived != archived {
			continue
		}
		documents = append(documents, *rw.doc.Clone())
	}
	return documents, nil
}

// DeleteAllByOwner removes every document of an owner
func (r *DocumentRepository) DeleteAllByOwner(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.byOwner[ownerID] {
		r.unindex(r.rows[id].doc)
		delete(r.rows, id)
	}
	return nil
}

// sorted returns the rows behind ids, newest first. Caller holds the lock.
func (r *DocumentRepository) sorted(ids map[string]struct{}) []*row {
	rows := make([]*row, 0, len(ids))
	for id := range ids {
		rows = append(rows, r.rows[id])
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].doc.CreatedAt.Equal(rows[j].doc.CreatedAt) {
			return rows[i].doc.CreatedAt.After(rows[j].doc.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	return rows
}

func (r *DocumentRepository) index(doc *models.Document) {
	owned, ok := r.byOwner[doc.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		r.byOwner[doc.OwnerID] = owned
	}
	owned[doc.ID] = struct{}{}

	key := parentKey(doc)
	siblings, ok := r.byOwnerParent[key]
	if !ok {
		siblings = make(map[string]struct{})
		r.byOwnerParent[key] = siblings
	}
	siblings[doc.ID] = struct{}{}
}

func (r *DocumentRepository) unindex(doc *models.Document) {
	if owned, ok := r.byOwner[doc.OwnerID]; ok {
		delete(owned, doc.ID)
		if len(owned) == 0 {
			delete(r.byOwner, doc.OwnerID)
		}
	}

	key := parentKey(doc)
	if siblings, ok := r.byOwnerParent[key]; ok {
		delete(siblings, doc.ID)
		if len(siblings) == 0 {
			delete(r.byOwnerParent, key)
		}
	}
}

func parentKey(doc *models.Document) ownerParentKey {
	key := ownerParentKey{ownerID: doc.OwnerID, parentID: rootKey}
	if doc.ParentID != nil {
		key.parentID = *doc.ParentID
	}
	return key
}
