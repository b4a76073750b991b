package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/repositories"
)

const documentColumns = `id, title, owner_id, parent_id, content, cover_image_ref, icon_glyph,
	is_archived, is_published, created_at, updated_at`

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *RepositoryConfig) repositories.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create creates a new document. The database assigns id and timestamps.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (title, owner_id, parent_id, content, cover_image_ref, icon_glyph, is_archived, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		doc.Title,
		doc.OwnerID,
		doc.ParentID,
		doc.Content,
		doc.CoverImageRef,
		doc.IconGlyph,
		doc.IsArchived,
		doc.IsPublished,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("parent document %s: %w", derefOr(doc.ParentID, ""), domain.ErrNotFound)
		}
		return fmt.Errorf("create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return doc, nil
}

// Patch writes the fields present in patch in one UPDATE and returns the row
func (r *PostgresDocumentRepository) Patch(ctx context.Context, id string, patch *models.DocumentPatch) (*models.Document, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	query, args := buildPatchQuery(r.tables.Documents, id, patch)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, args...))
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("patch document: %w", err)
	}

	return doc, nil
}

// Delete hard-deletes a document and returns the removed row
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING %s`, r.tables.Documents, documentColumns)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("delete document: %w", err)
	}

	return doc, nil
}

// DetachChildren moves every direct child of parentID to the root level
func (r *PostgresDocumentRepository) DetachChildren(ctx context.Context, ownerID, parentID string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET parent_id = NULL, updated_at = NOW()
		WHERE owner_id = $1 AND parent_id = $2
		RETURNING %s
	`, r.tables.Documents, documentColumns)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("detach children: %w", err)
	}
	return collectDocuments(rows)
}

// ListByOwnerParent lists documents through the by_owner_parent index
func (r *PostgresDocumentRepository) ListByOwnerParent(ctx context.Context, ownerID string, parentID *string, archived *bool) ([]models.Document, error) {
	var b strings.Builder
	args := []any{ownerID}

	fmt.Fprintf(&b, `SELECT %s FROM %s WHERE owner_id = $1`, documentColumns, r.tables.Documents)
	if parentID == nil {
		b.WriteString(` AND parent_id IS NULL`)
	} else {
		args = append(args, *parentID)
		fmt.Fprintf(&b, ` AND parent_id = $%d`, len(args))
	}
	if archived != nil {
		args = append(args, *archived)
		fmt.Fprintf(&b, ` AND is_archived = $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list documents by parent: %w", err)
	}
	return collectDocuments(rows)
}

// ListByOwner lists documents through the by_owner index
func (r *PostgresDocumentRepository) ListByOwner(ctx context.Context, ownerID string, archived bool) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND is_archived = $2
		ORDER BY created_at DESC, id DESC
	`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID, archived)
	if err != nil {
		return nil, fmt.Errorf("list documents by owner: %w", err)
	}
	return collectDocuments(rows)
}

// DeleteAllByOwner removes every document belonging to ownerID
func (r *PostgresDocumentRepository) DeleteAllByOwner(ctx context.Context, ownerID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, ownerID)
	if err != nil {
		return fmt.Errorf("delete documents of %s: %w", ownerID, err)
	}
	r.logger.Debug("deleted owner documents", "owner_id", ownerID, "count", tag.RowsAffected())
	return nil
}

// buildPatchQuery renders an UPDATE ... RETURNING touching only the patched columns
func buildPatchQuery(table, id string, patch *models.DocumentPatch) (string, []any) {
	var sets []string
	var args []any

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	switch {
	case patch.Content != nil:
		set("content", *patch.Content)
	case patch.ClearContent:
		sets = append(sets, "content = NULL")
	}
	switch {
	case patch.CoverImageRef != nil:
		set("cover_image_ref", *patch.CoverImageRef)
	case patch.ClearCoverImage:
		sets = append(sets, "cover_image_ref = NULL")
	}
	switch {
	case patch.IconGlyph != nil:
		set("icon_glyph", *patch.IconGlyph)
	case patch.ClearIcon:
		sets = append(sets, "icon_glyph = NULL")
	}
	if patch.IsPublished != nil {
		set("is_published", *patch.IsPublished)
	}
	if patch.IsArchived != nil {
		set("is_archived", *patch.IsArchived)
	}
	if patch.ClearParent {
		sets = append(sets, "parent_id = NULL")
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING %s`,
		table, strings.Join(sets, ", "), len(args), documentColumns)
	return query, args
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.OwnerID,
		&doc.ParentID,
		&doc.Content,
		&doc.CoverImageRef,
		&doc.IconGlyph,
		&doc.IsArchived,
		&doc.IsPublished,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
