package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"jokernotes/internal/config"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/httputil"
)

// PropagationHeader carries the id of the subtree walk started by archive and restore
const PropagationHeader = "X-Propagation-Id"

// multipartOverhead leaves room for form boundaries around the cover image
const multipartOverhead = 1 << 20

// DocumentHandler handles document HTTP requests
type DocumentHandler struct {
	docService services.DocumentService
	logger     *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService services.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		logger:     logger,
	}
}

// Register mounts the document routes on mux
func (h *DocumentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.CreateDocument)
	mux.HandleFunc("GET /api/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/documents/trash", h.ListTrash)
	mux.HandleFunc("GET /api/documents/search", h.SearchDocuments)
	mux.HandleFunc("GET /api/documents/{id}", h.GetDocument)
	mux.HandleFunc("PATCH /api/documents/{id}", h.UpdateDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("POST /api/documents/{id}/archive", h.ArchiveDocument)
	mux.HandleFunc("POST /api/documents/{id}/restore", h.RestoreDocument)
	mux.HandleFunc("DELETE /api/documents/{id}/icon", h.RemoveIcon)
	mux.HandleFunc("DELETE /api/documents/{id}/cover-image", h.RemoveCoverImage)
	mux.HandleFunc("POST /api/documents/{id}/cover-image", h.UploadCoverImage)
}

// CreateDocument creates a new document
// POST /api/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req services.CreateDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.docService.Create(r.Context(), httputil.GetIdentity(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, doc)
}

// ListDocuments lists the caller's active documents at one sidebar level
// GET /api/documents?parent_id=
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docService.ListChildren(r.Context(), httputil.GetIdentity(r), httputil.OptionalQuery(r, "parent_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// ListTrash lists the caller's archived documents
// GET /api/documents/trash
func (h *DocumentHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docService.ListTrash(r.Context(), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// SearchDocuments lists the caller's active documents filtered by title
// GET /api/documents/search?q=
func (h *DocumentHandler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docService.ListSearchable(r.Context(), httputil.GetIdentity(r), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// GetDocument retrieves a document; published documents need no token
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.docService.GetByID(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// UpdateDocument patches a document
// PATCH /api/documents/{id}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body updateDocumentBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.docService.Update(r.Context(), httputil.GetIdentity(r), id, body.toRequest())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// ArchiveDocument moves a document and its subtree to the trash
// POST /api/documents/{id}/archive
func (h *DocumentHandler) ArchiveDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := h.docService.Archive(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	respondLifecycle(w, result)
}

// RestoreDocument takes a document and its subtree out of the trash
// POST /api/documents/{id}/restore
func (h *DocumentHandler) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := h.docService.Restore(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	respondLifecycle(w, result)
}

// RemoveDocument permanently deletes a document
// DELETE /api/documents/{id}
func (h *DocumentHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.docService.Remove(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// RemoveIcon clears the icon
// DELETE /api/documents/{id}/icon
func (h *DocumentHandler) RemoveIcon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.docService.RemoveIcon(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// RemoveCoverImage clears the cover image
// DELETE /api/documents/{id}/cover-image
func (h *DocumentHandler) RemoveCoverImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.docService.RemoveCoverImage(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// UploadCoverImage stores an uploaded image as the cover
// POST /api/documents/{id}/cover-image (multipart field "file")
func (h *DocumentHandler) UploadCoverImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxCoverImageBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, "cover image too large")
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	doc, err := h.docService.UploadCoverImage(r.Context(), httputil.GetIdentity(r), id, &services.CoverUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// updateDocumentBody is the PATCH payload. JSON null clears a field.
type updateDocumentBody struct {
	Title         httputil.OptionalString `json:"title"`
	Content       httputil.OptionalString `json:"content"`
	CoverImageRef httputil.OptionalString `json:"cover_image_ref"`
	IconGlyph     httputil.OptionalString `json:"icon_glyph"`
	IsPublished   *bool                   `json:"is_published,omitempty"`
}

func (b *updateDocumentBody) toRequest() *services.UpdateDocumentRequest {
	return &services.UpdateDocumentRequest{
		Title:         optionalText(b.Title),
		Content:       optionalText(b.Content),
		CoverImageRef: optionalText(b.CoverImageRef),
		IconGlyph:     optionalText(b.IconGlyph),
		IsPublished:   b.IsPublished,
	}
}

func optionalText(o httputil.OptionalString) services.OptionalText {
	return services.OptionalText{Present: o.Present, Value: o.Value}
}

func respondLifecycle(w http.ResponseWriter, result *models.LifecycleResult) {
	if result.PropagationID != "" {
		w.Header().Set(PropagationHeader, result.PropagationID)
	}
	httputil.RespondJSON(w, http.StatusOK, result.Document)
}
