package handler

import (
	"log/slog"
	"net/http"

	"jokernotes/internal/changefeed"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/handler/sse"
	"jokernotes/internal/httputil"
)

// ChangesHandler streams change events over Server-Sent Events
type ChangesHandler struct {
	docService services.DocumentService
	subscriber services.ChangeSubscriber
	config     *sse.Config
	logger     *slog.Logger
}

// NewChangesHandler creates a change feed handler
func NewChangesHandler(
	docService services.DocumentService,
	subscriber services.ChangeSubscriber,
	config *sse.Config,
	logger *slog.Logger,
) *ChangesHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &ChangesHandler{
		docService: docService,
		subscriber: subscriber,
		config:     config,
		logger:     logger,
	}
}

// Register mounts the change feed routes on mux
func (h *ChangesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/changes", h.StreamOwnerChanges)
	mux.HandleFunc("GET /api/documents/{id}/changes", h.StreamDocumentChanges)
}

// StreamOwnerChanges streams changes to the caller's documents. With
// parent_id it only streams changes to that parent's direct children;
// parent_id=root selects the top level.
// GET /api/changes?parent_id=
func (h *ChangesHandler) StreamOwnerChanges(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	parentID := httputil.OptionalQuery(r, "parent_id")
	switch {
	case parentID == nil:
		h.stream(w, r, changefeed.ByOwner(userID))
	case *parentID == changefeed.RootParent:
		h.stream(w, r, changefeed.ByOwnerParent(userID, nil))
	default:
		if _, err := h.docService.GetByID(r.Context(), httputil.GetIdentity(r), *parentID); err != nil {
			handleError(w, err)
			return
		}
		h.stream(w, r, changefeed.ByOwnerParent(userID, parentID))
	}
}

// StreamDocumentChanges streams changes to one readable document
// GET /api/documents/{id}/changes
func (h *ChangesHandler) StreamDocumentChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.docService.GetByID(r.Context(), httputil.GetIdentity(r), id); err != nil {
		handleError(w, err)
		return
	}
	h.stream(w, r, changefeed.Document(id))
}

func (h *ChangesHandler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Subscribe before the first write so nothing committed after the
	// client sees the stream open is missed
	events, cancel := h.subscriber.Subscribe(topic)
	defer cancel()

	w.WriteHeader(http.StatusOK)
	if err := writer.WriteRetry(h.config.RetryAfter); err != nil {
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	stopped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	h.logger.Debug("change stream opened", "topic", topic, "user_id", httputil.GetUserID(r))
	defer h.logger.Debug("change stream closed", "topic", topic)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stopped:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(string(evt.Type), "", evt); err != nil {
				return
			}
		}
	}
}
