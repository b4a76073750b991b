package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokernotes/internal/auth"
	"jokernotes/internal/changefeed"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/handler/sse"
	"jokernotes/internal/middleware"
	"jokernotes/internal/repository/memory"
	authsvc "jokernotes/internal/service/auth"
	"jokernotes/internal/service/docsystem"
)

const testSecret = "handler-test-secret"

type testServer struct {
	handler http.Handler
	prop    *docsystem.Propagator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewDocumentRepository()
	broker := changefeed.NewBroker(64, logger)
	prop := docsystem.NewPropagator(repo, broker, docsystem.PropagatorConfig{Workers: 1, QueueSize: 8}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		prop.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		broker.Close()
	})

	svc := docsystem.NewDocumentService(repo, memory.NewTransactionManager(), authsvc.NewOwnerPolicy(), prop, broker, nil, logger)
	verifier, err := auth.NewSecretVerifier(testSecret, "", logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewDocumentHandler(svc, logger).Register(mux)
	NewChangesHandler(svc, broker, &sse.Config{KeepAliveInterval: time.Hour, RetryAfter: time.Second}, logger).Register(mux)

	handler := middleware.Auth(verifier, logger)(mux)
	return &testServer{handler: handler, prop: prop}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.SignHS256(testSecret, &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) models.Document {
	t.Helper()
	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func decodeDocs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var docs []models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Title)
	}
	return out
}

func TestDocumentRoutes_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "A"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeDoc(t, rec)
	assert.NotEmpty(t, a.ID)

	rec = s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "B", "parent_id": a.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/documents?parent_id="+a.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"B"}, decodeDocs(t, rec))

	rec = s.do(t, http.MethodPost, "/api/documents/"+a.ID+"/archive", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(PropagationHeader))
	assert.True(t, decodeDoc(t, rec).IsArchived)

	s.prop.Wait()

	rec = s.do(t, http.MethodGet, "/api/documents/trash", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"A", "B"}, decodeDocs(t, rec))

	rec = s.do(t, http.MethodGet, "/api/documents", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeDocs(t, rec))

	rec = s.do(t, http.MethodPost, "/api/documents/"+a.ID+"/restore", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeDoc(t, rec).IsArchived)

	rec = s.do(t, http.MethodDelete, "/api/documents/"+a.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decodeDoc(t, rec).ID)

	rec = s.do(t, http.MethodGet, "/api/documents/"+a.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentRoutes_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/documents", "owner", map[string]any{"title": "Secret"})
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decodeDoc(t, rec)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"create anonymous", http.MethodPost, "/api/documents", "", map[string]any{"title": "x"}, http.StatusUnauthorized},
		{"list anonymous", http.MethodGet, "/api/documents", "", nil, http.StatusUnauthorized},
		{"trash anonymous", http.MethodGet, "/api/documents/trash", "", nil, http.StatusUnauthorized},
		{"get private anonymous", http.MethodGet, "/api/documents/" + doc.ID, "", nil, http.StatusUnauthorized},
		{"get private other user", http.MethodGet, "/api/documents/" + doc.ID, "intruder", nil, http.StatusForbidden},
		{"update other user", http.MethodPatch, "/api/documents/" + doc.ID, "intruder", map[string]any{"title": "x"}, http.StatusForbidden},
		{"archive other user", http.MethodPost, "/api/documents/" + doc.ID + "/archive", "intruder", nil, http.StatusForbidden},
		{"remove icon missing", http.MethodDelete, "/api/documents/nope/icon", "owner", nil, http.StatusNotFound},
		{"unknown field", http.MethodPatch, "/api/documents/" + doc.ID, "owner", map[string]any{"owner_id": "x"}, http.StatusBadRequest},
		{"invalid cover url", http.MethodPatch, "/api/documents/" + doc.ID, "owner", map[string]any{"cover_image_ref": "nope"}, http.StatusBadRequest},
		{"list malformed parent", http.MethodGet, "/api/documents?parent_id=not-a-uuid", "owner", nil, http.StatusBadRequest},
		{"update missing with invalid body", http.MethodPatch, "/api/documents/7a1c5b9e-3d2f-4c8a-9b6e-0f1d2c3b4a59", "owner", map[string]any{"cover_image_ref": "nope"}, http.StatusNotFound},
		{"update other user with invalid body", http.MethodPatch, "/api/documents/" + doc.ID, "intruder", map[string]any{"cover_image_ref": "nope"}, http.StatusForbidden},
		{"cover upload missing file", http.MethodPost, "/api/documents/" + doc.ID + "/cover-image", "owner", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdate_NullClearsAndPublishing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Note"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeDoc(t, rec).ID

	rec = s.do(t, http.MethodPatch, "/api/documents/"+id, "u1", map[string]any{
		"content":      "hello",
		"icon_glyph":   "🌱",
		"is_published": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decodeDoc(t, rec)
	assert.Equal(t, "hello", *doc.Content)
	assert.True(t, doc.IsPublished)

	// published documents are readable without a token
	rec = s.do(t, http.MethodGet, "/api/documents/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/documents/"+id, "u1", map[string]any{"content": nil, "title": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	doc = decodeDoc(t, rec)
	assert.Nil(t, doc.Content)
	assert.Equal(t, models.DefaultTitle, doc.Title)
	require.NotNil(t, doc.IconGlyph)

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodDelete, "/api/documents/"+id+"/icon", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, decodeDoc(t, rec).IconGlyph)
	}
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	for _, title := range []string{"Travel plans", "Recipes", "travel log"} {
		rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/documents/search?q=travel", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"travel log", "Travel plans"}, decodeDocs(t, rec))
}

func TestUploadCoverImage_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Cover"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeDoc(t, rec).ID

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="c.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+id+"/cover-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestChangeStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	t.Run("requires a caller", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/changes")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/changes", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	// the retry frame confirms the subscription is live
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 1000\n", line)

	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Live"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeDoc(t, rec)

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var evt models.ChangeEvent
			require.NoError(t, json.Unmarshal([]byte(data), &evt))
			assert.Equal(t, models.ChangeCreated, evt.Type)
			assert.Equal(t, created.ID, evt.DocumentID)
			return
		}
	}
}

// openStream starts an event stream and waits for its retry frame
func openStream(t *testing.T, ctx context.Context, url, user string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, user))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "retry: 1000\n", line)
	return reader
}

func nextEvent(t *testing.T, reader *bufio.Reader) models.ChangeEvent {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var evt models.ChangeEvent
			require.NoError(t, json.Unmarshal([]byte(data), &evt))
			return evt
		}
	}
}

func TestChangeStream_ParentFilter(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Folder"})
	require.Equal(t, http.StatusCreated, rec.Code)
	folder := decodeDoc(t, rec)

	t.Run("unknown parent", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/changes?parent_id=7a1c5b9e-3d2f-4c8a-9b6e-0f1d2c3b4a59", "u1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("private parent of another user", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/changes?parent_id="+folder.ID, "u2", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	children := openStream(t, ctx, srv.URL+"/api/changes?parent_id="+folder.ID, "u1")
	roots := openStream(t, ctx, srv.URL+"/api/changes?parent_id=root", "u1")

	// a top-level create reaches only the root stream
	rec = s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Top"})
	require.Equal(t, http.StatusCreated, rec.Code)
	top := decodeDoc(t, rec)

	rec = s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Inside", "parent_id": folder.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	inside := decodeDoc(t, rec)

	evt := nextEvent(t, children)
	assert.Equal(t, models.ChangeCreated, evt.Type)
	assert.Equal(t, inside.ID, evt.DocumentID)

	evt = nextEvent(t, roots)
	assert.Equal(t, models.ChangeCreated, evt.Type)
	assert.Equal(t, top.ID, evt.DocumentID)
}

func TestDocumentChangeStream_RespectsReadAccess(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/documents", "u1", map[string]any{"title": "Private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeDoc(t, rec).ID

	rec = s.do(t, http.MethodGet, "/api/documents/"+id+"/changes", "u2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/documents/missing/changes", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
