package docsystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokernotes/internal/changefeed"
	"jokernotes/internal/domain"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/repository/memory"
	"jokernotes/internal/service/auth"
)

var (
	alice = models.NewIdentity("user-a")
	bob   = models.NewIdentity("user-b")
)

type fakeCoverStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	failPut bool
}

func newFakeCoverStore() *fakeCoverStore {
	return &fakeCoverStore{objects: make(map[string][]byte)}
}

func (f *fakeCoverStore) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if f.failPut {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := "https://covers.test/" + key
	f.objects[ref] = data
	return ref, nil
}

func (f *fakeCoverStore) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeCoverStore) Contains(ref string) bool {
	return strings.HasPrefix(ref, "https://covers.test/")
}

func (f *fakeCoverStore) OwnedBy(ref, ownerID string) bool {
	return strings.HasPrefix(ref, "https://covers.test/covers/"+url.PathEscape(ownerID)+"/")
}

type harness struct {
	repo   *memory.DocumentRepository
	broker *changefeed.Broker
	prop   *Propagator
	covers *fakeCoverStore
	svc    services.DocumentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewDocumentRepository()
	broker := changefeed.NewBroker(256, logger)
	prop := NewPropagator(repo, broker, PropagatorConfig{Workers: 2, QueueSize: 16}, logger)
	covers := newFakeCoverStore()

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

	svc := NewDocumentService(repo, memory.NewTransactionManager(), auth.NewOwnerPolicy(), prop, broker, covers, logger)
	return &harness{repo: repo, broker: broker, prop: prop, covers: covers, svc: svc}
}

func (h *harness) create(t *testing.T, caller *models.Identity, title string, parent *models.Document) *models.Document {
	t.Helper()
	req := &services.CreateDocumentRequest{Title: title}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	doc, err := h.svc.Create(context.Background(), caller, req)
	require.NoError(t, err)
	return doc
}

func (h *harness) reload(t *testing.T, id string) *models.Document {
	t.Helper()
	doc, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func titles(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Title)
	}
	return out
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("blank title becomes default", func(t *testing.T) {
		doc := h.create(t, alice, "   ", nil)
		assert.Equal(t, models.DefaultTitle, doc.Title)
		assert.Equal(t, alice.UserID, doc.OwnerID)
		assert.Nil(t, doc.ParentID)
		assert.False(t, doc.IsArchived)
		assert.False(t, doc.IsPublished)
		assert.NotEmpty(t, doc.ID)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		_, err := h.svc.Create(ctx, nil, &services.CreateDocumentRequest{Title: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown parent", func(t *testing.T) {
		missing := "7a1c5b9e-3d2f-4c8a-9b6e-0f1d2c3b4a59"
		_, err := h.svc.Create(ctx, alice, &services.CreateDocumentRequest{Title: "x", ParentID: &missing})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed parent id", func(t *testing.T) {
		bad := "not-a-uuid"
		_, err := h.svc.Create(ctx, alice, &services.CreateDocumentRequest{Title: "x", ParentID: &bad})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("parent owned by someone else", func(t *testing.T) {
		foreign := h.create(t, bob, "bob root", nil)
		_, err := h.svc.Create(ctx, alice, &services.CreateDocumentRequest{Title: "x", ParentID: &foreign.ID})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("empty parent id means root", func(t *testing.T) {
		empty := ""
		doc, err := h.svc.Create(ctx, alice, &services.CreateDocumentRequest{Title: "root", ParentID: &empty})
		require.NoError(t, err)
		assert.Nil(t, doc.ParentID)
	})

	t.Run("title too long", func(t *testing.T) {
		_, err := h.svc.Create(ctx, alice, &services.CreateDocumentRequest{Title: strings.Repeat("a", 256)})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMutations_OwnershipGate(t *testing.T) {
	published := true

	mutations := []struct {
		name string
		run  func(svc services.DocumentService, caller *models.Identity, id string) error
	}{
		{"update", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.Update(context.Background(), caller, id, &services.UpdateDocumentRequest{IsPublished: &published})
			return err
		}},
		{"archive", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.Archive(context.Background(), caller, id)
			return err
		}},
		{"restore", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.Restore(context.Background(), caller, id)
			return err
		}},
		{"remove icon", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.RemoveIcon(context.Background(), caller, id)
			return err
		}},
		{"remove cover image", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.RemoveCoverImage(context.Background(), caller, id)
			return err
		}},
		{"upload cover image", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.UploadCoverImage(context.Background(), caller, id, &services.CoverUpload{
				Filename: "c.png", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png")),
			})
			return err
		}},
		{"remove", func(svc services.DocumentService, caller *models.Identity, id string) error {
			_, err := svc.Remove(context.Background(), caller, id)
			return err
		}},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t)
			doc := h.create(t, alice, "mine", nil)

			assert.ErrorIs(t, m.run(h.svc, bob, doc.ID), domain.ErrForbidden)
			assert.ErrorIs(t, m.run(h.svc, nil, doc.ID), domain.ErrUnauthorized)
			assert.ErrorIs(t, m.run(h.svc, alice, "missing"), domain.ErrNotFound)
			assert.NoError(t, m.run(h.svc, alice, doc.ID))
		})
	}
}

func TestGetByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	published := true

	private := h.create(t, alice, "private", nil)
	public := h.create(t, alice, "public", nil)
	_, err := h.svc.Update(ctx, alice, public.ID, &services.UpdateDocumentRequest{IsPublished: &published})
	require.NoError(t, err)

	t.Run("missing document", func(t *testing.T) {
		_, err := h.svc.GetByID(ctx, nil, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("anonymous reads published", func(t *testing.T) {
		doc, err := h.svc.GetByID(ctx, nil, public.ID)
		require.NoError(t, err)
		assert.Equal(t, "public", doc.Title)
	})

	t.Run("anonymous private", func(t *testing.T) {
		_, err := h.svc.GetByID(ctx, nil, private.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("other user private", func(t *testing.T) {
		_, err := h.svc.GetByID(ctx, bob, private.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("published but archived", func(t *testing.T) {
		_, err := h.svc.Archive(ctx, alice, public.ID)
		require.NoError(t, err)
		_, err = h.svc.GetByID(ctx, nil, public.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		doc, err := h.svc.GetByID(ctx, alice, public.ID)
		require.NoError(t, err)
		assert.True(t, doc.IsArchived)
	})
}

func TestArchive_PropagatesToDescendants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root := h.create(t, alice, "R", nil)
	child := h.create(t, alice, "C", root)
	grandchild := h.create(t, alice, "G", child)

	result, err := h.svc.Archive(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.True(t, result.Document.IsArchived)
	assert.NotEmpty(t, result.PropagationID)

	h.prop.Wait()

	assert.True(t, h.reload(t, root.ID).IsArchived)
	assert.True(t, h.reload(t, child.ID).IsArchived)
	assert.True(t, h.reload(t, grandchild.ID).IsArchived)

	// restoring the root brings the subtree back
	result, err = h.svc.Restore(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.False(t, result.Document.IsArchived)
	h.prop.Wait()

	assert.False(t, h.reload(t, child.ID).IsArchived)
	assert.False(t, h.reload(t, grandchild.ID).IsArchived)
	assert.Equal(t, root.ID, *h.reload(t, child.ID).ParentID)
}

func TestRestore_DetachesFromArchivedParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	parent := h.create(t, alice, "P", nil)
	child := h.create(t, alice, "X", parent)

	_, err := h.svc.Archive(ctx, alice, parent.ID)
	require.NoError(t, err)
	h.prop.Wait()
	parentBefore := h.reload(t, parent.ID)

	result, err := h.svc.Restore(ctx, alice, child.ID)
	require.NoError(t, err)
	h.prop.Wait()

	assert.False(t, result.Document.IsArchived)
	assert.Nil(t, result.Document.ParentID)

	parentAfter := h.reload(t, parent.ID)
	assert.True(t, parentAfter.IsArchived)
	assert.Equal(t, parentBefore.UpdatedAt, parentAfter.UpdatedAt)
}

func TestRestore_KeepsActiveParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	parent := h.create(t, alice, "P", nil)
	child := h.create(t, alice, "X", parent)

	_, err := h.svc.Archive(ctx, alice, child.ID)
	require.NoError(t, err)
	h.prop.Wait()

	result, err := h.svc.Restore(ctx, alice, child.ID)
	require.NoError(t, err)
	assert.False(t, result.Document.IsArchived)
	require.NotNil(t, result.Document.ParentID)
	assert.Equal(t, parent.ID, *result.Document.ParentID)
}

func TestListChildren_ExcludesArchivedAndForeign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root := h.create(t, alice, "R", nil)
	h.create(t, alice, "C1", root)
	c2 := h.create(t, alice, "C2", root)
	_, err := h.svc.Archive(ctx, alice, c2.ID)
	require.NoError(t, err)

	// C3 is inserted straight into the store: the service refuses foreign parents
	require.NoError(t, h.repo.Create(ctx, &models.Document{Title: "C3", OwnerID: bob.UserID, ParentID: &root.ID}))

	children, err := h.svc.ListChildren(ctx, alice, &root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, titles(children))

	_, err = h.svc.ListChildren(ctx, nil, &root.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	bad := "not-a-uuid"
	_, err = h.svc.ListChildren(ctx, alice, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListSearchable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.create(t, alice, "Meeting notes", nil)
	h.create(t, alice, "Groceries", nil)
	gone := h.create(t, alice, "Old meeting", nil)
	h.create(t, bob, "Bob's meeting", nil)
	_, err := h.svc.Archive(ctx, alice, gone.ID)
	require.NoError(t, err)

	all, err := h.svc.ListSearchable(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Groceries", "Meeting notes"}, titles(all))

	filtered, err := h.svc.ListSearchable(ctx, alice, "  MEETING ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Meeting notes"}, titles(filtered))

	_, err = h.svc.ListSearchable(ctx, alice, strings.Repeat("q", 201))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.create(t, alice, "Draft", nil)

	updated, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{
		Title:         services.Text("Final"),
		Content:       services.Text(`{"blocks":[]}`),
		CoverImageRef: services.Text("https://images.example.com/cover.png"),
		IconGlyph:     services.Text("📓"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, `{"blocks":[]}`, *updated.Content)
	assert.Equal(t, "https://images.example.com/cover.png", *updated.CoverImageRef)
	assert.Equal(t, "📓", *updated.IconGlyph)

	t.Run("absent fields untouched", func(t *testing.T) {
		published := true
		got, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{IsPublished: &published})
		require.NoError(t, err)
		assert.True(t, got.IsPublished)
		assert.Equal(t, "Final", got.Title)
		assert.NotNil(t, got.Content)
	})

	t.Run("null clears", func(t *testing.T) {
		got, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{
			Title:     services.NullText(),
			Content:   services.NullText(),
			IconGlyph: services.NullText(),
		})
		require.NoError(t, err)
		assert.Equal(t, models.DefaultTitle, got.Title)
		assert.Nil(t, got.Content)
		assert.Nil(t, got.IconGlyph)
		assert.NotNil(t, got.CoverImageRef)
	})

	t.Run("invalid cover url", func(t *testing.T) {
		_, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{CoverImageRef: services.Text("not a url")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("existence and ownership are checked before values", func(t *testing.T) {
		invalid := &services.UpdateDocumentRequest{CoverImageRef: services.Text("not a url")}

		_, err := h.svc.Update(ctx, alice, "missing", invalid)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = h.svc.Update(ctx, bob, doc.ID, invalid)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("empty request is a no-op", func(t *testing.T) {
		before := h.reload(t, doc.ID)
		got, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{})
		require.NoError(t, err)
		assert.Equal(t, before.UpdatedAt, got.UpdatedAt)
	})
}

func TestRemoveIcon_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.create(t, alice, "Iconic", nil)
	_, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{IconGlyph: services.Text("🔥")})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := h.svc.RemoveIcon(ctx, alice, doc.ID)
		require.NoError(t, err)
		assert.Nil(t, got.IconGlyph)
	}
	for i := 0; i < 2; i++ {
		got, err := h.svc.RemoveCoverImage(ctx, alice, doc.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CoverImageRef)
	}
}

func TestCoverImage_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.create(t, alice, "Cover", nil)

	upload := func(name string) *models.Document {
		got, err := h.svc.UploadCoverImage(ctx, alice, doc.ID, &services.CoverUpload{
			Filename: name, ContentType: "image/png", Size: 4, Body: bytes.NewReader([]byte("data")),
		})
		require.NoError(t, err)
		return got
	}

	first := upload("a.png")
	require.NotNil(t, first.CoverImageRef)
	assert.True(t, h.covers.OwnedBy(*first.CoverImageRef, alice.UserID))

	second := upload("b.png")
	assert.NotEqual(t, *first.CoverImageRef, *second.CoverImageRef)
	assert.Contains(t, h.covers.removed, *first.CoverImageRef)

	_, err := h.svc.RemoveCoverImage(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, h.covers.removed, *second.CoverImageRef)
	assert.Empty(t, h.covers.objects)

	t.Run("rejects non-images", func(t *testing.T) {
		_, err := h.svc.UploadCoverImage(ctx, alice, doc.ID, &services.CoverUpload{
			Filename: "x.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("foreign refs are left alone", func(t *testing.T) {
		_, err := h.svc.Update(ctx, alice, doc.ID, &services.UpdateDocumentRequest{CoverImageRef: services.Text("https://images.example.com/x.png")})
		require.NoError(t, err)
		removed := len(h.covers.removed)
		_, err = h.svc.RemoveCoverImage(ctx, alice, doc.ID)
		require.NoError(t, err)
		assert.Len(t, h.covers.removed, removed)
	})

	t.Run("upload failure leaves the document alone", func(t *testing.T) {
		before := h.reload(t, doc.ID)
		h.covers.failPut = true
		defer func() { h.covers.failPut = false }()

		_, err := h.svc.UploadCoverImage(ctx, alice, doc.ID, &services.CoverUpload{
			Filename: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x"),
		})
		require.Error(t, err)
		assert.Equal(t, before.CoverImageRef, h.reload(t, doc.ID).CoverImageRef)
	})

	t.Run("storage not configured", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := NewDocumentService(h.repo, memory.NewTransactionManager(), auth.NewOwnerPolicy(), h.prop, h.broker, nil, logger)
		_, err := svc.UploadCoverImage(ctx, alice, doc.ID, &services.CoverUpload{
			Filename: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, domain.ErrNotImplemented)
	})
}

func TestCoverImage_OtherUsersObjects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mine := h.create(t, alice, "Alice", nil)
	got, err := h.svc.UploadCoverImage(ctx, alice, mine.ID, &services.CoverUpload{
		Filename: "a.png", ContentType: "image/png", Size: 4, Body: bytes.NewReader([]byte("data")),
	})
	require.NoError(t, err)
	aliceRef := *got.CoverImageRef

	theirs := h.create(t, bob, "Bob", nil)

	t.Run("cannot point a cover at another user's upload", func(t *testing.T) {
		_, err := h.svc.Update(ctx, bob, theirs.ID, &services.UpdateDocumentRequest{CoverImageRef: services.Text(aliceRef)})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Nil(t, h.reload(t, theirs.ID).CoverImageRef)
	})

	t.Run("releasing a foreign object keeps it", func(t *testing.T) {
		// written straight to the store, as rows from before the check would be
		_, err := h.repo.Patch(ctx, theirs.ID, &models.DocumentPatch{CoverImageRef: &aliceRef})
		require.NoError(t, err)

		_, err = h.svc.RemoveCoverImage(ctx, bob, theirs.ID)
		require.NoError(t, err)

		_, err = h.repo.Patch(ctx, theirs.ID, &models.DocumentPatch{CoverImageRef: &aliceRef})
		require.NoError(t, err)
		_, err = h.svc.Remove(ctx, bob, theirs.ID)
		require.NoError(t, err)

		assert.NotContains(t, h.covers.removed, aliceRef)
		assert.Contains(t, h.covers.objects, aliceRef)
		assert.Equal(t, aliceRef, *h.reload(t, mine.ID).CoverImageRef)
	})
}

func TestArchiveThenRestore_WideSubtreeConverges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root := h.create(t, alice, "R", nil)
	for i := 0; i < 200; i++ {
		h.create(t, alice, "C", root)
	}

	_, err := h.svc.Archive(ctx, alice, root.ID)
	require.NoError(t, err)
	_, err = h.svc.Restore(ctx, alice, root.ID)
	require.NoError(t, err)
	h.prop.Wait()

	trash, err := h.svc.ListTrash(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, trash)

	children, err := h.svc.ListChildren(ctx, alice, &root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 200)
}

func TestRemove_DetachesChildren(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	parent := h.create(t, alice, "P", nil)
	child := h.create(t, alice, "C", parent)
	grandchild := h.create(t, alice, "G", child)

	deleted, err := h.svc.Remove(ctx, alice, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, deleted.ID)

	_, err = h.repo.GetByID(ctx, parent.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Nil(t, h.reload(t, child.ID).ParentID)
	assert.Equal(t, child.ID, *h.reload(t, grandchild.ID).ParentID)

	roots, err := h.svc.ListChildren(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, titles(roots))
}

func TestEndToEnd_ArchiveScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.create(t, alice, "A", nil)
	h.create(t, alice, "B", a)

	_, err := h.svc.Archive(ctx, alice, a.ID)
	require.NoError(t, err)

	// the root is in the trash as soon as Archive returns
	trash, err := h.svc.ListTrash(ctx, alice)
	require.NoError(t, err)
	assert.Contains(t, titles(trash), "A")

	h.prop.Wait()

	trash, err = h.svc.ListTrash(ctx, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, titles(trash))

	roots, err := h.svc.ListChildren(ctx, alice, nil)
	require.NoError(t, err)
	assert.NotContains(t, titles(roots), "A")
}

func TestArchive_PublishesChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	events, cancel := h.broker.Subscribe(changefeed.ByOwner(alice.UserID))
	defer cancel()

	root := h.create(t, alice, "R", nil)
	h.create(t, alice, "C", root)

	result, err := h.svc.Archive(ctx, alice, root.ID)
	require.NoError(t, err)

	var seen []models.ChangeType
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			seen = append(seen, evt.Type)
			if evt.Type == models.ChangePropagationCompleted {
				assert.Equal(t, result.PropagationID, evt.JobID)
				assert.Equal(t, 1, evt.NodesPatched)
				assert.Zero(t, evt.Failures)
				assert.Equal(t, []models.ChangeType{
					models.ChangeCreated,
					models.ChangeCreated,
					models.ChangeArchived,
					models.ChangeArchived,
					models.ChangePropagationCompleted,
				}, seen)
				return
			}
		case <-timeout:
			t.Fatalf("no completion event, saw %v", seen)
		}
	}
}
