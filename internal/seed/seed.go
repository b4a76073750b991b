package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
)

//go:embed fixtures/notes.yaml
var defaultFixture []byte

// Node is one document in a fixture tree
type Node struct {
	Title     string `yaml:"title"`
	Content   string `yaml:"content"`
	Icon      string `yaml:"icon"`
	Published bool   `yaml:"published"`
	Archived  bool   `yaml:"archived"`
	Children  []Node `yaml:"children"`
}

// Fixture is a forest of documents to create for one owner
type Fixture struct {
	Documents []Node `yaml:"documents"`
}

// Count returns the number of documents in the fixture
func (f *Fixture) Count() int {
	return countNodes(f.Documents)
}

func countNodes(nodes []Node) int {
	n := len(nodes)
	for i := range nodes {
		n += countNodes(nodes[i].Children)
	}
	return n
}

// Default returns the embedded sample workspace
func Default() (*Fixture, error) {
	return Parse(defaultFixture)
}

// Parse decodes a YAML fixture
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.Documents) == 0 {
		return nil, fmt.Errorf("parse fixture: no documents")
	}
	return &f, nil
}

// Seeder creates fixture documents through the document service so the
// same validation and ownership rules apply as for API writes
type Seeder struct {
	docService services.DocumentService
	logger     *slog.Logger
}

// NewSeeder creates a seeder
func NewSeeder(docService services.DocumentService, logger *slog.Logger) *Seeder {
	return &Seeder{docService: docService, logger: logger}
}

// Apply creates every document of f for ownerID, parents before children.
// Archived nodes are archived after their subtree exists so the trash
// holds the whole branch. Returns the number of documents created.
func (s *Seeder) Apply(ctx context.Context, ownerID string, f *Fixture) (int, error) {
	caller := models.NewIdentity(ownerID)
	if caller == nil {
		return 0, fmt.Errorf("seed: owner is required")
	}

	created := 0
	for i := range f.Documents {
		n, err := s.createTree(ctx, caller, nil, &f.Documents[i])
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *Seeder) createTree(ctx context.Context, caller *models.Identity, parentID *string, node *Node) (int, error) {
	doc, err := s.docService.Create(ctx, caller, &services.CreateDocumentRequest{
		Title:    node.Title,
		ParentID: parentID,
	})
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", node.Title, err)
	}
	s.logger.Debug("seeded document", "id", doc.ID, "title", doc.Title)

	if req, ok := updateFor(node); ok {
		if _, err := s.docService.Update(ctx, caller, doc.ID, req); err != nil {
			return 1, fmt.Errorf("update %q: %w", node.Title, err)
		}
	}

	created := 1
	for i := range node.Children {
		n, err := s.createTree(ctx, caller, &doc.ID, &node.Children[i])
		created += n
		if err != nil {
			return created, err
		}
	}

	if node.Archived {
		if _, err := s.docService.Archive(ctx, caller, doc.ID); err != nil {
			return created, fmt.Errorf("archive %q: %w", node.Title, err)
		}
	}
	return created, nil
}

// updateFor builds the patch carrying the fields Create does not accept
func updateFor(node *Node) (*services.UpdateDocumentRequest, bool) {
	var req services.UpdateDocumentRequest
	ok := false
	if node.Content != "" {
		req.Content = services.Text(node.Content)
		ok = true
	}
	if node.Icon != "" {
		req.IconGlyph = services.Text(node.Icon)
		ok = true
	}
	if node.Published {
		published := true
		req.IsPublished = &published
		ok = true
	}
	return &req, ok
}
