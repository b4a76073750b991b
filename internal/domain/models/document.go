package models

import (
	"strings"
	"time"
)

// DefaultTitle is used whenever a title is created or cleared as blank
const DefaultTitle = "Untitled"

// Document is a note, optionally nested under a parent note.
// Parent references form a forest: ParentID is only ever set at creation
// or cleared, never pointed at a descendant, so no cycles can appear.
type Document struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	OwnerID       string    `json:"owner_id" db:"owner_id"`
	ParentID      *string   `json:"parent_id" db:"parent_id"` // NULL = root level
	Content       *string   `json:"content,omitempty" db:"content"`
	CoverImageRef *string   `json:"cover_image_ref,omitempty" db:"cover_image_ref"`
	IconGlyph     *string   `json:"icon_glyph,omitempty" db:"icon_glyph"`
	IsArchived    bool      `json:"is_archived" db:"is_archived"`
	IsPublished   bool      `json:"is_published" db:"is_published"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IsPubliclyReadable reports whether anyone, including anonymous callers,
// may read the document.
func (d *Document) IsPubliclyReadable() bool {
	return d.IsPublished && !d.IsArchived
}

// Clone returns a deep copy so stores never hand out shared pointers
func (d *Document) Clone() *Document {
	c := *d
	c.ParentID = cloneString(d.ParentID)
	c.Content = cloneString(d.Content)
	c.CoverImageRef = cloneString(d.CoverImageRef)
	c.IconGlyph = cloneString(d.IconGlyph)
	return &c
}

// DocumentPatch is a per-field write. Nil pointers and false clear flags
// leave the stored value untouched; a set pointer wins over its clear flag.
type DocumentPatch struct {
	Title         *string
	Content       *string
	CoverImageRef *string
	IconGlyph     *string
	IsPublished   *bool
	IsArchived    *bool

	ClearContent    bool
	ClearCoverImage bool
	ClearIcon       bool
	ClearParent     bool
}

// IsEmpty reports whether the patch would write nothing
func (p *DocumentPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.CoverImageRef == nil &&
		p.IconGlyph == nil && p.IsPublished == nil && p.IsArchived == nil &&
		!p.ClearContent && !p.ClearCoverImage && !p.ClearIcon && !p.ClearParent
}

// Apply writes the patch onto doc in place
func (p *DocumentPatch) Apply(doc *Document) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	switch {
	case p.Content != nil:
		doc.Content = cloneString(p.Content)
	case p.ClearContent:
		doc.Content = nil
	}
	switch {
	case p.CoverImageRef != nil:
		doc.CoverImageRef = cloneString(p.CoverImageRef)
	case p.ClearCoverImage:
		doc.CoverImageRef = nil
	}
	switch {
	case p.IconGlyph != nil:
		doc.IconGlyph = cloneString(p.IconGlyph)
	case p.ClearIcon:
		doc.IconGlyph = nil
	}
	if p.IsPublished != nil {
		doc.IsPublished = *p.IsPublished
	}
	if p.IsArchived != nil {
		doc.IsArchived = *p.IsArchived
	}
	if p.ClearParent {
		doc.ParentID = nil
	}
}

// NormalizeTitle trims a title and falls back to DefaultTitle when blank
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
