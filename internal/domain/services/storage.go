package services

import (
	"context"
	"io"
)

// CoverStore keeps cover image objects
type CoverStore interface {
	// Upload stores the object under key and returns its public reference
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)

	// Remove deletes the object behind ref. Refs this store did not issue are ignored.
	Remove(ctx context.Context, ref string) error

	// Contains reports whether ref points into this store
	Contains(ref string) bool

	// OwnedBy reports whether ref is an object this store keeps for ownerID
	OwnedBy(ref, ownerID string) bool
}
