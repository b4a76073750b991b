package services

import "context"

// TreePropagator walks a document's subtree after the root write has committed.
// Enqueue must not wait for the walk.
type TreePropagator interface {
	// Enqueue schedules the walk below rootID and returns the job ID
	Enqueue(ctx context.Context, rootID, ownerID string, archived bool) string
}
