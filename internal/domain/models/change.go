package models

import "time"

// ChangeType names what happened to a document
type ChangeType string

const (
	ChangeCreated              ChangeType = "document.created"
	ChangeUpdated              ChangeType = "document.updated"
	ChangeArchived             ChangeType = "document.archived"
	ChangeRestored             ChangeType = "document.restored"
	ChangeRemoved              ChangeType = "document.removed"
	ChangePropagationCompleted ChangeType = "propagation.completed"
)

// ChangeEvent is one committed write, addressed to every index range it touches.
// Subscribers treat it as "re-run the queries over these topics".
type ChangeEvent struct {
	Type        ChangeType `json:"type"`
	DocumentID  string     `json:"document_id"`
	OwnerID     string     `json:"owner_id"`
	ParentID    *string    `json:"parent_id,omitempty"`
	IsArchived  bool       `json:"is_archived"`
	IsPublished bool       `json:"is_published"`
	Topics      []string   `json:"topics"`
	At          time.Time  `json:"at"`

	// Set on propagation events
	JobID        string `json:"job_id,omitempty"`
	NodesPatched int    `json:"nodes_patched,omitempty"`
	Failures     int    `json:"failures,omitempty"`
}

// PropagationJob describes one background subtree walk
type PropagationJob struct {
	ID       string `json:"id"`
	RootID   string `json:"root_id"`
	OwnerID  string `json:"owner_id"`
	Archived bool   `json:"archived"`
}

// LifecycleResult is returned by archive and restore: the root document
// as committed, and the id of the subtree walk that follows it.
type LifecycleResult struct {
	Document      *Document `json:"document"`
	PropagationID string    `json:"propagation_id,omitempty"`
}
