package changefeed

import "jokernotes/internal/domain/models"

// RootParent names the top level in parent topics and filters
const RootParent = "root"

// ByOwner addresses every document of an owner (trash, search)
func ByOwner(ownerID string) string {
	return "by_owner:" + ownerID
}

// ByOwnerParent addresses one sidebar level; a nil parent is the root level
func ByOwnerParent(ownerID string, parentID *string) string {
	parent := RootParent
	if parentID != nil {
		parent = *parentID
	}
	return "by_owner_parent:" + ownerID + ":" + parent
}

// Document addresses a single document
func Document(id string) string {
	return "document:" + id
}

// TopicsFor lists every topic a write to doc invalidates. formerParents
// are the levels the document was listed under before the write.
func TopicsFor(doc *models.Document, formerParents ...*string) []string {
	topics := []string{
		Document(doc.ID),
		ByOwner(doc.OwnerID),
		ByOwnerParent(doc.OwnerID, doc.ParentID),
	}
	for _, p := range formerParents {
		t := ByOwnerParent(doc.OwnerID, p)
		if !contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

// NewEvent builds a change event for doc addressed to TopicsFor(doc, formerParents...)
func NewEvent(typ models.ChangeType, doc *models.Document, formerParents ...*string) models.ChangeEvent {
	return models.ChangeEvent{
		Type:        typ,
		DocumentID:  doc.ID,
		OwnerID:     doc.OwnerID,
		ParentID:    doc.ParentID,
		IsArchived:  doc.IsArchived,
		IsPublished: doc.IsPublished,
		Topics:      TopicsFor(doc, formerParents...),
		At:          doc.UpdatedAt,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
