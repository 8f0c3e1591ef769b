package models

import "time"

// ItemState is the indexing lifecycle state of an IndexedItem.
type ItemState string

// Indexing lifecycle states.
const (
	ItemStateNew      ItemState = "NEW"
	ItemStateIndexing ItemState = "INDEXING"
	ItemStateIndexed  ItemState = "INDEXED"
	ItemStateFailed   ItemState = "FAILED"
)

// IsValid reports whether the state is one of the lifecycle values.
func (s ItemState) IsValid() bool {
	switch s {
	case ItemStateNew, ItemStateIndexing, ItemStateIndexed, ItemStateFailed:
		return true
	}
	return false
}

// ItemKind selects the per-source collection an item lives in.
type ItemKind string

// Supported item kinds and their collection names.
const (
	KindConfluencePage ItemKind = "confluence_pages"
	KindJiraIssue      ItemKind = "jira_issues"
	KindGitCommit      ItemKind = "git_commits"
	KindEmailMessage   ItemKind = "email_messages"
)

// Collection returns the Mongo collection name for the kind.
func (k ItemKind) Collection() string { return string(k) }

// Attachment is a file attached to a remote item.
type Attachment struct {
	Name     string `bson:"name" json:"name"`
	MimeType string `bson:"mimeType,omitempty" json:"mimeType,omitempty"`
	URL      string `bson:"url,omitempty" json:"url,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// ItemPayload carries the full content of a remote item. Present only while
// the item is NEW, INDEXING, or FAILED; an INDEXED document must not have it.
type ItemPayload struct {
	Title       string       `bson:"title" json:"title"`
	Body        string       `bson:"body" json:"body"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ParentRef   string       `bson:"parentRef,omitempty" json:"parentRef,omitempty"`
	Author      string       `bson:"author,omitempty" json:"author,omitempty"`
	URL         string       `bson:"url,omitempty" json:"url,omitempty"`
}

// IndexedItem is a unit of external knowledge tracked through the
// NEW → INDEXING → INDEXED / FAILED lifecycle. Exactly one document exists
// per (connectionId, remoteKey) at any time; once INDEXED only the minimal
// tracking tuple remains and the document acts as a dedup marker.
type IndexedItem struct {
	ID           ItemID       `bson:"_id" json:"id"`
	Kind         ItemKind     `bson:"-" json:"kind"`
	ConnectionID ConnectionID `bson:"connectionId" json:"connectionId"`
	ProjectID    *ProjectID   `bson:"projectId,omitempty" json:"projectId,omitempty"`
	// RemoteKey is the provider-side natural key (page id, issue key,
	// commit SHA, message id).
	RemoteKey string    `bson:"remoteKey" json:"remoteKey"`
	State     ItemState `bson:"state" json:"state"`
	// SourceUpdatedAt is the provider-side last-modified timestamp.
	SourceUpdatedAt time.Time    `bson:"sourceUpdatedAt" json:"sourceUpdatedAt"`
	Payload         *ItemPayload `bson:"payload,omitempty" json:"payload,omitempty"`
	Error           string       `bson:"error,omitempty" json:"error,omitempty"`
	// IndexingStartedAt is set when the item enters INDEXING; items stuck
	// past the stale window are reset to NEW.
	IndexingStartedAt *time.Time `bson:"indexingStartedAt,omitempty" json:"indexingStartedAt,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewIndexedItem builds a NEW item carrying the full payload.
func NewIndexedItem(kind ItemKind, connectionID ConnectionID, remoteKey string, sourceUpdatedAt time.Time, payload *ItemPayload) *IndexedItem {
	now := time.Now().UTC()
	return &IndexedItem{
		ID:              NewItemID(),
		Kind:            kind,
		ConnectionID:    connectionID,
		RemoteKey:       remoteKey,
		State:           ItemStateNew,
		SourceUpdatedAt: sourceUpdatedAt,
		Payload:         payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IndexedShell returns the minimal INDEXED document for the item: same id
// and natural key, no payload, no error.
func (it *IndexedItem) IndexedShell() *IndexedItem {
	return &IndexedItem{
		ID:              it.ID,
		Kind:            it.Kind,
		ConnectionID:    it.ConnectionID,
		ProjectID:       it.ProjectID,
		RemoteKey:       it.RemoteKey,
		State:           ItemStateIndexed,
		SourceUpdatedAt: it.SourceUpdatedAt,
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       time.Now().UTC(),
	}
}
