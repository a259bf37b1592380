package repository

import (
	"github.com/google/uuid"
)

// ResourceState is the publish state of a resource.
type ResourceState int

const (
	StateUnchanged ResourceState = iota
	StateNew
	StateChanged
	StateDeleted
)

func (s ResourceState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateChanged:
		return "changed"
	case StateDeleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// IsDeleted reports whether the resource was removed.
func (s ResourceState) IsDeleted() bool { return s == StateDeleted }

// IsNew reports whether the resource was created.
func (s ResourceState) IsNew() bool { return s == StateNew }

// IsChanged reports whether an existing resource was modified.
func (s ResourceState) IsChanged() bool { return s == StateChanged }

// PublishedResource is one entry of a publish change set.
type PublishedResource struct {
	ID       uuid.UUID
	RootPath string
	TypeName string
	MimeType string
	IsFolder bool
	State    ResourceState
}

// EventType identifies a repository event.
type EventType int

const (
	// EventPublishProject is emitted after a publish completed.
	EventPublishProject EventType = iota + 1

	// EventClearCaches is emitted when all repository caches must be dropped.
	EventClearCaches
)

func (t EventType) String() string {
	switch t {
	case EventPublishProject:
		return "publish_project"
	case EventClearCaches:
		return "clear_caches"
	default:
		return "unknown"
	}
}

// Event is a repository notification.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Project   string
	Published []PublishedResource
}

// NewPublishEvent creates a publish event for the given change set.
func NewPublishEvent(project string, published []PublishedResource) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventPublishProject,
		Project:   project,
		Published: published,
	}
}

// EventHandler consumes repository events.
type EventHandler interface {
	HandleEvent(ev Event)
}
