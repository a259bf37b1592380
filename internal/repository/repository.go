// Package repository defines the contracts of the content repository the
// search engine reads from. The engine never stores resources or evaluates
// permissions itself; it asks a Repository.
package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well known project names.
const (
	ProjectOnline  = "Online"
	ProjectOffline = "Offline"
)

var (
	// ErrNotFound indicates the resource does not exist in the current project.
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied indicates the resource is not readable in the current context.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownProject indicates the context refers to a project the repository does not know.
	ErrUnknownProject = errors.New("unknown project")
)

// Context carries the caller identity and the active project a repository
// operation runs in. The active project can be switched temporarily, for
// example by a search that reads a specific snapshot.
type Context struct {
	User string

	mu      sync.RWMutex
	project string
}

// NewContext creates a context for the given user and project.
func NewContext(user, project string) *Context {
	return &Context{User: user, project: project}
}

// CurrentProject returns the active project.
func (c *Context) CurrentProject() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project
}

// SetCurrentProject switches the active project and returns the previous one.
func (c *Context) SetCurrentProject(project string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.project
	c.project = project
	return prev
}

// Resource describes one repository resource.
type Resource struct {
	ID           uuid.UUID
	RootPath     string
	Name         string
	TypeName     string
	MimeType     string
	IsFolder     bool
	Size         int64
	LastModified time.Time
	Title        string
	Categories   []string
}

// Repository is the read-only resource and property provider.
type Repository interface {
	// ReadResources returns the resources below rootPath (rootPath included
	// when it is a file) in depth-first order.
	ReadResources(ctx context.Context, rc *Context, rootPath string) ([]*Resource, error)

	// ReadResource returns a single resource.
	ReadResource(ctx context.Context, rc *Context, rootPath string) (*Resource, error)

	// ReadContent returns the raw bytes of a file resource.
	ReadContent(ctx context.Context, rc *Context, rootPath string) ([]byte, error)

	// HasReadPermission reports whether rootPath exists and is readable for rc.
	HasReadPermission(ctx context.Context, rc *Context, rootPath string) bool
}
