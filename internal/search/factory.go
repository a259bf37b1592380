package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// DocumentKey selects a document factory for a resource: a resource type
// name and, optionally, a mime type.
type DocumentKey struct {
	TypeName string
	MimeType string
}

// NewDocumentKey creates a key for a resource type and mime type.
func NewDocumentKey(typeName, mimeType string) DocumentKey {
	return DocumentKey{TypeName: typeName, MimeType: mimeType}
}

// String renders the key as "type:mimetype", or "type" when no mime type is set.
func (k DocumentKey) String() string {
	if k.MimeType == "" {
		return k.TypeName
	}
	return k.TypeName + ":" + k.MimeType
}

// Fallback returns the type-only key.
func (k DocumentKey) Fallback() DocumentKey {
	return DocumentKey{TypeName: k.TypeName}
}

// ParseDocumentKey parses the "type:mimetype" form.
func ParseDocumentKey(s string) DocumentKey {
	typeName, mimeType, _ := strings.Cut(s, ":")
	return DocumentKey{TypeName: typeName, MimeType: mimeType}
}

// DocumentFactory converts a resource into an indexable document.
// Implementations must honor ctx cancellation: an abandoned extraction
// is canceled through it.
type DocumentFactory interface {
	// Name is the document type name that sources list to accept this factory.
	Name() string

	// Keys are the document keys this factory handles.
	Keys() []DocumentKey

	// NewDocument extracts the document for res in the given locale.
	NewDocument(ctx context.Context, rc *repository.Context, res *IndexResource, locale string) (*domain.Document, error)
}

// FactoryRegistry maps document keys to factories. It is filled at startup.
type FactoryRegistry struct {
	mu     sync.RWMutex
	byKey  map[string]DocumentFactory
	byName map[string]DocumentFactory
}

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{
		byKey:  make(map[string]DocumentFactory),
		byName: make(map[string]DocumentFactory),
	}
}

// Register adds a factory under its name and every one of its keys.
func (r *FactoryRegistry) Register(f DocumentFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Name() == "" {
		return fmt.Errorf("document factory name cannot be empty")
	}
	if _, ok := r.byName[f.Name()]; ok {
		return fmt.Errorf("document factory %q already registered", f.Name())
	}
	for _, key := range f.Keys() {
		if existing, ok := r.byKey[key.String()]; ok {
			return fmt.Errorf("document key %q already handled by factory %q", key, existing.Name())
		}
	}

	r.byName[f.Name()] = f
	for _, key := range f.Keys() {
		r.byKey[key.String()] = f
	}
	return nil
}

// Lookup returns the factory for key. The exact "type:mimetype" key wins
// over the type-only key.
func (r *FactoryRegistry) Lookup(key DocumentKey) (DocumentFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.byKey[key.String()]; ok {
		return f, true
	}
	f, ok := r.byKey[key.Fallback().String()]
	return f, ok
}

// ByName returns the factory with the given document type name.
func (r *FactoryRegistry) ByName(name string) (DocumentFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// IsIndexable reports whether any factory handles the resource type.
func (r *FactoryRegistry) IsIndexable(typeName, mimeType string) bool {
	_, ok := r.Lookup(NewDocumentKey(typeName, mimeType))
	return ok
}

// Names returns the registered document type names, sorted.
func (r *FactoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDocument fills the common document fields for res. Factories supply
// the extracted title and content.
func NewDocument(res *IndexResource, docType, locale, title, content string) *domain.Document {
	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = res.Name
	}
	cats := make([]string, len(res.Categories))
	copy(cats, res.Categories)

	return &domain.Document{
		ID:           res.RootPath,
		Path:         res.RootPath,
		RootPath:     RootPathValue(res.RootPath),
		Type:         docType,
		ResourceType: res.TypeName,
		MimeType:     res.MimeType,
		Title:        title,
		Content:      content,
		Categories:   cats,
		Locale:       locale,
		LastModified: res.LastModified.UTC().Truncate(time.Second),
	}
}
