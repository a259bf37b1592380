package search

import (
	"time"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// IndexResource describes a repository resource for one indexing pass.
type IndexResource struct {
	ID           uuid.UUID
	Name         string
	TypeName     string
	MimeType     string
	RootPath     string
	DocumentKey  DocumentKey
	Title        string
	Categories   []string
	LastModified time.Time
}

// NewIndexResource wraps a repository resource.
func NewIndexResource(res *repository.Resource) *IndexResource {
	cats := make([]string, len(res.Categories))
	copy(cats, res.Categories)

	return &IndexResource{
		ID:           res.ID,
		Name:         res.Name,
		TypeName:     res.TypeName,
		MimeType:     res.MimeType,
		RootPath:     res.RootPath,
		DocumentKey:  NewDocumentKey(res.TypeName, res.MimeType),
		Title:        res.Title,
		Categories:   cats,
		LastModified: res.LastModified,
	}
}
