package domain

import "time"

// Document is the searchable representation of one repository resource.
// It is the structure stored in the Bleve search index; one Document exists
// per resource root path.
type Document struct {
	// ID is the index document id. It is the resource root path, which makes
	// re-indexing a resource replace its previous document.
	ID string `json:"id"`

	// Path is the resource root path, for example "/sites/default/news/a.txt".
	Path string `json:"path"`

	// RootPath is the tokenized form of Path used for subtree scoping.
	// Tokens are joined by "/" and carry the segment marker.
	RootPath string `json:"rootpath"`

	// Type is the document type (the name of the factory that built it).
	Type string `json:"type"`

	// ResourceType is the repository resource type, e.g. "plain" or "html".
	ResourceType string `json:"resource_type"`

	// MimeType of the resource content.
	MimeType string `json:"mimetype"`

	// Title is the display title; falls back to the resource name.
	Title string `json:"title"`

	// Content is the extracted text, analyzed with the index locale analyzer
	// and stored for excerpt generation.
	Content string `json:"content"`

	// Categories are keyword tags used for category scoping and aggregation.
	Categories []string `json:"category"`

	// Locale the content was extracted for.
	Locale string `json:"locale"`

	// LastModified is the resource modification time.
	LastModified time.Time `json:"last_modified"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	FieldID           = "id"
	FieldPath         = "path"
	FieldRootPath     = "rootpath"
	FieldType         = "type"
	FieldResourceType = "resource_type"
	FieldMimeType     = "mimetype"
	FieldTitle        = "title"
	FieldContent      = "content"
	FieldCategory     = "category"
	FieldLocale       = "locale"
	FieldLastModified = "last_modified"
)

// DisplayFields are the stored fields loaded for every search hit.
var DisplayFields = []string{
	FieldPath,
	FieldType,
	FieldResourceType,
	FieldMimeType,
	FieldTitle,
	FieldCategory,
	FieldLastModified,
}

// Size approximates the in-memory size of the document in bytes.
func (d *Document) Size() int64 {
	n := len(d.ID) + len(d.Path) + len(d.RootPath) + len(d.Type) + len(d.ResourceType) +
		len(d.MimeType) + len(d.Title) + len(d.Content) + len(d.Locale)
	for _, c := range d.Categories {
		n += len(c)
	}
	return int64(n) + 64
}
