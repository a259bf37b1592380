package search

import (
	"time"
)

const (
	// DefaultPageSize is used when a search does not set a page size.
	DefaultPageSize = 10

	// MaxPageSize caps the page size of a search.
	MaxPageSize = 100
)

// Parameters describe one search request.
type Parameters struct {
	// Query is the search text. Quoted groups are matched as phrases.
	Query string

	// Roots restrict results to documents below any of these root paths.
	// Empty means the whole project.
	Roots []string

	// Fields are the document fields to search; empty means content.
	Fields []string

	// Categories restrict results to documents with any of these categories.
	Categories []string

	// CalculateCategories requests per-category hit counts.
	CalculateCategories bool

	// Page is 1-based.
	Page     int
	PageSize int
}

// Normalize applies defaults and bounds.
func (p Parameters) Normalize() Parameters {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	p.PageSize = min(p.PageSize, MaxPageSize)
	return p
}

// Result is one visible search hit.
type Result struct {
	Score        float64
	Path         string
	Title        string
	Type         string
	ResourceType string
	MimeType     string
	Categories   []string
	Locale       string
	LastModified time.Time
	Excerpt      string
}

// ResultList is one page of results.
type ResultList struct {
	Results []*Result

	// HitCount is the number of matching documents before permission
	// filtering, so it may exceed what the caller is allowed to see.
	HitCount uint64

	Page     int
	PageSize int

	// Categories maps category to hit count when requested.
	Categories map[string]int
}

// PageCount returns the number of pages implied by HitCount.
func (l *ResultList) PageCount() int {
	if l.PageSize <= 0 {
		return 0
	}
	return int((l.HitCount + uint64(l.PageSize) - 1) / uint64(l.PageSize))
}
