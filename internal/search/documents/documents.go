// Package documents provides the document factories for text content of
// the filesystem repository: plain text, HTML and markdown.
package documents

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

const (
	// TypePlain is the document type of plain text documents.
	TypePlain = "plain"

	// TypeHTML is the document type of HTML documents.
	TypeHTML = "html"

	// TypeMarkdown is the document type of markdown documents.
	TypeMarkdown = "markdown"

	// DefaultMaxContentSize is the largest content a factory extracts (1MB).
	DefaultMaxContentSize = 1024 * 1024
)

var (
	// ErrBinaryContent is returned for content that is not text.
	ErrBinaryContent = errors.New("content is binary")

	// ErrContentTooLarge is returned for content above the size limit.
	ErrContentTooLarge = errors.New("content exceeds size limit")
)

// extractFunc turns raw content into a title (possibly empty) and text.
type extractFunc func(content string) (title, text string)

// Factory is a document factory that reads resource content from a
// repository and extracts text with a type specific function.
type Factory struct {
	name    string
	keys    []search.DocumentKey
	repo    repository.Repository
	maxSize int
	extract extractFunc
}

// Name returns the document type name.
func (f *Factory) Name() string { return f.name }

// Keys returns the document keys handled.
func (f *Factory) Keys() []search.DocumentKey { return f.keys }

// NewDocument reads the content of res and builds its document.
func (f *Factory) NewDocument(ctx context.Context, rc *repository.Context, res *search.IndexResource, locale string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := f.repo.ReadContent(ctx, rc, res.RootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", res.RootPath, err)
	}
	if len(content) > f.maxSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrContentTooLarge, res.RootPath, len(content))
	}
	if search.IsBinary(content) {
		return nil, fmt.Errorf("%w: %s", ErrBinaryContent, res.RootPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title, text := f.extract(string(content))
	return search.NewDocument(res, f.name, locale, title, text), nil
}

// NewPlainTextFactory creates the factory for plain text resources.
func NewPlainTextFactory(repo repository.Repository, maxSize int) *Factory {
	return newFactory(TypePlain, repo, maxSize, extractPlain,
		search.NewDocumentKey("plain", ""),
		search.NewDocumentKey("plain", "text/plain"),
	)
}

// NewHTMLFactory creates the factory for HTML resources.
func NewHTMLFactory(repo repository.Repository, maxSize int) *Factory {
	return newFactory(TypeHTML, repo, maxSize, newHTMLExtractor(),
		search.NewDocumentKey("html", ""),
	)
}

// NewMarkdownFactory creates the factory for markdown resources.
func NewMarkdownFactory(repo repository.Repository, maxSize int) *Factory {
	return newFactory(TypeMarkdown, repo, maxSize, extractMarkdown,
		search.NewDocumentKey("markdown", ""),
	)
}

// Register adds every factory of this package to registry.
func Register(registry *search.FactoryRegistry, repo repository.Repository, maxSize int) error {
	for _, f := range []*Factory{
		NewPlainTextFactory(repo, maxSize),
		NewHTMLFactory(repo, maxSize),
		NewMarkdownFactory(repo, maxSize),
	} {
		if err := registry.Register(f); err != nil {
			return err
		}
	}
	return nil
}

func newFactory(name string, repo repository.Repository, maxSize int, extract extractFunc, keys ...search.DocumentKey) *Factory {
	if maxSize <= 0 {
		maxSize = DefaultMaxContentSize
	}
	return &Factory{name: name, keys: keys, repo: repo, maxSize: maxSize, extract: extract}
}

func extractPlain(content string) (string, string) {
	return "", strings.TrimSpace(content)
}

var (
	htmlTitle  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	whitespace = regexp.MustCompile(`\s+`)
)

func newHTMLExtractor() extractFunc {
	policy := bluemonday.StrictPolicy()
	return func(content string) (string, string) {
		var title string
		if m := htmlTitle.FindStringSubmatch(content); m != nil {
			title = collapse(html.UnescapeString(policy.Sanitize(m[1])))
		}
		text := html.UnescapeString(policy.Sanitize(content))
		return title, collapse(text)
	}
}

var (
	mdHeading = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+(.*?)[ \t]*#*[ \t]*$`)
	mdLink    = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdFence   = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	mdMarkup  = regexp.MustCompile("(?m)^[ \t]{0,3}(>+|[-*+]|\\d+\\.)[ \t]+|[*`~]+")
)

// extractMarkdown strips markdown syntax; the first heading is the title.
func extractMarkdown(content string) (string, string) {
	var title string
	if m := mdHeading.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(mdMarkup.ReplaceAllString(m[1], ""))
	}
	text := mdHeading.ReplaceAllString(content, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdFence.ReplaceAllString(text, "")
	text = mdMarkup.ReplaceAllString(text, "")
	return title, strings.TrimSpace(text)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
