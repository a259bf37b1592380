package search

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// PathFilter excludes root paths matching any of a set of glob patterns.
// Patterns use '/' as separator: "*" stays within one path segment,
// "**" crosses segments. A pattern without a leading '/' matches at any depth.
type PathFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewPathFilter compiles the patterns.
func NewPathFilter(patterns []string) (*PathFilter, error) {
	f := &PathFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := p
		if !strings.HasPrefix(expr, "/") {
			expr = "**/" + expr
		}
		g, err := glob.Compile(expr, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// ShouldExclude returns true if rootPath matches any pattern.
func (f *PathFilter) ShouldExclude(rootPath string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.globs {
		if g.Match(rootPath) {
			return true
		}
	}
	return false
}

// Patterns returns the configured patterns.
func (f *PathFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return f.patterns
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
