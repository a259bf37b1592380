package search

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	// ParamExclude is the source parameter holding comma separated exclude globs.
	ParamExclude = "exclude"

	// DefaultIndexerName is used when a source does not name an indexer.
	DefaultIndexerName = "vfs"
)

// Source is a named, reusable definition of what to index: root paths,
// the accepted document types and the indexer that enumerates resources.
// It is not modified after it is added to a manager.
type Source struct {
	Name          string
	Paths         []string
	DocumentTypes []string
	IndexerName   string
	Params        map[string]string

	filter *PathFilter
}

// NewSource creates a source. Paths are cleaned and rooted at "/".
func NewSource(name string, paths, documentTypes []string, indexerName string, params map[string]string) (*Source, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("source name cannot be empty")
	}
	if len(paths) == 0 {
		return nil, &ConfigError{Source: name, Err: errors.New("no paths configured")}
	}
	if len(documentTypes) == 0 {
		return nil, &ConfigError{Source: name, Err: errors.New("no document types configured")}
	}
	if indexerName == "" {
		indexerName = DefaultIndexerName
	}

	s := &Source{
		Name:          name,
		DocumentTypes: append([]string(nil), documentTypes...),
		IndexerName:   indexerName,
		Params:        make(map[string]string, len(params)),
	}
	for k, v := range params {
		s.Params[k] = v
	}
	for _, p := range paths {
		s.Paths = append(s.Paths, CleanRootPath(p))
	}

	var patterns []string
	if excl := s.Params[ParamExclude]; excl != "" {
		patterns = strings.Split(excl, ",")
	}
	filter, err := NewPathFilter(patterns)
	if err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}
	s.filter = filter

	return s, nil
}

// Contains reports whether rootPath lies under one of the source paths
// and is not excluded.
func (s *Source) Contains(rootPath string) bool {
	for _, p := range s.Paths {
		if IsUnder(p, rootPath) {
			return !s.Excludes(rootPath)
		}
	}
	return false
}

// Excludes reports whether rootPath matches an exclude pattern of the source.
func (s *Source) Excludes(rootPath string) bool {
	return s.filter.ShouldExclude(rootPath)
}

// AcceptsDocumentType reports whether the source lists docType.
func (s *Source) AcceptsDocumentType(docType string) bool {
	for _, t := range s.DocumentTypes {
		if t == docType {
			return true
		}
	}
	return false
}

func (s *Source) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(s.Paths, ","))
}

// CleanRootPath normalizes a repository root path.
func CleanRootPath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// IsUnder reports whether p equals root or lies below it.
func IsUnder(root, p string) bool {
	root = CleanRootPath(root)
	p = CleanRootPath(p)
	if root == "/" || root == p {
		return true
	}
	return strings.HasPrefix(p, root+"/")
}
