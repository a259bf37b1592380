package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
)

const (
	// rootToken marks the start of every split root path.
	rootToken = "root"

	// segmentSuffix is appended to every path segment so that a segment
	// can never collide with rootToken.
	segmentSuffix = "@p"
)

// RootPathSplit splits a root path into its index tokens: the root marker
// followed by one marked token per segment. "/a/b" becomes
// ["root", "a@p", "b@p"].
func RootPathSplit(rootPath string) []string {
	tokens := []string{rootToken}
	for _, seg := range strings.Split(rootPath, "/") {
		if seg == "" {
			continue
		}
		tokens = append(tokens, seg+segmentSuffix)
	}
	return tokens
}

// RootPathSegments reverses RootPathSplit and returns the plain segments.
func RootPathSegments(tokens []string) []string {
	segments := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == rootToken {
			continue
		}
		segments = append(segments, strings.TrimSuffix(t, segmentSuffix))
	}
	return segments
}

// RootPathValue is the stored value of the root path field for rootPath.
func RootPathValue(rootPath string) string {
	return strings.Join(RootPathSplit(rootPath), "/")
}

// rootQuery matches documents under any of the roots. The root marker is
// only ever the first token of a document, so the phrase is anchored.
func rootQuery(roots []string) query.Query {
	if len(roots) == 0 {
		roots = []string{"/"}
	}
	clauses := make([]query.Query, 0, len(roots))
	for _, root := range roots {
		tokens := RootPathSplit(root)
		if len(tokens) == 1 {
			tq := bleve.NewTermQuery(rootToken)
			tq.SetField(domain.FieldRootPath)
			clauses = append(clauses, tq)
			continue
		}
		clauses = append(clauses, bleve.NewPhraseQuery(tokens, domain.FieldRootPath))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// categoryQuery matches documents carrying any of the categories.
func categoryQuery(categories []string) query.Query {
	clauses := make([]query.Query, 0, len(categories))
	for _, c := range categories {
		tq := bleve.NewTermQuery(c)
		tq.SetField(domain.FieldCategory)
		clauses = append(clauses, tq)
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// textQuery parses text into a query over fields. Quoted groups become
// phrase matches that must all occur; the remaining words form one match
// query in which any word may occur. Per-field clauses are OR-combined.
func textQuery(text string, fields []string, analyzer string) (query.Query, error) {
	phrases, words, err := parseQueryText(text)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = []string{domain.FieldContent}
	}

	perField := make([]query.Query, 0, len(fields))
	for _, field := range fields {
		fieldAnalyzer := ""
		if field == domain.FieldContent || field == domain.FieldTitle {
			fieldAnalyzer = analyzer
		}
		var clauses []query.Query
		for _, p := range phrases {
			pq := bleve.NewMatchPhraseQuery(p)
			pq.SetField(field)
			pq.Analyzer = fieldAnalyzer
			clauses = append(clauses, pq)
		}
		if words != "" {
			mq := bleve.NewMatchQuery(words)
			mq.SetField(field)
			mq.Analyzer = fieldAnalyzer
			clauses = append(clauses, mq)
		}
		if len(clauses) == 1 {
			perField = append(perField, clauses[0])
		} else {
			perField = append(perField, bleve.NewConjunctionQuery(clauses...))
		}
	}
	if len(perField) == 1 {
		return perField[0], nil
	}
	return bleve.NewDisjunctionQuery(perField...), nil
}

// parseQueryText separates quoted phrases from free words.
func parseQueryText(text string) (phrases []string, words string, err error) {
	if strings.Count(text, `"`)%2 != 0 {
		return nil, "", errors.New("unbalanced quotes in query")
	}

	var free []string
	parts := strings.Split(text, `"`)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i%2 == 1 {
			phrases = append(phrases, part)
		} else {
			free = append(free, strings.Fields(part)...)
		}
	}
	if len(phrases) == 0 && len(free) == 0 {
		return nil, "", ErrEmptyQuery
	}
	return phrases, strings.Join(free, " "), nil
}

// buildQuery assembles the mandatory clauses of a search: the text query,
// the root scope and, when withCategories is set, the category filter.
func buildQuery(params Parameters, analyzer string, withCategories bool) (query.Query, error) {
	text, err := textQuery(params.Query, params.Fields, analyzer)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	clauses := []query.Query{text, rootQuery(params.Roots)}
	if withCategories && len(params.Categories) > 0 {
		clauses = append(clauses, categoryQuery(params.Categories))
	}
	return bleve.NewConjunctionQuery(clauses...), nil
}
