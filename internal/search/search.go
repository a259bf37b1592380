package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

const (
	// DefaultMaxCategoryFacets bounds the number of category counts returned.
	DefaultMaxCategoryFacets = 1000

	categoryFacet = "categories"
)

// Search runs a query against the index and returns the requested page of
// hits the caller may read. Searches on one index are serialized.
func (i *SearchIndex) Search(ctx context.Context, rc *repository.Context, params Parameters) (result *ResultList, err error) {
	if !i.enabled {
		return nil, fmt.Errorf("%w: %s", ErrIndexDisabled, i.cfg.Name)
	}
	params = params.Normalize()

	i.searchMu.Lock()
	defer i.searchMu.Unlock()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		searchRequests.WithLabelValues(i.cfg.Name, status).Inc()
		searchDuration.WithLabelValues(i.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	prev := rc.SetCurrentProject(i.cfg.Project)
	defer rc.SetCurrentProject(prev)

	withPriority(i.cfg.Priority, func() {
		result, err = i.search(ctx, rc, params)
	})
	return result, err
}

func (i *SearchIndex) search(ctx context.Context, rc *repository.Context, params Parameters) (*ResultList, error) {
	queryErr := func(err error) error {
		return &QueryError{Index: i.cfg.Name, Query: params.Query, Err: err}
	}

	unfiltered, err := buildQuery(params, i.analyzer, false)
	if errors.Is(err, ErrEmptyQuery) {
		// Nothing to search for matches nothing.
		return &ResultList{Page: params.Page, PageSize: params.PageSize}, nil
	}
	if err != nil {
		return nil, queryErr(err)
	}
	q := unfiltered
	if len(params.Categories) > 0 {
		if q, err = buildQuery(params, i.analyzer, true); err != nil {
			return nil, queryErr(err)
		}
	}

	list := &ResultList{Page: params.Page, PageSize: params.PageSize}

	i.storeMu.RLock()
	defer i.storeMu.RUnlock()

	if _, err := os.Stat(i.path); errors.Is(err, os.ErrNotExist) {
		return list, nil
	}
	idx, err := bleve.OpenUsing(i.path, map[string]any{"read_only": true})
	if err != nil {
		return nil, queryErr(fmt.Errorf("failed to open index: %w", err))
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			i.logger.Warn("Failed to close index reader", "index", i.cfg.Name, "error", cerr)
		}
	}()

	if params.CalculateCategories {
		if list.Categories, err = i.countCategories(ctx, idx, unfiltered); err != nil {
			return nil, queryErr(err)
		}
	}

	if err := i.collect(ctx, rc, idx, q, params, list); err != nil {
		return nil, queryErr(err)
	}
	return list, nil
}

// countCategories tallies hits per category for q without fetching hits.
func (i *SearchIndex) countCategories(ctx context.Context, idx bleve.Index, q query.Query) (map[string]int, error) {
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	req.AddFacet(categoryFacet, bleve.NewFacetRequest(domain.FieldCategory, i.cfg.MaxCategoryFacets))

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("category count failed: %w", err)
	}

	counts := make(map[string]int)
	if fr, ok := res.Facets[categoryFacet]; ok && fr.Terms != nil {
		for _, term := range fr.Terms.Terms() {
			counts[term.Term] = term.Count
		}
	}
	return counts, nil
}

// collect walks hits best to worst in windows, skipping hits the caller
// may not read, until the requested page is full or hits run out.
// Invisible hits do not count toward the page offset.
func (i *SearchIndex) collect(ctx context.Context, rc *repository.Context, idx bleve.Index, q query.Query, params Parameters, list *ResultList) error {
	skip := (params.Page - 1) * params.PageSize
	window := params.Page * params.PageSize
	from := 0

	for {
		req := bleve.NewSearchRequestOptions(q, window, from, false)
		req.Fields = domain.DisplayFields
		if i.cfg.Excerpt {
			req.Highlight = bleve.NewHighlightWithStyle(html.Name)
			req.Highlight.AddField(domain.FieldContent)
		}

		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		if from == 0 {
			list.HitCount = res.Total
		}

		for _, hit := range res.Hits {
			if i.cfg.CheckPermissions && !i.visible(ctx, rc, hit) {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			list.Results = append(list.Results, i.newResult(hit))
			if len(list.Results) == params.PageSize {
				return nil
			}
		}

		from += len(res.Hits)
		if len(res.Hits) < window || uint64(from) >= res.Total {
			return nil
		}
	}
}

func (i *SearchIndex) visible(ctx context.Context, rc *repository.Context, hit *blevesearch.DocumentMatch) bool {
	if i.repo == nil {
		return true
	}
	p, _ := hit.Fields[domain.FieldPath].(string)
	if p == "" {
		p = hit.ID
	}
	return i.repo.HasReadPermission(ctx, rc, p)
}

func (i *SearchIndex) newResult(hit *blevesearch.DocumentMatch) *Result {
	r := &Result{
		Score:        hit.Score,
		Path:         stringField(hit, domain.FieldPath),
		Title:        stringField(hit, domain.FieldTitle),
		Type:         stringField(hit, domain.FieldType),
		ResourceType: stringField(hit, domain.FieldResourceType),
		MimeType:     stringField(hit, domain.FieldMimeType),
		Locale:       stringField(hit, domain.FieldLocale),
		Categories:   stringsField(hit, domain.FieldCategory),
	}
	if r.Path == "" {
		r.Path = hit.ID
	}
	if v := stringField(hit, domain.FieldLastModified); v != "" {
		r.LastModified = parseStoredTime(v)
	}
	if i.cfg.Excerpt {
		r.Excerpt = buildExcerpt(hit.Fragments[domain.FieldContent], i.cfg.MaxExcerptLength)
	}
	return r
}

func parseStoredTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05 -0700 MST"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func stringField(hit *blevesearch.DocumentMatch, name string) string {
	s, _ := hit.Fields[name].(string)
	return s
}

// stringsField reads a stored field that holds one or many values.
func stringsField(hit *blevesearch.DocumentMatch, name string) []string {
	switch v := hit.Fields[name].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
