package search

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

const (
	// DefaultResultCacheSize is the number of cached result pages.
	DefaultResultCacheSize = 256

	// DefaultDocumentCacheMaxCost bounds the extracted document cache in bytes.
	DefaultDocumentCacheMaxCost = 64 << 20
)

// ResultCache holds search result pages. Cached lists are shared and must
// not be modified by callers.
type ResultCache struct {
	cache *lru.Cache[string, *ResultList]

	// gen counts purges; a page computed before a purge is never stored.
	mu  sync.Mutex
	gen uint64
}

// NewResultCache creates a cache for size result pages.
func NewResultCache(size int) (*ResultCache, error) {
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	cache, err := lru.New[string, *ResultList](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &ResultCache{cache: cache}, nil
}

// Get returns the cached page for key.
func (c *ResultCache) Get(key string) (*ResultList, bool) {
	list, ok := c.cache.Get(key)
	if ok {
		resultCacheHits.Inc()
	} else {
		resultCacheMisses.Inc()
	}
	return list, ok
}

// Add stores a page under key.
func (c *ResultCache) Add(key string, list *ResultList) {
	c.cache.Add(key, list)
}

// Generation returns the current purge generation. Read it before
// computing a page and hand it to AddIfCurrent.
func (c *ResultCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// AddIfCurrent stores a page unless the cache was purged since gen was
// read. It reports whether the page was stored.
func (c *ResultCache) AddIfCurrent(gen uint64, key string, list *ResultList) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.cache.Add(key, list)
	return true
}

// Purge drops every cached page.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	c.gen++
	c.cache.Purge()
	c.mu.Unlock()
	resultCachePurges.Inc()
}

// Len returns the number of cached pages.
func (c *ResultCache) Len() int {
	return c.cache.Len()
}

// ResultCacheKey identifies a search by index, user, project and every
// parameter that influences the result. Every part is length-prefixed so
// that distinct searches never share a key.
func ResultCacheKey(index string, rc *repository.Context, p Parameters) string {
	p = p.Normalize()
	var b strings.Builder
	part := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	list := func(values []string) {
		part(strconv.Itoa(len(values)))
		for _, v := range values {
			part(v)
		}
	}

	part(index)
	part(rc.User)
	part(rc.CurrentProject())
	part(p.Query)
	list(p.Roots)
	list(p.Fields)
	list(p.Categories)
	part(strconv.FormatBool(p.CalculateCategories))
	part(strconv.Itoa(p.Page))
	part(strconv.Itoa(p.PageSize))
	return b.String()
}

// DocumentCache holds extracted documents for the duration of one publish
// event, so a resource indexed by several indexes is extracted once.
// A nil cache stores nothing.
type DocumentCache struct {
	cache *ristretto.Cache
}

// NewDocumentCache creates a cache bounded to maxCost content bytes.
func NewDocumentCache(maxCost int64) (*DocumentCache, error) {
	if maxCost <= 0 {
		maxCost = DefaultDocumentCacheMaxCost
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		// ~10x the expected number of entries of 4KB average.
		NumCounters: max(maxCost/400, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}
	return &DocumentCache{cache: cache}, nil
}

// Get returns a cached document.
func (c *DocumentCache) Get(key string) (*domain.Document, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	doc, ok := v.(*domain.Document)
	return doc, ok
}

// Set caches doc under key, weighted by its size. The cache may reject it.
func (c *DocumentCache) Set(key string, doc *domain.Document) {
	if c == nil {
		return
	}
	c.cache.Set(key, doc, max(doc.Size(), 1))
	c.cache.Wait()
}

// Close releases the cache.
func (c *DocumentCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}

func documentCacheKey(res *IndexResource, docType, locale string) string {
	return res.RootPath + "\x00" + docType + "\x00" + locale + "\x00" + res.LastModified.String()
}
