package search

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

func TestResultCache(t *testing.T) {
	c, err := NewResultCache(2)
	if err != nil {
		t.Fatalf("NewResultCache failed: %v", err)
	}

	hits := testutil.ToFloat64(resultCacheHits)
	misses := testutil.ToFloat64(resultCacheMisses)
	purges := testutil.ToFloat64(resultCachePurges)

	c.Add("a", &ResultList{HitCount: 1})
	c.Add("b", &ResultList{HitCount: 2})
	c.Add("c", &ResultList{HitCount: 3})

	if _, ok := c.Get("a"); ok {
		t.Error("Expected least recently used entry to be evicted")
	}
	if got, ok := c.Get("c"); !ok || got.HitCount != 3 {
		t.Errorf("Get(c) = %v, %v", got, ok)
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d, want 0", c.Len())
	}

	if got := testutil.ToFloat64(resultCacheHits) - hits; got != 1 {
		t.Errorf("hits grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(resultCacheMisses) - misses; got != 1 {
		t.Errorf("misses grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(resultCachePurges) - purges; got != 1 {
		t.Errorf("purges grew by %v, want 1", got)
	}
}

func TestResultCacheKey(t *testing.T) {
	base := Parameters{Query: "q", Roots: []string{"/a"}}
	alice := repository.NewContext("alice", repository.ProjectOnline)
	bob := repository.NewContext("bob", repository.ProjectOnline)
	aliceOffline := repository.NewContext("alice", repository.ProjectOffline)

	k := ResultCacheKey("idx", alice, base)
	different := map[string]string{
		"user":       ResultCacheKey("idx", bob, base),
		"project":    ResultCacheKey("idx", aliceOffline, base),
		"index":      ResultCacheKey("other", alice, base),
		"page":       ResultCacheKey("idx", alice, Parameters{Query: "q", Roots: []string{"/a"}, Page: 2}),
		"roots":      ResultCacheKey("idx", alice, Parameters{Query: "q", Roots: []string{"/b"}}),
		"categories": ResultCacheKey("idx", alice, Parameters{Query: "q", Roots: []string{"/a"}, CalculateCategories: true}),
		"root split": ResultCacheKey("idx", alice, Parameters{Query: "q", Roots: []string{"/a", "b"}}),
	}
	for name, other := range different {
		if other == k {
			t.Errorf("key does not depend on %s", name)
		}
	}

	if same := ResultCacheKey("idx", alice, Parameters{Query: "q", Roots: []string{"/a"}, Page: 1, PageSize: DefaultPageSize}); same != k {
		t.Error("Expected defaults to normalize to the same key")
	}
}

func TestResultCacheKey_ListBoundaries(t *testing.T) {
	rc := repository.NewContext("alice", repository.ProjectOnline)
	tests := []struct {
		name string
		a, b Parameters
	}{
		{"comma in root", Parameters{Query: "q", Roots: []string{"/a,b"}}, Parameters{Query: "q", Roots: []string{"/a", "b"}}},
		{"comma in field", Parameters{Query: "q", Fields: []string{"title,content"}}, Parameters{Query: "q", Fields: []string{"title", "content"}}},
		{"comma in category", Parameters{Query: "q", Categories: []string{"x,y"}}, Parameters{Query: "q", Categories: []string{"x", "y"}}},
		{"separator in query", Parameters{Query: "q\x00/a"}, Parameters{Query: "q", Roots: []string{"/a"}}},
		{"element moved between lists", Parameters{Query: "q", Roots: []string{"/a"}, Fields: []string{"title"}}, Parameters{Query: "q", Roots: []string{"/a", "title"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ResultCacheKey("idx", rc, tt.a) == ResultCacheKey("idx", rc, tt.b) {
				t.Errorf("%+v and %+v share a key", tt.a, tt.b)
			}
		})
	}
}

func TestResultCache_AddIfCurrent(t *testing.T) {
	c, err := NewResultCache(4)
	if err != nil {
		t.Fatalf("NewResultCache failed: %v", err)
	}

	gen := c.Generation()
	if !c.AddIfCurrent(gen, "a", &ResultList{HitCount: 1}) {
		t.Error("Expected page to be stored in the current generation")
	}

	stale := c.Generation()
	c.Purge()
	if c.AddIfCurrent(stale, "b", &ResultList{HitCount: 2}) {
		t.Error("Expected page computed before purge to be dropped")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Expected stale page not to be cached")
	}
	if c.Generation() == stale {
		t.Error("Expected Purge to advance the generation")
	}
}

func TestDocumentCache(t *testing.T) {
	c, err := NewDocumentCache(1 << 20)
	if err != nil {
		t.Fatalf("NewDocumentCache failed: %v", err)
	}
	defer c.Close()

	doc := &domain.Document{ID: "/a", Content: "cached"}
	c.Set("k", doc)
	got, ok := c.Get("k")
	if !ok || got != doc {
		t.Errorf("Get = %v, %v, want the cached document", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestDocumentCache_Nil(t *testing.T) {
	var c *DocumentCache
	c.Set("k", &domain.Document{})
	if _, ok := c.Get("k"); ok {
		t.Error("Expected nil cache to store nothing")
	}
	c.Close()
}
