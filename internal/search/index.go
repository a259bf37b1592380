package search

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cespare/xxhash/v2"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// RebuildMode controls whether an index follows publish events.
type RebuildMode string

const (
	// RebuildManual indexes are only rebuilt on request.
	RebuildManual RebuildMode = "manual"

	// RebuildAuto indexes are updated incrementally on every publish.
	RebuildAuto RebuildMode = "auto"
)

// ParseRebuildMode parses a rebuild mode, defaulting to auto.
func ParseRebuildMode(s string) (RebuildMode, error) {
	switch RebuildMode(s) {
	case "", RebuildAuto:
		return RebuildAuto, nil
	case RebuildManual:
		return RebuildManual, nil
	default:
		return "", fmt.Errorf("invalid rebuild mode %q (must be %q or %q)", s, RebuildAuto, RebuildManual)
	}
}

// IndexConfig is the static configuration of a search index.
type IndexConfig struct {
	Name             string
	Locale           string
	Project          string
	RebuildMode      RebuildMode
	Sources          []string
	Excerpt          bool
	CheckPermissions bool
	// Priority is the nice value applied to searches and indexing workers;
	// 0 leaves the thread priority unchanged.
	Priority          int
	MaxExcerptLength  int
	MaxCategoryFacets int
}

// SearchIndex is a named full-text index over the resources of one project.
type SearchIndex struct {
	cfg IndexConfig

	// set by Initialize
	path          string
	analyzer      string
	mapping       mapping.IndexMapping
	sources       []*Source
	documentTypes map[string][]string
	repo          repository.Repository
	logger        *slog.Logger
	enabled       bool

	// searchMu serializes searches on this index.
	searchMu sync.Mutex
	// storeMu is held exclusively while the on-disk index is swapped or
	// mutated in place, shared while it is read.
	storeMu sync.RWMutex
}

// NewSearchIndex creates an index that is unusable until initialized.
func NewSearchIndex(cfg IndexConfig) *SearchIndex {
	if cfg.RebuildMode == "" {
		cfg.RebuildMode = RebuildAuto
	}
	if cfg.MaxExcerptLength <= 0 {
		cfg.MaxExcerptLength = DefaultMaxExcerptLength
	}
	if cfg.MaxCategoryFacets <= 0 {
		cfg.MaxCategoryFacets = DefaultMaxCategoryFacets
	}
	cfg.Sources = append([]string(nil), cfg.Sources...)
	return &SearchIndex{cfg: cfg}
}

// IndexEnv carries what an index resolves against during initialization.
type IndexEnv struct {
	BaseDir    string
	Repository repository.Repository
	Sources    map[string]*Source
	Factories  *FactoryRegistry
	Indexers   *IndexerRegistry
	Logger     *slog.Logger
}

// Initialize resolves the index configuration: the locale analyzer, the
// sources with their document types, and the on-disk location. A failure
// leaves the index disabled and is returned as a *ConfigError.
func (i *SearchIndex) Initialize(env IndexEnv) error {
	i.enabled = false
	i.logger = env.Logger
	if i.logger == nil {
		i.logger = slog.Default()
	}
	fail := func(err error) error {
		return &ConfigError{Index: i.cfg.Name, Err: err}
	}

	if i.cfg.Name == "" {
		return fail(errors.New("index name cannot be empty"))
	}
	analyzer, ok := AnalyzerForLocale(i.cfg.Locale)
	if !ok {
		return fail(fmt.Errorf("no analyzer for locale %q", i.cfg.Locale))
	}
	if len(i.cfg.Sources) == 0 {
		return fail(errors.New("no sources configured"))
	}

	var sources []*Source
	docTypes := make(map[string][]string)
	for _, name := range i.cfg.Sources {
		src, ok := env.Sources[name]
		if !ok {
			return fail(fmt.Errorf("%w: %s", ErrSourceNotFound, name))
		}
		if env.Indexers != nil {
			if _, ok := env.Indexers.Get(src.IndexerName); !ok {
				return fail(fmt.Errorf("source %q uses unknown indexer %q", name, src.IndexerName))
			}
		}
		for _, dt := range src.DocumentTypes {
			if env.Factories != nil {
				if _, ok := env.Factories.ByName(dt); !ok {
					return fail(fmt.Errorf("source %q lists unknown document type %q", name, dt))
				}
			}
		}
		for _, p := range src.Paths {
			docTypes[p] = appendUnique(docTypes[p], src.DocumentTypes...)
		}
		sources = append(sources, src)
	}

	m, err := NewIndexMapping(analyzer)
	if err != nil {
		return fail(err)
	}

	dir := filepath.Join(env.BaseDir, "index")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create index directory: %w", err))
	}

	i.path = filepath.Join(dir, SanitizeIndexName(i.cfg.Name))
	i.analyzer = analyzer
	i.mapping = m
	i.sources = sources
	i.documentTypes = docTypes
	i.repo = env.Repository
	i.enabled = true
	return nil
}

// Name returns the index name.
func (i *SearchIndex) Name() string { return i.cfg.Name }

// Locale returns the index locale.
func (i *SearchIndex) Locale() string { return i.cfg.Locale }

// Project returns the project the index reads from.
func (i *SearchIndex) Project() string { return i.cfg.Project }

// RebuildMode returns the rebuild mode.
func (i *SearchIndex) RebuildMode() RebuildMode { return i.cfg.RebuildMode }

// Priority returns the configured nice value.
func (i *SearchIndex) Priority() int { return i.cfg.Priority }

// Config returns a copy of the configuration.
func (i *SearchIndex) Config() IndexConfig {
	cfg := i.cfg
	cfg.Sources = append([]string(nil), i.cfg.Sources...)
	return cfg
}

// Path returns the on-disk location, empty before initialization.
func (i *SearchIndex) Path() string { return i.path }

// disable marks an initialized index unusable.
func (i *SearchIndex) disable() {
	i.enabled = false
	i.path = ""
}

// Enabled reports whether the index initialized successfully.
func (i *SearchIndex) Enabled() bool { return i.enabled }

// Sources returns the resolved sources in configuration order.
func (i *SearchIndex) Sources() []*Source { return i.sources }

// DocumentTypes returns the document types accepted below rootPath: the
// union over all source paths containing it.
func (i *SearchIndex) DocumentTypes(rootPath string) []string {
	var types []string
	for p, dts := range i.documentTypes {
		if IsUnder(p, rootPath) {
			types = appendUnique(types, dts...)
		}
	}
	sort.Strings(types)
	return types
}

// AcceptsDocumentType reports whether documents of docType are indexed at rootPath.
func (i *SearchIndex) AcceptsDocumentType(rootPath, docType string) bool {
	for p, dts := range i.documentTypes {
		if !IsUnder(p, rootPath) {
			continue
		}
		for _, dt := range dts {
			if dt == docType {
				return true
			}
		}
	}
	return false
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeIndexName turns an index name into a directory name. Names that
// need rewriting get a hash of the raw name appended so that distinct
// names keep distinct directories.
func SanitizeIndexName(name string) string {
	s := strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), ".")
	if s == name && s != "" {
		return s
	}
	if s == "" {
		s = "_"
	}
	return fmt.Sprintf("%s-%016x", s, xxhash.Sum64String(name))
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
