package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// DefaultIndexUser is the repository user indexing passes read as.
const DefaultIndexUser = "admin"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// BaseDir holds the index directories and the manifest.
	BaseDir string

	// IndexUser is the repository user resources are read as while indexing.
	IndexUser string

	ResultCacheSize      int
	DocumentCacheMaxCost int64

	IndexingTimeout     time.Duration
	SupervisorInterval  time.Duration
	SupervisorMaxChecks int

	// LockTimeout bounds the wait for another process holding an index
	// lock during a requested rebuild.
	LockTimeout time.Duration

	Logger *slog.Logger
}

// Manager is the registry of sources and indexes. It coordinates rebuilds,
// incremental updates on publish events, and cached searches.
type Manager struct {
	cfg       ManagerConfig
	repo      repository.Repository
	factories *FactoryRegistry
	indexers  *IndexerRegistry
	logger    *slog.Logger

	mu      sync.RWMutex
	sources map[string]*Source
	indexes map[string]*SearchIndex
	order   []string

	// updateMu serializes rebuilds and updates within the process.
	updateMu sync.Mutex

	results  *ResultCache
	manifest *Manifest
}

// NewManager creates a manager. Sources and indexes are added afterwards
// and take effect with Initialize.
func NewManager(cfg ManagerConfig, repo repository.Repository, factories *FactoryRegistry, indexers *IndexerRegistry) (*Manager, error) {
	if cfg.BaseDir == "" {
		return nil, errors.New("base directory cannot be empty")
	}
	if cfg.IndexUser == "" {
		cfg.IndexUser = DefaultIndexUser
	}
	if cfg.IndexingTimeout <= 0 {
		cfg.IndexingTimeout = DefaultIndexingTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	results, err := NewResultCache(cfg.ResultCacheSize)
	if err != nil {
		return nil, err
	}
	manifest, err := LoadManifest(filepath.Join(cfg.BaseDir, ManifestFilename))
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		repo:      repo,
		factories: factories,
		indexers:  indexers,
		logger:    logger,
		sources:   make(map[string]*Source),
		indexes:   make(map[string]*SearchIndex),
		results:   results,
		manifest:  manifest,
	}, nil
}

// AddSource registers a source.
func (m *Manager) AddSource(src *Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[src.Name]; ok {
		return &ConfigError{Source: src.Name, Err: errors.New("duplicate source name")}
	}
	m.sources[src.Name] = src
	return nil
}

// AddIndex registers an index.
func (m *Manager) AddIndex(idx *SearchIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[idx.Name()]; ok {
		return &ConfigError{Index: idx.Name(), Err: errors.New("duplicate index name")}
	}
	m.indexes[idx.Name()] = idx
	m.order = append(m.order, idx.Name())
	return nil
}

// Initialize initializes every index. An index that fails is logged and
// disabled; the others stay usable. The joined configuration errors are
// returned for the caller to surface.
func (m *Manager) Initialize() error {
	m.mu.RLock()
	sources := make(map[string]*Source, len(m.sources))
	for k, v := range m.sources {
		sources[k] = v
	}
	indexes := m.indexesLocked()
	m.mu.RUnlock()

	env := IndexEnv{
		BaseDir:    m.cfg.BaseDir,
		Repository: m.repo,
		Sources:    sources,
		Factories:  m.factories,
		Indexers:   m.indexers,
		Logger:     m.logger,
	}

	var errs []error
	names := make([]string, 0, len(indexes))
	paths := make(map[string]string, len(indexes))
	for _, idx := range indexes {
		names = append(names, idx.Name())
		err := idx.Initialize(env)
		if err == nil {
			if other, taken := paths[idx.Path()]; taken {
				idx.disable()
				err = &ConfigError{Index: idx.Name(), Err: fmt.Errorf("index directory collides with index %q", other)}
			} else {
				paths[idx.Path()] = idx.Name()
			}
		}
		if err != nil {
			m.logger.Error("Search index disabled", "index", idx.Name(), "error", err)
			m.manifest.Update(idx.Name(), func(s *IndexState) { s.Error = err.Error() })
			errs = append(errs, err)
			continue
		}
		m.logger.Info("Search index initialized",
			"index", idx.Name(), "project", idx.Project(), "locale", idx.Locale(),
			"rebuild_mode", idx.RebuildMode(), "path", idx.Path())
	}

	if removed := m.manifest.RemoveStale(names); len(removed) > 0 {
		m.logger.Info("Removed stale index state", "indexes", removed)
	}
	m.saveManifest()
	return errors.Join(errs...)
}

// Index returns the index with the given name.
func (m *Manager) Index(name string) (*SearchIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return idx, nil
}

// Indexes returns the indexes in the order they were added.
func (m *Manager) Indexes() []*SearchIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexesLocked()
}

func (m *Manager) indexesLocked() []*SearchIndex {
	out := make([]*SearchIndex, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.indexes[name])
	}
	return out
}

// Source returns the source with the given name.
func (m *Manager) Source(name string) (*Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[name]
	return src, ok
}

// Sources returns the sources sorted by name.
func (m *Manager) Sources() []*Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// State returns the persisted state of an index.
func (m *Manager) State(name string) (IndexState, bool) {
	return m.manifest.State(name)
}

// ResultCache returns the search result cache.
func (m *Manager) ResultCache() *ResultCache {
	return m.results
}

// Search answers a query on the named index, from the result cache when
// the same search by the same user in the same project was answered before.
func (m *Manager) Search(ctx context.Context, rc *repository.Context, indexName string, params Parameters) (*ResultList, error) {
	idx, err := m.Index(indexName)
	if err != nil {
		return nil, err
	}

	key := ResultCacheKey(indexName, rc, params)
	if list, ok := m.results.Get(key); ok {
		return list, nil
	}

	gen := m.results.Generation()
	list, err := idx.Search(ctx, rc, params)
	if err != nil {
		return nil, err
	}
	m.results.AddIfCurrent(gen, key, list)
	return list, nil
}

// RebuildAllIndexes fully rebuilds every enabled index.
func (m *Manager) RebuildAllIndexes(ctx context.Context, report Report) error {
	var names []string
	for _, idx := range m.Indexes() {
		if idx.Enabled() {
			names = append(names, idx.Name())
		}
	}
	return m.RebuildIndexes(ctx, names, report)
}

// RebuildIndexes fully rebuilds the named indexes. A failing index does not
// stop the others; the joined errors are returned.
func (m *Manager) RebuildIndexes(ctx context.Context, names []string, report Report) error {
	if report == nil {
		report = NewLogReport(m.logger)
	}

	var errs []error
	for _, name := range names {
		idx, err := m.Index(name)
		if err != nil {
			report.Print(slog.LevelError, "Cannot rebuild index", "index", name, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := m.UpdateIndex(ctx, idx, report, nil, true); err != nil {
			report.Print(slog.LevelError, "Index rebuild failed", "index", name, "error", err)
			errs = append(errs, fmt.Errorf("index %s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// UpdateIndex fully rebuilds idx when published is nil, or applies the
// published changes to it incrementally. With wait set, a rebuild waits
// for straggling workers before committing.
func (m *Manager) UpdateIndex(ctx context.Context, idx *SearchIndex, report Report, published []repository.PublishedResource, wait bool) error {
	return m.updateIndex(ctx, idx, report, published, wait, nil)
}

// updateIndex runs one rebuild or update under the index lock. cache is
// shared across the indexes updated for one publish event.
func (m *Manager) updateIndex(ctx context.Context, idx *SearchIndex, report Report, published []repository.PublishedResource, wait bool, cache *DocumentCache) error {
	if !idx.Enabled() {
		return fmt.Errorf("%w: %s", ErrIndexDisabled, idx.Name())
	}
	if report == nil {
		report = NewLogReport(m.logger)
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	lock := NewIndexLock(idx.Path())
	if published == nil && wait {
		if err := lock.Lock(ctx, m.cfg.LockTimeout); err != nil {
			return fmt.Errorf("failed to lock index: %w", err)
		}
	} else {
		acquired, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock index: %w", err)
		}
		if !acquired {
			report.Print(slog.LevelInfo, "Index is being updated by another process, skipping", "index", idx.Name())
			return ErrLockHeld
		}
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			m.logger.Warn("Failed to release index lock", "index", idx.Name(), "error", err)
		}
	}()

	mode := "update"
	if published == nil {
		mode = "rebuild"
	}
	start := time.Now()
	defer func() {
		indexUpdateDuration.WithLabelValues(idx.Name(), mode).Observe(time.Since(start).Seconds())
	}()

	m.results.Purge()
	defer m.results.Purge()

	var (
		stats ThreadStats
		count uint64
		err   error
	)
	if published == nil {
		stats, count, err = m.rebuild(ctx, idx, report, wait)
	} else {
		stats, count, err = m.update(ctx, idx, report, published, cache)
	}

	m.manifest.Update(idx.Name(), func(s *IndexState) {
		if err != nil {
			s.Error = err.Error()
			return
		}
		s.Error = ""
		s.DocCount = count
		s.LastStats = stats
		if published == nil {
			s.LastRebuild = time.Now()
		} else {
			s.LastUpdate = time.Now()
		}
	})
	m.saveManifest()
	return err
}

// rebuild builds a fresh index next to the live one and swaps it in.
func (m *Manager) rebuild(ctx context.Context, idx *SearchIndex, report Report, wait bool) (ThreadStats, uint64, error) {
	report.Print(slog.LevelInfo, "Rebuilding index", "index", idx.Name(), "project", idx.Project())

	staging := idx.Path() + ".rebuild"
	writer, err := CreateWriter(staging, idx.mapping)
	if err != nil {
		return ThreadStats{}, 0, err
	}
	abort := func(err error) (ThreadStats, uint64, error) {
		_ = writer.Close()
		_ = os.RemoveAll(staging)
		return ThreadStats{}, 0, err
	}

	threads := m.newThreadManager(idx, report, nil)
	stop := threads.StartSupervisor(ctx)
	defer stop()

	for _, src := range idx.Sources() {
		indexer, ok := m.indexers.Get(src.IndexerName)
		if !ok {
			report.Print(slog.LevelError, "Unknown indexer", "index", idx.Name(), "source", src.Name, "indexer", src.IndexerName)
			continue
		}
		pass := m.newPass(idx, src, writer, threads, report)
		if err := indexer.RebuildIndex(ctx, pass); err != nil {
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			report.Print(slog.LevelError, "Source failed", "index", idx.Name(), "source", src.Name, "error", err)
		}
	}

	if wait && !threads.Wait(ctx, m.cfg.IndexingTimeout) {
		report.Print(slog.LevelWarn, "Committing with indexing workers still running",
			"index", idx.Name(), "running", threads.Stats().Running())
	}
	if ctx.Err() != nil {
		return abort(ctx.Err())
	}

	var closeErrs []error
	if err := writer.Commit(); err != nil {
		return abort(err)
	}
	if err := writer.Optimize(ctx); err != nil {
		report.Print(slog.LevelWarn, "Index optimization failed", "index", idx.Name(), "error", err)
	}
	count, err := writer.DocCount()
	if err != nil {
		closeErrs = append(closeErrs, err)
	}
	if err := writer.Close(); err != nil {
		return abort(errors.Join(append(closeErrs, err)...))
	}

	if err := m.swap(idx, staging); err != nil {
		return ThreadStats{}, 0, err
	}

	stats := threads.ReportStatistics()
	report.Print(slog.LevelInfo, "Index rebuilt", "index", idx.Name(), "documents", count)
	return stats, count, errors.Join(closeErrs...)
}

// swap replaces the live index directory with staging.
func (m *Manager) swap(idx *SearchIndex, staging string) error {
	idx.storeMu.Lock()
	defer idx.storeMu.Unlock()

	if err := os.RemoveAll(idx.Path()); err != nil {
		return fmt.Errorf("failed to remove previous index: %w", err)
	}
	if err := os.Rename(staging, idx.Path()); err != nil {
		return fmt.Errorf("failed to activate rebuilt index: %w", err)
	}
	return nil
}

// update applies published changes to idx in place: first every delete
// through one handle, then the updates through another.
func (m *Manager) update(ctx context.Context, idx *SearchIndex, report Report, published []repository.PublishedResource, cache *DocumentCache) (ThreadStats, uint64, error) {
	rc := repository.NewContext(m.cfg.IndexUser, idx.Project())

	var work []*UpdateData
	for _, src := range idx.Sources() {
		indexer, ok := m.indexers.Get(src.IndexerName)
		if !ok {
			continue
		}
		data, err := indexer.UpdateData(ctx, rc, src, published, report)
		if err != nil {
			if ctx.Err() != nil {
				return ThreadStats{}, 0, ctx.Err()
			}
			report.Print(slog.LevelError, "Source failed", "index", idx.Name(), "source", src.Name, "error", err)
			continue
		}
		if !data.Empty() {
			work = append(work, data)
		}
	}
	if len(work) == 0 {
		state, _ := m.manifest.State(idx.Name())
		return state.LastStats, state.DocCount, nil
	}

	report.Print(slog.LevelInfo, "Updating index", "index", idx.Name(), "sources", len(work))

	idx.storeMu.Lock()
	defer idx.storeMu.Unlock()

	deleter, err := OpenWriter(idx.Path(), idx.mapping)
	if err != nil {
		return ThreadStats{}, 0, err
	}
	for _, data := range work {
		for _, p := range data.Deletes {
			if err := deleter.Delete(p); err != nil {
				report.Print(slog.LevelWarn, "Failed to delete document", "index", idx.Name(), "path", p, "error", err)
			}
		}
	}
	if err := deleter.Close(); err != nil {
		return ThreadStats{}, 0, fmt.Errorf("failed to apply deletes: %w", err)
	}

	writer, err := OpenWriter(idx.Path(), idx.mapping)
	if err != nil {
		return ThreadStats{}, 0, err
	}
	threads := m.newThreadManager(idx, report, cache)
	stop := threads.StartSupervisor(ctx)
	defer stop()

	for _, data := range work {
		indexer, _ := m.indexers.Get(data.Source.IndexerName)
		pass := m.newPass(idx, data.Source, writer, threads, report)
		if err := indexer.UpdateResources(ctx, pass, data.Updates); err != nil {
			report.Print(slog.LevelError, "Source update failed", "index", idx.Name(), "source", data.Source.Name, "error", err)
		}
	}
	threads.Wait(ctx, m.cfg.IndexingTimeout)

	count, countErr := writer.DocCount()
	closeErr := writer.Close()
	stats := threads.ReportStatistics()
	if err := errors.Join(countErr, closeErr); err != nil {
		return stats, 0, err
	}
	return stats, count, nil
}

// HandleEvent reacts to repository events: a project publish updates every
// auto index of that project, a cache clear purges the result cache.
func (m *Manager) HandleEvent(ev repository.Event) {
	m.HandleEventContext(context.Background(), ev)
}

// HandleEventContext is HandleEvent with a caller supplied context.
func (m *Manager) HandleEventContext(ctx context.Context, ev repository.Event) {
	switch ev.Type {
	case repository.EventClearCaches:
		m.results.Purge()
		m.logger.Debug("Search result cache cleared", "event", ev.ID)
	case repository.EventPublishProject:
		m.handlePublish(ctx, ev)
	}
}

func (m *Manager) handlePublish(ctx context.Context, ev repository.Event) {
	published := m.indexable(ev.Published)
	if len(published) == 0 {
		return
	}

	cache, err := NewDocumentCache(m.cfg.DocumentCacheMaxCost)
	if err != nil {
		m.logger.Warn("Document cache unavailable", "error", err)
	}
	defer cache.Close()

	report := NewLogReport(m.logger)
	for _, idx := range m.Indexes() {
		if !idx.Enabled() || idx.RebuildMode() != RebuildAuto {
			continue
		}
		if ev.Project != "" && idx.Project() != ev.Project {
			continue
		}
		if err := m.updateIndex(ctx, idx, report, published, false, cache); err != nil && !errors.Is(err, ErrLockHeld) {
			m.logger.Error("Incremental index update failed", "index", idx.Name(), "event", ev.ID, "error", err)
		}
	}
}

// indexable drops folders, unchanged resources and resources no factory
// handles, and sorts the rest by root path.
func (m *Manager) indexable(published []repository.PublishedResource) []repository.PublishedResource {
	out := make([]repository.PublishedResource, 0, len(published))
	for _, p := range published {
		if p.IsFolder || p.State == repository.StateUnchanged {
			continue
		}
		if !m.factories.IsIndexable(p.TypeName, p.MimeType) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].RootPath < out[b].RootPath })
	return out
}

func (m *Manager) newThreadManager(idx *SearchIndex, report Report, cache *DocumentCache) *IndexingThreadManager {
	return NewIndexingThreadManager(idx.Name(), ThreadManagerConfig{
		Timeout:             m.cfg.IndexingTimeout,
		SupervisorInterval:  m.cfg.SupervisorInterval,
		SupervisorMaxChecks: m.cfg.SupervisorMaxChecks,
		Factories:           m.factories,
		Context:             repository.NewContext(m.cfg.IndexUser, idx.Project()),
		DocumentCache:       cache,
		Report:              report,
	})
}

func (m *Manager) newPass(idx *SearchIndex, src *Source, writer IndexWriter, threads *IndexingThreadManager, report Report) *Pass {
	return &Pass{
		Context: repository.NewContext(m.cfg.IndexUser, idx.Project()),
		Index:   idx,
		Source:  src,
		Writer:  writer,
		Threads: threads,
		Report:  report,
	}
}

func (m *Manager) saveManifest() {
	if err := m.manifest.Save(); err != nil {
		m.logger.Warn("Failed to save index manifest", "error", err)
	}
}

// Close purges the caches and persists the manifest.
func (m *Manager) Close() error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	m.results.Purge()
	return m.manifest.Save()
}
