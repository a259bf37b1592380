package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sha1n/mcp-lumen-server/internal/config"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"github.com/sha1n/mcp-lumen-server/internal/repository/fsrepo"
	"github.com/sha1n/mcp-lumen-server/internal/search"
	"github.com/sha1n/mcp-lumen-server/internal/search/documents"
)

// SearchStack is the search engine assembled from settings: the filesystem
// repository, the index manager and the optional project watchers.
type SearchStack struct {
	Repository *fsrepo.Repository
	Manager    *search.Manager

	logger   *slog.Logger
	watchers []*fsrepo.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSearchStack builds the repository, registries and manager and registers
// every configured source and index. Configuration errors of single indexes
// are logged; those indexes stay disabled.
func NewSearchStack(s *config.SearchSettings, logger *slog.Logger) (*SearchStack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dirs, err := s.ProjectDirs()
	if err != nil {
		return nil, err
	}
	repo, err := fsrepo.New(dirs)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	factories := search.NewFactoryRegistry()
	if err := documents.Register(factories, repo, s.MaxContentSize); err != nil {
		return nil, fmt.Errorf("failed to register document factories: %w", err)
	}
	indexers, err := search.NewIndexerRegistry(search.NewVFSIndexer(repo))
	if err != nil {
		return nil, fmt.Errorf("failed to register indexers: %w", err)
	}

	manager, err := search.NewManager(search.ManagerConfig{
		BaseDir:              s.BaseDir,
		IndexUser:            s.IndexUser,
		ResultCacheSize:      s.ResultCacheSize,
		DocumentCacheMaxCost: s.DocumentCacheMaxCost,
		IndexingTimeout:      s.IndexingTimeout,
		SupervisorInterval:   s.SupervisorInterval,
		SupervisorMaxChecks:  s.SupervisorMaxChecks,
		LockTimeout:          s.LockTimeout,
		Logger:               logger,
	}, repo, factories, indexers)
	if err != nil {
		return nil, fmt.Errorf("failed to create search manager: %w", err)
	}

	for _, src := range s.Sources {
		source, err := search.NewSource(src.Name, src.Paths, src.DocumentTypes, src.Indexer, src.Params)
		if err != nil {
			logger.Error("Invalid search source", "source", src.Name, "error", err)
			continue
		}
		if err := manager.AddSource(source); err != nil {
			logger.Error("Failed to add search source", "source", src.Name, "error", err)
		}
	}

	for _, idx := range s.Indexes {
		mode, err := search.ParseRebuildMode(idx.RebuildMode)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
		maxExcerpt := idx.MaxExcerptLength
		if maxExcerpt <= 0 {
			maxExcerpt = s.MaxExcerptLength
		}
		err = manager.AddIndex(search.NewSearchIndex(search.IndexConfig{
			Name:              idx.Name,
			Locale:            idx.Locale,
			Project:           idx.Project,
			RebuildMode:       mode,
			Sources:           idx.Sources,
			Excerpt:           idx.ExcerptEnabled(),
			CheckPermissions:  idx.PermissionsChecked(),
			Priority:          idx.Priority,
			MaxExcerptLength:  maxExcerpt,
			MaxCategoryFacets: s.MaxCategoryFacets,
		}))
		if err != nil {
			logger.Error("Failed to add search index", "index", idx.Name, "error", err)
		}
	}

	if err := manager.Initialize(); err != nil {
		logger.Error("Some search indexes are disabled", "error", err)
	}

	return &SearchStack{Repository: repo, Manager: manager, logger: logger}, nil
}

// Start runs the startup rebuild in the background and starts watching the
// projects of auto-rebuild indexes when requested. The background work stops
// with Close.
func (st *SearchStack) Start(ctx context.Context, rebuild, watch bool, debounce time.Duration) error {
	ctx, st.cancel = context.WithCancel(ctx)

	if watch {
		for _, project := range st.watchedProjects() {
			w, err := fsrepo.NewWatcher(st.Repository, project, debounce, func(ev repository.Event) {
				st.Manager.HandleEventContext(ctx, ev)
			})
			if err != nil {
				return fmt.Errorf("failed to watch project %s: %w", project, err)
			}
			if err := w.Start(ctx); err != nil {
				_ = w.Close()
				return fmt.Errorf("failed to watch project %s: %w", project, err)
			}
			st.watchers = append(st.watchers, w)
		}
	}

	if rebuild {
		st.wg.Add(1)
		go func() {
			defer st.wg.Done()
			if err := st.Manager.RebuildAllIndexes(ctx, search.NewLogReport(st.logger)); err != nil {
				st.logger.Error("Startup rebuild failed", "error", err)
			}
		}()
	}
	return nil
}

// watchedProjects returns the projects of enabled auto-rebuild indexes.
func (st *SearchStack) watchedProjects() []string {
	seen := make(map[string]bool)
	var projects []string
	for _, idx := range st.Manager.Indexes() {
		if !idx.Enabled() || idx.RebuildMode() != search.RebuildAuto || seen[idx.Project()] {
			continue
		}
		seen[idx.Project()] = true
		projects = append(projects, idx.Project())
	}
	return projects
}

// Close stops the watchers and the startup rebuild and closes the manager.
func (st *SearchStack) Close() error {
	if st.cancel != nil {
		st.cancel()
	}
	var errs []error
	for _, w := range st.watchers {
		errs = append(errs, w.Close())
	}
	st.wg.Wait()
	errs = append(errs, st.Manager.Close())
	return errors.Join(errs...)
}
