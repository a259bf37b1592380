package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// Pass bundles what an indexer needs while it feeds one index update.
type Pass struct {
	Context *repository.Context
	Index   *SearchIndex
	Source  *Source
	Writer  IndexWriter
	Threads *IndexingThreadManager
	Report  Report
}

// UpdateData is the work one source contributes to an incremental update.
type UpdateData struct {
	Source *Source

	// Deletes are the root paths whose documents must be removed.
	Deletes []string

	// Updates are the resources whose documents must be (re)built.
	Updates []*IndexResource
}

// Empty reports whether there is nothing to do.
func (d *UpdateData) Empty() bool {
	return d == nil || (len(d.Deletes) == 0 && len(d.Updates) == 0)
}

// Indexer enumerates the resources of a source.
type Indexer interface {
	// Name is the selector sources use to pick this indexer.
	Name() string

	// RebuildIndex dispatches every resource of the pass source to the
	// pass thread manager. Per-resource problems are reported, not returned.
	RebuildIndex(ctx context.Context, pass *Pass) error

	// UpdateData computes the deletes and updates a set of published
	// resources cause for source.
	UpdateData(ctx context.Context, rc *repository.Context, source *Source, published []repository.PublishedResource, report Report) (*UpdateData, error)

	// UpdateResources dispatches resources to the pass thread manager.
	UpdateResources(ctx context.Context, pass *Pass, resources []*IndexResource) error
}

// IndexerRegistry maps indexer names to indexers. It is filled at startup.
type IndexerRegistry struct {
	mu       sync.RWMutex
	indexers map[string]Indexer
}

// NewIndexerRegistry creates a registry holding the given indexers.
func NewIndexerRegistry(indexers ...Indexer) (*IndexerRegistry, error) {
	r := &IndexerRegistry{indexers: make(map[string]Indexer)}
	for _, ix := range indexers {
		if err := r.Register(ix); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an indexer.
func (r *IndexerRegistry) Register(ix Indexer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indexers[ix.Name()]; ok {
		return fmt.Errorf("indexer %q already registered", ix.Name())
	}
	r.indexers[ix.Name()] = ix
	return nil
}

// Get returns the indexer with the given name.
func (r *IndexerRegistry) Get(name string) (Indexer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ix, ok := r.indexers[name]
	return ix, ok
}

// Names returns the registered indexer names, sorted.
func (r *IndexerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.indexers))
	for n := range r.indexers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VFSIndexer indexes the files of a repository below the source paths.
type VFSIndexer struct {
	repo repository.Repository
}

// NewVFSIndexer creates the default indexer.
func NewVFSIndexer(repo repository.Repository) *VFSIndexer {
	return &VFSIndexer{repo: repo}
}

// Name returns DefaultIndexerName.
func (x *VFSIndexer) Name() string { return DefaultIndexerName }

// RebuildIndex walks every source path depth-first and dispatches each file.
func (x *VFSIndexer) RebuildIndex(ctx context.Context, pass *Pass) error {
	for _, root := range pass.Source.Paths {
		resources, err := x.repo.ReadResources(ctx, pass.Context, root)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pass.Report.Print(slog.LevelWarn, "Failed to read source path",
				"index", pass.Index.Name(), "source", pass.Source.Name, "path", root, "error", err)
			continue
		}

		pass.Report.Print(slog.LevelInfo, "Indexing source path",
			"index", pass.Index.Name(), "source", pass.Source.Name, "path", root, "resources", len(resources))

		for _, res := range resources {
			if err := ctx.Err(); err != nil {
				return err
			}
			if res.IsFolder || pass.Source.Excludes(res.RootPath) {
				continue
			}
			pass.Threads.CreateIndexingThread(ctx, pass.Writer, NewIndexResource(res), pass.Index)
		}
	}
	return nil
}

// UpdateData maps publish states to work: deleted and changed resources
// are removed, new and changed resources are rebuilt.
func (x *VFSIndexer) UpdateData(ctx context.Context, rc *repository.Context, source *Source, published []repository.PublishedResource, report Report) (*UpdateData, error) {
	data := &UpdateData{Source: source}
	for _, pub := range published {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pub.IsFolder || !source.Contains(pub.RootPath) {
			continue
		}
		if pub.State.IsDeleted() || pub.State.IsChanged() {
			data.Deletes = append(data.Deletes, pub.RootPath)
		}
		if !pub.State.IsNew() && !pub.State.IsChanged() {
			continue
		}

		res, err := x.repo.ReadResource(ctx, rc, pub.RootPath)
		if err != nil {
			report.Print(slog.LevelWarn, "Failed to read published resource",
				"source", source.Name, "path", pub.RootPath, "error", err)
			continue
		}
		data.Updates = append(data.Updates, NewIndexResource(res))
	}
	return data, nil
}

// UpdateResources dispatches every resource in order.
func (x *VFSIndexer) UpdateResources(ctx context.Context, pass *Pass, resources []*IndexResource) error {
	for _, res := range resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		pass.Threads.CreateIndexingThread(ctx, pass.Writer, res, pass.Index)
	}
	return nil
}
