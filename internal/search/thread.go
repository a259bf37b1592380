package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sha1n/mcp-lumen-server/internal/domain"
)

// IndexingThread indexes a single resource. It is run by an
// IndexingThreadManager and reports back exactly once via Finished.
type IndexingThread struct {
	manager *IndexingThreadManager
	writer  IndexWriter
	res     *IndexResource
	index   *SearchIndex
}

func newIndexingThread(m *IndexingThreadManager, writer IndexWriter, res *IndexResource, index *SearchIndex) *IndexingThread {
	return &IndexingThread{manager: m, writer: writer, res: res, index: index}
}

// run builds and writes the document. Every failure is reported and
// contained here.
func (t *IndexingThread) run(ctx context.Context) {
	defer t.manager.Finished()
	defer func() {
		if r := recover(); r != nil {
			t.manager.failedResource(t.res, fmt.Errorf("panic: %v", r))
		}
	}()

	// Runs on its own goroutine, so the thread may keep the changed priority.
	lockPriority(t.index.Priority())

	factory, ok := t.manager.cfg.Factories.Lookup(t.res.DocumentKey)
	if !ok {
		t.manager.skippedResource(t.res, "no document factory")
		return
	}
	if !t.index.AcceptsDocumentType(t.res.RootPath, factory.Name()) {
		t.manager.skippedResource(t.res, "document type "+factory.Name()+" not indexed here")
		return
	}

	doc, err := t.document(ctx, factory)
	if err != nil {
		t.manager.failedResource(t.res, err)
		return
	}

	if ctx.Err() != nil {
		t.manager.cfg.Report.Print(slog.LevelDebug, "Abandoned resource not written",
			"index", t.index.Name(), "path", t.res.RootPath)
		return
	}

	if err := t.writer.Index(doc.ID, doc); err != nil {
		t.manager.failedResource(t.res, err)
		return
	}
	t.manager.cfg.Report.Print(slog.LevelDebug, "Indexed resource",
		"index", t.index.Name(), "path", t.res.RootPath, "type", factory.Name())
}

// document extracts the document, going through the shared cache if any.
func (t *IndexingThread) document(ctx context.Context, factory DocumentFactory) (*domain.Document, error) {
	cache := t.manager.cfg.DocumentCache
	key := documentCacheKey(t.res, factory.Name(), t.index.Locale())
	if doc, ok := cache.Get(key); ok {
		return doc, nil
	}

	doc, err := factory.NewDocument(ctx, t.manager.cfg.Context, t.res, t.index.Locale())
	if err != nil {
		return nil, fmt.Errorf("failed to extract document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("factory %s returned no document", factory.Name())
	}
	cache.Set(key, doc)
	return doc, nil
}
