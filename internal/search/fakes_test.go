package search

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sha1n/mcp-lumen-server/internal/domain"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// fakeRepo is an in-memory repository. Resources are files unless
// registered as folders; a path is readable unless denied.
type fakeRepo struct {
	mu        sync.Mutex
	files     map[string]*fakeFile
	denied    map[string]bool
	permCalls int
}

type fakeFile struct {
	res     repository.Resource
	content string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[string]*fakeFile), denied: make(map[string]bool)}
}

// put adds or replaces a file. typ is the resource type, e.g. "plain".
func (r *fakeRepo) put(rootPath, typ, content string, categories ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[rootPath] = &fakeFile{
		res: repository.Resource{
			RootPath:     rootPath,
			Name:         path.Base(rootPath),
			TypeName:     typ,
			MimeType:     "text/" + typ,
			Size:         int64(len(content)),
			LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Categories:   categories,
		},
		content: content,
	}
}

func (r *fakeRepo) setTitle(rootPath, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[rootPath].res.Title = title
}

func (r *fakeRepo) remove(rootPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, rootPath)
}

func (r *fakeRepo) deny(rootPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied[rootPath] = true
}

func (r *fakeRepo) ReadResources(ctx context.Context, _ *repository.Context, rootPath string) ([]*repository.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Resource
	for p, f := range r.files {
		if IsUnder(rootPath, p) {
			res := f.res
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].RootPath < out[b].RootPath })
	return out, ctx.Err()
}

func (r *fakeRepo) ReadResource(_ context.Context, _ *repository.Context, rootPath string) (*repository.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[rootPath]
	if !ok {
		return nil, repository.ErrNotFound
	}
	res := f.res
	return &res, nil
}

func (r *fakeRepo) ReadContent(_ context.Context, _ *repository.Context, rootPath string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[rootPath]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return []byte(f.content), nil
}

func (r *fakeRepo) HasReadPermission(_ context.Context, _ *repository.Context, rootPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permCalls++
	_, ok := r.files[rootPath]
	return ok && !r.denied[rootPath]
}

// textFactory builds documents from the raw content of a fake repository.
type textFactory struct {
	name string
	keys []DocumentKey
	repo *fakeRepo

	mu    sync.Mutex
	calls int
}

func newTextFactory(repo *fakeRepo, name string, keys ...DocumentKey) *textFactory {
	if len(keys) == 0 {
		keys = []DocumentKey{NewDocumentKey(name, "")}
	}
	return &textFactory{name: name, keys: keys, repo: repo}
}

func (f *textFactory) Name() string        { return f.name }
func (f *textFactory) Keys() []DocumentKey { return f.keys }

func (f *textFactory) NewDocument(ctx context.Context, rc *repository.Context, res *IndexResource, locale string) (*domain.Document, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	content, err := f.repo.ReadContent(ctx, rc, res.RootPath)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(content), "FAIL") {
		return nil, fmt.Errorf("cannot extract %s", res.RootPath)
	}
	return NewDocument(res, f.name, locale, "", string(content)), nil
}

func (f *textFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingFactory never returns before its context is canceled.
type blockingFactory struct {
	started  chan string
	canceled chan string
}

func newBlockingFactory() *blockingFactory {
	return &blockingFactory{started: make(chan string, 16), canceled: make(chan string, 16)}
}

func (f *blockingFactory) Name() string        { return "slow" }
func (f *blockingFactory) Keys() []DocumentKey { return []DocumentKey{NewDocumentKey("slow", "")} }

func (f *blockingFactory) NewDocument(ctx context.Context, _ *repository.Context, res *IndexResource, _ string) (*domain.Document, error) {
	f.started <- res.RootPath
	<-ctx.Done()
	f.canceled <- res.RootPath
	return nil, ctx.Err()
}

// captureReport records report lines for assertions.
type captureReport struct {
	mu    sync.Mutex
	lines []string
}

func (r *captureReport) Print(level slog.Level, msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (r *captureReport) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

// memWriter is an IndexWriter keeping documents in a map.
type memWriter struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newMemWriter() *memWriter {
	return &memWriter{docs: make(map[string]*domain.Document)}
}

func (w *memWriter) Index(id string, doc *domain.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs[id] = doc
	return nil
}

func (w *memWriter) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.docs, id)
	return nil
}

func (w *memWriter) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.docs)
}

// testEnv wires a manager over a fake repository with "plain" and "slow"
// factories and a single source "content" over "/".
type testEnv struct {
	repo      *fakeRepo
	plain     *textFactory
	factories *FactoryRegistry
	manager   *Manager
}

func newTestEnv(t *testing.T, cfg IndexConfig, timeout time.Duration) *testEnv {
	t.Helper()

	repo := newFakeRepo()
	plain := newTextFactory(repo, "plain")
	factories := NewFactoryRegistry()
	if err := factories.Register(plain); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := factories.Register(newBlockingFactory()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	indexers, err := NewIndexerRegistry(NewVFSIndexer(repo))
	if err != nil {
		t.Fatalf("NewIndexerRegistry failed: %v", err)
	}

	m, err := NewManager(ManagerConfig{
		BaseDir:         t.TempDir(),
		IndexingTimeout: timeout,
		LockTimeout:     time.Second,
		Logger:          slog.New(slog.DiscardHandler),
	}, repo, factories, indexers)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	src, err := NewSource("content", []string{"/"}, []string{"plain", "slow"}, "", nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if err := m.AddSource(src); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}

	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []string{"content"}
	}
	if cfg.Project == "" {
		cfg.Project = repository.ProjectOnline
	}
	if err := m.AddIndex(NewSearchIndex(cfg)); err != nil {
		t.Fatalf("AddIndex failed: %v", err)
	}
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return &testEnv{repo: repo, plain: plain, factories: factories, manager: m}
}

func (e *testEnv) index(t *testing.T) *SearchIndex {
	t.Helper()
	idx, err := e.manager.Index("test")
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	return idx
}

func (e *testEnv) rebuild(t *testing.T) {
	t.Helper()
	if err := e.manager.RebuildAllIndexes(context.Background(), &captureReport{}); err != nil {
		t.Fatalf("RebuildAllIndexes failed: %v", err)
	}
}

func (e *testEnv) search(t *testing.T, params Parameters) *ResultList {
	t.Helper()
	rc := repository.NewContext("guest", repository.ProjectOffline)
	list, err := e.manager.Search(context.Background(), rc, "test", params)
	if err != nil {
		t.Fatalf("Search(%+v) failed: %v", params, err)
	}
	return list
}

func resultPaths(list *ResultList) []string {
	paths := make([]string, 0, len(list.Results))
	for _, r := range list.Results {
		paths = append(paths, r.Path)
	}
	return paths
}
