package fsrepo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// DefaultDebounce is the quiet period after which collected changes are published.
const DefaultDebounce = 2 * time.Second

// Watcher turns filesystem changes of one project directory into publish
// events. Changes are collected until the directory has been quiet for the
// debounce period and then emitted as one change set.
type Watcher struct {
	repo     *Repository
	project  string
	dir      string
	handler  func(repository.Event)
	debounce time.Duration
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	started bool
	mu      sync.Mutex
	pending map[string]repository.PublishedResource
	done    chan struct{}
}

// NewWatcher creates a watcher for a project of repo.
func NewWatcher(repo *Repository, project string, debounce time.Duration, handler func(repository.Event)) (*Watcher, error) {
	dir, ok := repo.ProjectDir(project)
	if !ok {
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownProject, project)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		repo:     repo,
		project:  project,
		dir:      dir,
		handler:  handler,
		debounce: debounce,
		logger:   slog.Default(),
		fsw:      fsw,
		pending:  make(map[string]repository.PublishedResource),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the project tree and processes events until ctx is done
// or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.dir); err != nil {
		return err
	}

	w.started = true
	go w.loop(ctx)
	w.logger.Info("Watching project for changes", "project", w.project, "dir", w.dir)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	if w.started {
		<-w.done
	}
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.record(ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "project", w.project, "error", err)
		case <-timer.C:
			w.flush()
		}
	}
}

// record folds one fsnotify event into the pending change set. It returns
// false for events that do not change the repository view.
func (w *Watcher) record(ev fsnotify.Event) bool {
	full := ev.Name
	name := filepath.Base(full)

	// Property changes republish the owning file
	if strings.HasSuffix(name, PropertiesSuffix) {
		full = strings.TrimSuffix(full, PropertiesSuffix)
		name = filepath.Base(full)
		if _, err := os.Stat(full); err != nil {
			return false
		}
		ev = fsnotify.Event{Name: full, Op: fsnotify.Write}
	}
	if strings.HasPrefix(name, ".") {
		return false
	}

	rootPath := rootPathOf(w.dir, full)
	entry := repository.PublishedResource{
		ID:       ResourceID(rootPath),
		RootPath: rootPath,
		TypeName: w.repo.TypeName(name),
		MimeType: MimeType(name),
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(full)
		if err != nil {
			return false
		}
		if info.IsDir() {
			// Watch new directories and publish their content
			if err := w.addTree(full); err != nil {
				w.logger.Warn("Failed to watch new directory", "dir", full, "error", err)
			}
			w.recordTree(full)
			return true
		}
		entry.State = repository.StateNew
	case ev.Has(fsnotify.Write):
		entry.State = repository.StateChanged
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		entry.State = repository.StateDeleted
	default:
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[rootPath]; ok && prev.State == repository.StateNew && entry.State == repository.StateChanged {
		entry.State = repository.StateNew
	}
	w.pending[rootPath] = entry
	return true
}

// recordTree marks everything below a newly created directory as new.
func (w *Watcher) recordTree(root string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rootPath := rootPathOf(w.dir, p)
		w.pending[rootPath] = repository.PublishedResource{
			ID:       ResourceID(rootPath),
			RootPath: rootPath,
			TypeName: w.repo.TypeName(d.Name()),
			MimeType: MimeType(d.Name()),
			IsFolder: d.IsDir(),
			State:    repository.StateNew,
		}
		return nil
	})
}

// flush emits the pending change set as one publish event.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	published := make([]repository.PublishedResource, 0, len(w.pending))
	for _, entry := range w.pending {
		published = append(published, entry)
	}
	w.pending = make(map[string]repository.PublishedResource)
	w.mu.Unlock()

	slices.SortFunc(published, func(a, b repository.PublishedResource) int {
		return strings.Compare(a.RootPath, b.RootPath)
	})

	w.logger.Info("Publishing repository changes", "project", w.project, "resources", len(published))
	w.handler(repository.NewPublishEvent(w.project, published))
}
