package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
)

const (
	// MaxBatchSize is the maximum number of operations per batch.
	MaxBatchSize = 100

	// MaxBatchBytes is the maximum content bytes per batch (10MB).
	MaxBatchBytes = 10 * 1024 * 1024
)

// IndexWriter is the write handle shared by the indexing workers of one pass.
type IndexWriter interface {
	// Index adds or replaces the document with the given id.
	Index(id string, doc *domain.Document) error

	// Delete removes the document with the given id.
	Delete(id string) error
}

// Writer batches writes to a bleve index. All methods are safe for
// concurrent use; once closed every write fails with ErrWriterClosed.
type Writer struct {
	mu         sync.Mutex
	index      bleve.Index
	batch      *bleve.Batch
	batchSize  int
	batchBytes int
	written    int
	closed     bool
}

// OpenWriter opens the index at path for writing, creating it with the
// mapping when it does not exist.
func OpenWriter(path string, indexMapping mapping.IndexMapping) (*Writer, error) {
	index, err := bleve.Open(path)
	if err != nil {
		if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		index, err = bleve.New(path, indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}
	return newWriter(index), nil
}

// CreateWriter creates a fresh index at path, removing anything there.
func CreateWriter(path string, indexMapping mapping.IndexMapping) (*Writer, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to truncate index directory: %w", err)
	}
	index, err := bleve.New(path, indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return newWriter(index), nil
}

func newWriter(index bleve.Index) *Writer {
	return &Writer{index: index, batch: index.NewBatch()}
}

// Index adds doc to the current batch, flushing it when full.
func (w *Writer) Index(id string, doc *domain.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.batch.Index(id, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	w.batchSize++
	w.batchBytes += int(doc.Size())
	w.written++
	return w.maybeFlush()
}

// Delete adds a delete of id to the current batch.
func (w *Writer) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	w.batch.Delete(id)
	w.batchSize++
	return w.maybeFlush()
}

// Commit flushes pending operations.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	return w.flush()
}

// Optimize merges the index into a single segment.
func (w *Writer) Optimize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	adv, err := w.index.Advanced()
	if err != nil {
		return fmt.Errorf("failed to access index internals: %w", err)
	}
	merger, ok := adv.(interface {
		ForceMerge(context.Context, *mergeplan.MergePlanOptions) error
	})
	if !ok {
		return nil
	}
	if err := merger.ForceMerge(ctx, &mergeplan.SingleSegmentMergePlanOptions); err != nil {
		return fmt.Errorf("failed to optimize index: %w", err)
	}
	return nil
}

// DocCount returns the number of committed documents.
func (w *Writer) DocCount() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWriterClosed
	}
	return w.index.DocCount()
}

// Written returns the number of documents passed to Index.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close commits pending operations and closes the index. Both steps are
// attempted and their errors joined.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	flushErr := w.flush()
	w.closed = true
	return errors.Join(flushErr, w.index.Close())
}

func (w *Writer) maybeFlush() error {
	if w.batchSize >= MaxBatchSize || w.batchBytes >= MaxBatchBytes {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if w.batchSize == 0 {
		return nil
	}
	err := w.index.Batch(w.batch)
	w.batch = w.index.NewBatch()
	w.batchSize = 0
	w.batchBytes = 0
	if err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	return nil
}
