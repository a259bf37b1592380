package search

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

const (
	// DefaultIndexingTimeout bounds the time the driver waits for one resource.
	DefaultIndexingTimeout = 2 * time.Minute

	// DefaultSupervisorInterval is the period of the straggler check.
	DefaultSupervisorInterval = 10 * time.Minute

	// DefaultSupervisorMaxChecks is the number of straggler checks before giving up.
	DefaultSupervisorMaxChecks = 10
)

// ThreadStats summarizes the workers of one indexing pass.
type ThreadStats struct {
	Dispatched int64         `json:"dispatched"`
	Returned   int64         `json:"returned"`
	Abandoned  int64         `json:"abandoned"`
	Skipped    int64         `json:"skipped"`
	Failed     int64         `json:"failed"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Running is the number of workers that have not returned yet.
func (s ThreadStats) Running() int64 {
	return s.Dispatched - s.Returned
}

// ThreadManagerConfig configures an IndexingThreadManager.
type ThreadManagerConfig struct {
	// Timeout bounds the wait for each worker; 0 means DefaultIndexingTimeout.
	Timeout             time.Duration
	SupervisorInterval  time.Duration
	SupervisorMaxChecks int

	Factories *FactoryRegistry
	Context   *repository.Context
	// DocumentCache is shared by the workers of one publish event; may be nil.
	DocumentCache *DocumentCache
	Report        Report
}

// IndexingThreadManager runs one worker per resource for a single pass over
// one index. The driver waits for each worker at most Timeout; a worker that
// exceeds it is abandoned and canceled, and the driver moves on.
type IndexingThreadManager struct {
	index string
	cfg   ThreadManagerConfig
	start time.Time

	dispatched atomic.Int64
	returned   atomic.Int64
	abandoned  atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64

	// returnedCh wakes Wait whenever a worker finishes.
	returnedCh chan struct{}
}

// NewIndexingThreadManager creates the manager of one pass over indexName.
func NewIndexingThreadManager(indexName string, cfg ThreadManagerConfig) *IndexingThreadManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIndexingTimeout
	}
	if cfg.SupervisorInterval <= 0 {
		cfg.SupervisorInterval = DefaultSupervisorInterval
	}
	if cfg.SupervisorMaxChecks <= 0 {
		cfg.SupervisorMaxChecks = DefaultSupervisorMaxChecks
	}
	if cfg.Report == nil {
		cfg.Report = NewLogReport(nil)
	}
	if cfg.Factories == nil {
		cfg.Factories = NewFactoryRegistry()
	}
	return &IndexingThreadManager{
		index:      indexName,
		cfg:        cfg,
		start:      time.Now(),
		returnedCh: make(chan struct{}, 1),
	}
}

// CreateIndexingThread indexes res with a new worker and waits for it at
// most the configured timeout. It returns early if ctx is canceled; the
// worker is then canceled and counted as abandoned.
func (m *IndexingThreadManager) CreateIndexingThread(ctx context.Context, writer IndexWriter, res *IndexResource, index *SearchIndex) {
	m.dispatched.Add(1)
	indexingDispatched.WithLabelValues(m.index).Inc()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	thread := newIndexingThread(m, writer, res, index)
	done := make(chan struct{})
	go func() {
		defer close(done)
		thread.run(workerCtx)
	}()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		m.abandon(res, "timeout")
	case <-ctx.Done():
		m.abandon(res, "canceled")
	}
}

func (m *IndexingThreadManager) abandon(res *IndexResource, reason string) {
	m.abandoned.Add(1)
	indexingAbandoned.WithLabelValues(m.index).Inc()
	m.cfg.Report.Print(slog.LevelWarn, "Abandoned indexing of resource",
		"index", m.index, "path", res.RootPath, "reason", reason, "timeout", m.cfg.Timeout)
}

// Finished is called by every worker exactly once when it returns.
func (m *IndexingThreadManager) Finished() {
	m.returned.Add(1)
	indexingReturned.WithLabelValues(m.index).Inc()
	select {
	case m.returnedCh <- struct{}{}:
	default:
	}
}

func (m *IndexingThreadManager) skippedResource(res *IndexResource, reason string) {
	m.skipped.Add(1)
	indexingSkipped.WithLabelValues(m.index).Inc()
	m.cfg.Report.Print(slog.LevelDebug, "Skipped resource",
		"index", m.index, "path", res.RootPath, "type", res.DocumentKey.String(), "reason", reason)
}

func (m *IndexingThreadManager) failedResource(res *IndexResource, err error) {
	m.failed.Add(1)
	indexingFailed.WithLabelValues(m.index).Inc()
	m.cfg.Report.Print(slog.LevelWarn, "Failed to index resource",
		"index", m.index, "path", res.RootPath, "error", err)
}

// IsRunning reports whether dispatched workers have not yet returned.
func (m *IndexingThreadManager) IsRunning() bool {
	return m.returned.Load() < m.dispatched.Load()
}

// Stats returns a snapshot of the counters.
func (m *IndexingThreadManager) Stats() ThreadStats {
	return ThreadStats{
		Dispatched: m.dispatched.Load(),
		Returned:   m.returned.Load(),
		Abandoned:  m.abandoned.Load(),
		Skipped:    m.skipped.Load(),
		Failed:     m.failed.Load(),
		Elapsed:    time.Since(m.start),
	}
}

// Wait blocks until every dispatched worker has returned, maxWait elapsed
// or ctx is canceled. It reports whether all workers returned.
func (m *IndexingThreadManager) Wait(ctx context.Context, maxWait time.Duration) bool {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for m.IsRunning() {
		select {
		case <-m.returnedCh:
		case <-timer.C:
			return !m.IsRunning()
		case <-ctx.Done():
			return !m.IsRunning()
		}
	}
	return true
}

// StartSupervisor periodically checks for workers still running after the
// driver finished with them. It stops when all returned, after the
// configured number of checks, or when the returned stop func is called.
func (m *IndexingThreadManager) StartSupervisor(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(m.cfg.SupervisorInterval)
		defer ticker.Stop()

		for checks := 1; ; checks++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			stats := m.Stats()
			if stats.Running() == 0 {
				m.cfg.Report.Print(slog.LevelDebug, "All indexing workers returned",
					"index", m.index, "dispatched", stats.Dispatched)
				return
			}
			if checks >= m.cfg.SupervisorMaxChecks {
				m.cfg.Report.Print(slog.LevelWarn, "Indexing workers still running, giving up supervision",
					"index", m.index, "running", stats.Running(), "checks", checks)
				return
			}
			m.cfg.Report.Print(slog.LevelInfo, "Indexing workers still running",
				"index", m.index, "running", stats.Running(), "check", checks)
		}
	}()
	return cancel
}

// ReportStatistics writes the pass summary to the report.
func (m *IndexingThreadManager) ReportStatistics() ThreadStats {
	stats := m.Stats()
	level := slog.LevelInfo
	if stats.Abandoned > 0 || stats.Failed > 0 {
		level = slog.LevelWarn
	}
	m.cfg.Report.Print(level, "Indexing statistics",
		"index", m.index,
		"dispatched", stats.Dispatched,
		"returned", stats.Returned,
		"abandoned", stats.Abandoned,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats
}
