package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Report receives the running output of an indexing pass: progress,
// per-resource outcomes and the final statistics.
type Report interface {
	Print(level slog.Level, msg string, args ...any)
}

// LogReport writes report lines to a slog logger.
type LogReport struct {
	logger *slog.Logger
}

// NewLogReport creates a report backed by logger; nil means slog.Default().
func NewLogReport(logger *slog.Logger) *LogReport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReport{logger: logger}
}

// Print logs one report line.
func (r *LogReport) Print(level slog.Level, msg string, args ...any) {
	r.logger.Log(context.Background(), level, msg, args...)
}

// BufferReport keeps report lines in memory and optionally forwards them.
// It is safe for concurrent use since abandoned workers may still report.
type BufferReport struct {
	mu       sync.Mutex
	lines    []string
	minLevel slog.Level
	next     Report
}

// NewBufferReport creates a report collecting lines at or above minLevel.
// Every line is forwarded to next when it is not nil.
func NewBufferReport(minLevel slog.Level, next Report) *BufferReport {
	return &BufferReport{minLevel: minLevel, next: next}
}

// Print records one report line.
func (r *BufferReport) Print(level slog.Level, msg string, args ...any) {
	if r.next != nil {
		r.next.Print(level, msg, args...)
	}
	if level < r.minLevel {
		return
	}

	var sb strings.Builder
	sb.WriteString(level.String())
	sb.WriteString(" ")
	sb.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}

	r.mu.Lock()
	r.lines = append(r.lines, sb.String())
	r.mu.Unlock()
}

// Lines returns a copy of the recorded lines.
func (r *BufferReport) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// String joins the recorded lines.
func (r *BufferReport) String() string {
	return strings.Join(r.Lines(), "\n")
}
