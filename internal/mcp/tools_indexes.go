package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

// ListIndexesArgument takes no parameters.
type ListIndexesArgument struct{}

// ListIndexesHandler handles the list_indexes MCP tool.
type ListIndexesHandler struct {
	manager *search.Manager
}

// NewListIndexesHandler creates a new list handler.
func NewListIndexesHandler(manager *search.Manager) *ListIndexesHandler {
	return &ListIndexesHandler{manager: manager}
}

// Handle describes every configured index and its persisted state.
func (h *ListIndexesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ListIndexesArgument) (*mcp.CallToolResult, any, error) {
	indexes := h.manager.Indexes()
	if len(indexes) == 0 {
		return textResult("No search indexes are configured"), nil, nil
	}

	var sb strings.Builder
	for _, idx := range indexes {
		cfg := idx.Config()
		status := "enabled"
		if !idx.Enabled() {
			status = "disabled"
		}

		fmt.Fprintf(&sb, "### %s (%s)\n", idx.Name(), status)
		fmt.Fprintf(&sb, "- project: %s\n", cfg.Project)
		if cfg.Locale != "" {
			fmt.Fprintf(&sb, "- locale: %s\n", cfg.Locale)
		}
		fmt.Fprintf(&sb, "- rebuild mode: %s\n", cfg.RebuildMode)
		fmt.Fprintf(&sb, "- sources: %s\n", strings.Join(cfg.Sources, ", "))

		if state, ok := h.manager.State(idx.Name()); ok {
			fmt.Fprintf(&sb, "- documents: %d\n", state.DocCount)
			if !state.LastRebuild.IsZero() {
				fmt.Fprintf(&sb, "- last rebuild: %s\n", state.LastRebuild.Format(time.RFC3339))
			}
			if !state.LastUpdate.IsZero() {
				fmt.Fprintf(&sb, "- last update: %s\n", state.LastUpdate.Format(time.RFC3339))
			}
			if s := state.LastStats; s.Dispatched > 0 {
				fmt.Fprintf(&sb, "- last pass: %d dispatched, %d skipped, %d failed, %d abandoned\n",
					s.Dispatched, s.Skipped, s.Failed, s.Abandoned)
			}
			if state.Error != "" {
				fmt.Fprintf(&sb, "- error: %s\n", state.Error)
			}
		} else {
			sb.WriteString("- never built\n")
		}
		sb.WriteString("\n")
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListIndexesHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_indexes",
		Description: "List the configured search indexes with their project, sources, document count and last build state",
	}
}

// RegisterListIndexesTool registers the list tool with an MCP server.
func RegisterListIndexesTool(server *mcp.Server, manager *search.Manager) {
	handler := NewListIndexesHandler(manager)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
