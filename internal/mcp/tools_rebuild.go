package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

// RebuildArgument defines rebuild parameters.
type RebuildArgument struct {
	Indexes []string `json:"indexes,omitempty" jsonschema:"Indexes to rebuild; all enabled indexes when empty"`
}

// RebuildHandler handles the rebuild MCP tool.
type RebuildHandler struct {
	manager *search.Manager
	logger  *slog.Logger
}

// NewRebuildHandler creates a new rebuild handler.
func NewRebuildHandler(manager *search.Manager, logger *slog.Logger) *RebuildHandler {
	return &RebuildHandler{
		manager: manager,
		logger:  logger,
	}
}

// Handle rebuilds the requested indexes and returns the rebuild report.
func (h *RebuildHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RebuildArgument) (*mcp.CallToolResult, any, error) {
	report := search.NewBufferReport(slog.LevelInfo, search.NewLogReport(h.logger))

	var err error
	if len(args.Indexes) == 0 {
		err = h.manager.RebuildAllIndexes(ctx, report)
	} else {
		err = h.manager.RebuildIndexes(ctx, args.Indexes, report)
	}

	var sb strings.Builder
	if err != nil {
		fmt.Fprintf(&sb, "Rebuild finished with errors: %s\n\n", err)
	} else {
		sb.WriteString("Rebuild finished.\n\n")
	}
	sb.WriteString(report.String())

	result := textResult(sb.String())
	result.IsError = err != nil
	return result, nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *RebuildHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "rebuild_index",
		Description: "Fully rebuild one or more search indexes from the repository and return the rebuild report",
	}
}

// RegisterRebuildTool registers the rebuild tool with an MCP server.
func RegisterRebuildTool(server *mcp.Server, manager *search.Manager, logger *slog.Logger) {
	handler := NewRebuildHandler(manager, logger)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
