package mcp

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

// DefaultUser is the repository user searches and reads run as.
const DefaultUser = "guest"

// DefaultMaxReadSize caps the content returned by read_resource.
const DefaultMaxReadSize = 1 << 20

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Manager and Repository enable the search tools. Without a manager the
	// server starts with no tools.
	Manager    *search.Manager
	Repository repository.Repository

	// User is the repository user searches and reads run as.
	User        string
	MaxReadSize int
	Logger      *slog.Logger
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Manager == nil {
		return s
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = DefaultMaxReadSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	RegisterSearchTool(s, cfg.Manager, cfg.User)
	RegisterRebuildTool(s, cfg.Manager, cfg.Logger)
	RegisterListIndexesTool(s, cfg.Manager)
	if cfg.Repository != nil {
		RegisterReadTool(s, cfg.Repository, cfg.Manager, cfg.User, cfg.MaxReadSize)
	}

	return s
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
