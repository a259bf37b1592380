package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/config"
	mcputil "github.com/sha1n/mcp-lumen-server/internal/mcp"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(context.Context, *mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting MCP LUMEN server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	} else {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(ctx, mcpServer, settings)
	}
}

// CreateMCPServer creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	var stack *SearchStack
	var cleanup func()

	// Initialize the search stack if any project is configured
	if len(settings.Search.Projects) > 0 {
		st, err := NewSearchStack(&settings.Search, slog.Default())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create search stack: %w", err)
		}
		stack = st

		// Background work is not tied to a request context
		if err := st.Start(context.Background(), settings.Search.RebuildOnStartup, settings.Search.Watch, settings.Search.WatchDebounce); err != nil {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("Failed to close search stack", "error", closeErr)
			}
			return nil, nil, err
		}

		cleanup = func() {
			if err := st.Close(); err != nil {
				slog.Error("Failed to close search stack", "error", err)
			}
		}
	} else {
		slog.Warn("No search projects configured, starting without search tools")
	}

	cfg := mcputil.ServerConfig{
		Name:    "lumen-mcp",
		Version: "1.0.0",
		User:    settings.Search.User,
	}
	if stack != nil {
		cfg.Manager = stack.Manager
		cfg.Repository = stack.Repository
		cfg.MaxReadSize = settings.Search.MaxContentSize
	}

	return mcputil.CreateServer(cfg), cleanup, nil
}
