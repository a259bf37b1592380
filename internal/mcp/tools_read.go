package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	Path    string `json:"path" jsonschema:"Root path of the resource, as returned by search_content"`
	Project string `json:"project,omitempty" jsonschema:"Project to read from; defaults to the project of the only index"`
}

// ReadHandler handles the read MCP tool.
type ReadHandler struct {
	repo    repository.Repository
	manager *search.Manager
	user    string
	maxSize int
}

// NewReadHandler creates a new read handler. manager may be nil, in which case
// every read must name its project.
func NewReadHandler(repo repository.Repository, manager *search.Manager, user string, maxSize int) *ReadHandler {
	return &ReadHandler{
		repo:    repo,
		manager: manager,
		user:    user,
		maxSize: maxSize,
	}
}

// Handle reads a resource the user is permitted to see and returns its content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	project := args.Project
	if project == "" {
		if h.manager == nil {
			return errorResult("Project cannot be empty"), nil, nil
		}
		idx, err := resolveIndex(h.manager, "")
		if err != nil {
			return errorResult(fmt.Sprintf("Project is required: %s", err)), nil, nil
		}
		project = idx.Project()
	}

	rc := repository.NewContext(h.user, project)
	rootPath := search.CleanRootPath(args.Path)

	// missing and forbidden resources look the same to the caller
	if !h.repo.HasReadPermission(ctx, rc, rootPath) {
		return errorResult(fmt.Sprintf("Resource not found: %s", rootPath)), nil, nil
	}

	res, err := h.repo.ReadResource(ctx, rc, rootPath)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorResult(fmt.Sprintf("Resource not found: %s", rootPath)), nil, nil
		}
		return errorResult(fmt.Sprintf("Error accessing resource: %s", err)), nil, nil
	}
	if res.IsFolder {
		return errorResult("Cannot read folder, please specify a file path"), nil, nil
	}
	if res.Size > int64(h.maxSize) {
		return errorResult(fmt.Sprintf("Resource too large (%.2f KB). Maximum allowed size is %.2f KB",
			float64(res.Size)/1024, float64(h.maxSize)/1024)), nil, nil
	}

	content, err := h.repo.ReadContent(ctx, rc, rootPath)
	if err != nil {
		return errorResult(fmt.Sprintf("Error reading resource: %s", err)), nil, nil
	}
	if search.IsBinary(content) {
		return errorResult("Cannot display binary resource content"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Resource**: `%s`\n", res.RootPath)
	fmt.Fprintf(&sb, "**Project**: %s\n", project)
	if res.Title != "" {
		fmt.Fprintf(&sb, "**Title**: %s\n", res.Title)
	}
	fmt.Fprintf(&sb, "**Type**: %s (%s)\n", res.TypeName, res.MimeType)
	if len(res.Categories) > 0 {
		fmt.Fprintf(&sb, "**Categories**: %s\n", strings.Join(res.Categories, ", "))
	}
	fmt.Fprintf(&sb, "**Size**: %d bytes\n\n", len(content))
	fmt.Fprintf(&sb, "```%s\n%s\n```", fenceLanguage(res.TypeName), string(content))

	return textResult(sb.String()), nil, nil
}

// fenceLanguage maps a resource type to a code block language hint.
func fenceLanguage(typeName string) string {
	switch typeName {
	case "markdown", "html":
		return typeName
	default:
		return ""
	}
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_resource",
		Description: "Read the content of a repository resource found by search_content",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, repo repository.Repository, manager *search.Manager, user string, maxSize int) {
	handler := NewReadHandler(repo, manager, user, maxSize)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
