package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"github.com/sha1n/mcp-lumen-server/internal/search"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string   `json:"query" jsonschema:"Search text; quoted groups match as phrases"`
	Index      string   `json:"index,omitempty" jsonschema:"Index name; may be omitted when only one index exists"`
	Roots      []string `json:"roots,omitempty" jsonschema:"Restrict results to documents below these root paths"`
	Fields     []string `json:"fields,omitempty" jsonschema:"Fields to search: content and title (default content)"`
	Categories []string `json:"categories,omitempty" jsonschema:"Restrict results to documents in any of these categories"`
	Facets     bool     `json:"facets,omitempty" jsonschema:"Also return per-category hit counts"`
	Page       int      `json:"page,omitempty" jsonschema:"1-based page number"`
	PageSize   int      `json:"page_size,omitempty" jsonschema:"Results per page (max 100)"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	manager *search.Manager
	user    string
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(manager *search.Manager, user string) *SearchHandler {
	return &SearchHandler{
		manager: manager,
		user:    user,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	idx, err := resolveIndex(h.manager, args.Index)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	params := search.Parameters{
		Query:               args.Query,
		Roots:               args.Roots,
		Fields:              args.Fields,
		Categories:          args.Categories,
		CalculateCategories: args.Facets,
		Page:                args.Page,
		PageSize:            args.PageSize,
	}

	rc := repository.NewContext(h.user, idx.Project())
	list, err := h.manager.Search(ctx, rc, idx.Name(), params)
	if err != nil {
		var qerr *search.QueryError
		switch {
		case errors.As(err, &qerr):
			return errorResult(fmt.Sprintf("Invalid query: %s", qerr.Err)), nil, nil
		case errors.Is(err, search.ErrIndexDisabled):
			return errorResult(fmt.Sprintf("Index %s is disabled, see list_indexes for the configuration error", idx.Name())), nil, nil
		default:
			return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
		}
	}

	return formatResults(list, idx.Name(), args.Query), nil, nil
}

// resolveIndex returns the named index, or the only enabled index when name is empty.
func resolveIndex(manager *search.Manager, name string) (*search.SearchIndex, error) {
	if name != "" {
		idx, err := manager.Index(name)
		if err != nil {
			return nil, fmt.Errorf("unknown index %q", name)
		}
		return idx, nil
	}

	var enabled []*search.SearchIndex
	for _, idx := range manager.Indexes() {
		if idx.Enabled() {
			enabled = append(enabled, idx)
		}
	}
	switch len(enabled) {
	case 0:
		return nil, errors.New("no search index is available")
	case 1:
		return enabled[0], nil
	default:
		names := make([]string, len(enabled))
		for i, idx := range enabled {
			names[i] = idx.Name()
		}
		return nil, fmt.Errorf("index is required, one of: %s", strings.Join(names, ", "))
	}
}

// formatResults formats a result page for the MCP response.
func formatResults(list *search.ResultList, index, queryStr string) *mcp.CallToolResult {
	if len(list.Results) == 0 && list.HitCount == 0 {
		return textResult(fmt.Sprintf("No results found in %s for query: %s", index, queryStr))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d hits in %s for '%s' (page %d of %d):\n\n",
		list.HitCount, index, queryStr, list.Page, list.PageCount())

	offset := (list.Page - 1) * list.PageSize
	for i, r := range list.Results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		fmt.Fprintf(&sb, "### %d. %s\n", offset+i+1, title)
		fmt.Fprintf(&sb, "**Path**: %s\n", r.Path)
		fmt.Fprintf(&sb, "**Type**: %s (%s)\n", r.Type, r.MimeType)
		if len(r.Categories) > 0 {
			fmt.Fprintf(&sb, "**Categories**: %s\n", strings.Join(r.Categories, ", "))
		}
		if !r.LastModified.IsZero() {
			fmt.Fprintf(&sb, "**Modified**: %s\n", r.LastModified.Format("2006-01-02 15:04:05Z07:00"))
		}
		fmt.Fprintf(&sb, "**Score**: %.4f\n", r.Score)
		if r.Excerpt != "" {
			sb.WriteString("\n")
			sb.WriteString(r.Excerpt)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(list.Categories) > 0 {
		names := make([]string, 0, len(list.Categories))
		for name := range list.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("**Categories**:\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: %d\n", name, list.Categories[name])
		}
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_content",
		Description: "Full-text search of indexed repository content, scoped by root paths and categories, with ranked and permission-filtered results",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, manager *search.Manager, user string) {
	handler := NewSearchHandler(manager, user)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
