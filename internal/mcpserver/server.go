package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"course-rag/internal/models"
	"course-rag/internal/tools"
)

const (
	Version    = "0.1.0"
	catalogURI = "courses://catalog"
)

// Catalog lists the indexed courses.
type Catalog interface {
	Stats(ctx context.Context) (models.CourseStats, error)
}

// ToolOutput is the structured result of a course tool.
type ToolOutput struct {
	Sources []models.Source `json:"sources"`
}

// Server exposes the course tools to MCP clients.
type Server struct {
	registry *tools.Registry
	catalog  Catalog
	server   *mcp.Server
}

func NewServer(registry *tools.Registry, catalog Catalog) *Server {
	s := &Server{
		registry: registry,
		catalog:  catalog,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "course-rag",
			Version: Version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        models.SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        models.OutlineToolName,
		Description: "Get the outline of a course: title, link, instructor and every lesson",
	}, s.handleOutline)

	s.server.AddResource(&mcp.Resource{
		URI:         catalogURI,
		Name:        "catalog",
		Description: "Titles of every indexed course",
		MIMEType:    "application/json",
	}, s.handleCatalog)
	return s
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input tools.SearchInput) (*mcp.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, models.SearchToolName, input)
}

func (s *Server) handleOutline(ctx context.Context, _ *mcp.CallToolRequest, input tools.OutlineInput) (*mcp.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, models.OutlineToolName, input)
}

// dispatch routes a typed call through the registry. Course misses and bad
// arguments are reported as tool errors; retrieval failures are protocol
// errors.
func (s *Server) dispatch(ctx context.Context, name string, input any) (*mcp.CallToolResult, ToolOutput, error) {
	args, err := json.Marshal(input)
	if err != nil {
		return nil, ToolOutput{}, fmt.Errorf("encoding %s arguments: %w", name, err)
	}

	result, err := s.registry.Scope().Dispatch(ctx, name, args)
	if errors.Is(err, models.ErrRetrieval) {
		return nil, ToolOutput{}, err
	}
	if err != nil {
		log.Debug().Err(err).Str("tool", name).Msg("MCP tool call failed")
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		}, ToolOutput{Sources: []models.Source{}}, nil
	}

	sources := result.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Text}},
	}, ToolOutput{Sources: sources}, nil
}

func (s *Server) handleCatalog(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
