// Package mcp exposes pipeline operations to AI agents over the Model
// Context Protocol. Tools are served over streamable HTTP and guarded by
// an optional bearer token.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/service"
)

// ContentAPI is the pipeline surface the MCP tools and resources call.
// *service.PipelineService satisfies it.
type ContentAPI interface {
	Submit(ctx context.Context, req request.CreateRequest) (*request.Request, error)
	GetStatus(ctx context.Context, id string) (*request.Request, error)
	GetContent(ctx context.Context, id string) (*content.Piece, error)
	List(ctx context.Context, limit, offset int) ([]request.Summary, int, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

// ServerConfig holds MCP server identity and auth settings.
type ServerConfig struct {
	Name    string
	Version string
	Token   string
}

// ServerDeps holds the collaborators the MCP server needs.
type ServerDeps struct {
	Pipeline ContentAPI
}

// Server wraps an MCP protocol server around the content pipeline.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP handler for mounting under the main
// router, wrapped with bearer auth when a token is configured.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.Token, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}
