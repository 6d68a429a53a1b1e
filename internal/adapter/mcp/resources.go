package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"quill://requests",
			"Content Requests",
			mcplib.WithResourceDescription("Recent content requests, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRequestsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"quill://stats",
			"Pipeline Statistics",
			mcplib.WithResourceDescription("Aggregate request counts and success rate"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)
}

func (s *Server) handleRequestsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Pipeline == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"pipeline not configured"}`,
			},
		}, nil
	}
	items, _, err := s.deps.Pipeline.List(ctx, 50, 0)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleStatsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Pipeline == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"pipeline not configured"}`,
			},
		}, nil
	}
	stats, err := s.deps.Pipeline.Stats(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
