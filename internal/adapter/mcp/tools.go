package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quillhq/quill/internal/domain/request"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.submitContentRequestTool(),
		s.getRequestStatusTool(),
		s.getContentTool(),
		s.listRequestsTool(),
	)
}

func (s *Server) submitContentRequestTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_content_request",
		mcplib.WithDescription("Submit a topic for content creation and receive a request ID to poll"),
		mcplib.WithString("topic",
			mcplib.Required(),
			mcplib.Description("The topic to research and write about"),
		),
		mcplib.WithString("content_type",
			mcplib.Description("One of blog_post, article, product_description, social_media, email (default blog_post)"),
		),
		mcplib.WithString("target_audience",
			mcplib.Description("Intended audience for the piece (default general)"),
		),
		mcplib.WithNumber("word_count",
			mcplib.Description("Requested word count (default 800)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSubmitContentRequest,
	}
}

func (s *Server) getRequestStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_request_status",
		mcplib.WithDescription("Get the pipeline status of a content request by ID"),
		mcplib.WithString("request_id",
			mcplib.Required(),
			mcplib.Description("The request ID to check"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRequestStatus,
	}
}

func (s *Server) getContentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_content",
		mcplib.WithDescription("Fetch the finished content piece for a completed request"),
		mcplib.WithString("request_id",
			mcplib.Required(),
			mcplib.Description("The request ID whose content to fetch"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetContent,
	}
}

func (s *Server) listRequestsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_requests",
		mcplib.WithDescription("List content requests, newest first"),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of requests to return (default 10)"),
		),
		mcplib.WithNumber("offset",
			mcplib.Description("Number of requests to skip (default 0)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRequests,
	}
}

func (s *Server) handleSubmitContentRequest(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipeline == nil {
		return mcplib.NewToolResultError("pipeline not configured"), nil
	}
	args := req.GetArguments()
	topic, ok := args["topic"].(string)
	if !ok || topic == "" {
		return mcplib.NewToolResultError("topic is required"), nil
	}

	in := request.CreateRequest{Topic: topic, WordCount: 800}
	if ct, ok := args["content_type"].(string); ok {
		in.ContentType = request.ContentType(ct)
	}
	if aud, ok := args["target_audience"].(string); ok {
		in.TargetAudience = aud
	}
	if wc, ok := args["word_count"].(float64); ok {
		in.WordCount = int(wc)
	}

	created, err := s.deps.Pipeline.Submit(ctx, in)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to submit content request", err), nil
	}
	data, err := json.Marshal(created)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal request", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetRequestStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipeline == nil {
		return mcplib.NewToolResultError("pipeline not configured"), nil
	}
	args := req.GetArguments()
	requestID, ok := args["request_id"].(string)
	if !ok || requestID == "" {
		return mcplib.NewToolResultError("request_id is required"), nil
	}
	r, err := s.deps.Pipeline.GetStatus(ctx, requestID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get request %s", requestID), err,
		), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal request", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetContent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipeline == nil {
		return mcplib.NewToolResultError("pipeline not configured"), nil
	}
	args := req.GetArguments()
	requestID, ok := args["request_id"].(string)
	if !ok || requestID == "" {
		return mcplib.NewToolResultError("request_id is required"), nil
	}
	piece, err := s.deps.Pipeline.GetContent(ctx, requestID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get content for request %s", requestID), err,
		), nil
	}
	data, err := json.Marshal(piece)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal content piece", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListRequests(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pipeline == nil {
		return mcplib.NewToolResultError("pipeline not configured"), nil
	}
	args := req.GetArguments()
	limit, offset := 10, 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}
	if o, ok := args["offset"].(float64); ok {
		offset = int(o)
	}

	items, total, err := s.deps.Pipeline.List(ctx, limit, offset)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list requests", err), nil
	}
	if items == nil {
		items = []request.Summary{}
	}
	page := struct {
		Total int               `json:"total"`
		Items []request.Summary `json:"items"`
	}{Total: total, Items: items}

	data, err := json.Marshal(page)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal requests", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
