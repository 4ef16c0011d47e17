// Package mcp implements the Model Context Protocol server for Sheria.
//
// It exposes the query pipeline and model health as MCP tools so
// MCP-compatible agents can answer Kenyan-law questions with cited sources
// without going through the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sheria-ai/sheria/internal/model"
)

// QueryService answers questions. Implemented by query.Service.
type QueryService interface {
	Answer(ctx context.Context, req model.QueryRequest) (model.QueryResult, error)
}

// ModelAdmin exposes model health snapshots.
type ModelAdmin interface {
	Status() []model.ModelStatus
}

// Server wraps the MCP server with Sheria's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	querySvc  QueryService
	models    ModelAdmin
	logger    *slog.Logger
}

// New creates and configures an MCP server with all tools registered.
func New(querySvc QueryService, models ModelAdmin, version string, logger *slog.Logger) *Server {
	s := &Server{
		querySvc: querySvc,
		models:   models,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"sheria",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// legal_query — answer a question about Kenyan law with cited sources.
	s.mcpServer.AddTool(
		mcplib.NewTool("legal_query",
			mcplib.WithDescription("Answer a question about Kenyan law using retrieved legal sources with inline [n] citations"),
			mcplib.WithString("question", mcplib.Description("The legal question to answer"), mcplib.Required()),
			mcplib.WithString("extra_context", mcplib.Description("Additional case facts or context, never cited")),
			mcplib.WithNumber("max_tokens", mcplib.Description("Maximum answer tokens")),
			mcplib.WithBoolean("use_citations", mcplib.Description("Include inline [n] citations and a citation map (default true)")),
		),
		s.handleLegalQuery,
	)

	// model_status — health snapshot of the model chain.
	s.mcpServer.AddTool(
		mcplib.NewTool("model_status",
			mcplib.WithDescription("Report health, error rates, and latency percentiles for the configured model chain"),
		),
		s.handleModelStatus,
	)
}

func (s *Server) handleLegalQuery(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}

	req := model.QueryRequest{
		Question:     question,
		ExtraContext: request.GetString("extra_context", ""),
		MaxTokens:    request.GetInt("max_tokens", 0),
	}
	if useCitations := request.GetBool("use_citations", true); !useCitations {
		req.UseCitations = &useCitations
	}

	result, err := s.querySvc.Answer(ctx, req)
	if err != nil {
		s.logger.Warn("mcp legal_query failed", "error", err)
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(result, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleModelStatus(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	resultData, _ := json.MarshalIndent(map[string]any{
		"models": s.models.Status(),
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
