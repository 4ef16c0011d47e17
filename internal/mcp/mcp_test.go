package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/sheria-ai/sheria/internal/model"
)

type fakeQuerySvc struct {
	lastReq model.QueryRequest
	result  model.QueryResult
	err     error
}

func (f *fakeQuerySvc) Answer(_ context.Context, req model.QueryRequest) (model.QueryResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeModels struct {
	statuses []model.ModelStatus
}

func (f *fakeModels) Status() []model.ModelStatus { return f.statuses }

func newTestMCP(qs QueryService, ms ModelAdmin) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(qs, ms, "test", logger)
}

// queryRequest builds a CallToolRequest for legal_query with the given arguments.
func queryRequest(args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "legal_query",
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleLegalQuery(t *testing.T) {
	qs := &fakeQuerySvc{result: model.QueryResult{
		Success:   true,
		Answer:    "one month's written notice [1]",
		ModelUsed: "openai/gpt-4o-mini",
		CitationMap: model.CitationMap{
			1: "Employment Act 2007, Section 35",
		},
	}}
	srv := newTestMCP(qs, &fakeModels{})

	result, err := srv.handleLegalQuery(context.Background(), queryRequest(map[string]any{
		"question":   "What notice period applies to monthly contracts?",
		"max_tokens": float64(500),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "query should succeed: %s", parseToolText(t, result))

	var resp model.QueryResult
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "one month's written notice [1]", resp.Answer)
	assert.Equal(t, "Employment Act 2007, Section 35", resp.CitationMap[1])

	assert.Equal(t, "What notice period applies to monthly contracts?", qs.lastReq.Question)
	assert.Equal(t, 500, qs.lastReq.MaxTokens)
	assert.Nil(t, qs.lastReq.UseCitations, "default leaves citation mode to the service")
}

func TestHandleLegalQueryMissingQuestion(t *testing.T) {
	srv := newTestMCP(&fakeQuerySvc{}, &fakeModels{})

	result, err := srv.handleLegalQuery(context.Background(), queryRequest(map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError, "expected error when question is missing")
	assert.Contains(t, parseToolText(t, result), "question is required")
}

func TestHandleLegalQueryCitationsDisabled(t *testing.T) {
	qs := &fakeQuerySvc{result: model.QueryResult{Success: true, Answer: "plain answer"}}
	srv := newTestMCP(qs, &fakeModels{})

	result, err := srv.handleLegalQuery(context.Background(), queryRequest(map[string]any{
		"question":      "notice period?",
		"use_citations": false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.NotNil(t, qs.lastReq.UseCitations)
	assert.False(t, *qs.lastReq.UseCitations)
}

func TestHandleLegalQueryServiceError(t *testing.T) {
	qs := &fakeQuerySvc{err: errors.New("retrieval: qdrant unreachable")}
	srv := newTestMCP(qs, &fakeModels{})

	result, err := srv.handleLegalQuery(context.Background(), queryRequest(map[string]any{
		"question": "notice period?",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "query failed")
}

func TestHandleModelStatus(t *testing.T) {
	ms := &fakeModels{statuses: []model.ModelStatus{
		{ID: "openai/gpt-4o-mini", Priority: 0, Status: "HEALTHY"},
		{ID: "ollama/llama3", Priority: 1, Status: "FAILED"},
	}}
	srv := newTestMCP(&fakeQuerySvc{}, ms)

	result, err := srv.handleModelStatus(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "model_status"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Models []model.ModelStatus `json:"models"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "openai/gpt-4o-mini", resp.Models[0].ID)
	assert.Equal(t, "FAILED", resp.Models[1].Status)
}
