// Package mcp exposes the assistant's tools over the Model Context
// Protocol so external MCP clients can search the knowledge base and read
// the traditional calendar.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hqlin/tcm-assistant/internal/agent/tools"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

// Version is the MCP server version.
const Version = "0.1.0"

type Server struct {
	retrieval *tools.RetrievalTool
	temporal  *tools.TemporalTool
	server    *mcp.Server
	logger    *logx.Logger
}

func NewServer(retrieval *tools.RetrievalTool, temporal *tools.TemporalTool) *Server {
	impl := &mcp.Implementation{
		Name:    "tcm-assistant",
		Version: Version,
	}

	s := &Server{
		retrieval: retrieval,
		temporal:  temporal,
		server:    mcp.NewServer(impl, nil),
		logger:    logx.NewLogger("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server running over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// SearchInput is the input schema for the document search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query, e.g. 熱、寒、咳嗽、頭痛穴道"`
}

// SearchOutput carries the matched passages joined as paragraphs.
type SearchOutput struct {
	Content string `json:"content"`
}

// TimeOutput carries the current temporal readout.
type TimeOutput struct {
	Content string `json:"content"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search for relevant documents in Chinese Traditional Medicine.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_time_and_season",
		Description: "Get current time information including traditional Chinese time, period and season. 獲取當前的節氣、時辰",
	}, s.handleTime)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return nil, SearchOutput{Content: s.retrieval.Invoke(ctx, input.Query)}, nil
}

func (s *Server) handleTime(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, TimeOutput, error) {
	return nil, TimeOutput{Content: s.temporal.Invoke(ctx, "")}, nil
}
