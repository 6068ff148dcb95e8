package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/config"
	"github.com/bull/docshub/internal/indexer"
	"github.com/bull/docshub/internal/search"
	"github.com/bull/docshub/internal/storage"
)

// Store is the content store surface the tools read from.
type Store interface {
	HealthChecker
	GetRepository(ctx context.Context, canonical string) (*storage.Repository, error)
	ListRepositories(ctx context.Context, f storage.RepositoryFilter) ([]*storage.Repository, error)
	ListDocuments(ctx context.Context, canonical string, limit int) ([]*storage.Document, error)
	ListCategories(ctx context.Context) ([]storage.CategoryCount, error)
	GetStatistics(ctx context.Context) (*storage.Statistics, error)
	RebuildSearchIndex(ctx context.Context) (*storage.IndexReport, error)
	PopularSearches(ctx context.Context, since time.Time, limit int) ([]storage.SearchCount, error)
	ZeroResultSearches(ctx context.Context, since time.Time, limit int) ([]storage.SearchCount, error)
	SearchPerformance(ctx context.Context, since time.Time) (*storage.SearchPerformance, error)
}

// Searcher runs full-text searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Indexer runs indexing passes.
type Indexer interface {
	Run(ctx context.Context, opts indexer.RunOptions) (*indexer.RunSummary, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	store   Store
	engine  Searcher
	indexer Indexer
	logger  *slog.Logger
	budget  int
	now     func() time.Time
}

// Config holds server dependencies.
type Config struct {
	Store   Store
	Engine  Searcher
	Indexer Indexer
	Logger  *slog.Logger
	// ResponseBudget bounds list payloads in bytes. Zero uses the search
	// configuration default.
	ResponseBudget int
	Version        string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	budget := cfg.ResponseBudget
	if budget <= 0 {
		budget = config.Default().Search.ResponseBudget
	}

	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: "docshub", Version: version}, nil),
		store:   cfg.Store,
		engine:  cfg.Engine,
		indexer: cfg.Indexer,
		logger:  logger,
		budget:  budget,
		now:     time.Now,
	}

	addTool(s, &mcp.Tool{
		Name:        "index_repositories",
		Description: "Run an indexing pass. Modes: curated (configured list), discover (popular repositories above a star threshold), update (re-fetch indexed repositories), smart (curated and discover). Returns a run summary.",
	}, s.indexRepositories)

	addTool(s, &mcp.Tool{
		Name:        "search_docs",
		Description: "Full-text search over indexed documentation. Supports quoted phrases, AND/OR/NOT and prefix* terms, with optional star, category, source and language filters. Results are ranked by relevance, then repository quality and stars.",
	}, s.searchDocs)

	addTool(s, &mcp.Tool{
		Name:        "list_repositories",
		Description: "List indexed repositories with their source, stars, category and quality score, most starred first.",
	}, s.listRepositories)

	addTool(s, &mcp.Tool{
		Name:        "get_repository_docs",
		Description: "List the documents of one repository (owner/name) with quality scores, headings and outline, best first.",
	}, s.repositoryDocs)

	addTool(s, &mcp.Tool{
		Name:        "get_statistics",
		Description: "Get repository and document counts by source, category and language, index generation and database size.",
	}, s.statistics)

	addTool(s, &mcp.Tool{
		Name:        "list_categories",
		Description: "List repository categories with their repository counts.",
	}, s.categories)

	addTool(s, &mcp.Tool{
		Name:        "rebuild_search_index",
		Description: "Rebuild the full-text search index from stored documents and swap it live.",
	}, s.rebuildIndex)

	addTool(s, &mcp.Tool{
		Name:        "get_search_insights",
		Description: "Report the most frequent searches and the searches that returned nothing over a recent window.",
	}, s.searchInsights)

	return s
}

// addTool registers fn as a typed tool. Failures become an error result
// carrying {"error": {"kind", "message"}} instead of a protocol error.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fn func(context.Context, In) (Out, error)) {
	mcp.AddTool(s.server, tool, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		out, err := fn(ctx, in)
		if err != nil {
			s.logger.Warn("Tool call failed", "tool", tool.Name, "kind", apperr.KindOf(err), "error", err)
			return errorResult(err), nil, nil
		}
		return nil, out, nil
	})
}

func errorResult(err error) *mcp.CallToolResult {
	payload := struct {
		Error ToolError `json:"error"`
	}{ToolError{Kind: apperr.KindOf(err), Message: apperr.Message(err)}}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		data = []byte(`{"error":{"kind":"internal","message":"unencodable error"}}`)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
