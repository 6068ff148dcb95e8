// Package mcp exposes the documentation store as MCP tools and serves them
// over stdio or Streamable HTTP.
package mcp

import (
	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/indexer"
	"github.com/bull/docshub/internal/quality"
	"github.com/bull/docshub/internal/search"
)

// ToolError is the structured error every tool returns on failure.
type ToolError struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// IndexInput defines the input parameters for the index_repositories tool.
type IndexInput struct {
	Mode     string `json:"mode,omitempty" jsonschema:"Run mode: curated, discover, update or smart (default smart)"`
	MinStars int    `json:"min_stars,omitempty" jsonschema:"Minimum stars for discovered repositories (default from configuration)"`
	Count    int    `json:"count,omitempty" jsonschema:"Number of repositories to discover (default from configuration)"`
}

// IndexOutput summarises an indexing run.
type IndexOutput struct {
	RunID              string            `json:"run_id"`
	Mode               string            `json:"mode"`
	StartedAt          string            `json:"started_at"`
	DurationMS         int64             `json:"duration_ms"`
	Candidates         int               `json:"candidates"`
	Repositories       int               `json:"repositories"`
	RepositoriesFailed int               `json:"repositories_failed"`
	Decurated          int               `json:"decurated"`
	Succeeded          int               `json:"succeeded"`
	Unchanged          int               `json:"unchanged"`
	Skipped            int               `json:"skipped"`
	Failed             int               `json:"failed"`
	Retries            int               `json:"retries"`
	Rebuilt            bool              `json:"rebuilt"`
	IndexGeneration    int64             `json:"index_generation,omitempty"`
	Failures           []indexer.Failure `json:"failures,omitempty"`
	FailuresOmitted    int               `json:"failures_omitted,omitempty"`
}

// SearchInput defines the input parameters for the search_docs tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"Full-text query. Supports quoted phrases, AND/OR/NOT and prefix* terms"`
	MinStars int    `json:"min_stars,omitempty" jsonschema:"Only repositories with at least this many stars"`
	Category string `json:"category,omitempty" jsonschema:"Only repositories in this category"`
	Source   string `json:"source,omitempty" jsonschema:"Only curated, discovered or both"`
	Language string `json:"language,omitempty" jsonschema:"Only repositories with this primary language"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

// SearchOutput contains the search results.
type SearchOutput struct {
	search.Response
	// Message explains an empty result set.
	Message string `json:"message,omitempty"`
}

// ListRepositoriesInput defines the input parameters for list_repositories.
type ListRepositoriesInput struct {
	Source   string `json:"source,omitempty" jsonschema:"Only curated, discovered or both"`
	Category string `json:"category,omitempty" jsonschema:"Only repositories in this category"`
	Language string `json:"language,omitempty" jsonschema:"Only repositories with this primary language"`
	MinStars int    `json:"min_stars,omitempty" jsonschema:"Only repositories with at least this many stars"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of repositories (default 50)"`
}

// RepositoryInfo describes one repository.
type RepositoryInfo struct {
	Name         string        `json:"name"`
	Source       string        `json:"source"`
	Stars        int           `json:"stars"`
	Language     string        `json:"language,omitempty"`
	Description  string        `json:"description,omitempty"`
	Topics       []string      `json:"topics,omitempty"`
	Category     string        `json:"category,omitempty"`
	Priority     string        `json:"priority,omitempty"`
	QualityScore *float64      `json:"quality_score,omitempty"`
	QualityGrade quality.Grade `json:"quality_grade,omitempty"`
	Stale        bool          `json:"stale,omitempty"`
	PushedAt     string        `json:"pushed_at,omitempty"`
	LastIndexed  string        `json:"last_indexed,omitempty"`
}

// ListRepositoriesOutput lists repositories.
type ListRepositoriesOutput struct {
	Repositories []RepositoryInfo `json:"repositories"`
	Count        int              `json:"count"`
	Truncated    bool             `json:"truncated"`
}

// RepositoryDocsInput defines the input parameters for get_repository_docs.
type RepositoryDocsInput struct {
	Repository     string `json:"repository" jsonschema:"Repository name as owner/name"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum number of documents (default 50)"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"Include raw document content, subject to the response size limit"`
}

// DocumentInfo describes one stored document.
type DocumentInfo struct {
	Path      string                `json:"path"`
	Format    extract.Format        `json:"format"`
	Score     float64               `json:"score"`
	Grade     quality.Grade         `json:"grade"`
	Metrics   quality.Metrics       `json:"metrics"`
	Headings  []string              `json:"headings,omitempty"`
	Outline   []extract.OutlineItem `json:"outline,omitempty"`
	IndexedAt string                `json:"indexed_at"`
	Content   string                `json:"content,omitempty"`
}

// RepositoryDocsOutput lists the documents of a repository.
type RepositoryDocsOutput struct {
	Repository RepositoryInfo `json:"repository"`
	Documents  []DocumentInfo `json:"documents"`
	Count      int            `json:"count"`
	Truncated  bool           `json:"truncated"`
}

// StatisticsInput takes no parameters.
type StatisticsInput struct{}

// StatisticsOutput summarises the store.
type StatisticsOutput struct {
	Repositories      int64            `json:"repositories"`
	Documents         int64            `json:"documents"`
	BySource          map[string]int64 `json:"by_source"`
	ByCategory        map[string]int64 `json:"by_category"`
	ByLanguage        map[string]int64 `json:"by_language"`
	DirtyDocuments    int64            `json:"dirty_documents"`
	StaleRepositories int64            `json:"stale_repositories"`
	IndexGeneration   int64            `json:"index_generation"`
	ActiveIndex       string           `json:"active_index"`
	LastRebuild       string           `json:"last_rebuild,omitempty"`
	DBSizeBytes       int64            `json:"db_size_bytes"`
}

// CategoriesInput takes no parameters.
type CategoriesInput struct{}

// CategoryInfo is a category with its repository count.
type CategoryInfo struct {
	Name         string `json:"name"`
	Repositories int    `json:"repositories"`
}

// CategoriesOutput lists categories.
type CategoriesOutput struct {
	Categories []CategoryInfo `json:"categories"`
}

// RebuildInput takes no parameters.
type RebuildInput struct{}

// RebuildOutput reports a search index rebuild.
type RebuildOutput struct {
	Generation int64  `json:"generation"`
	Active     string `json:"active"`
	Documents  int64  `json:"documents"`
	Claimed    int64  `json:"claimed"`
	DurationMS int64  `json:"duration_ms"`
}

// InsightsInput defines the input parameters for get_search_insights.
type InsightsInput struct {
	Days  int `json:"days,omitempty" jsonschema:"Look-back window in days (default 7)"`
	Limit int `json:"limit,omitempty" jsonschema:"Maximum queries per list (default 10)"`
}

// QueryInfo is a logged query with its frequency.
type QueryInfo struct {
	Query      string  `json:"query"`
	Count      int64   `json:"count"`
	AvgResults float64 `json:"avg_results"`
	LastSeen   string  `json:"last_seen"`
}

// PerformanceInfo summarises search timing and hit rate.
type PerformanceInfo struct {
	Searches      int64   `json:"searches"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS int64   `json:"max_duration_ms"`
	AvgResults    float64 `json:"avg_results"`
	SuccessRate   float64 `json:"success_rate"`
}

// InsightsOutput reports search analytics.
type InsightsOutput struct {
	Days        int             `json:"days"`
	Performance PerformanceInfo `json:"performance"`
	Popular     []QueryInfo     `json:"popular"`
	ZeroResults []QueryInfo     `json:"zero_results"`
}
