package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/docshub/internal/config"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/metrics"
	"github.com/bull/docshub/internal/storage"
)

// Store is the part of the content store the engine reads from.
type Store interface {
	Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchHit, error)
	LogSearch(ctx context.Context, query string, results int, took time.Duration) error
}

// Filters narrow a search. Zero values do not filter.
type Filters struct {
	MinStars int
	Category string
	Source   string
	Language string
}

// Request is a search request.
type Request struct {
	Query   string
	Filters Filters
	Limit   int
}

// Result is one ranked document.
type Result struct {
	Repository   string   `json:"repository"`
	Path         string   `json:"path"`
	Snippet      string   `json:"snippet"`
	Score        float64  `json:"score"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	DocGrade     string   `json:"doc_grade,omitempty"`
	Stars        int      `json:"stars"`
	Source       string   `json:"source"`
	Category     string   `json:"category,omitempty"`
}

// Response is a bounded result set.
type Response struct {
	Query      string   `json:"query"`
	Expression string   `json:"expression"`
	Results    []Result `json:"results"`
	// Truncated is set when results were dropped to fit the response budget.
	Truncated bool `json:"truncated"`
}

// Options bounds the engine's responses.
type Options struct {
	DefaultLimit   int
	MaxLimit       int
	SnippetRunes   int
	ResponseBudget int
}

// OptionsFrom converts the search configuration.
func OptionsFrom(c config.SearchConfig) Options {
	return Options{
		DefaultLimit:   c.DefaultLimit,
		MaxLimit:       c.MaxLimit,
		SnippetRunes:   c.SnippetRunes,
		ResponseBudget: c.ResponseBudget,
	}
}

// Engine executes searches against the store.
type Engine struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger uses slog.Default().
func NewEngine(store Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := config.Default().Search
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = def.MaxLimit
	}
	if opts.SnippetRunes <= 0 {
		opts.SnippetRunes = def.SnippetRunes
	}
	if opts.ResponseBudget <= 0 {
		opts.ResponseBudget = def.ResponseBudget
	}
	return &Engine{store: store, opts: opts, logger: logger}
}

// Search compiles the query, applies filters and returns at most the
// requested number of results within the response budget. An empty query
// yields an empty response.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	filters, err := e.storeFilters(req.Filters)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	expr := Compile(req.Query)
	resp := &Response{Query: req.Query, Expression: expr, Results: []Result{}}
	if expr == "" {
		return resp, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	limit = min(limit, e.opts.MaxLimit)

	hits, err := e.store.Search(ctx, storage.SearchQuery{Match: expr, Filters: filters, Limit: limit})
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	used := 0
	for _, h := range hits {
		r := Result{
			Repository:   h.Repository,
			Path:         h.Path,
			Snippet:      truncateRunes(h.Snippet, e.opts.SnippetRunes),
			Score:        -h.Rank,
			QualityScore: h.QualityScore,
			DocGrade:     string(h.DocGrade),
			Stars:        h.Stars,
			Source:       string(h.Source),
			Category:     h.Category,
		}
		size := encodedSize(r)
		if used+size > e.opts.ResponseBudget && len(resp.Results) > 0 {
			resp.Truncated = true
			break
		}
		used += size
		resp.Results = append(resp.Results, r)
	}

	took := time.Since(start)
	metrics.SearchDuration.Observe(took.Seconds())
	if len(resp.Results) == 0 {
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.SearchesTotal.WithLabelValues("hit").Inc()
	}

	if err := e.store.LogSearch(ctx, req.Query, len(resp.Results), took); err != nil {
		e.logger.Warn("Failed to log search", "query", req.Query, "error", err)
	}
	e.logger.Debug("Search completed", "query", req.Query, "expression", expr, "results", len(resp.Results), "duration", took)
	return resp, nil
}

func (e *Engine) storeFilters(f Filters) (storage.SearchFilters, error) {
	out := storage.SearchFilters{
		MinStars: max(f.MinStars, 0),
		Category: strings.TrimSpace(f.Category),
		Language: strings.TrimSpace(f.Language),
	}
	if s := strings.TrimSpace(f.Source); s != "" {
		src, err := dedup.ParseSource(strings.ToLower(s))
		if err != nil {
			return storage.SearchFilters{}, err
		}
		out.Source = src
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func encodedSize(r Result) int {
	b, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	return len(b)
}
