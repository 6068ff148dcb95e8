package storage

import (
	"time"

	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/quality"
)

// Repository is a canonical repository row with its effective metadata.
type Repository struct {
	ID          dedup.Key
	Name        string // canonical owner/name
	Source      dedup.Source
	Stars       int
	Language    string
	Description string
	Topics      []string
	Category    string
	Priority    string

	ScoreOverride *float64
	ComputedScore *float64
	// QualityScore is ScoreOverride when set, else ComputedScore.
	QualityScore *float64
	QualityGrade quality.Grade

	Stale       bool
	PushedAt    *time.Time
	LastIndexed *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Record holds the curated and discovered layers behind the effective values.
	Record dedup.Record
}

// RepositoryPatch is an optional-field update. Nil fields are left as stored.
type RepositoryPatch struct {
	// Observed is host-reported metadata merged into the discovered layer.
	Observed      dedup.Attributes
	PushedAt      *time.Time
	LastIndexed   *time.Time
	ComputedScore *float64
	Stale         *bool
}

// RepositoryFilter narrows ListRepositories. Zero values do not filter.
type RepositoryFilter struct {
	Source       dedup.Source
	Category     string
	Language     string
	MinStars     int
	IndexedOnly  bool
	ExcludeStale bool
	Limit        int
}

// CategoryCount is a category with its repository count.
type CategoryCount struct {
	Category string
	Count    int
}

// DocumentInput is a fully processed document ready to persist.
type DocumentInput struct {
	RepositoryID dedup.Key
	Path         string
	Format       extract.Format
	Content      string
	ContentHash  string
	PlainText    string
	SearchBody   string
	Headings     []extract.Heading
	CodeBlocks   []string
	Outline      []extract.OutlineItem
	Quality      quality.Result
}

// UpsertOutcome reports what UpsertDocument did.
type UpsertOutcome string

const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// Document is a stored document.
type Document struct {
	ID           int64
	RepositoryID dedup.Key
	Repository   string
	Path         string
	Format       extract.Format
	Content      string
	ContentHash  string
	PlainText    string
	Headings     []extract.Heading
	CodeBlocks   []string
	Outline      []extract.OutlineItem
	Metrics      quality.Metrics
	Score        float64
	Grade        quality.Grade
	IndexedAt    time.Time
	Dirty        bool
}

// IndexReport describes a completed search index rebuild.
type IndexReport struct {
	Generation int64
	Active     string
	Documents  int64
	Claimed    int64
	Duration   time.Duration
}

// SearchFilters are conjunctive SQL pre-filters.
type SearchFilters struct {
	MinStars int
	Category string
	Source   dedup.Source
	Language string
}

// SearchQuery is a compiled full-text query.
type SearchQuery struct {
	// Match is an FTS5 MATCH expression.
	Match   string
	Filters SearchFilters
	Limit   int
}

// SearchHit is one ranked document match.
type SearchHit struct {
	DocumentID   int64
	Repository   string
	Path         string
	Stars        int
	Source       dedup.Source
	Category     string
	Language     string
	QualityScore *float64
	DocScore     float64
	DocGrade     quality.Grade
	Rank         float64
	Snippet      string
}

// Statistics summarises the store.
type Statistics struct {
	Repositories    int64
	Documents       int64
	BySource        map[string]int64
	ByCategory      map[string]int64
	ByLanguage      map[string]int64
	DirtyDocuments  int64
	StaleRepos      int64
	IndexGeneration int64
	ActiveIndex     string
	LastRebuild     *time.Time
	DBSizeBytes     int64
}

// SearchCount is a logged query with how often it was run.
type SearchCount struct {
	Query      string
	Count      int64
	AvgResults float64
	LastSeen   time.Time
}

// SearchPerformance summarises logged searches over a window.
type SearchPerformance struct {
	Searches      int64
	AvgDurationMS float64
	MaxDurationMS int64
	AvgResults    float64
	// SuccessRate is the fraction of searches that returned results.
	SuccessRate float64
}
