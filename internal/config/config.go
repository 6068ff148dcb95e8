// Package config loads the immutable configuration snapshot used by the
// indexer, the search engine and the binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/quality"
)

// Config is the full configuration. It is a value: Clone before sharing
// slices across goroutines that might mutate them.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Quality   QualityConfig   `yaml:"quality"`
	Curated   []CuratedRepo   `yaml:"curated_repositories"`
}

// StorageConfig holds the SQLite settings.
type StorageConfig struct {
	Path string `yaml:"path"`
	// RebuildBatchSize is the number of documents copied per shadow-index batch.
	RebuildBatchSize int `yaml:"rebuild_batch_size"`
}

// DiscoveryConfig bounds popularity-based discovery.
type DiscoveryConfig struct {
	MinStars int `yaml:"min_stars"`
	Count    int `yaml:"count"`
}

// IndexerConfig tunes the indexing orchestrator.
type IndexerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	MaxFilesPerRepo   int           `yaml:"max_files_per_repo"`
	MaxFileBytes      int           `yaml:"max_file_bytes"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	IncludePatterns   []string      `yaml:"include_patterns"`
	SkipPatterns      []string      `yaml:"skip_patterns"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig controls backoff for retryable host errors.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"` // retries after the first attempt
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// SearchConfig bounds search responses.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxLimit       int `yaml:"max_limit"`
	SnippetRunes   int `yaml:"snippet_runes"`
	ResponseBudget int `yaml:"response_budget_bytes"`
}

// QualityConfig tunes the scorer.
type QualityConfig struct {
	Weights            *quality.Weights `yaml:"weights"`
	FreshnessThreshold time.Duration    `yaml:"freshness_threshold"`
	FreshnessDecay     time.Duration    `yaml:"freshness_decay"`
}

// CuratedRepo is one allow-list entry.
type CuratedRepo struct {
	Name                 string   `yaml:"name"`
	Category             string   `yaml:"category"`
	QualityScoreOverride *float64 `yaml:"quality_score_override"`
	Priority             string   `yaml:"priority"`
	DocPathPatterns      []string `yaml:"doc_path_patterns"`
	SkipPatterns         []string `yaml:"skip_patterns"`
}

// Attributes returns the curated metadata contributed by this entry.
func (c CuratedRepo) Attributes() dedup.Attributes {
	var a dedup.Attributes
	if c.Category != "" {
		a.Category = dedup.Ptr(c.Category)
	}
	if c.Priority != "" {
		a.Priority = dedup.Ptr(c.Priority)
	}
	if c.QualityScoreOverride != nil {
		a.ScoreOverride = dedup.Ptr(*c.QualityScoreOverride)
	}
	return a
}

// DefaultIncludePatterns select the documentation files of a repository.
// Entries ending in "/" match a directory anywhere in the path.
var DefaultIncludePatterns = []string{
	"readme*",
	"contributing*",
	"architecture*",
	"design*",
	"*guide*",
	"*tutorial*",
	"docs/",
	"doc/",
	"documentation/",
	"wiki/",
}

// DefaultSkipPatterns exclude vendored and generated trees.
var DefaultSkipPatterns = []string{
	"node_modules/",
	"vendor/",
	"third_party/",
	".github/",
	"changelog*",
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// Load reads a YAML configuration file, applies defaults and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "docshub.db"
	}
	if c.Storage.RebuildBatchSize <= 0 {
		c.Storage.RebuildBatchSize = 500
	}
	if c.Discovery.MinStars <= 0 {
		c.Discovery.MinStars = 3000
	}
	if c.Discovery.Count <= 0 {
		c.Discovery.Count = 30
	}
	if c.Indexer.Concurrency <= 0 {
		c.Indexer.Concurrency = 4
	}
	if c.Indexer.MaxFilesPerRepo <= 0 {
		c.Indexer.MaxFilesPerRepo = 20
	}
	if c.Indexer.MaxFileBytes <= 0 {
		c.Indexer.MaxFileBytes = 1 << 20
	}
	if c.Indexer.FetchTimeout <= 0 {
		c.Indexer.FetchTimeout = 30 * time.Second
	}
	if c.Indexer.IncludePatterns == nil {
		c.Indexer.IncludePatterns = slices.Clone(DefaultIncludePatterns)
	}
	if c.Indexer.SkipPatterns == nil {
		c.Indexer.SkipPatterns = slices.Clone(DefaultSkipPatterns)
	}
	if c.Indexer.Retry.MaxRetries <= 0 {
		c.Indexer.Retry.MaxRetries = 3
	}
	if c.Indexer.Retry.InitialInterval <= 0 {
		c.Indexer.Retry.InitialInterval = 500 * time.Millisecond
	}
	if c.Indexer.Retry.MaxInterval <= 0 {
		c.Indexer.Retry.MaxInterval = 30 * time.Second
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 20
	}
	if c.Search.SnippetRunes <= 0 {
		c.Search.SnippetRunes = 200
	}
	if c.Search.ResponseBudget <= 0 {
		c.Search.ResponseBudget = 32 * 1024
	}
	if c.Quality.FreshnessThreshold <= 0 {
		c.Quality.FreshnessThreshold = 90 * 24 * time.Hour
	}
	if c.Quality.FreshnessDecay <= 0 {
		c.Quality.FreshnessDecay = 365 * 24 * time.Hour
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Indexer.RequestsPerSecond < 0 {
		return fmt.Errorf("indexer.requests_per_second must be >= 0, got %v", c.Indexer.RequestsPerSecond)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Quality.Weights != nil {
		if err := c.Quality.Weights.Validate(); err != nil {
			return fmt.Errorf("quality.weights: %w", err)
		}
	}

	seen := make(map[string]int, len(c.Curated))
	for i, repo := range c.Curated {
		canonical, err := dedup.Canonicalize(repo.Name)
		if err != nil {
			return fmt.Errorf("curated_repositories[%d]: %w", i, err)
		}
		if prev, dup := seen[canonical]; dup {
			return fmt.Errorf("curated_repositories[%d]: %s duplicates entry %d", i, canonical, prev)
		}
		seen[canonical] = i
		if o := repo.QualityScoreOverride; o != nil && (*o < 0 || *o > quality.MaxScore) {
			return fmt.Errorf("curated_repositories[%d]: quality_score_override must be within [0, 10], got %v", i, *o)
		}
	}
	return nil
}

// ScorerOptions returns the quality scorer options for this configuration.
func (c *Config) ScorerOptions() quality.Options {
	opts := quality.DefaultOptions()
	if c.Quality.Weights != nil {
		opts.Weights = *c.Quality.Weights
	}
	opts.FreshnessThreshold = c.Quality.FreshnessThreshold
	opts.FreshnessDecay = c.Quality.FreshnessDecay
	return opts
}

// Clone returns a deep copy so the snapshot can be handed to long-lived
// components without sharing mutable slices.
func (c Config) Clone() Config {
	out := c
	out.Indexer.IncludePatterns = slices.Clone(c.Indexer.IncludePatterns)
	out.Indexer.SkipPatterns = slices.Clone(c.Indexer.SkipPatterns)
	if c.Quality.Weights != nil {
		w := *c.Quality.Weights
		out.Quality.Weights = &w
	}
	if c.Curated != nil {
		out.Curated = make([]CuratedRepo, len(c.Curated))
		for i, r := range c.Curated {
			r.DocPathPatterns = slices.Clone(r.DocPathPatterns)
			r.SkipPatterns = slices.Clone(r.SkipPatterns)
			if r.QualityScoreOverride != nil {
				v := *r.QualityScoreOverride
				r.QualityScoreOverride = &v
			}
			out.Curated[i] = r
		}
	}
	return out
}

// CuratedNames returns the canonical names of the curated entries.
// Entries are validated on load, so invalid names are skipped silently.
func (c *Config) CuratedNames() map[string]CuratedRepo {
	out := make(map[string]CuratedRepo, len(c.Curated))
	for _, r := range c.Curated {
		if canonical, err := dedup.Canonicalize(r.Name); err == nil {
			out[canonical] = r
		}
	}
	return out
}
