package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
storage:
  path: /tmp/hub.db
discovery:
  min_stars: 5000
  count: 10
indexer:
  concurrency: 8
  requests_per_second: 2.5
  retry:
    max_retries: 5
    initial_interval: 2s
search:
  max_limit: 15
curated_repositories:
  - name: Alpha/Widget
    category: ml
    quality_score_override: 9.1
    priority: high
    doc_path_patterns: ["docs/", "README.md"]
  - name: beta/gadget
    category: web
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/hub.db", cfg.Storage.Path)
	assert.Equal(t, 5000, cfg.Discovery.MinStars)
	assert.Equal(t, 10, cfg.Discovery.Count)
	assert.Equal(t, 8, cfg.Indexer.Concurrency)
	assert.Equal(t, 2.5, cfg.Indexer.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Indexer.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Indexer.Retry.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.Indexer.Retry.MaxInterval, "default applies")
	assert.Equal(t, 15, cfg.Search.MaxLimit)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)

	require.Len(t, cfg.Curated, 2)
	attrs := cfg.Curated[0].Attributes()
	assert.Equal(t, "ml", *attrs.Category)
	assert.Equal(t, 9.1, *attrs.ScoreOverride)
	assert.Equal(t, "high", *attrs.Priority)
	assert.Nil(t, cfg.Curated[1].Attributes().ScoreOverride)

	names := cfg.CuratedNames()
	assert.Contains(t, names, "alpha/widget")
	assert.Contains(t, names, "beta/gadget")
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3000, cfg.Discovery.MinStars)
	assert.Equal(t, 30, cfg.Discovery.Count)
	assert.Equal(t, 20, cfg.Indexer.MaxFilesPerRepo)
	assert.Equal(t, DefaultIncludePatterns, cfg.Indexer.IncludePatterns)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"duplicate canonical names": `
curated_repositories:
  - name: Alpha/Widget
  - name: alpha/widget
`,
		"malformed name": `
curated_repositories:
  - name: widget
`,
		"override out of range": `
curated_repositories:
  - name: a/b
    quality_score_override: 11
`,
		"negative rate": `
indexer:
  requests_per_second: -1
`,
		"default above max": `
search:
  default_limit: 50
  max_limit: 20
`,
		"weights do not sum to one": `
quality:
  weights:
    completeness: 0.9
    freshness: 0.9
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docshub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Curated, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	clone := cfg.Clone()
	clone.Curated[0].DocPathPatterns[0] = "mutated/"
	*clone.Curated[0].QualityScoreOverride = 1
	clone.Indexer.IncludePatterns[0] = "mutated"

	assert.Equal(t, "docs/", cfg.Curated[0].DocPathPatterns[0])
	assert.Equal(t, 9.1, *cfg.Curated[0].QualityScoreOverride)
	assert.NotEqual(t, "mutated", cfg.Indexer.IncludePatterns[0])
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "docshub.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Indexer.FetchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Indexer.Retry.InitialInterval)
	assert.Equal(t, DefaultIncludePatterns, cfg.Indexer.IncludePatterns)
	names := cfg.CuratedNames()
	assert.Len(t, names, 3)
	assert.Equal(t, "Observability", names["prometheus/client_golang"].Category)
}
