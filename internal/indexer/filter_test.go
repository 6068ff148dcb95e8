package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bull/docshub/internal/config"
)

func TestPathFilter_Defaults(t *testing.T) {
	f := newPathFilter(config.DefaultIncludePatterns, config.DefaultSkipPatterns)

	tests := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"readme", true},
		{"README.rst", true},
		{"CONTRIBUTING.md", true},
		{"docs/intro.md", true},
		{"website/docs/api/index.mdx", true},
		{"docs/tutorial.ipynb", true},
		{"Documentation/Guide.adoc", true},
		{"user-guide.md", true},
		{"docs/logo.png", false},
		{"main.go", false},
		{"notes.md", false},
		{"node_modules/pkg/README.md", false},
		{"vendor/lib/docs/a.md", false},
		{".github/CONTRIBUTING.md", false},
		{"CHANGELOG.md", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Match(tt.path), tt.path)
	}
}

func TestPathFilter_CustomPatterns(t *testing.T) {
	f := newPathFilter([]string{"site/content/*.md", "*.txt"}, []string{"site/content/draft-*"})

	assert.True(t, f.Match("site/content/intro.md"))
	assert.False(t, f.Match("site/content/nested/intro.md"))
	assert.False(t, f.Match("site/content/draft-post.md"))
	assert.True(t, f.Match("deep/notes.txt"))
	assert.False(t, f.Match("README.md"))
}

func TestSelectFiles_OrdersAndCaps(t *testing.T) {
	f := newPathFilter(config.DefaultIncludePatterns, nil)
	entries := []FileEntry{
		{Path: "docs/b/deep.md", Size: 10},
		{Path: "docs/a.md", Size: 10},
		{Path: "README.md", Size: 10},
		{Path: "docs/huge.md", Size: 5000},
		{Path: "main.go", Size: 10},
	}

	got, oversized := selectFiles(entries, f, 2, 1000)
	assert.Equal(t, 1, oversized)
	assert.Equal(t, []FileEntry{
		{Path: "README.md", Size: 10},
		{Path: "docs/a.md", Size: 10},
	}, got)

	all, _ := selectFiles(entries, f, 0, 0)
	assert.Len(t, all, 4)
}
