package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func richDocument() Document {
	para := "This library parses data. It is fast. Use it in services."
	return Document{
		Path:      "README.md",
		PlainText: strings.Join([]string{para, para, para}, "\n\n"),
		Headings: []Heading{
			{Level: 1, Text: "Widget"},
			{Level: 2, Text: "Installation"},
			{Level: 2, Text: "Usage"},
			{Level: 3, Text: "Examples"},
			{Level: 2, Text: "API Reference"},
		},
		CodeBlocks: []string{"go get example.com/widget", "widget.Run()"},
		Links:      []string{"#usage", "docs/guide.md", "./api.md", "../CONTRIBUTING.md", "/LICENSE", "https://example.com"},
		HasTOC:     true,
	}
}

func TestScoreRichDocument(t *testing.T) {
	s := Default()
	res := s.Score(richDocument(), RepoMetadata{
		Description: "A widget",
		Topics:      []string{"parsing"},
		LastUpdated: asOf.Add(-24 * time.Hour),
		AsOf:        asOf,
	})

	assert.InDelta(t, 1.0, res.Metrics.Completeness, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Freshness, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Structure, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Readability, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Examples, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Navigation, 1e-9)
	assert.InDelta(t, 1.0, res.Metrics.Metadata, 1e-9)
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, GradeAPlus, res.Grade)
}

func TestScoreEmptyDocument(t *testing.T) {
	res := Default().Score(Document{}, RepoMetadata{AsOf: asOf})
	assert.Equal(t, 0.5, res.Metrics.Freshness, "unknown push time is neutral")
	assert.Equal(t, 0.75, res.Score)
	assert.Equal(t, GradeF, res.Grade)
}

func TestScoreDeterministic(t *testing.T) {
	s := Default()
	meta := RepoMetadata{LastUpdated: asOf.AddDate(0, -8, 0), AsOf: asOf}
	first := s.Score(richDocument(), meta)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Score(richDocument(), meta))
	}
}

func TestFreshnessDecay(t *testing.T) {
	s := Default()
	day := 24 * time.Hour

	assert.Equal(t, 1.0, s.freshness(asOf.Add(-90*day), asOf))
	assert.InDelta(t, 0.5, s.freshness(asOf.Add(-(90+182)*day-12*time.Hour), asOf), 0.001)
	assert.Equal(t, 0.0, s.freshness(asOf.Add(-(90+365)*day), asOf))
	assert.Equal(t, 0.0, s.freshness(asOf.AddDate(-5, 0, 0), asOf))
	assert.Equal(t, 0.5, s.freshness(time.Time{}, asOf))
}

func TestStructureGaps(t *testing.T) {
	clean := []Heading{{1, "A"}, {2, "B"}, {3, "C"}, {2, "D"}}
	gappy := []Heading{{1, "A"}, {3, "B"}, {1, "C"}, {4, "D"}}

	assert.Equal(t, 1.0, structure(clean))
	assert.InDelta(t, 0.6+0.4/3, structure(gappy), 1e-9)
	assert.Equal(t, 0.0, structure(nil))
	assert.Equal(t, 0.8, structure([]Heading{{1, "Only"}}))
}

func TestReadabilityPenalties(t *testing.T) {
	short := "Short sentence here. Another one."
	assert.Equal(t, 1.0, readability(short))

	longSentence := strings.Repeat("word ", 40) + "."
	assert.Equal(t, 0.5, readability(longSentence))

	longParagraph := strings.Repeat("Tiny words here. ", 60)
	assert.Equal(t, 0.5, readability(longParagraph))

	assert.Equal(t, 0.0, readability("   "))
}

func TestExamplesDensity(t *testing.T) {
	assert.Equal(t, 0.0, examples("some text", nil))
	assert.Equal(t, 1.0, examples("short", []string{"x"}))
	long := strings.Repeat("word ", 2000)
	assert.Equal(t, 0.25, examples(long, []string{"x"}))
}

func TestNewScorerValidatesWeights(t *testing.T) {
	opts := DefaultOptions()
	opts.Weights.Metadata = 0.5
	_, err := NewScorer(opts)
	require.Error(t, err)

	opts = DefaultOptions()
	opts.Weights.Examples = -0.15
	opts.Weights.Completeness = 0.50
	_, err = NewScorer(opts)
	require.Error(t, err)

	s, err := NewScorer(DefaultOptions())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestAggregate(t *testing.T) {
	_, ok := Aggregate(nil)
	assert.False(t, ok)

	mean, ok := Aggregate([]float64{8, 9, 7.5})
	assert.True(t, ok)
	assert.Equal(t, 8.17, mean)

	mean, _ = Aggregate([]float64{12, -1})
	assert.Equal(t, 5.0, mean)
}
