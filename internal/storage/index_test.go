package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/dedup"
)

func hitPaths(hits []SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Repository + ":" + h.Path
	}
	return out
}

func TestRebuildAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := mustMerge(t, s, "a/b", dedup.SourceDiscovered, dedup.Attributes{Stars: dedup.Ptr(10)})

	mustUpsert(t, s, docInput(repo, "phrase.md", "We compute a moving average of prices.", "1"))
	mustUpsert(t, s, docInput(repo, "scattered.md", "The average value is moving slowly over time.", "2"))

	hits, err := s.Search(ctx, SearchQuery{Match: `"moving average"`, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits, "nothing is searchable before the first rebuild")

	report, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Generation)
	assert.EqualValues(t, 2, report.Documents)
	assert.EqualValues(t, 2, report.Claimed)
	assert.Equal(t, indexTableB, report.Active)
	assert.Equal(t, indexTableB, s.ActiveIndex())

	hits, err = s.Search(ctx, SearchQuery{Match: `"moving average"`, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "phrase.md", hits[0].Path)
	assert.Contains(t, hits[0].Snippet, "[")
	assert.Contains(t, hits[0].Snippet, "average")

	hits, err = s.Search(ctx, SearchQuery{Match: `"moving" AND "average"`, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	st, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.DirtyDocuments)
	assert.NotNil(t, st.LastRebuild)
}

func TestRebuildIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := mustMerge(t, s, "a/b", dedup.SourceDiscovered, dedup.Attributes{})
	for i := 0; i < 5; i++ {
		mustUpsert(t, s, docInput(repo, fmt.Sprintf("d%d.md", i), fmt.Sprintf("shared term doc%d", i), fmt.Sprint(i)))
	}

	_, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	first, err := s.Search(ctx, SearchQuery{Match: `"shared"`, Limit: 20})
	require.NoError(t, err)

	second, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, second.Claimed)
	assert.EqualValues(t, 5, second.Documents)
	again, err := s.Search(ctx, SearchQuery{Match: `"shared"`, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, hitPaths(first), hitPaths(again))
	assert.Len(t, again, 5)
}

func TestUpsertAfterRebuildStaysDirtyUntilNext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := mustMerge(t, s, "a/b", dedup.SourceDiscovered, dedup.Attributes{})
	mustUpsert(t, s, docInput(repo, "a.md", "alpha content", "1"))
	_, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)

	mustUpsert(t, s, docInput(repo, "a.md", "bravo content", "2"))

	hits, err := s.Search(ctx, SearchQuery{Match: `"bravo"`, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits, "readers see the live table only")

	st, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.DirtyDocuments)

	_, err = s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	hits, err = s.Search(ctx, SearchQuery{Match: `"bravo"`, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRebuildCancelledKeepsDirty(t *testing.T) {
	s := newTestStore(t)
	repo := mustMerge(t, s, "a/b", dedup.SourceDiscovered, dedup.Attributes{})
	mustUpsert(t, s, docInput(repo, "a.md", "alpha", "1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RebuildSearchIndex(ctx)
	require.Error(t, err)

	st, err := s.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.DirtyDocuments)
	assert.Zero(t, st.IndexGeneration)
}

func TestSearchOrderingAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := mustMerge(t, s, "z/low", dedup.SourceDiscovered, dedup.Attributes{Stars: dedup.Ptr(100), Category: dedup.Ptr("ml")})
	high := mustMerge(t, s, "a/high", dedup.SourceCurated, dedup.Attributes{Stars: dedup.Ptr(50), Category: dedup.Ptr("ml"), ScoreOverride: dedup.Ptr(9.0)})
	mid := mustMerge(t, s, "m/mid", dedup.SourceDiscovered, dedup.Attributes{Stars: dedup.Ptr(20000), Category: dedup.Ptr("web")})

	// Identical bodies give identical bm25 so tie-breakers decide.
	for _, k := range []dedup.Key{low, high, mid} {
		mustUpsert(t, s, docInput(k, "README.md", "kalman filter tutorial", "h"))
	}
	_, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)

	search := func(f SearchFilters) []string {
		hits, err := s.Search(ctx, SearchQuery{Match: `"kalman"`, Filters: f, Limit: 10})
		require.NoError(t, err)
		return hitPaths(hits)
	}

	assert.Equal(t, []string{"a/high:README.md", "m/mid:README.md", "z/low:README.md"}, search(SearchFilters{}))
	assert.Equal(t, []string{"m/mid:README.md", "z/low:README.md"}, search(SearchFilters{MinStars: 100}))
	assert.Equal(t, []string{"z/low:README.md"}, search(SearchFilters{MinStars: 100, Category: "ml"}))
	assert.Equal(t, []string{"a/high:README.md"}, search(SearchFilters{Source: dedup.SourceCurated}))
	assert.Empty(t, search(SearchFilters{Source: dedup.SourceBoth}))

	hits, err := s.Search(ctx, SearchQuery{Match: `"kalman"`, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.Search(ctx, SearchQuery{Match: "", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchMalformedMatchIsValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Search(context.Background(), SearchQuery{Match: `"unterminated`, Limit: 5})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
