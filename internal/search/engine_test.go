package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/storage"
)

type fakeStore struct {
	hits    []storage.SearchHit
	err     error
	queries []storage.SearchQuery
	logged  []string
}

func (f *fakeStore) Search(_ context.Context, q storage.SearchQuery) ([]storage.SearchHit, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > q.Limit {
		return f.hits[:q.Limit], nil
	}
	return f.hits, nil
}

func (f *fakeStore) LogSearch(_ context.Context, query string, _ int, _ time.Duration) error {
	f.logged = append(f.logged, query)
	return nil
}

func manyHits(n int, snippet string) []storage.SearchHit {
	hits := make([]storage.SearchHit, n)
	for i := range hits {
		hits[i] = storage.SearchHit{Repository: "a/b", Path: "doc.md", Snippet: snippet, Rank: -float64(n - i)}
	}
	return hits
}

func TestEngineLimits(t *testing.T) {
	store := &fakeStore{hits: manyHits(50, "s")}
	e := NewEngine(store, Options{DefaultLimit: 10, MaxLimit: 20}, nil)

	resp, err := e.Search(context.Background(), Request{Query: "foo"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 10)
	assert.Equal(t, `"foo"`, resp.Expression)

	resp, err = e.Search(context.Background(), Request{Query: "foo", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 20)
	assert.Equal(t, 20, store.queries[1].Limit)
	assert.False(t, resp.Truncated)
	assert.Equal(t, []string{"foo", "foo"}, store.logged)
}

func TestEngineEmptyQuery(t *testing.T) {
	store := &fakeStore{hits: manyHits(3, "s")}
	e := NewEngine(store, Options{}, nil)

	resp, err := e.Search(context.Background(), Request{Query: "  ()  "})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, store.queries, "store is not consulted")

	resp, err = e.Search(context.Background(), Request{Query: "NOT deprecated"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Expression)
	assert.Empty(t, store.queries, "a lone negation matches nothing")
}

func TestEngineSnippetAndBudget(t *testing.T) {
	long := strings.Repeat("é", 500)
	store := &fakeStore{hits: manyHits(20, long)}
	e := NewEngine(store, Options{SnippetRunes: 50, ResponseBudget: 600, MaxLimit: 20}, nil)

	resp, err := e.Search(context.Background(), Request{Query: "x", Limit: 20})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, 50, len([]rune(resp.Results[0].Snippet)))
	assert.True(t, strings.HasSuffix(resp.Results[0].Snippet, "…"))
	assert.True(t, resp.Truncated)
	assert.Less(t, len(resp.Results), 20)
}

func TestEngineFilterValidation(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(store, Options{}, nil)

	_, err := e.Search(context.Background(), Request{Query: "x", Filters: Filters{Source: "popular"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.Search(context.Background(), Request{Query: "x", Filters: Filters{Source: "Curated", MinStars: -5, Category: " ml "}})
	require.NoError(t, err)
	require.Len(t, store.queries, 1)
	assert.Equal(t, storage.SearchFilters{Source: dedup.SourceCurated, Category: "ml"}, store.queries[0].Filters)
}

func TestEngineStoreError(t *testing.T) {
	store := &fakeStore{err: apperr.E(apperr.KindStoreUnavailable, "search", errors.New("disk"))}
	e := NewEngine(store, Options{}, nil)

	_, err := e.Search(context.Background(), Request{Query: "x"})
	assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))
}

func TestEngineAgainstStore(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(ctx, filepath.Join(t.TempDir(), "search.db"), storage.Options{})
	require.NoError(t, err)
	defer st.Close()

	repo, err := st.MergeRepository(ctx, "quant/lib", dedup.SourceDiscovered, dedup.Attributes{Stars: dedup.Ptr(4000)})
	require.NoError(t, err)
	for path, body := range map[string]string{
		"exact.md":     "Indicators: the moving average smooths noisy prices.",
		"scattered.md": "An average trader keeps moving between markets.",
	} {
		_, err := st.UpsertDocument(ctx, storage.DocumentInput{
			RepositoryID: repo, Path: path, Format: extract.FormatMarkdown,
			Content: body, ContentHash: path, PlainText: body, SearchBody: body,
		})
		require.NoError(t, err)
	}
	_, err = st.RebuildSearchIndex(ctx)
	require.NoError(t, err)

	e := NewEngine(st, Options{}, nil)
	resp, err := e.Search(ctx, Request{Query: `"moving average"`})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "exact.md", resp.Results[0].Path)

	resp, err = e.Search(ctx, Request{Query: "moving average"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = e.Search(ctx, Request{Query: "mov*", Filters: Filters{MinStars: 5000}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	popular, err := st.PopularSearches(ctx, time.Now().Add(-time.Minute), 5)
	require.NoError(t, err)
	assert.NotEmpty(t, popular)
}
