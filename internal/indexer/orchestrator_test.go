package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/config"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/quality"
	"github.com/bull/docshub/internal/storage"
)

const widgetReadme = "# Widget\n\n## Installation\n\nRun `go get`.\n\n## Usage\n\n```go\nwidget.New()\n```\n"

// fakeHost serves repositories from memory. Errors queued in fileErrs are
// returned, one per call, before the file content.
type fakeHost struct {
	mu       sync.Mutex
	repos    map[string]*Metadata
	files    map[string]map[string]string
	popular  []Candidate
	metaErr  map[string]error
	fileErrs map[string][]error

	// block, when set, stalls FetchMetadata until closed.
	block chan struct{}

	// fetchDelay stalls FetchFile; peak records the most concurrent calls.
	fetchDelay time.Duration
	inFlight   atomic.Int64
	peak       atomic.Int64
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		repos:    make(map[string]*Metadata),
		files:    make(map[string]map[string]string),
		metaErr:  make(map[string]error),
		fileErrs: make(map[string][]error),
	}
}

func (h *fakeHost) addRepo(name string, stars int, files map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repos[name] = &Metadata{
		Name:        name,
		Stars:       stars,
		Language:    "Go",
		Description: "A test repository",
		PushedAt:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	h.files[name] = files
}

func (h *fakeHost) setFile(repo, path, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[repo][path] = content
}

func (h *fakeHost) FetchMetadata(ctx context.Context, name string) (*Metadata, error) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.metaErr[name]; err != nil {
		return nil, err
	}
	m, ok := h.repos[name]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "%s not found", name)
	}
	out := *m
	return &out, nil
}

func (h *fakeHost) ListFiles(_ context.Context, name, _ string) ([]FileEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []FileEntry
	for p, c := range h.files[name] {
		out = append(out, FileEntry{Path: p, Size: len(c)})
	}
	return out, nil
}

func (h *fakeHost) FetchFile(_ context.Context, name, path string) ([]byte, error) {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if h.fetchDelay > 0 {
		time.Sleep(h.fetchDelay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := name + "/" + path
	if errs := h.fileErrs[key]; len(errs) > 0 {
		h.fileErrs[key] = errs[1:]
		return nil, errs[0]
	}
	c, ok := h.files[name][path]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "%s not found", key)
	}
	return []byte(c), nil
}

func (h *fakeHost) SearchPopular(_ context.Context, minStars, count int) ([]Candidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Candidate
	for _, c := range h.popular {
		if c.Stars >= minStars && len(out) < count {
			out = append(out, c)
		}
	}
	return out, nil
}

// countingScorer counts Score invocations.
type countingScorer struct {
	calls atomic.Int64
	inner *quality.Scorer
}

func (s *countingScorer) Score(doc quality.Document, meta quality.RepoMetadata) quality.Result {
	s.calls.Add(1)
	return s.inner.Score(doc, meta)
}

func testConfig(curated ...config.CuratedRepo) config.Config {
	cfg := config.Default()
	cfg.Indexer.Retry.InitialInterval = time.Millisecond
	cfg.Indexer.Retry.MaxInterval = 2 * time.Millisecond
	cfg.Indexer.FetchTimeout = 5 * time.Second
	cfg.Curated = curated
	return cfg
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "docshub.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fixture struct {
	store  *storage.Store
	host   *fakeHost
	scorer *countingScorer
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		store:  newTestStore(t),
		host:   newFakeHost(),
		scorer: &countingScorer{inner: quality.Default()},
	}
}

func (f *fixture) orchestrator(cfg config.Config) *Orchestrator {
	return New(cfg, f.store, f.host, extract.New(), f.scorer, nil)
}

func TestRun_SmartMergesCuratedAndDiscovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	override := 9.0
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget", Category: "Tools", QualityScoreOverride: &override})
	f.host.addRepo("alpha/widget", 12000, map[string]string{"README.md": widgetReadme})
	f.host.popular = []Candidate{{Name: "Alpha/Widget", Stars: 12000, Language: "Go"}}

	summary, err := f.orchestrator(cfg).Run(ctx, RunOptions{Mode: ModeSmart, MinStars: 1000})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, 1, summary.Repositories)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, summary.Rebuilt)
	assert.NotEmpty(t, summary.RunID)

	repos, err := f.store.ListRepositories(ctx, storage.RepositoryFilter{})
	require.NoError(t, err)
	require.Len(t, repos, 1)

	repo := repos[0]
	assert.Equal(t, "alpha/widget", repo.Name)
	assert.Equal(t, dedup.SourceBoth, repo.Source)
	assert.Equal(t, "Tools", repo.Category)
	require.NotNil(t, repo.QualityScore)
	assert.Equal(t, 9.0, *repo.QualityScore)
	assert.Equal(t, 12000, repo.Stars)
	assert.NotNil(t, repo.LastIndexed)
	assert.NotNil(t, repo.ComputedScore)
}

func TestRun_UnchangedContentIsNotRescored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"docs/readme.md": widgetReadme})
	o := f.orchestrator(cfg)

	first, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, int64(1), f.scorer.calls.Load())

	second, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 1, second.Unchanged)
	assert.False(t, second.Rebuilt)
	assert.Equal(t, int64(1), f.scorer.calls.Load(), "unchanged content must not be rescored")

	f.host.setFile("alpha/widget", "docs/readme.md", widgetReadme+"\nMore text.\n")
	third, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Succeeded)
	assert.True(t, third.Rebuilt)
	assert.Equal(t, int64(2), f.scorer.calls.Load())
}

func TestRun_RetriesRateLimitedFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"docs/x.md": widgetReadme})
	limited := apperr.Errorf(apperr.KindRateLimited, "secondary rate limit")
	f.host.fileErrs["alpha/widget/docs/x.md"] = []error{limited, limited, limited}

	summary, err := f.orchestrator(cfg).Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Retries)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Failures)
}

func TestRun_ContainsFileFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	cfg.Indexer.Retry.MaxRetries = 1
	f.host.addRepo("alpha/widget", 500, map[string]string{
		"README.md":     widgetReadme,
		"docs/flaky.md": widgetReadme,
		"docs/gone.md":  widgetReadme,
	})
	flaky := apperr.Errorf(apperr.KindTransient, "connection reset")
	f.host.fileErrs["alpha/widget/docs/flaky.md"] = []error{flaky, flaky, flaky}
	f.host.fileErrs["alpha/widget/docs/gone.md"] = []error{apperr.Errorf(apperr.KindNotFound, "gone")}

	summary, err := f.orchestrator(cfg).Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Retries)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "docs/flaky.md", summary.Failures[0].Path)
	assert.Equal(t, apperr.KindTransient, summary.Failures[0].Kind)
}

func TestRun_SkipsMissingAndMalformedCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(
		config.CuratedRepo{Name: "alpha/widget"},
		config.CuratedRepo{Name: "ghost/repo"},
	)
	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	f.host.popular = []Candidate{{Name: "not-a-repo", Stars: 50000}}

	summary, err := f.orchestrator(cfg).Run(ctx, RunOptions{Mode: ModeSmart})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repositories)
	assert.Equal(t, 2, summary.RepositoriesFailed)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRun_AuthErrorAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	f.host.metaErr["alpha/widget"] = apperr.Errorf(apperr.KindAuth, "bad credentials")

	o := f.orchestrator(cfg)
	var seen []State
	o.OnStateChange(func(_, to State) { seen = append(seen, to) })

	summary, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	require.NotNil(t, summary)
	assert.True(t, summary.Aborted)
	assert.Contains(t, seen, StateAborted)
	assert.Equal(t, StateIdle, o.State())
}

// outageStore fails document writes for one repository with a store outage.
type outageStore struct {
	*storage.Store
	failing string
}

func (s *outageStore) UpsertDocument(ctx context.Context, in storage.DocumentInput) (storage.UpsertOutcome, error) {
	if repo, err := s.GetRepository(ctx, s.failing); err == nil && repo.ID == in.RepositoryID {
		return "", apperr.E(apperr.KindStoreUnavailable, "upsert_document", errors.New("disk I/O error"))
	}
	return s.Store.UpsertDocument(ctx, in)
}

func TestRun_StoreOutageAbortsAndKeepsCommittedWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig(
		config.CuratedRepo{Name: "alpha/widget"},
		config.CuratedRepo{Name: "beta/gadget"},
		config.CuratedRepo{Name: "gamma/gizmo"},
	)
	cfg.Indexer.Concurrency = 1
	for _, name := range []string{"alpha/widget", "beta/gadget", "gamma/gizmo"} {
		f.host.addRepo(name, 500, map[string]string{"README.md": widgetReadme})
	}

	o := New(cfg, &outageStore{Store: f.store, failing: "beta/gadget"}, f.host, extract.New(), f.scorer, nil)
	summary, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.Error(t, err)
	assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))
	require.NotNil(t, summary)
	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, StateIdle, o.State())

	alpha, err := f.store.ListDocuments(ctx, "alpha/widget", 10)
	require.NoError(t, err)
	assert.Len(t, alpha, 1, "documents committed before the outage are kept")

	gamma, err := f.store.ListDocuments(ctx, "gamma/gizmo", 10)
	require.NoError(t, err)
	assert.Empty(t, gamma)
}

func TestRun_FetchesRepositoriesInParallel(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.Indexer.Concurrency = 4
	f.host.fetchDelay = 50 * time.Millisecond

	for i := range 4 {
		name := fmt.Sprintf("owner%d/repo", i)
		f.host.addRepo(name, 5000, map[string]string{"README.md": widgetReadme})
		f.host.popular = append(f.host.popular, Candidate{Name: name, Stars: 5000})
	}

	summary, err := f.orchestrator(cfg).Run(context.Background(), RunOptions{Mode: ModeDiscover, MinStars: 1000})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Repositories)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Greater(t, f.host.peak.Load(), int64(1), "files of different repositories should be fetched concurrently")
	assert.LessOrEqual(t, f.host.peak.Load(), int64(4))
}

func TestRun_BoundsFileFetchesAcrossRepositories(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"}, config.CuratedRepo{Name: "beta/gadget"})
	cfg.Indexer.Concurrency = 2
	f.host.fetchDelay = 10 * time.Millisecond

	for _, name := range []string{"alpha/widget", "beta/gadget"} {
		files := map[string]string{"README.md": widgetReadme}
		for i := range 5 {
			files[fmt.Sprintf("docs/page%d.md", i)] = fmt.Sprintf("# Page %d\n\nText.\n", i)
		}
		f.host.addRepo(name, 500, files)
	}

	summary, err := f.orchestrator(cfg).Run(context.Background(), RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Succeeded)
	assert.LessOrEqual(t, f.host.peak.Load(), int64(2))
}

func TestRun_StateTransitions(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})

	o := f.orchestrator(cfg)
	var seen []State
	o.OnStateChange(func(_, to State) { seen = append(seen, to) })

	_, err := o.Run(context.Background(), RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateEnumerating,
		StateFetching,
		StateScoring,
		StatePersisting,
		StateRebuilding,
		StateIdle,
	}, seen)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	f.host.block = make(chan struct{})

	o := f.orchestrator(cfg)
	fetching := make(chan struct{})
	var once sync.Once
	o.OnStateChange(func(_, to State) {
		if to == StateFetching {
			once.Do(func() { close(fetching) })
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), RunOptions{Mode: ModeCurated})
		done <- err
	}()
	<-fetching

	_, err := o.Run(context.Background(), RunOptions{Mode: ModeCurated})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))

	close(f.host.block)
	require.NoError(t, <-done)
}

func TestRun_CancelledBetweenCandidates(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"}, config.CuratedRepo{Name: "beta/gadget"})
	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	f.host.addRepo("beta/gadget", 400, map[string]string{"README.md": widgetReadme})

	o := f.orchestrator(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OnStateChange(func(_, to State) {
		if to == StateFetching {
			cancel()
		}
	})

	summary, err := o.Run(ctx, RunOptions{Mode: ModeCurated})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Aborted)
	assert.Equal(t, StateIdle, o.State())
}

func TestRun_DecuratesRemovedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	f.host.addRepo("beta/gadget", 9000, map[string]string{"README.md": widgetReadme})
	f.host.popular = []Candidate{{Name: "beta/gadget", Stars: 9000}}

	first := testConfig(
		config.CuratedRepo{Name: "alpha/widget", Category: "Tools"},
		config.CuratedRepo{Name: "beta/gadget", Category: "Libraries"},
	)
	_, err := f.orchestrator(first).Run(ctx, RunOptions{Mode: ModeSmart, MinStars: 5000})
	require.NoError(t, err)

	summary, err := f.orchestrator(testConfig()).Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Decurated)

	alpha, err := f.store.GetRepository(ctx, "alpha/widget")
	require.NoError(t, err)
	assert.True(t, alpha.Stale)
	assert.Equal(t, dedup.SourceCurated, alpha.Source, "a curated-only record keeps its last tag")
	assert.Empty(t, alpha.Category)

	beta, err := f.store.GetRepository(ctx, "beta/gadget")
	require.NoError(t, err)
	assert.Equal(t, dedup.SourceDiscovered, beta.Source)
	assert.False(t, beta.Stale)
	assert.Empty(t, beta.Category)
}

func TestRun_UpdateModeRefetchesIndexedRepositories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.host.addRepo("alpha/widget", 500, map[string]string{"README.md": widgetReadme})
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	_, err := f.orchestrator(cfg).Run(ctx, RunOptions{Mode: ModeCurated})
	require.NoError(t, err)

	f.host.setFile("alpha/widget", "docs/guide.md", "# Guide\n\nNew material.\n")
	summary, err := f.orchestrator(testConfig()).Run(ctx, RunOptions{Mode: ModeUpdate})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, 0, summary.Decurated, "update runs leave curation alone")

	docs, err := f.store.ListDocuments(ctx, "alpha/widget", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestRun_ValidatesOptions(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(testConfig())

	_, err := o.Run(context.Background(), RunOptions{Mode: "everything"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = o.Run(context.Background(), RunOptions{Mode: ModeDiscover, Count: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRun_RespectsFileCap(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(config.CuratedRepo{Name: "alpha/widget"})
	cfg.Indexer.MaxFilesPerRepo = 3

	files := map[string]string{"README.md": widgetReadme}
	for i := range 6 {
		files[fmt.Sprintf("docs/page%d.md", i)] = fmt.Sprintf("# Page %d\n\nText.\n", i)
	}
	f.host.addRepo("alpha/widget", 500, files)

	summary, err := f.orchestrator(cfg).Run(context.Background(), RunOptions{Mode: ModeCurated})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
}
