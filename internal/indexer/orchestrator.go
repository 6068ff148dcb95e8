// Package indexer runs orchestration passes: it enumerates candidate
// repositories, resolves them to canonical records, fetches and scores their
// documentation and keeps the search index current.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/config"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/metrics"
	"github.com/bull/docshub/internal/quality"
	"github.com/bull/docshub/internal/storage"
)

// Mode selects the candidates of a run.
type Mode string

const (
	ModeCurated  Mode = "curated"
	ModeDiscover Mode = "discover"
	ModeUpdate   Mode = "update"
	ModeSmart    Mode = "smart"
)

// ParseMode validates a mode name. The empty string selects smart.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCurated, ModeDiscover, ModeUpdate, ModeSmart:
		return m, nil
	case "":
		return ModeSmart, nil
	}
	return "", apperr.Errorf(apperr.KindValidation, "unknown mode %q (want curated, discover, update or smart)", s)
}

// RunOptions parameterise one run. Zero MinStars and Count fall back to the
// discovery configuration.
type RunOptions struct {
	Mode     Mode
	MinStars int
	Count    int
}

// target is a resolved repository scheduled for fetching.
type target struct {
	key     dedup.Key
	name    string
	curated *config.CuratedRepo
}

// Orchestrator runs one indexing pass at a time.
type Orchestrator struct {
	cfg       config.Config
	store     Store
	host      Host
	extractor Extractor
	scorer    Scorer
	logger    *slog.Logger
	limiter   *rate.Limiter
	now       func() time.Time

	running sync.Mutex
	states  *stateMachine
}

// New creates an orchestrator over an immutable configuration snapshot.
func New(cfg config.Config, store Store, host Host, extractor Extractor, scorer Scorer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Clone()

	limit := rate.Inf
	if rps := cfg.Indexer.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		host:      host,
		extractor: extractor,
		scorer:    scorer,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, max(1, cfg.Indexer.Concurrency)),
		now:       time.Now,
		states:    newStateMachine(),
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	return o.states.current()
}

// OnStateChange registers a listener for state transitions.
func (o *Orchestrator) OnStateChange(fn StateListener) {
	o.states.subscribe(fn)
}

// Run executes one orchestration pass. Contained failures are reported in the
// summary. A non-nil error means the run did not start (validation, busy) or
// was aborted, in which case the partial summary is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.MinStars < 0 || opts.Count < 0 {
		return nil, apperr.Errorf(apperr.KindValidation, "min_stars and count must not be negative")
	}
	if !o.running.TryLock() {
		return nil, apperr.Errorf(apperr.KindBusy, "an indexing run is already in progress")
	}
	defer o.running.Unlock()

	started := o.now()
	t := &tally{summary: RunSummary{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: started,
	}}
	logger := o.logger.With("run_id", t.summary.RunID, "mode", mode)
	logger.Info("Starting indexing run")

	err = o.run(ctx, logger, mode, opts, started, t)

	summary := t.snapshot()
	summary.FinishedAt = o.now()
	summary.Duration = summary.FinishedAt.Sub(started)

	status := "completed"
	if err != nil {
		status = "aborted"
		summary.Aborted = true
		summary.AbortReason = apperr.Message(err)
		if terr := o.states.transition(StateAborted); terr != nil {
			logger.Error("State transition failed", "error", terr)
		}
		logger.Error("Indexing run aborted", "error", err)
	}
	if terr := o.states.transition(StateIdle); terr != nil {
		logger.Error("State transition failed", "error", terr)
	}
	metrics.IndexRunsTotal.WithLabelValues(string(mode), status).Inc()
	metrics.IndexRunDuration.WithLabelValues(string(mode)).Observe(summary.Duration.Seconds())

	logger.Info("Indexing run finished",
		"status", status,
		"repositories", summary.Repositories,
		"succeeded", summary.Succeeded,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"retries", summary.Retries,
		"duration", summary.Duration,
	)
	return &summary, err
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, mode Mode, opts RunOptions, started time.Time, t *tally) error {
	if err := o.states.transition(StateEnumerating); err != nil {
		return err
	}
	targets, err := o.enumerate(ctx, logger, mode, opts, t)
	if err != nil {
		return err
	}

	if err := o.states.transition(StateFetching); err != nil {
		return err
	}
	done, err := o.fetchAll(ctx, logger, targets, started, t)
	if err != nil {
		return err
	}
	t.update(func(s *RunSummary) { s.Repositories = len(done) })

	if err := o.states.transition(StateScoring); err != nil {
		return err
	}
	scores := make(map[dedup.Key]*float64, len(done))
	for _, r := range done {
		score, ok, err := o.store.AverageDocumentScore(ctx, r.key)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", r.name, err)
		}
		if ok {
			scores[r.key] = &score
		}
	}

	if err := o.states.transition(StatePersisting); err != nil {
		return err
	}
	finished := o.now()
	for _, r := range done {
		patch := storage.RepositoryPatch{LastIndexed: &finished, ComputedScore: scores[r.key]}
		if err := o.store.UpsertRepository(ctx, r.name, patch); err != nil {
			return fmt.Errorf("persist %s: %w", r.name, err)
		}
	}
	if mode == ModeCurated || mode == ModeSmart {
		if err := o.reconcileCuration(ctx, logger, t); err != nil {
			return err
		}
	}

	if !t.changed() {
		logger.Info("No document changes, search index left as is")
		return nil
	}
	if err := o.states.transition(StateRebuilding); err != nil {
		return err
	}
	report, err := o.store.RebuildSearchIndex(ctx)
	if err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}
	t.update(func(s *RunSummary) {
		s.Rebuilt = true
		s.IndexGeneration = report.Generation
	})
	return nil
}

// enumerate collects the run's candidates and resolves them to repository
// records. Each canonical repository is scheduled once.
func (o *Orchestrator) enumerate(ctx context.Context, logger *slog.Logger, mode Mode, opts RunOptions, t *tally) ([]target, error) {
	if mode == ModeUpdate {
		repos, err := o.store.ListRepositories(ctx, storage.RepositoryFilter{IndexedOnly: true, ExcludeStale: true})
		if err != nil {
			return nil, fmt.Errorf("list indexed repositories: %w", err)
		}
		curated := o.cfg.CuratedNames()
		targets := make([]target, 0, len(repos))
		for _, r := range repos {
			tg := target{key: r.ID, name: r.Name}
			if entry, ok := curated[r.Name]; ok {
				tg.curated = &entry
			}
			targets = append(targets, tg)
		}
		t.update(func(s *RunSummary) { s.Candidates = len(targets) })
		return targets, nil
	}

	var candidates []dedup.Candidate
	curatedEntries := make(map[string]*config.CuratedRepo)
	if mode == ModeCurated || mode == ModeSmart {
		for i := range o.cfg.Curated {
			entry := &o.cfg.Curated[i]
			if canonical, err := dedup.Canonicalize(entry.Name); err == nil {
				curatedEntries[canonical] = entry
			}
			candidates = append(candidates, dedup.Candidate{
				Name:       entry.Name,
				Source:     dedup.SourceCurated,
				Attributes: entry.Attributes(),
			})
		}
	}
	if mode == ModeDiscover || mode == ModeSmart {
		discovered, err := o.discover(ctx, opts, t)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, discovered...)
	}
	t.update(func(s *RunSummary) { s.Candidates = len(candidates) })

	resolver := dedup.NewResolver(o.store)
	var targets []target
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := resolver.Resolve(ctx, c)
		if err != nil {
			if apperr.Fatal(err) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			logger.Warn("Skipping candidate", "repository", c.Name, "error", err)
			t.repoFailed(c.Name, err)
			continue
		}
		if !res.First {
			continue
		}
		targets = append(targets, target{key: res.Key, name: res.Canonical, curated: curatedEntries[res.Canonical]})
	}
	logger.Info("Candidates resolved", "candidates", len(candidates), "repositories", len(targets))
	return targets, nil
}

// discover queries the host for popular repositories. A failed query is
// contained unless it is fatal.
func (o *Orchestrator) discover(ctx context.Context, opts RunOptions, t *tally) ([]dedup.Candidate, error) {
	minStars := opts.MinStars
	if minStars == 0 {
		minStars = o.cfg.Discovery.MinStars
	}
	count := opts.Count
	if count == 0 {
		count = o.cfg.Discovery.Count
	}

	var found []Candidate
	retries, err := o.retry(ctx, "search_popular", func(ctx context.Context) error {
		var err error
		found, err = o.host.SearchPopular(ctx, minStars, count)
		return err
	})
	t.retries(retries)
	if err != nil {
		if apperr.Fatal(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		t.repoFailed("", fmt.Errorf("discovery: %w", err))
		return nil, nil
	}

	out := make([]dedup.Candidate, 0, len(found))
	for _, c := range found {
		if c.Stars < minStars {
			continue
		}
		attrs := dedup.Attributes{Stars: dedup.Ptr(c.Stars)}
		if c.Language != "" {
			attrs.Language = dedup.Ptr(c.Language)
		}
		if c.Description != "" {
			attrs.Description = dedup.Ptr(c.Description)
		}
		if len(c.Topics) > 0 {
			attrs.Topics = c.Topics
		}
		out = append(out, dedup.Candidate{Name: c.Name, Source: dedup.SourceDiscovered, Attributes: attrs})
	}
	return out, nil
}

// fetchAll indexes targets in parallel. At most Concurrency repositories are
// in progress and at most Concurrency file fetches are in flight across all of
// them. Cancellation is checked before each repository starts; the indexed
// targets are returned in enumeration order.
func (o *Orchestrator) fetchAll(ctx context.Context, logger *slog.Logger, targets []target, asOf time.Time, t *tally) ([]target, error) {
	workers := max(1, o.cfg.Indexer.Concurrency)
	slots := semaphore.NewWeighted(int64(workers))
	indexed := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tg := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			ok, err := o.indexRepository(gctx, logger, tg, asOf, slots, t)
			indexed[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var done []target
	for i, tg := range targets {
		if indexed[i] {
			done = append(done, tg)
		}
	}
	return done, nil
}

// indexRepository refreshes one repository's metadata and processes its
// documentation files, taking a slot per file. It reports false with a nil
// error when the repository failed and was recorded in the summary.
func (o *Orchestrator) indexRepository(ctx context.Context, logger *slog.Logger, tg target, asOf time.Time, slots *semaphore.Weighted, t *tally) (bool, error) {
	logger = logger.With("repository", tg.name)

	var meta *Metadata
	retries, err := o.retry(ctx, "fetch_metadata", func(ctx context.Context) error {
		var err error
		meta, err = o.host.FetchMetadata(ctx, tg.name)
		return err
	})
	t.retries(retries)
	if err != nil {
		return false, o.containRepo(logger, tg.name, err, t)
	}

	observed := dedup.Attributes{Stars: dedup.Ptr(meta.Stars)}
	if meta.Language != "" {
		observed.Language = dedup.Ptr(meta.Language)
	}
	if meta.Description != "" {
		observed.Description = dedup.Ptr(meta.Description)
	}
	if len(meta.Topics) > 0 {
		observed.Topics = meta.Topics
	}
	patch := storage.RepositoryPatch{Observed: observed}
	if !meta.PushedAt.IsZero() {
		patch.PushedAt = &meta.PushedAt
	}
	if err := o.store.UpsertRepository(ctx, tg.name, patch); err != nil {
		return false, fmt.Errorf("refresh %s: %w", tg.name, err)
	}

	var entries []FileEntry
	retries, err = o.retry(ctx, "list_files", func(ctx context.Context) error {
		var err error
		entries, err = o.host.ListFiles(ctx, tg.name, "")
		return err
	})
	t.retries(retries)
	if err != nil {
		return false, o.containRepo(logger, tg.name, err, t)
	}

	include, skip := o.cfg.Indexer.IncludePatterns, o.cfg.Indexer.SkipPatterns
	if tg.curated != nil {
		if len(tg.curated.DocPathPatterns) > 0 {
			include = tg.curated.DocPathPatterns
		}
		skip = append(append([]string(nil), skip...), tg.curated.SkipPatterns...)
	}
	files, oversized := selectFiles(entries, newPathFilter(include, skip), o.cfg.Indexer.MaxFilesPerRepo, o.cfg.Indexer.MaxFileBytes)
	for range oversized {
		t.skipped()
	}
	logger.Debug("Selected documentation files", "listed", len(entries), "selected", len(files), "oversized", oversized)

	repoMeta := quality.RepoMetadata{
		Description: meta.Description,
		Topics:      meta.Topics,
		LastUpdated: meta.PushedAt,
		AsOf:        asOf,
	}

	// Files already started finish even if the run is cancelled.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, f := range files {
		if err := slots.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer slots.Release(1)
			err := o.indexFile(gctx, logger, tg, f, repoMeta, t)
			if apperr.Fatal(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return true, nil
}

// containRepo records a repository-level failure, passing fatal errors and
// cancellation through.
func (o *Orchestrator) containRepo(logger *slog.Logger, name string, err error, t *tally) error {
	if apperr.Fatal(err) || errors.Is(err, context.Canceled) {
		return err
	}
	logger.Warn("Skipping repository", "error", err)
	t.repoFailed(name, err)
	return nil
}

// indexFile fetches, hashes, extracts, scores and stores one file. Only
// fatal errors are returned; everything else is recorded in the tally.
func (o *Orchestrator) indexFile(ctx context.Context, logger *slog.Logger, tg target, f FileEntry, repoMeta quality.RepoMetadata, t *tally) error {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.Indexer.FetchTimeout)
	defer cancel()

	var data []byte
	retries, err := o.retry(fctx, "fetch_file", func(ctx context.Context) error {
		var err error
		data, err = o.host.FetchFile(ctx, tg.name, f.Path)
		return err
	})
	t.retries(retries)
	if err != nil {
		return o.containFile(logger, tg.name, f.Path, err, t)
	}
	if limit := o.cfg.Indexer.MaxFileBytes; limit > 0 && len(data) > limit {
		t.skipped()
		return nil
	}

	hash := fmt.Sprintf("%016x", xxhash.Sum64(data))
	unchanged, err := o.store.DocumentUnchanged(ctx, tg.key, f.Path, hash)
	if err != nil {
		return o.containFile(logger, tg.name, f.Path, err, t)
	}
	if unchanged {
		t.document(storage.OutcomeUnchanged)
		return nil
	}

	format := extract.FormatFromPath(f.Path)
	if format == extract.FormatUnknown {
		format = extract.FormatPlainText
	}
	res, err := o.extractor.Extract(data, format)
	if err != nil {
		return o.containFile(logger, tg.name, f.Path, fmt.Errorf("extract: %w", err), t)
	}

	headings := make([]quality.Heading, len(res.Headings))
	for i, h := range res.Headings {
		headings[i] = quality.Heading{Level: h.Level, Text: h.Text}
	}
	scored := o.scorer.Score(quality.Document{
		Path:       f.Path,
		PlainText:  res.PlainText,
		Headings:   headings,
		CodeBlocks: res.CodeBlocks,
		Links:      res.Links,
		HasTOC:     res.HasTOC,
	}, repoMeta)

	outcome, err := o.store.UpsertDocument(ctx, storage.DocumentInput{
		RepositoryID: tg.key,
		Path:         f.Path,
		Format:       res.Format,
		Content:      string(data),
		ContentHash:  hash,
		PlainText:    res.PlainText,
		SearchBody:   res.SearchBody(),
		Headings:     res.Headings,
		CodeBlocks:   res.CodeBlocks,
		Outline:      res.Outline,
		Quality:      scored,
	})
	if err != nil {
		return o.containFile(logger, tg.name, f.Path, err, t)
	}
	t.document(outcome)
	logger.Debug("Indexed document", "path", f.Path, "outcome", outcome, "score", scored.Score)
	return nil
}

// containFile classifies a per-file failure. Missing files are skipped, store
// outages abort the run and everything else counts as failed.
func (o *Orchestrator) containFile(logger *slog.Logger, repo, path string, err error, t *tally) error {
	switch {
	case apperr.Fatal(err):
		return err
	case apperr.Is(err, apperr.KindNotFound):
		logger.Debug("Skipping missing file", "path", path)
		t.skipped()
	default:
		logger.Warn("Failed to index document", "path", path, "error", err)
		t.fileFailed(repo, path, err)
	}
	return nil
}

// reconcileCuration reverts repositories that are no longer in the curated
// list to their discovered values.
func (o *Orchestrator) reconcileCuration(ctx context.Context, logger *slog.Logger, t *tally) error {
	repos, err := o.store.ListRepositories(ctx, storage.RepositoryFilter{Source: dedup.SourceCurated})
	if err != nil {
		return fmt.Errorf("list curated repositories: %w", err)
	}
	curated := o.cfg.CuratedNames()
	n := 0
	for _, r := range repos {
		if _, ok := curated[r.Name]; ok {
			continue
		}
		changed, err := o.store.DecurateRepository(ctx, r.Name)
		if err != nil {
			return fmt.Errorf("decurate %s: %w", r.Name, err)
		}
		if changed {
			n++
			logger.Info("Repository removed from curation", "repository", r.Name)
		}
	}
	t.update(func(s *RunSummary) { s.Decurated = n })
	return nil
}
