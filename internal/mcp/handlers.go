package mcp

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/indexer"
	"github.com/bull/docshub/internal/search"
	"github.com/bull/docshub/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxFailuresShown = 20
	defaultDays      = 7
)

func (s *Server) indexRepositories(ctx context.Context, in IndexInput) (IndexOutput, error) {
	mode, err := indexer.ParseMode(in.Mode)
	if err != nil {
		return IndexOutput{}, err
	}
	summary, err := s.indexer.Run(ctx, indexer.RunOptions{Mode: mode, MinStars: in.MinStars, Count: in.Count})
	if err != nil {
		return IndexOutput{}, err
	}

	out := IndexOutput{
		RunID:              summary.RunID,
		Mode:               string(summary.Mode),
		StartedAt:          formatTime(summary.StartedAt),
		DurationMS:         summary.Duration.Milliseconds(),
		Candidates:         summary.Candidates,
		Repositories:       summary.Repositories,
		RepositoriesFailed: summary.RepositoriesFailed,
		Decurated:          summary.Decurated,
		Succeeded:          summary.Succeeded,
		Unchanged:          summary.Unchanged,
		Skipped:            summary.Skipped,
		Failed:             summary.Failed,
		Retries:            summary.Retries,
		Rebuilt:            summary.Rebuilt,
		IndexGeneration:    summary.IndexGeneration,
		Failures:           summary.Failures,
	}
	if len(out.Failures) > maxFailuresShown {
		out.FailuresOmitted = len(out.Failures) - maxFailuresShown
		out.Failures = out.Failures[:maxFailuresShown]
	}
	return out, nil
}

func (s *Server) searchDocs(ctx context.Context, in SearchInput) (SearchOutput, error) {
	resp, err := s.engine.Search(ctx, search.Request{
		Query: in.Query,
		Filters: search.Filters{
			MinStars: in.MinStars,
			Category: in.Category,
			Source:   in.Source,
			Language: in.Language,
		},
		Limit: in.Limit,
	})
	if err != nil {
		return SearchOutput{}, err
	}
	out := SearchOutput{Response: *resp}
	if len(out.Results) == 0 {
		out.Results = []search.Result{}
		out.Message = "No matching documents found. Try broader search terms or fewer filters."
	}
	return out, nil
}

func (s *Server) listRepositories(ctx context.Context, in ListRepositoriesInput) (ListRepositoriesOutput, error) {
	filter := storage.RepositoryFilter{
		Category: in.Category,
		Language: in.Language,
		MinStars: in.MinStars,
		Limit:    clampLimit(in.Limit),
	}
	if in.Source != "" {
		src, err := dedup.ParseSource(in.Source)
		if err != nil {
			return ListRepositoriesOutput{}, err
		}
		filter.Source = src
	}

	repos, err := s.store.ListRepositories(ctx, filter)
	if err != nil {
		return ListRepositoriesOutput{}, err
	}
	infos := make([]RepositoryInfo, 0, len(repos))
	for _, r := range repos {
		infos = append(infos, repositoryInfo(r))
	}
	infos, truncated := fitBudget(infos, s.budget)
	return ListRepositoriesOutput{Repositories: infos, Count: len(infos), Truncated: truncated}, nil
}

func (s *Server) repositoryDocs(ctx context.Context, in RepositoryDocsInput) (RepositoryDocsOutput, error) {
	canonical, err := dedup.Canonicalize(in.Repository)
	if err != nil {
		return RepositoryDocsOutput{}, err
	}
	repo, err := s.store.GetRepository(ctx, canonical)
	if err != nil {
		return RepositoryDocsOutput{}, err
	}
	docs, err := s.store.ListDocuments(ctx, canonical, clampLimit(in.Limit))
	if err != nil {
		return RepositoryDocsOutput{}, err
	}

	infos := make([]DocumentInfo, 0, len(docs))
	for _, d := range docs {
		info := DocumentInfo{
			Path:      d.Path,
			Format:    d.Format,
			Score:     d.Score,
			Grade:     d.Grade,
			Metrics:   d.Metrics,
			Outline:   d.Outline,
			IndexedAt: formatTime(d.IndexedAt),
		}
		for _, h := range d.Headings {
			info.Headings = append(info.Headings, h.Text)
		}
		if in.IncludeContent {
			info.Content = truncateBytes(d.Content, s.budget/2)
		}
		infos = append(infos, info)
	}
	infos, truncated := fitBudget(infos, s.budget)
	return RepositoryDocsOutput{
		Repository: repositoryInfo(repo),
		Documents:  infos,
		Count:      len(infos),
		Truncated:  truncated,
	}, nil
}

func (s *Server) statistics(ctx context.Context, _ StatisticsInput) (StatisticsOutput, error) {
	st, err := s.store.GetStatistics(ctx)
	if err != nil {
		return StatisticsOutput{}, err
	}
	out := StatisticsOutput{
		Repositories:      st.Repositories,
		Documents:         st.Documents,
		BySource:          st.BySource,
		ByCategory:        st.ByCategory,
		ByLanguage:        st.ByLanguage,
		DirtyDocuments:    st.DirtyDocuments,
		StaleRepositories: st.StaleRepos,
		IndexGeneration:   st.IndexGeneration,
		ActiveIndex:       st.ActiveIndex,
		DBSizeBytes:       st.DBSizeBytes,
	}
	if st.LastRebuild != nil {
		out.LastRebuild = formatTime(*st.LastRebuild)
	}
	return out, nil
}

func (s *Server) categories(ctx context.Context, _ CategoriesInput) (CategoriesOutput, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return CategoriesOutput{}, err
	}
	out := CategoriesOutput{Categories: make([]CategoryInfo, 0, len(cats))}
	for _, c := range cats {
		out.Categories = append(out.Categories, CategoryInfo{Name: c.Category, Repositories: c.Count})
	}
	return out, nil
}

func (s *Server) rebuildIndex(ctx context.Context, _ RebuildInput) (RebuildOutput, error) {
	report, err := s.store.RebuildSearchIndex(ctx)
	if err != nil {
		return RebuildOutput{}, err
	}
	return RebuildOutput{
		Generation: report.Generation,
		Active:     report.Active,
		Documents:  report.Documents,
		Claimed:    report.Claimed,
		DurationMS: report.Duration.Milliseconds(),
	}, nil
}

func (s *Server) searchInsights(ctx context.Context, in InsightsInput) (InsightsOutput, error) {
	days := in.Days
	if days <= 0 {
		days = defaultDays
	}
	if in.Limit < 0 {
		return InsightsOutput{}, apperr.Errorf(apperr.KindValidation, "limit must not be negative")
	}
	limit := min(in.Limit, maxListLimit)
	since := s.now().AddDate(0, 0, -days)

	popular, err := s.store.PopularSearches(ctx, since, limit)
	if err != nil {
		return InsightsOutput{}, err
	}
	zero, err := s.store.ZeroResultSearches(ctx, since, limit)
	if err != nil {
		return InsightsOutput{}, err
	}
	perf, err := s.store.SearchPerformance(ctx, since)
	if err != nil {
		return InsightsOutput{}, err
	}
	return InsightsOutput{
		Days: days,
		Performance: PerformanceInfo{
			Searches:      perf.Searches,
			AvgDurationMS: perf.AvgDurationMS,
			MaxDurationMS: perf.MaxDurationMS,
			AvgResults:    perf.AvgResults,
			SuccessRate:   perf.SuccessRate,
		},
		Popular:     queryInfos(popular),
		ZeroResults: queryInfos(zero),
	}, nil
}

func repositoryInfo(r *storage.Repository) RepositoryInfo {
	info := RepositoryInfo{
		Name:         r.Name,
		Source:       string(r.Source),
		Stars:        r.Stars,
		Language:     r.Language,
		Description:  r.Description,
		Topics:       r.Topics,
		Category:     r.Category,
		Priority:     r.Priority,
		QualityScore: r.QualityScore,
		QualityGrade: r.QualityGrade,
		Stale:        r.Stale,
	}
	if r.PushedAt != nil {
		info.PushedAt = formatTime(*r.PushedAt)
	}
	if r.LastIndexed != nil {
		info.LastIndexed = formatTime(*r.LastIndexed)
	}
	return info
}

func queryInfos(counts []storage.SearchCount) []QueryInfo {
	out := make([]QueryInfo, 0, len(counts))
	for _, c := range counts {
		out = append(out, QueryInfo{
			Query:      c.Query,
			Count:      c.Count,
			AvgResults: c.AvgResults,
			LastSeen:   formatTime(c.LastSeen),
		})
	}
	return out
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// fitBudget keeps the longest prefix of items whose JSON encoding fits in
// budget bytes.
func fitBudget[T any](items []T, budget int) ([]T, bool) {
	if budget <= 0 {
		return items, false
	}
	used := 0
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return items[:i], true
		}
		used += len(b) + 1
		if used > budget {
			return items[:i], true
		}
	}
	return items, false
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
