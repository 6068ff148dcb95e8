package storage

import (
	"context"
	"strings"
	"time"
)

// LogSearch records a query for analytics.
func (s *Store) LogSearch(ctx context.Context, query string, results int, took time.Duration) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_log (query, result_count, duration_ms, searched_at) VALUES (?, ?, ?, ?)`,
		strings.ToLower(q), results, took.Milliseconds(), unixTime(s.now()))
	return storeErr("log search", err)
}

// PopularSearches returns the most frequent queries since the given time.
func (s *Store) PopularSearches(ctx context.Context, since time.Time, limit int) ([]SearchCount, error) {
	return s.searchCounts(ctx, `
		SELECT query, COUNT(*), AVG(result_count), MAX(searched_at)
		FROM search_log
		WHERE searched_at >= ?
		GROUP BY query
		ORDER BY COUNT(*) DESC, query ASC
		LIMIT ?`, since, limit)
}

// ZeroResultSearches returns the most frequent queries that found nothing.
func (s *Store) ZeroResultSearches(ctx context.Context, since time.Time, limit int) ([]SearchCount, error) {
	return s.searchCounts(ctx, `
		SELECT query, COUNT(*), AVG(result_count), MAX(searched_at)
		FROM search_log
		WHERE searched_at >= ? AND result_count = 0
		GROUP BY query
		ORDER BY COUNT(*) DESC, query ASC
		LIMIT ?`, since, limit)
}

func (s *Store) searchCounts(ctx context.Context, query string, since time.Time, limit int) ([]SearchCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, query, unixTime(since), limit)
	if err != nil {
		return nil, storeErr("search analytics", err)
	}
	defer rows.Close()

	var out []SearchCount
	for rows.Next() {
		var (
			c    SearchCount
			last int64
		)
		if err := rows.Scan(&c.Query, &c.Count, &c.AvgResults, &last); err != nil {
			return nil, storeErr("search analytics", err)
		}
		c.LastSeen = fromUnix(last)
		out = append(out, c)
	}
	return out, storeErr("search analytics", rows.Err())
}

// SearchPerformance reports timing and hit rate for searches since the given
// time.
func (s *Store) SearchPerformance(ctx context.Context, since time.Time) (*SearchPerformance, error) {
	var (
		p    SearchPerformance
		hits int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(MAX(duration_ms), 0),
		       COALESCE(AVG(result_count), 0),
		       COALESCE(SUM(CASE WHEN result_count > 0 THEN 1 ELSE 0 END), 0)
		FROM search_log
		WHERE searched_at >= ?`, unixTime(since)).
		Scan(&p.Searches, &p.AvgDurationMS, &p.MaxDurationMS, &p.AvgResults, &hits)
	if err != nil {
		return nil, storeErr("search performance", err)
	}
	if p.Searches > 0 {
		p.SuccessRate = float64(hits) / float64(p.Searches)
	}
	return &p, nil
}
