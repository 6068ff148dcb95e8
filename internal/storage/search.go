package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/quality"
)

// Search runs a compiled FTS5 query against the live index. Results are
// ordered by relevance, then repository quality, stars, name and path.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	if strings.TrimSpace(q.Match) == "" || q.Limit <= 0 {
		return nil, nil
	}

	table, err := s.loadActive(ctx)
	if err != nil {
		table = s.ActiveIndex()
	}

	where := []string{table + " MATCH ?"}
	args := []any{q.Match}

	if q.Filters.MinStars > 0 {
		where = append(where, "r.stars >= ?")
		args = append(args, q.Filters.MinStars)
	}
	if q.Filters.Category != "" {
		where = append(where, "r.category = ? COLLATE NOCASE")
		args = append(args, q.Filters.Category)
	}
	if q.Filters.Language != "" {
		where = append(where, "r.language = ? COLLATE NOCASE")
		args = append(args, q.Filters.Language)
	}
	if q.Filters.Source != "" {
		clause, sargs := sourceClause("r.source", q.Filters.Source)
		where = append(where, clause)
		args = append(args, sargs...)
	}

	query := fmt.Sprintf(`
		SELECT d.id, r.name, d.path, r.stars, r.source, COALESCE(r.category, ''), r.language,
			COALESCE(r.score_override, r.computed_score) AS repo_quality,
			d.score, d.grade,
			bm25(%[1]s) AS relevance,
			snippet(%[1]s, 1, '[', ']', '…', 24)
		FROM %[1]s
		JOIN documents d ON d.id = %[1]s.rowid
		JOIN repositories r ON r.id = d.repository_id
		WHERE %[2]s
		ORDER BY relevance ASC, COALESCE(repo_quality, -1) DESC, r.stars DESC, r.name ASC, d.path ASC
		LIMIT ?`, table, strings.Join(where, " AND "))
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, matchErr(err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			h      SearchHit
			source string
			grade  string
			score  sql.NullFloat64
		)
		if err := rows.Scan(&h.DocumentID, &h.Repository, &h.Path, &h.Stars, &source, &h.Category,
			&h.Language, &score, &h.DocScore, &grade, &h.Rank, &h.Snippet); err != nil {
			return nil, storeErr("scan search hit", err)
		}
		h.Source = dedup.Source(source)
		h.DocGrade = quality.Grade(grade)
		h.QualityScore = nullFloat(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, matchErr(err)
	}
	return hits, nil
}

// matchErr distinguishes malformed MATCH expressions from store failures.
func matchErr(err error) error {
	if strings.Contains(err.Error(), "fts5: syntax error") || strings.Contains(err.Error(), "unterminated string") {
		return apperr.E(apperr.KindValidation, "search", err)
	}
	return storeErr("search", err)
}
