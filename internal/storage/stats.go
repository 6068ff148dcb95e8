package storage

import (
	"context"
	"database/sql"
)

// GetStatistics summarises repositories, documents and the search index.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	st := &Statistics{
		BySource:   map[string]int64{},
		ByCategory: map[string]int64{},
		ByLanguage: map[string]int64{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM repositories),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM documents WHERE dirty <> 0),
			(SELECT COUNT(*) FROM repositories WHERE stale <> 0)`,
	).Scan(&st.Repositories, &st.Documents, &st.DirtyDocuments, &st.StaleRepos)
	if err != nil {
		return nil, storeErr("statistics", err)
	}

	groups := []struct {
		query string
		dst   map[string]int64
	}{
		{`SELECT source, COUNT(*) FROM repositories GROUP BY source`, st.BySource},
		{`SELECT category, COUNT(*) FROM repositories WHERE category IS NOT NULL AND category <> '' GROUP BY category`, st.ByCategory},
		{`SELECT language, COUNT(*) FROM repositories WHERE language <> '' GROUP BY language`, st.ByLanguage},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.query, g.dst); err != nil {
			return nil, err
		}
	}

	var rebuiltAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT active, generation, rebuilt_at FROM index_state WHERE id = 1`).
		Scan(&st.ActiveIndex, &st.IndexGeneration, &rebuiltAt)
	if err != nil {
		return nil, storeErr("statistics", err)
	}
	st.LastRebuild = nullTime(rebuiltAt)

	err = s.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	).Scan(&st.DBSizeBytes)
	if err != nil {
		return nil, storeErr("statistics", err)
	}
	return st, nil
}

func (s *Store) countBy(ctx context.Context, query string, dst map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return storeErr("statistics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return storeErr("statistics", err)
		}
		dst[key] = n
	}
	return storeErr("statistics", rows.Err())
}
