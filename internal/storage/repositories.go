package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/quality"
)

const repositoryColumns = `id, name, source, curated_attrs, discovered_attrs, stars, language,
	description, topics, COALESCE(category, ''), priority, score_override, computed_score,
	stale, pushed_at, last_indexed, created_at, updated_at`

// MergeRepository folds a discovery-path contribution into the row for
// canonical, creating it with the contribution's tag if absent.
func (s *Store) MergeRepository(ctx context.Context, canonical string, src dedup.Source, attrs dedup.Attributes) (dedup.Key, error) {
	var key dedup.Key
	err := s.inTx(ctx, "merge repository", func(tx *sql.Tx) error {
		id, rec, found, err := loadRecord(ctx, tx, canonical)
		if err != nil {
			return err
		}
		rec = rec.Merge(src, attrs)
		now := unixTime(s.now())

		if !found {
			cols, err := materialise(rec)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO repositories (name, source, curated_attrs, discovered_attrs, stars, language,
					description, topics, category, priority, score_override, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				canonical, string(rec.Source), cols.curated, cols.discovered, cols.stars, cols.language,
				cols.description, cols.topics, cols.category, cols.priority, cols.scoreOverride, now, now)
			if err != nil {
				return storeErr("insert repository", err)
			}
			newID, err := res.LastInsertId()
			if err != nil {
				return storeErr("insert repository", err)
			}
			key = dedup.Key(newID)
			return nil
		}

		// A repository surfaced again by any path is live, not history.
		if err := writeRecord(ctx, tx, id, rec, now, "stale = 0"); err != nil {
			return err
		}
		key = id
		return nil
	})
	return key, err
}

// UpsertRepository applies an optional-field patch to an existing row.
// Fields absent from the patch are never nulled.
func (s *Store) UpsertRepository(ctx context.Context, canonical string, patch RepositoryPatch) error {
	return s.inTx(ctx, "upsert repository", func(tx *sql.Tx) error {
		id, rec, found, err := loadRecord(ctx, tx, canonical)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("upsert %s: %w", canonical, ErrRepositoryNotFound)
		}
		now := unixTime(s.now())

		if !patch.Observed.IsZero() {
			if err := writeRecord(ctx, tx, id, rec.Observe(patch.Observed), now, ""); err != nil {
				return err
			}
		}

		var stale any
		if patch.Stale != nil {
			stale = boolInt(*patch.Stale)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE repositories SET
				pushed_at      = COALESCE(?, pushed_at),
				last_indexed   = COALESCE(?, last_indexed),
				computed_score = COALESCE(?, computed_score),
				stale          = COALESCE(?, stale),
				updated_at     = ?
			WHERE id = ?`,
			timeArg(patch.PushedAt), timeArg(patch.LastIndexed), floatArg(patch.ComputedScore), stale, now, int64(id))
		if err != nil {
			return storeErr("upsert repository", err)
		}
		return nil
	})
}

// DecurateRepository removes the curated contribution from canonical.
// The repository keeps its row; when discovery never produced it, it is
// kept as stale history. Reports whether anything changed.
func (s *Store) DecurateRepository(ctx context.Context, canonical string) (bool, error) {
	changed := false
	err := s.inTx(ctx, "decurate repository", func(tx *sql.Tx) error {
		id, rec, found, err := loadRecord(ctx, tx, canonical)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("decurate %s: %w", canonical, ErrRepositoryNotFound)
		}
		if !rec.Source.Curated() {
			return nil
		}
		var wasStale int
		if err := tx.QueryRowContext(ctx, `SELECT stale FROM repositories WHERE id = ?`, int64(id)).Scan(&wasStale); err != nil {
			return storeErr("decurate repository", err)
		}
		if rec.Source == dedup.SourceCurated && wasStale != 0 && rec.Curated.IsZero() {
			// Already kept as history.
			return nil
		}
		out, stale := rec.Decurate()
		extra := ""
		if stale {
			extra = "stale = 1"
		}
		changed = true
		return writeRecord(ctx, tx, id, out, unixTime(s.now()), extra)
	})
	return changed, err
}

// GetRepository returns the repository with the given canonical name.
func (s *Store) GetRepository(ctx context.Context, canonical string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE name = ?`, canonical)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", canonical, ErrRepositoryNotFound)
	}
	if err != nil {
		return nil, storeErr("get repository", err)
	}
	return repo, nil
}

// ListRepositories returns repositories ordered by stars descending, then name.
func (s *Store) ListRepositories(ctx context.Context, f RepositoryFilter) ([]*Repository, error) {
	var where []string
	var args []any

	if f.Source != "" {
		clause, sargs := sourceClause("source", f.Source)
		where = append(where, clause)
		args = append(args, sargs...)
	}
	if f.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, f.Category)
	}
	if f.Language != "" {
		where = append(where, "language = ? COLLATE NOCASE")
		args = append(args, f.Language)
	}
	if f.MinStars > 0 {
		where = append(where, "stars >= ?")
		args = append(args, f.MinStars)
	}
	if f.IndexedOnly {
		where = append(where, "last_indexed IS NOT NULL")
	}
	if f.ExcludeStale {
		where = append(where, "stale = 0")
	}

	query := `SELECT ` + repositoryColumns + ` FROM repositories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY stars DESC, name ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list repositories", err)
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, storeErr("scan repository", err)
		}
		out = append(out, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list repositories", err)
	}
	return out, nil
}

// ListCategories returns every non-empty category with its repository count.
func (s *Store) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM repositories
		WHERE category IS NOT NULL AND category <> ''
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, storeErr("list categories", err)
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, storeErr("scan category", err)
		}
		out = append(out, c)
	}
	return out, storeErr("list categories", rows.Err())
}

// sourceClause matches a source filter: curated and discovered include
// repositories tagged both; both matches only both.
func sourceClause(column string, src dedup.Source) (string, []any) {
	switch src {
	case dedup.SourceCurated, dedup.SourceDiscovered:
		return column + " IN (?, ?)", []any{string(src), string(dedup.SourceBoth)}
	default:
		return column + " = ?", []any{string(src)}
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadRecord(ctx context.Context, q queryer, canonical string) (dedup.Key, dedup.Record, bool, error) {
	var (
		id                  int64
		source              string
		curated, discovered string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, source, curated_attrs, discovered_attrs FROM repositories WHERE name = ?`, canonical,
	).Scan(&id, &source, &curated, &discovered)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, dedup.Record{}, false, nil
	}
	if err != nil {
		return 0, dedup.Record{}, false, storeErr("load repository", err)
	}
	rec := dedup.Record{Source: dedup.Source(source)}
	if err := json.Unmarshal([]byte(curated), &rec.Curated); err != nil {
		return 0, dedup.Record{}, false, fmt.Errorf("decode curated attributes of %s: %w", canonical, err)
	}
	if err := json.Unmarshal([]byte(discovered), &rec.Discovered); err != nil {
		return 0, dedup.Record{}, false, fmt.Errorf("decode discovered attributes of %s: %w", canonical, err)
	}
	return dedup.Key(id), rec, true, nil
}

type effectiveColumns struct {
	curated, discovered string
	stars               int
	language            string
	description         string
	topics              string
	category            any
	priority            string
	scoreOverride       any
}

// materialise computes the stored effective columns for a record.
func materialise(rec dedup.Record) (effectiveColumns, error) {
	curated, err := json.Marshal(rec.Curated)
	if err != nil {
		return effectiveColumns{}, fmt.Errorf("encode curated attributes: %w", err)
	}
	discovered, err := json.Marshal(rec.Discovered)
	if err != nil {
		return effectiveColumns{}, fmt.Errorf("encode discovered attributes: %w", err)
	}
	eff := rec.Effective()
	topics := eff.Topics
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return effectiveColumns{}, fmt.Errorf("encode topics: %w", err)
	}

	cols := effectiveColumns{
		curated:     string(curated),
		discovered:  string(discovered),
		stars:       deref(eff.Stars),
		language:    deref(eff.Language),
		description: deref(eff.Description),
		topics:      string(topicsJSON),
		priority:    deref(eff.Priority),
	}
	if eff.Category != nil && *eff.Category != "" {
		cols.category = *eff.Category
	}
	if eff.ScoreOverride != nil {
		cols.scoreOverride = *eff.ScoreOverride
	}
	return cols, nil
}

// writeRecord stores rec and its effective columns. extra is an optional
// additional SET assignment.
func writeRecord(ctx context.Context, tx *sql.Tx, id dedup.Key, rec dedup.Record, now int64, extra string) error {
	cols, err := materialise(rec)
	if err != nil {
		return err
	}
	set := `source = ?, curated_attrs = ?, discovered_attrs = ?, stars = ?, language = ?,
		description = ?, topics = ?, category = ?, priority = ?, score_override = ?, updated_at = ?`
	if extra != "" {
		set += ", " + extra
	}
	_, err = tx.ExecContext(ctx, `UPDATE repositories SET `+set+` WHERE id = ?`,
		string(rec.Source), cols.curated, cols.discovered, cols.stars, cols.language,
		cols.description, cols.topics, cols.category, cols.priority, cols.scoreOverride, now, int64(id))
	if err != nil {
		return storeErr("update repository", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(sc scanner) (*Repository, error) {
	var (
		r                    Repository
		id                   int64
		source               string
		curated, discovered  string
		topics               string
		scoreOverride        sql.NullFloat64
		computed             sql.NullFloat64
		stale                int
		pushedAt, lastIndex  sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&id, &r.Name, &source, &curated, &discovered, &r.Stars, &r.Language,
		&r.Description, &topics, &r.Category, &r.Priority, &scoreOverride, &computed,
		&stale, &pushedAt, &lastIndex, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	r.ID = dedup.Key(id)
	r.Source = dedup.Source(source)
	r.Record.Source = r.Source
	if err := json.Unmarshal([]byte(curated), &r.Record.Curated); err != nil {
		return nil, fmt.Errorf("decode curated attributes: %w", err)
	}
	if err := json.Unmarshal([]byte(discovered), &r.Record.Discovered); err != nil {
		return nil, fmt.Errorf("decode discovered attributes: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	r.ScoreOverride = nullFloat(scoreOverride)
	r.ComputedScore = nullFloat(computed)
	r.QualityScore = r.ComputedScore
	if r.ScoreOverride != nil {
		r.QualityScore = r.ScoreOverride
	}
	if r.QualityScore != nil {
		r.QualityGrade = quality.GradeFor(*r.QualityScore)
	}
	r.Stale = stale != 0
	r.PushedAt = nullTime(pushedAt)
	r.LastIndexed = nullTime(lastIndex)
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)
	return &r, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
