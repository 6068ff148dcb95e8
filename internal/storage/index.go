package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bull/docshub/internal/metrics"
)

// ActiveIndex returns the name of the live FTS5 table.
func (s *Store) ActiveIndex() string {
	if v, ok := s.active.Load().(string); ok {
		return v
	}
	return indexTableA
}

// loadActive refreshes the in-memory pointer from index_state so processes
// sharing the file observe each other's swaps.
func (s *Store) loadActive(ctx context.Context) (string, error) {
	var active string
	if err := s.db.QueryRowContext(ctx, `SELECT active FROM index_state WHERE id = 1`).Scan(&active); err != nil {
		return "", storeErr("load index state", err)
	}
	if active != indexTableA && active != indexTableB {
		return "", fmt.Errorf("index_state names unknown table %q", active)
	}
	s.active.Store(active)
	return active, nil
}

// RebuildSearchIndex repopulates the shadow FTS5 table from the documents
// and swaps it live. Only one rebuild runs at a time; readers keep using the
// previous table until the swap commits. Documents written during the copy
// remain dirty and are picked up by the next rebuild.
func (s *Store) RebuildSearchIndex(ctx context.Context) (*IndexReport, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	report, err := s.rebuild(ctx, start)
	metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.IndexRebuildsTotal.WithLabelValues("completed").Inc()
	return report, nil
}

func (s *Store) rebuild(ctx context.Context, start time.Time) (*IndexReport, error) {
	active, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	shadow := shadowOf(active)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+shadow); err != nil {
		return nil, storeErr("clear shadow index", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE documents SET dirty = ? WHERE dirty = ?`, docClaimed, docDirty)
	if err != nil {
		return nil, storeErr("claim dirty documents", err)
	}
	claimed, _ := res.RowsAffected()

	copied, err := s.fillShadow(ctx, shadow)
	if err != nil {
		s.releaseClaims()
		return nil, err
	}

	var generation int64
	err = s.inTx(ctx, "swap index", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			UPDATE index_state SET active = ?, generation = generation + 1, rebuilt_at = ?
			WHERE id = 1
			RETURNING generation`, shadow, unixTime(s.now())).Scan(&generation); err != nil {
			return storeErr("swap index", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET dirty = ? WHERE dirty = ?`, docClean, docClaimed); err != nil {
			return storeErr("release claimed documents", err)
		}
		return nil
	})
	if err != nil {
		s.releaseClaims()
		return nil, err
	}
	s.active.Store(shadow)

	report := &IndexReport{
		Generation: generation,
		Active:     shadow,
		Documents:  copied,
		Claimed:    claimed,
		Duration:   time.Since(start),
	}
	s.logger.Info("Search index rebuilt",
		"generation", report.Generation,
		"active", report.Active,
		"documents", report.Documents,
		"claimed", report.Claimed,
		"duration", report.Duration)
	return report, nil
}

// fillShadow copies every document into the shadow table in id-ordered
// batches, each in its own transaction.
func (s *Store) fillShadow(ctx context.Context, shadow string) (int64, error) {
	var (
		lastID int64
		copied int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return copied, fmt.Errorf("fill shadow index: %w", err)
		}

		var upper sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
			SELECT MAX(id) FROM (SELECT id FROM documents WHERE id > ? ORDER BY id LIMIT ?)`,
			lastID, s.batchSize,
		).Scan(&upper)
		if err != nil {
			return copied, storeErr("fill shadow index", err)
		}
		if !upper.Valid {
			return copied, nil
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO `+shadow+` (rowid, path, body)
			SELECT id, path, search_body FROM documents WHERE id > ? AND id <= ?`,
			lastID, upper.Int64)
		if err != nil {
			return copied, storeErr("fill shadow index", err)
		}
		n, _ := res.RowsAffected()
		copied += n
		lastID = upper.Int64
	}
}

// releaseClaims returns claimed documents to dirty after a failed rebuild.
func (s *Store) releaseClaims() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET dirty = ? WHERE dirty = ?`, docDirty, docClaimed); err != nil {
		s.logger.Error("Failed to release claimed documents", "error", err)
	}
}
