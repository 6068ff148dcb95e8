package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bull/docshub/internal/dedup"
	"github.com/bull/docshub/internal/extract"
	"github.com/bull/docshub/internal/quality"
)

// DocumentUnchanged reports whether the stored document has the given hash.
// Missing documents are changed.
func (s *Store) DocumentUnchanged(ctx context.Context, repoID dedup.Key, path, hash string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM documents WHERE repository_id = ? AND path = ?`, int64(repoID), path,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("check document hash", err)
	}
	return stored == hash, nil
}

// UpsertDocument inserts or updates a document keyed by (repository, path).
// A document whose hash matches the stored one is left untouched. Writes
// mark the row dirty for the next index rebuild.
func (s *Store) UpsertDocument(ctx context.Context, in DocumentInput) (UpsertOutcome, error) {
	unlock := s.docLocks.Lock(strconv.FormatInt(int64(in.RepositoryID), 10) + "\x00" + in.Path)
	defer unlock()

	headings, err := marshalJSON(in.Headings, "[]")
	if err != nil {
		return "", fmt.Errorf("encode headings: %w", err)
	}
	codeBlocks, err := marshalJSON(in.CodeBlocks, "[]")
	if err != nil {
		return "", fmt.Errorf("encode code blocks: %w", err)
	}
	outline, err := marshalJSON(in.Outline, "[]")
	if err != nil {
		return "", fmt.Errorf("encode outline: %w", err)
	}
	metrics, err := json.Marshal(in.Quality.Metrics)
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}

	var outcome UpsertOutcome
	err = s.inTx(ctx, "upsert document", func(tx *sql.Tx) error {
		var (
			id     int64
			stored string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, content_hash FROM documents WHERE repository_id = ? AND path = ?`,
			int64(in.RepositoryID), in.Path,
		).Scan(&id, &stored)
		now := unixTime(s.now())

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (repository_id, path, format, content, content_hash, plain_text,
					search_body, headings, code_blocks, outline, metrics, score, grade, indexed_at, dirty)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				int64(in.RepositoryID), in.Path, string(in.Format), in.Content, in.ContentHash, in.PlainText,
				in.SearchBody, headings, codeBlocks, outline, string(metrics), in.Quality.Score,
				string(in.Quality.Grade), now, docDirty)
			if err != nil {
				return storeErr("insert document", err)
			}
			outcome = OutcomeInserted
		case err != nil:
			return storeErr("load document", err)
		case stored == in.ContentHash:
			outcome = OutcomeUnchanged
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE documents SET format = ?, content = ?, content_hash = ?, plain_text = ?,
					search_body = ?, headings = ?, code_blocks = ?, outline = ?, metrics = ?,
					score = ?, grade = ?, indexed_at = ?, dirty = ?
				WHERE id = ?`,
				string(in.Format), in.Content, in.ContentHash, in.PlainText, in.SearchBody, headings,
				codeBlocks, outline, string(metrics), in.Quality.Score, string(in.Quality.Grade), now,
				docDirty, id)
			if err != nil {
				return storeErr("update document", err)
			}
			outcome = OutcomeUpdated
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ListDocuments returns the documents of a repository ordered by score
// descending, then path. limit <= 0 returns all.
func (s *Store) ListDocuments(ctx context.Context, canonical string, limit int) ([]*Document, error) {
	if _, err := s.GetRepository(ctx, canonical); err != nil {
		return nil, err
	}
	query := `
		SELECT d.id, d.repository_id, r.name, d.path, d.format, d.content, d.content_hash, d.plain_text,
			d.headings, d.code_blocks, d.outline, d.metrics, d.score, d.grade, d.indexed_at, d.dirty
		FROM documents d
		JOIN repositories r ON r.id = d.repository_id
		WHERE r.name = ?
		ORDER BY d.score DESC, d.path ASC`
	args := []any{canonical}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list documents", err)
	}
	return out, nil
}

// DocumentScores returns the scores of every document of a repository.
func (s *Store) DocumentScores(ctx context.Context, repoID dedup.Key) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT score FROM documents WHERE repository_id = ?`, int64(repoID))
	if err != nil {
		return nil, storeErr("document scores", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, storeErr("scan score", err)
		}
		scores = append(scores, v)
	}
	return scores, storeErr("document scores", rows.Err())
}

// AverageDocumentScore is the repository's computed quality score: the mean
// of its document scores. ok is false when it has no documents.
func (s *Store) AverageDocumentScore(ctx context.Context, repoID dedup.Key) (score float64, ok bool, err error) {
	scores, err := s.DocumentScores(ctx, repoID)
	if err != nil {
		return 0, false, err
	}
	score, ok = quality.Aggregate(scores)
	return score, ok, nil
}

func scanDocument(sc scanner) (*Document, error) {
	var (
		d                            Document
		repoID                       int64
		format, grade                string
		headings, code, outline, met string
		indexedAt                    int64
		dirty                        int
	)
	if err := sc.Scan(&d.ID, &repoID, &d.Repository, &d.Path, &format, &d.Content, &d.ContentHash,
		&d.PlainText, &headings, &code, &outline, &met, &d.Score, &grade, &indexedAt, &dirty); err != nil {
		return nil, storeErr("scan document", err)
	}
	d.RepositoryID = dedup.Key(repoID)
	d.Format = extract.Format(format)
	d.Grade = quality.Grade(grade)
	d.IndexedAt = fromUnix(indexedAt)
	d.Dirty = dirty != docClean

	for _, f := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"headings", headings, &d.Headings},
		{"code blocks", code, &d.CodeBlocks},
		{"outline", outline, &d.Outline},
		{"metrics", met, &d.Metrics},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode %s of %s: %w", f.name, d.Path, err)
		}
	}
	return &d, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
