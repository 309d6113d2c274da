package store

import (
	"context"
	"fmt"
)

// PrepareStaging clears any stale rows left by a prior, aborted embedding run
// for this snapshot so the pipeline starts from a clean ephemeral table
// (spec §4.6 stage "Init").
func (s *SQLiteStore) PrepareStaging(ctx context.Context, snapshotID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embedding_staging WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("prepare staging: %w", err)
	}
	return nil
}

// BulkLoadStaging inserts one staging row per (chunk, model) pair with a
// computed prompt and vector_hash, embedding left NULL (spec §4.6 stage
// "Stage").
func (s *SQLiteStore) BulkLoadStaging(ctx context.Context, rows []StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_staging (chunk_id, snapshot_id, file_id, model, vector_hash, prompt, embedding, error)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL)
		ON CONFLICT(chunk_id, model) DO UPDATE SET vector_hash = excluded.vector_hash, prompt = excluded.prompt, error = NULL
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ChunkID, r.SnapshotID, r.FileID, r.Model, r.VectorHash, r.Prompt); err != nil {
			return fmt.Errorf("stage row %s: %w", r.ChunkID, err)
		}
	}
	return tx.Commit()
}

// CopyCachedVectors backfills staging rows whose vector_hash already has a
// permanent embedding under this model from an earlier snapshot, avoiding
// re-embedding unchanged content (spec §4.6 stage "Backfill").
func (s *SQLiteStore) CopyCachedVectors(ctx context.Context, snapshotID, model string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE embedding_staging
		SET embedding = (
			SELECT v.embedding FROM vec_chunks v
			JOIN embeddings e ON e.chunk_id = v.chunk_id AND e.model = embedding_staging.model
			WHERE e.vector_hash = embedding_staging.vector_hash
			LIMIT 1
		)
		WHERE snapshot_id = ? AND model = ? AND embedding IS NULL
		  AND EXISTS (
			SELECT 1 FROM embeddings e2
			WHERE e2.vector_hash = embedding_staging.vector_hash AND e2.model = embedding_staging.model
		  )
	`, snapshotID, model)
	if err != nil {
		return 0, fmt.Errorf("copy cached vectors: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FetchStagingDelta returns up to batch staging rows still missing a vector,
// the work the embedding provider must compute (spec §4.6 stage "Delta").
// Rows already marked errored by MarkStagingErrored are excluded so a batch
// that exhausts its retries is never handed back on the next iteration.
func (s *SQLiteStore) FetchStagingDelta(ctx context.Context, snapshotID, model string, batch int) ([]StagingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, snapshot_id, file_id, model, vector_hash, prompt
		FROM embedding_staging
		WHERE snapshot_id = ? AND model = ? AND embedding IS NULL AND error IS NULL
		LIMIT ?
	`, snapshotID, model, batch)
	if err != nil {
		return nil, fmt.Errorf("fetch staging delta: %w", err)
	}
	defer rows.Close()

	var out []StagingRow
	for rows.Next() {
		var r StagingRow
		if err := rows.Scan(&r.ChunkID, &r.SnapshotID, &r.FileID, &r.Model, &r.VectorHash, &r.Prompt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteVectors writes freshly-computed vectors back into staging rows.
func (s *SQLiteStore) WriteVectors(ctx context.Context, records []StagingRow) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE embedding_staging SET embedding = ? WHERE chunk_id = ? AND model = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, serializeVector(r.Vector), r.ChunkID, r.Model); err != nil {
			return fmt.Errorf("write vector %s: %w", r.ChunkID, err)
		}
	}
	return tx.Commit()
}

// MarkStagingErrored marks the given chunks' staging rows under model as
// terminally failed, recording msg and excluding them from further
// FetchStagingDelta calls for this staging cycle (spec §4.6: "a failed batch
// marks its rows errored and continues" rather than re-embedding forever).
func (s *SQLiteStore) MarkStagingErrored(ctx context.Context, chunkIDs []string, model, msg string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE embedding_staging SET error = ? WHERE chunk_id = ? AND model = ?`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, msg, id, model); err != nil {
			return fmt.Errorf("mark staging errored %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// PromoteStaging upserts every fully-populated staging row into the
// permanent vec_chunks/embeddings tables, then truncates staging for this
// snapshot (spec §4.6 stage "Promote").
func (s *SQLiteStore) PromoteStaging(ctx context.Context, snapshotID, model string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT chunk_id, file_id, vector_hash, embedding
		FROM embedding_staging
		WHERE snapshot_id = ? AND model = ? AND embedding IS NOT NULL
	`, snapshotID, model)
	if err != nil {
		return 0, fmt.Errorf("read staging: %w", err)
	}

	type promoted struct {
		chunkID, fileID, vectorHash string
		embedding                   []byte
	}
	var batch []promoted
	for rows.Next() {
		var p promoted
		if err := rows.Scan(&p.chunkID, &p.fileID, &p.vectorHash, &p.embedding); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	vecStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare vec insert: %w", err)
	}
	defer vecStmt.Close()

	embStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, snapshot_id, file_id, model, vector_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, model) DO UPDATE SET vector_hash = excluded.vector_hash, snapshot_id = excluded.snapshot_id
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer embStmt.Close()

	for _, p := range batch {
		if _, err := vecStmt.ExecContext(ctx, p.chunkID, p.embedding); err != nil {
			return 0, fmt.Errorf("promote vector %s: %w", p.chunkID, err)
		}
		if _, err := embStmt.ExecContext(ctx, p.chunkID, snapshotID, p.fileID, model, p.vectorHash); err != nil {
			return 0, fmt.Errorf("promote embedding %s: %w", p.chunkID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_staging WHERE snapshot_id = ? AND model = ?`, snapshotID, model); err != nil {
		return 0, fmt.Errorf("truncate staging: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(batch), nil
}
