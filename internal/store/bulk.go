package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// AddFiles bulk-inserts file records, idempotent by primary key.
func (s *SQLiteStore) AddFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, snapshot_id, path, language, size_bytes, category, blob_hash, parsing_status, parsing_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language, size_bytes = excluded.size_bytes, category = excluded.category,
			blob_hash = excluded.blob_hash, parsing_status = excluded.parsing_status, parsing_error = excluded.parsing_error
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.SnapshotID, f.Path, f.Language, f.SizeBytes, string(f.Category), f.BlobHash, f.ParsingStatus, f.ParsingError); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

// AddContents bulk-inserts content-addressed text, deduplicated by hash.
func (s *SQLiteStore) AddContents(ctx context.Context, contents []Content) error {
	if len(contents) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contents (hash, text, size) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range contents {
		if _, err := stmt.ExecContext(ctx, c.Hash, c.Text, c.Size); err != nil {
			return fmt.Errorf("insert content %s: %w", c.Hash, err)
		}
	}
	return tx.Commit()
}

// AddChunks bulk-inserts chunk nodes, idempotent by primary key.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, content_hash, start_byte, end_byte, start_line, end_line, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.ContentHash, c.StartByte, c.EndByte, c.StartLine, c.EndLine, string(meta)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// AddEdges bulk-inserts directed relations, idempotent by primary key.
func (s *SQLiteStore) AddEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (id, source_chunk_id, target_chunk_id, target_file_id, kind, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_chunk_id, target_chunk_id, target_file_id, kind) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.ID, e.SourceChunkID, e.TargetChunkID, e.TargetFileID, string(e.Kind), e.Metadata); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return tx.Commit()
}

// AddFTS bulk-inserts weighted token documents, one per chunk.
func (s *SQLiteStore) AddFTS(ctx context.Context, entries []FTSEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_index WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_index (chunk_id, snapshot_id, file_id, tags, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	for _, e := range entries {
		if _, err := del.ExecContext(ctx, e.ChunkID); err != nil {
			return fmt.Errorf("delete stale fts for %s: %w", e.ChunkID, err)
		}
		if _, err := ins.ExecContext(ctx, e.ChunkID, e.SnapshotID, e.FileID, e.Tags, e.Content); err != nil {
			return fmt.Errorf("insert fts for %s: %w", e.ChunkID, err)
		}
	}
	return tx.Commit()
}

// IngestCrossFileRelations resolves each row to a chunk by (file, byte_range)
// equality, or, failing that, the smallest chunk whose range contains the
// given range. Unresolved rows attach to the file-level pseudo-node and are
// counted rather than dropped (spec §9 Open Question decision).
func (s *SQLiteStore) IngestCrossFileRelations(ctx context.Context, snapshotID string, rows []RelationRow) (int, int, error) {
	var resolved, droppedToFile int
	var edges []Edge

	for _, row := range rows {
		sourceChunk, err := s.resolveChunk(ctx, snapshotID, row.SourcePath, row.SourceByteRange)
		if err != nil {
			return resolved, droppedToFile, err
		}
		if sourceChunk == "" {
			// No source chunk and no source file: nothing to attach the edge to.
			continue
		}

		targetChunk, err := s.resolveChunk(ctx, snapshotID, row.TargetPath, row.TargetByteRange)
		if err != nil {
			return resolved, droppedToFile, err
		}

		var targetRef string
		if targetChunk != "" {
			targetRef = targetChunk
		} else {
			targetFile, err := s.FileByPath(ctx, snapshotID, row.TargetPath)
			if err != nil && err != ErrNotFound {
				return resolved, droppedToFile, err
			}
			if targetFile == nil {
				continue
			}
			targetRef = targetFile.ID
		}

		edge := Edge{
			ID:            fmt.Sprintf("%s:%s:%s", sourceChunk, targetRef, row.Relation),
			SourceChunkID: sourceChunk,
			Kind:          row.Relation,
		}
		if targetChunk != "" {
			edge.TargetChunkID = targetChunk
			resolved++
		} else {
			edge.TargetFileID = targetRef
			droppedToFile++
		}
		edges = append(edges, edge)
	}

	if err := s.AddEdges(ctx, edges); err != nil {
		return resolved, droppedToFile, err
	}
	return resolved, droppedToFile, nil
}

// resolveChunk finds the chunk in `path` whose byte range equals byteRange,
// or, failing that, the smallest chunk containing it. Returns "" if the file
// itself cannot be found.
func (s *SQLiteStore) resolveChunk(ctx context.Context, snapshotID, path string, byteRange [2]int) (string, error) {
	file, err := s.FileByPath(ctx, snapshotID, path)
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var exactID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM chunks WHERE file_id = ? AND start_byte = ? AND end_byte = ?`,
		file.ID, byteRange[0], byteRange[1],
	).Scan(&exactID)
	if err == nil {
		return exactID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("resolve exact chunk: %w", err)
	}

	var containingID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM chunks WHERE file_id = ? AND start_byte <= ? AND end_byte >= ?
		 ORDER BY (end_byte - start_byte) ASC LIMIT 1`,
		file.ID, byteRange[0], byteRange[1],
	).Scan(&containingID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve containing chunk: %w", err)
	}
	return containingID, nil
}

func (s *SQLiteStore) FileByHash(ctx context.Context, repoID, blobHash string) (*File, error) {
	if blobHash == "" {
		return nil, ErrNotFound
	}
	var f File
	var category string
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.snapshot_id, f.path, f.language, f.size_bytes, f.category, f.blob_hash,
		       f.parsing_status, f.parsing_error, f.indexed_at
		FROM files f
		JOIN snapshots sn ON sn.id = f.snapshot_id
		WHERE sn.repository_id = ? AND f.blob_hash = ?
		ORDER BY f.indexed_at DESC LIMIT 1
	`, repoID, blobHash).Scan(&f.ID, &f.SnapshotID, &f.Path, &f.Language, &f.SizeBytes, &category,
		&f.BlobHash, &f.ParsingStatus, &f.ParsingError, &f.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file by hash: %w", err)
	}
	f.Category = FileCategory(category)
	return &f, nil
}

func (s *SQLiteStore) FileByPath(ctx context.Context, snapshotID, path string) (*File, error) {
	var f File
	var category string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, snapshot_id, path, language, size_bytes, category, blob_hash, parsing_status, parsing_error, indexed_at
		FROM files WHERE snapshot_id = ? AND path = ?
	`, snapshotID, path).Scan(&f.ID, &f.SnapshotID, &f.Path, &f.Language, &f.SizeBytes, &category,
		&f.BlobHash, &f.ParsingStatus, &f.ParsingError, &f.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.Category = FileCategory(category)
	return &f, nil
}

func (s *SQLiteStore) ChunksByFile(ctx context.Context, fileID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, content_hash, start_byte, end_byte, start_line, end_line, metadata_json
		FROM chunks WHERE file_id = ? ORDER BY start_byte ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("chunks by file: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var meta string
		if err := rows.Scan(&c.ID, &c.FileID, &c.ContentHash, &c.StartByte, &c.EndByte, &c.StartLine, &c.EndLine, &meta); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ContentByHash(ctx context.Context, hash string) (*Content, error) {
	var c Content
	err := s.db.QueryRowContext(ctx, `SELECT hash, text, size FROM contents WHERE hash = ?`, hash).Scan(&c.Hash, &c.Text, &c.Size)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content by hash: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ChunkByID(ctx context.Context, chunkID string) (*ChunkRow, error) {
	var row ChunkRow
	var category string
	var meta string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.file_id, c.content_hash, c.start_byte, c.end_byte, c.start_line, c.end_line, c.metadata_json,
		       f.path, f.language, f.category, f.snapshot_id, ct.text
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		JOIN contents ct ON ct.hash = c.content_hash
		WHERE c.id = ?
	`, chunkID).Scan(&row.Chunk.ID, &row.Chunk.FileID, &row.Chunk.ContentHash, &row.Chunk.StartByte, &row.Chunk.EndByte,
		&row.Chunk.StartLine, &row.Chunk.EndLine, &meta, &row.FilePath, &row.Language, &category, &row.SnapshotID, &row.Content)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chunk by id: %w", err)
	}
	_ = json.Unmarshal([]byte(meta), &row.Chunk.Metadata)
	row.Category = FileCategory(category)
	return &row, nil
}
