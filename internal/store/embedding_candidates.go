package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// EmbeddingCandidate is one chunk in a snapshot lacking an embedding under
// the target model, joined with everything the embedding pipeline's prompt
// template needs (spec §4.6 stage 2).
type EmbeddingCandidate struct {
	Chunk     Chunk
	FileID    string
	RelPath   string
	Language  string
	Category  FileCategory
	Content   string
	DefinedBy []string // names of chunks with an incoming `defines`/`references` edge
}

// ChunksNeedingEmbedding returns every chunk in snapshotID that has no row
// in the permanent embeddings table for model yet.
func (s *SQLiteStore) ChunksNeedingEmbedding(ctx context.Context, snapshotID, model string) ([]EmbeddingCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_id, c.content_hash, c.start_byte, c.end_byte, c.start_line, c.end_line, c.metadata_json,
		       f.path, f.language, f.category, ct.text
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		JOIN contents ct ON ct.hash = c.content_hash
		LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model = ?
		WHERE f.snapshot_id = ? AND e.chunk_id IS NULL
		ORDER BY c.start_byte ASC
	`, model, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("chunks needing embedding: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingCandidate
	for rows.Next() {
		var ec EmbeddingCandidate
		var meta, category string
		if err := rows.Scan(&ec.Chunk.ID, &ec.Chunk.FileID, &ec.Chunk.ContentHash, &ec.Chunk.StartByte, &ec.Chunk.EndByte,
			&ec.Chunk.StartLine, &ec.Chunk.EndLine, &meta, &ec.RelPath, &ec.Language, &category, &ec.Content); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(meta), &ec.Chunk.Metadata)
		ec.FileID = ec.Chunk.FileID
		ec.Category = FileCategory(category)
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		names, err := s.incomingDefinerNames(ctx, out[i].Chunk.ID)
		if err != nil {
			return nil, err
		}
		out[i].DefinedBy = names
	}
	return out, nil
}

// incomingDefinerNames returns the chunk names of edges whose target is
// chunkID and whose kind is defines or references, for the prompt's
// "Defines:" line.
func (s *SQLiteStore) incomingDefinerNames(ctx context.Context, chunkID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.metadata_json
		FROM edges ed
		JOIN chunks c ON c.id = ed.source_chunk_id
		WHERE ed.target_chunk_id = ? AND ed.kind IN (?, ?)
	`, chunkID, string(RelationDefines), string(RelationReferences))
	if err != nil {
		return nil, fmt.Errorf("incoming definer names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var meta string
		if err := rows.Scan(&meta); err != nil {
			return nil, err
		}
		var m ChunkMetadata
		if json.Unmarshal([]byte(meta), &m) == nil && m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, rows.Err()
}
