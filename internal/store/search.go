package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// serializeVector packs a float32 vector into the little-endian byte layout
// sqlite-vec expects for a `float[N]` column.
func serializeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

// filterClause builds the shared WHERE fragment applying SearchFilters
// before ranking, per spec §4.2 ("filters narrow the candidate set before
// scoring, never after").
func filterClause(f SearchFilters, args *[]any) string {
	var clauses []string
	in := func(col string, values []string, negate bool) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = "?"
			*args = append(*args, v)
		}
		op := "IN"
		if negate {
			op = "NOT IN"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ",")))
	}
	in("f.language", f.Language, false)
	in("f.language", f.ExcludeLanguage, true)
	in("f.category", f.Category, false)
	in("f.category", f.ExcludeCategory, true)

	if len(f.PathPrefix) > 0 {
		var prefixClauses []string
		for _, p := range f.PathPrefix {
			prefixClauses = append(prefixClauses, "f.path LIKE ? ESCAPE '\\'")
			*args = append(*args, strings.NewReplacer("%", "\\%", "_", "\\_").Replace(p)+"%")
		}
		clauses = append(clauses, "("+strings.Join(prefixClauses, " OR ")+")")
	}

	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}

// roleFilterApplies reports whether c.metadata_json must be checked in Go
// because SQLite has no native JSON-array "contains" for our role lists.
func roleFilterApplies(f SearchFilters) bool {
	return len(f.Role) > 0 || len(f.ExcludeRole) > 0
}

func matchesRoleFilter(metaJSON string, f SearchFilters) bool {
	if !roleFilterApplies(f) {
		return true
	}
	var meta ChunkMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return false
	}
	has := func(role string) bool {
		for _, r := range meta.Roles {
			if r == role {
				return true
			}
		}
		return false
	}
	for _, r := range f.Role {
		if !has(r) {
			return false
		}
	}
	for _, r := range f.ExcludeRole {
		if has(r) {
			return false
		}
	}
	return true
}

// SearchVectors returns the nearest chunks to queryVector by cosine distance,
// scoped to one snapshot and narrowed by filters. The k nearest vectors are
// picked across the whole vec_chunks table first; the snapshot and filter
// conditions are then applied to those k rows, so fewer than limit hits can
// come back. k is over-fetched when a role filter is present since roles are
// not indexable in SQL, and the hits are trimmed back to limit.
func (s *SQLiteStore) SearchVectors(ctx context.Context, queryVector []float32, limit int, snapshotID string, filters SearchFilters) ([]VectorHit, error) {
	fetch := limit
	if roleFilterApplies(filters) {
		fetch = limit * 4
		if fetch < 50 {
			fetch = 50
		}
	}

	var args []any
	args = append(args, serializeVector(queryVector))
	query := `
		SELECT v.chunk_id, v.distance, c.metadata_json
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE v.embedding MATCH ? AND v.k = ? AND f.snapshot_id = ?
	`
	args = append(args, fetch, snapshotID)
	query += filterClause(filters, &args)
	query += " ORDER BY v.distance ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		var meta string
		if err := rows.Scan(&h.ChunkID, &h.Distance, &meta); err != nil {
			return nil, err
		}
		if !matchesRoleFilter(meta, filters) {
			continue
		}
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	return hits, rows.Err()
}

// SearchFTS returns chunks matching query by FTS5 bm25 rank, scoped to one
// snapshot and narrowed by filters before ranking.
func (s *SQLiteStore) SearchFTS(ctx context.Context, query string, limit int, snapshotID string, filters SearchFilters) ([]KeywordHit, error) {
	fetch := limit
	if roleFilterApplies(filters) {
		fetch = limit * 4
		if fetch < 50 {
			fetch = 50
		}
	}

	var args []any
	args = append(args, query)
	sqlQuery := `
		SELECT fi.chunk_id, bm25(fts_index, 0.0, 0.0, 0.0, 10.0, 1.0) AS rank, c.metadata_json
		FROM fts_index fi
		JOIN chunks c ON c.id = fi.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE fts_index MATCH ? AND fi.snapshot_id = ?
	`
	args = append(args, snapshotID)
	sqlQuery += filterClause(filters, &args)
	sqlQuery += " ORDER BY rank ASC LIMIT ?"
	args = append(args, fetch)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		var meta string
		if err := rows.Scan(&h.ChunkID, &h.Rank, &meta); err != nil {
			return nil, err
		}
		if !matchesRoleFilter(meta, filters) {
			continue
		}
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	return hits, rows.Err()
}

// Neighbors returns all outgoing edges from chunkID.
func (s *SQLiteStore) Neighbors(ctx context.Context, chunkID string) ([]Edge, error) {
	return s.queryEdges(ctx, `SELECT id, source_chunk_id, target_chunk_id, target_file_id, kind, metadata FROM edges WHERE source_chunk_id = ?`, chunkID)
}

// Parent returns the structural parent chunk via the child_of edge, if any.
func (s *SQLiteStore) Parent(ctx context.Context, chunkID string) (*Chunk, error) {
	var parentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT target_chunk_id FROM edges WHERE source_chunk_id = ? AND kind = ? AND target_chunk_id != ''`,
		chunkID, string(RelationChildOf),
	).Scan(&parentID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("parent lookup: %w", err)
	}
	row, err := s.ChunkByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return &row.Chunk, nil
}

// IncomingRefs returns edges referencing chunkID as their target.
func (s *SQLiteStore) IncomingRefs(ctx context.Context, chunkID string) ([]Edge, error) {
	return s.queryEdges(ctx, `SELECT id, source_chunk_id, target_chunk_id, target_file_id, kind, metadata FROM edges WHERE target_chunk_id = ?`, chunkID)
}

// OutgoingCalls returns the `calls` edges originating at chunkID, capped by
// the walker's definitions-per-hit budget at the caller.
func (s *SQLiteStore) OutgoingCalls(ctx context.Context, chunkID string) ([]Edge, error) {
	return s.queryEdges(ctx,
		`SELECT id, source_chunk_id, target_chunk_id, target_file_id, kind, metadata FROM edges WHERE source_chunk_id = ? AND kind = ?`,
		chunkID, string(RelationCalls),
	)
}

// SiblingChunks returns every chunk belonging to the same file as fileID,
// ordered by position, for neighbor-chunk navigation.
func (s *SQLiteStore) SiblingChunks(ctx context.Context, fileID string) ([]Chunk, error) {
	return s.ChunksByFile(ctx, fileID)
}

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var kind string
		if err := rows.Scan(&e.ID, &e.SourceChunkID, &e.TargetChunkID, &e.TargetFileID, &kind, &e.Metadata); err != nil {
			return nil, err
		}
		e.Kind = RelationKind(kind)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
