package store

import (
	"database/sql"
	"fmt"
)

// ddl is the full schema for the storage engine: relational tables for
// repositories/snapshots/files/contents/chunks/edges, a sqlite-vec virtual
// table for embeddings, an FTS5 virtual table for keyword search, and an
// ephemeral staging table for the embedding pipeline (§4.6).
const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;
PRAGMA synchronous=NORMAL;

CREATE TABLE IF NOT EXISTS repositories (
    id                   TEXT PRIMARY KEY,
    url                  TEXT NOT NULL,
    branch               TEXT NOT NULL,
    name                 TEXT NOT NULL DEFAULT '',
    current_snapshot_id  TEXT,
    reindex_requested_at DATETIME,
    created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(url, branch)
);

CREATE TABLE IF NOT EXISTS snapshots (
    id            TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    commit_hash   TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'indexing',
    stats_json    TEXT NOT NULL DEFAULT '{}',
    manifest_json TEXT NOT NULL DEFAULT '{}',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at  DATETIME
);
CREATE INDEX IF NOT EXISTS idx_snapshots_repo ON snapshots (repository_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_completed_commit
    ON snapshots (repository_id, commit_hash)
    WHERE status = 'completed';

CREATE TABLE IF NOT EXISTS files (
    id             TEXT PRIMARY KEY,
    snapshot_id    TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    path           TEXT NOT NULL,
    language       TEXT NOT NULL DEFAULT '',
    size_bytes     INTEGER NOT NULL DEFAULT 0,
    category       TEXT NOT NULL DEFAULT 'source',
    blob_hash      TEXT NOT NULL DEFAULT '',
    parsing_status TEXT NOT NULL DEFAULT 'success',
    parsing_error  TEXT NOT NULL DEFAULT '',
    indexed_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(snapshot_id, path)
);
CREATE INDEX IF NOT EXISTS idx_files_snapshot ON files (snapshot_id);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files (blob_hash);

CREATE TABLE IF NOT EXISTS contents (
    hash TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT PRIMARY KEY,
    file_id      TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    content_hash TEXT NOT NULL REFERENCES contents(hash),
    start_byte   INTEGER NOT NULL,
    end_byte     INTEGER NOT NULL,
    start_line   INTEGER NOT NULL,
    end_line     INTEGER NOT NULL,
    metadata_json TEXT NOT NULL DEFAULT '{}',
    UNIQUE(file_id, start_byte, end_byte)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks (file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_range ON chunks (file_id, start_byte, end_byte);

CREATE TABLE IF NOT EXISTS edges (
    id              TEXT PRIMARY KEY,
    source_chunk_id TEXT NOT NULL,
    target_chunk_id TEXT NOT NULL DEFAULT '',
    target_file_id  TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL,
    metadata        TEXT NOT NULL DEFAULT '',
    UNIQUE(source_chunk_id, target_chunk_id, target_file_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source_chunk_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target_chunk_id);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id TEXT PRIMARY KEY,
    embedding float[%d]
);

CREATE TABLE IF NOT EXISTS embeddings (
    chunk_id    TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    file_id     TEXT NOT NULL,
    model       TEXT NOT NULL,
    vector_hash TEXT NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (chunk_id, model)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_hash ON embeddings (vector_hash);
CREATE INDEX IF NOT EXISTS idx_embeddings_snapshot ON embeddings (snapshot_id);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_index USING fts5(
    chunk_id UNINDEXED,
    snapshot_id UNINDEXED,
    file_id UNINDEXED,
    tags,
    content,
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS embedding_staging (
    chunk_id    TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    file_id     TEXT NOT NULL,
    model       TEXT NOT NULL,
    vector_hash TEXT NOT NULL,
    prompt      TEXT NOT NULL,
    embedding   BLOB,
    error       TEXT,
    PRIMARY KEY (chunk_id, model)
);
CREATE INDEX IF NOT EXISTS idx_staging_hash ON embedding_staging (vector_hash);

CREATE TABLE IF NOT EXISTS coordination (
    key        TEXT PRIMARY KEY,
    owner      TEXT NOT NULL,
    acquired_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Init creates the schema if it does not already exist. dimension is the
// fixed embedding vector width stored by vec_chunks.
func Init(db *sql.DB, dimension int) error {
	stmt := fmt.Sprintf(ddl, dimension)
	_, err := db.Exec(stmt)
	return err
}
