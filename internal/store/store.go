package store

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultVectorDimension is used when a caller does not configure one
// explicitly; it matches common embedding models (e.g. nomic-embed-text).
const DefaultVectorDimension = 768

// Store is the storage engine's public contract (spec §4.1): persistence,
// transactional bulk ingest, and typed query helpers. Implementations must
// never expose a partially-written snapshot to readers.
type Store interface {
	EnsureRepository(ctx context.Context, url, branch, name string) (string, error)
	GetRepository(ctx context.Context, id string) (*Repository, error)
	CreateSnapshot(ctx context.Context, repoID, commitHash string, forceNew bool) (id string, created bool, err error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ActivateSnapshot(ctx context.Context, repoID, snapshotID string, stats SnapshotStats, manifest *ManifestNode) error
	FailSnapshot(ctx context.Context, snapshotID string, cause string) error
	ActiveSnapshotOf(ctx context.Context, repoID string) (string, error)

	AddFiles(ctx context.Context, files []File) error
	AddContents(ctx context.Context, contents []Content) error
	AddChunks(ctx context.Context, chunks []Chunk) error
	AddEdges(ctx context.Context, edges []Edge) error
	AddFTS(ctx context.Context, entries []FTSEntry) error
	IngestCrossFileRelations(ctx context.Context, snapshotID string, rows []RelationRow) (resolved, droppedToFile int, err error)

	FileByHash(ctx context.Context, repoID, blobHash string) (*File, error)
	FileByPath(ctx context.Context, snapshotID, path string) (*File, error)
	ChunksByFile(ctx context.Context, fileID string) ([]Chunk, error)
	ContentByHash(ctx context.Context, hash string) (*Content, error)
	ChunkByID(ctx context.Context, chunkID string) (*ChunkRow, error)

	SearchVectors(ctx context.Context, queryVector []float32, limit int, snapshotID string, filters SearchFilters) ([]VectorHit, error)
	SearchFTS(ctx context.Context, query string, limit int, snapshotID string, filters SearchFilters) ([]KeywordHit, error)

	Neighbors(ctx context.Context, chunkID string) ([]Edge, error)
	Parent(ctx context.Context, chunkID string) (*Chunk, error)
	IncomingRefs(ctx context.Context, chunkID string) ([]Edge, error)
	OutgoingCalls(ctx context.Context, chunkID string) ([]Edge, error)
	SiblingChunks(ctx context.Context, fileID string) ([]Chunk, error)

	ChunksNeedingEmbedding(ctx context.Context, snapshotID, model string) ([]EmbeddingCandidate, error)

	PrepareStaging(ctx context.Context, snapshotID string) error
	BulkLoadStaging(ctx context.Context, rows []StagingRow) error
	CopyCachedVectors(ctx context.Context, snapshotID, model string) (int, error)
	FetchStagingDelta(ctx context.Context, snapshotID, model string, batch int) ([]StagingRow, error)
	WriteVectors(ctx context.Context, records []StagingRow) error
	MarkStagingErrored(ctx context.Context, chunkIDs []string, model, msg string) error
	PromoteStaging(ctx context.Context, snapshotID, model string) (promoted int, err error)

	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}

// StagingRow is one row of the embedding pipeline's ephemeral staging table.
type StagingRow struct {
	ChunkID    string
	SnapshotID string
	FileID     string
	Model      string
	VectorHash string
	Prompt     string
	Vector     []float32 // nil until embedded
}

// RelationRow is one cross-file relation produced by an external extractor
// (spec §4.4, §6 "Cross-file relation feed").
type RelationRow struct {
	SourcePath      string
	SourceByteRange [2]int
	TargetPath      string
	TargetByteRange [2]int
	Relation        RelationKind
}

// SQLiteStore implements Store on SQLite + sqlite-vec + FTS5, following the
// connection-pool-per-call discipline of spec §5 ("each public call takes one
// connection for the duration of one logical operation").
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

// Open creates or opens a SQLite database at dbPath and initializes the
// schema for the given embedding vector dimension.
func Open(dbPath string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		dimension = DefaultVectorDimension
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(32)
	db.SetMaxIdleConns(16)
	if err := Init(db, dimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db, dimension: dimension}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
