// Package store persists the code property graph: repositories, snapshots,
// files, content-addressed text, chunks, edges, embeddings, and the full-text
// index, under snapshot isolation.
package store

import "time"

// SnapshotStatus is the lifecycle state of a Snapshot.
type SnapshotStatus string

const (
	SnapshotIndexing  SnapshotStatus = "indexing"
	SnapshotCompleted SnapshotStatus = "completed"
	SnapshotFailed    SnapshotStatus = "failed"
)

// FileCategory classifies a file by path heuristics.
type FileCategory string

const (
	CategorySource FileCategory = "source"
	CategoryTest   FileCategory = "test"
	CategoryConfig FileCategory = "config"
	CategoryDocs   FileCategory = "docs"
)

// RelationKind is the directed relation a graph Edge carries.
type RelationKind string

const (
	RelationChildOf      RelationKind = "child_of"
	RelationCalls        RelationKind = "calls"
	RelationReferences   RelationKind = "references"
	RelationImports      RelationKind = "imports"
	RelationInherits     RelationKind = "inherits"
	RelationDefines      RelationKind = "defines"
	RelationReadsFrom    RelationKind = "reads_from"
	RelationInstantiates RelationKind = "instantiates"
)

// Repository is the stable container for a versioned codebase.
type Repository struct {
	ID                string
	URL               string
	Branch            string
	Name              string
	CurrentSnapshotID string // empty if no active snapshot
	ReindexRequestedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Snapshot is an immutable view of a repository at one commit.
type Snapshot struct {
	ID           string
	RepositoryID string
	CommitHash   string
	Status       SnapshotStatus
	Stats        SnapshotStats
	Manifest     *ManifestNode
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// SnapshotStats aggregates counters produced by one indexing run.
type SnapshotStats struct {
	FilesTotal           int   `json:"files_total"`
	FilesIndexed         int   `json:"files_indexed"`
	FilesSkipped         int   `json:"files_skipped"`
	FilesFailed          int   `json:"files_failed"`
	ChunksTotal          int   `json:"chunks_total"`
	EdgesTotal           int   `json:"edges_total"`
	EdgesDroppedToFile   int   `json:"edges_dropped_to_file_node"`
	ParseDurationMillis  int64 `json:"parse_duration_ms"`
}

// ManifestNode is one entry of a snapshot's nested directory tree.
type ManifestNode struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"` // "dir" or "file"
	Children []*ManifestNode `json:"children,omitempty"`
}

// File is a single source file tracked within a snapshot.
type File struct {
	ID            string
	SnapshotID    string
	Path          string
	Language      string
	SizeBytes     int64
	Category      FileCategory
	BlobHash      string // Git SHA-1, empty for untracked files
	ParsingStatus string // "success", "skipped", "failed"
	ParsingError  string
	IndexedAt     time.Time
}

// Content is deduplicated chunk text, addressed by SHA-256 of its bytes.
type Content struct {
	Hash string
	Text string
	Size int
}

// Chunk is a byte-precise, syntactically-aligned segment of a file.
type Chunk struct {
	ID         string
	FileID     string
	ContentHash string
	StartByte  int
	EndByte    int
	StartLine  int
	EndLine    int
	Metadata   ChunkMetadata
}

// ChunkMetadata carries semantic tags and derived identifiers for a chunk.
type ChunkMetadata struct {
	Kind        string   `json:"kind"`                  // tree-sitter node type
	Name        string   `json:"name,omitempty"`        // captured identifier, if any
	Roles       []string `json:"roles,omitempty"`       // entry_point, test_case, api_endpoint, ...
	Tags        []string `json:"tags,omitempty"`        // other semantic captures
	Oversize    bool     `json:"oversize,omitempty"`     // emitted atomically above budget+tolerance
	Identifiers []string `json:"identifiers,omitempty"` // identifier tokens found in the chunk
}

// Edge is a directed relation between two chunks, or a chunk and a file-level
// pseudo-node (TargetChunkID empty, TargetFileID set instead).
type Edge struct {
	ID            string
	SourceChunkID string
	TargetChunkID string
	TargetFileID  string
	Kind          RelationKind
	Metadata      string // free-form JSON, e.g. symbol name
}

// Embedding is one vector for one chunk under one model.
type Embedding struct {
	ChunkID    string
	SnapshotID string
	FileID     string
	Vector     []float32
	VectorHash string // sha256(prompt), the cache key
	Model      string
}

// FTSEntry is the weighted token document maintained in lockstep with a chunk.
type FTSEntry struct {
	ChunkID    string
	SnapshotID string
	FileID     string
	Tags       string // weighted-high tokens
	Content    string // weighted-low tokens
}

// SearchFilters narrows search and is applied before ranking.
type SearchFilters struct {
	Language        []string
	ExcludeLanguage []string
	Category        []string
	ExcludeCategory []string
	Role            []string
	ExcludeRole     []string
	PathPrefix      []string
}

// VectorHit is one result row from a vector similarity search.
type VectorHit struct {
	ChunkID  string
	Distance float64
}

// KeywordHit is one result row from a full-text search.
type KeywordHit struct {
	ChunkID string
	Rank    float64
}

// ChunkRow is a denormalized chunk read, joined against its owning file.
type ChunkRow struct {
	Chunk       Chunk
	FilePath    string
	Language    string
	Category    FileCategory
	Content     string
	SnapshotID  string
}
