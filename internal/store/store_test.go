package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func sha256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureRepository_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)
	id2, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "dev", "repo")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestCreateSnapshot_ReindexSameCommitIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)

	id1, created1, err := s.CreateSnapshot(ctx, repoID, "deadbeef", false)
	require.NoError(t, err)
	require.True(t, created1)
	require.NoError(t, s.ActivateSnapshot(ctx, repoID, id1, SnapshotStats{}, nil))

	id2, created2, err := s.CreateSnapshot(ctx, repoID, "deadbeef", false)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)

	// force_new bypasses the reuse path and creates a fresh indexing snapshot.
	id3, created3, err := s.CreateSnapshot(ctx, repoID, "deadbeef", true)
	require.NoError(t, err)
	require.True(t, created3)
	require.NotEqual(t, id1, id3)
}

func TestCreateSnapshot_ConcurrentIndexingGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)

	id1, created1, err := s.CreateSnapshot(ctx, repoID, "c1", false)
	require.NoError(t, err)
	require.True(t, created1)
	require.NotEmpty(t, id1)

	// A second indexing attempt on the same repository loses the race while
	// the first snapshot is still `indexing`.
	id2, created2, err := s.CreateSnapshot(ctx, repoID, "c2", true)
	require.NoError(t, err)
	require.False(t, created2)
	require.Empty(t, id2)
}

func TestActivateSnapshot_PointsCurrentSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)

	snapID, _, err := s.CreateSnapshot(ctx, repoID, "c1", false)
	require.NoError(t, err)

	// Readers never observe an indexing snapshot.
	active, err := s.ActiveSnapshotOf(ctx, repoID)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, s.ActivateSnapshot(ctx, repoID, snapID, SnapshotStats{FilesTotal: 3}, &ManifestNode{Name: "/", Type: "dir"}))

	active, err = s.ActiveSnapshotOf(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, snapID, active)

	snap, err := s.GetSnapshot(ctx, snapID)
	require.NoError(t, err)
	require.Equal(t, SnapshotCompleted, snap.Status)
	require.Equal(t, 3, snap.Stats.FilesTotal)
	require.NotNil(t, snap.Manifest)
}

func TestActivateSnapshot_IllegalTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)
	snapID, _, err := s.CreateSnapshot(ctx, repoID, "c1", false)
	require.NoError(t, err)
	require.NoError(t, s.ActivateSnapshot(ctx, repoID, snapID, SnapshotStats{}, nil))

	err = s.ActivateSnapshot(ctx, repoID, snapID, SnapshotStats{}, nil)
	require.ErrorIs(t, err, ErrState)
}

func TestFailSnapshot_NeverTouchesActivePointer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)

	firstSnap, _, err := s.CreateSnapshot(ctx, repoID, "c1", false)
	require.NoError(t, err)
	require.NoError(t, s.ActivateSnapshot(ctx, repoID, firstSnap, SnapshotStats{}, nil))

	secondSnap, _, err := s.CreateSnapshot(ctx, repoID, "c2", true)
	require.NoError(t, err)
	require.NoError(t, s.FailSnapshot(ctx, secondSnap, "boom"))

	active, err := s.ActiveSnapshotOf(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, firstSnap, active)

	snap, err := s.GetSnapshot(ctx, secondSnap)
	require.NoError(t, err)
	require.Equal(t, SnapshotFailed, snap.Status)
}

func TestAddContents_ContentAddressing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	text := "package foo\n"
	hash := sha256Hex(text)
	require.NoError(t, s.AddContents(ctx, []Content{{Hash: hash, Text: text, Size: len(text)}}))

	got, err := s.ContentByHash(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, text, got.Text)
	require.Equal(t, len(text), got.Size)

	// Re-adding the same hash is idempotent, not an error.
	require.NoError(t, s.AddContents(ctx, []Content{{Hash: hash, Text: text, Size: len(text)}}))
}

// seedFileWithChunk creates a repository, an indexing snapshot, one file,
// its content, and one chunk, returning their ids for use by tests that
// exercise search/edges/embeddings.
func seedFileWithChunk(t *testing.T, s *SQLiteStore, path, text string) (snapshotID, fileID, chunkID string) {
	t.Helper()
	ctx := context.Background()

	repoID, err := s.EnsureRepository(ctx, "https://example.com/repo.git", "main", "repo")
	require.NoError(t, err)
	snapshotID, _, err = s.CreateSnapshot(ctx, repoID, uuid.NewString(), true)
	require.NoError(t, err)

	fileID = uuid.NewString()
	require.NoError(t, s.AddFiles(ctx, []File{{
		ID: fileID, SnapshotID: snapshotID, Path: path, Language: "python",
		SizeBytes: int64(len(text)), Category: CategorySource, ParsingStatus: "success",
	}}))

	hash := sha256Hex(text)
	require.NoError(t, s.AddContents(ctx, []Content{{Hash: hash, Text: text, Size: len(text)}}))

	chunkID = uuid.NewString()
	require.NoError(t, s.AddChunks(ctx, []Chunk{{
		ID: chunkID, FileID: fileID, ContentHash: hash,
		StartByte: 0, EndByte: len(text), StartLine: 1, EndLine: 1,
		Metadata: ChunkMetadata{Kind: "function_definition", Name: "foo"},
	}}))

	require.NoError(t, s.AddFTS(ctx, []FTSEntry{{
		ChunkID: chunkID, SnapshotID: snapshotID, FileID: fileID,
		Tags: "function foo", Content: "def foo ( ) : pass",
	}}))
	return snapshotID, fileID, chunkID
}

func TestSearchFTS_FindsChunkByToken(t *testing.T) {
	s := openTestStore(t)
	snapshotID, _, chunkID := seedFileWithChunk(t, s, "a.py", "def foo():\n    pass\n")

	hits, err := s.SearchFTS(context.Background(), "foo", 10, snapshotID, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, chunkID, hits[0].ChunkID)
}

func TestSearchFTS_FiltersByLanguageAndCategory(t *testing.T) {
	s := openTestStore(t)
	snapshotID, _, _ := seedFileWithChunk(t, s, "a.py", "def foo():\n    pass\n")

	hits, err := s.SearchFTS(context.Background(), "foo", 10, snapshotID, SearchFilters{ExcludeLanguage: []string{"python"}})
	require.NoError(t, err)
	require.Empty(t, hits)
}

// seedTwoFileSnapshot creates one repository and one indexing snapshot
// containing both a.py and b.py (each with a single chunk spanning the
// whole file), so cross-file relations between them can resolve within the
// snapshot-scoping rule (spec data model: "source and target live in the
// same snapshot").
func seedTwoFileSnapshot(t *testing.T, s *SQLiteStore) (snapshotID, fileA, chunkA, fileB, chunkB string) {
	t.Helper()
	ctx := context.Background()

	repoID, err := s.EnsureRepository(ctx, "https://example.com/two-file-repo.git", "main", "repo")
	require.NoError(t, err)
	snapshotID, _, err = s.CreateSnapshot(ctx, repoID, uuid.NewString(), true)
	require.NoError(t, err)

	addFile := func(path, text string) (fileID, chunkID string) {
		fileID = uuid.NewString()
		require.NoError(t, s.AddFiles(ctx, []File{{
			ID: fileID, SnapshotID: snapshotID, Path: path, Language: "python",
			SizeBytes: int64(len(text)), Category: CategorySource, ParsingStatus: "success",
		}}))
		hash := sha256Hex(text)
		require.NoError(t, s.AddContents(ctx, []Content{{Hash: hash, Text: text, Size: len(text)}}))
		chunkID = uuid.NewString()
		require.NoError(t, s.AddChunks(ctx, []Chunk{{
			ID: chunkID, FileID: fileID, ContentHash: hash,
			StartByte: 0, EndByte: len(text), StartLine: 1, EndLine: 1,
		}}))
		return fileID, chunkID
	}

	fileA, chunkA = addFile("a.py", "def foo():\n    pass\n")
	fileB, chunkB = addFile("b.py", "import a\na.foo()\n")
	return snapshotID, fileA, chunkA, fileB, chunkB
}

func TestIngestCrossFileRelations_ResolvesExactAndContaining(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	snapshotID, _, chunkA, _, chunkB := seedTwoFileSnapshot(t, s)

	rows := []RelationRow{
		{SourcePath: "b.py", SourceByteRange: [2]int{0, 17}, TargetPath: "a.py", TargetByteRange: [2]int{0, 17}, Relation: RelationCalls},
	}
	resolved, dropped, err := s.IngestCrossFileRelations(ctx, snapshotID, rows)
	require.NoError(t, err)
	require.Equal(t, 1, resolved)
	require.Equal(t, 0, dropped)

	edges, err := s.Neighbors(ctx, chunkB)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, chunkA, edges[0].TargetChunkID)
	require.Equal(t, RelationCalls, edges[0].Kind)
}

func TestIngestCrossFileRelations_UnresolvedAttachesToFileNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	snapshotID, fileA, _, _, chunkB := seedTwoFileSnapshot(t, s)

	// Byte range far outside any chunk in a.py: falls back to the file-level
	// pseudo-node per spec §9's Open Question decision (recorded, not dropped).
	rows := []RelationRow{
		{SourcePath: "b.py", SourceByteRange: [2]int{0, 17}, TargetPath: "a.py", TargetByteRange: [2]int{900, 950}, Relation: RelationReferences},
	}
	resolved, dropped, err := s.IngestCrossFileRelations(ctx, snapshotID, rows)
	require.NoError(t, err)
	require.Equal(t, 0, resolved)
	require.Equal(t, 1, dropped)

	edges, err := s.Neighbors(ctx, chunkB)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Empty(t, edges[0].TargetChunkID)
	require.Equal(t, fileA, edges[0].TargetFileID)
}

func TestUniquePerModelEmbedding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	snapshotID, fileID, chunkID := seedFileWithChunk(t, s, "a.py", "def foo():\n    pass\n")

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	require.NoError(t, s.PrepareStaging(ctx, snapshotID))
	require.NoError(t, s.BulkLoadStaging(ctx, []StagingRow{{
		ChunkID: chunkID, SnapshotID: snapshotID, FileID: fileID, Model: "m1",
		VectorHash: "h1", Prompt: "p1",
	}}))
	require.NoError(t, s.WriteVectors(ctx, []StagingRow{{
		ChunkID: chunkID, SnapshotID: snapshotID, FileID: fileID, Model: "m1",
		VectorHash: "h1", Prompt: "p1", Vector: vec,
	}}))
	promoted, err := s.PromoteStaging(ctx, snapshotID, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	hits, err := s.SearchVectors(ctx, vec, 5, snapshotID, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, chunkID, hits[0].ChunkID)

	// A fresh staging row for the same (chunk, model) and hash is a cache
	// hit: CopyCachedVectors fills it from the stored vector.
	require.NoError(t, s.PrepareStaging(ctx, snapshotID))
	require.NoError(t, s.BulkLoadStaging(ctx, []StagingRow{{
		ChunkID: chunkID, SnapshotID: snapshotID, FileID: fileID, Model: "m1",
		VectorHash: "h1", Prompt: "p1",
	}}))
	n, err := s.CopyCachedVectors(ctx, snapshotID, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
