package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codegraph/internal/chunker"
	"codegraph/internal/collector"
	"codegraph/internal/store"

	"github.com/google/uuid"
)

// processBatch handles one collector batch: cache-hit reattachment for
// files whose git hash already has a prior File record, and fresh parsing
// for everything else (spec §4.5 steps 4-5).
func (o *Orchestrator) processBatch(ctx context.Context, repoID, snapshotID, worktreePath string, batch []collector.FileDescriptor) ([]store.File, fileOutcome, error) {
	var files []store.File
	var outcome fileOutcome

	var allChunks []store.Chunk
	var allContents []store.Content
	var allEdges []store.Edge
	var allFTS []store.FTSEntry

	for _, fd := range batch {
		if ctx.Err() != nil {
			return files, outcome, ctx.Err()
		}

		if fd.IsTracked() {
			if prior, err := o.store.FileByHash(ctx, repoID, fd.GitHash); err == nil {
				reattached, chunks, contents, edges, fts, err := o.reattach(ctx, snapshotID, fd, prior)
				if err != nil {
					return files, outcome, fmt.Errorf("reattach %s: %w", fd.RelPath, err)
				}
				files = append(files, reattached)
				allChunks = append(allChunks, chunks...)
				allContents = append(allContents, contents...)
				allEdges = append(allEdges, edges...)
				allFTS = append(allFTS, fts...)
				outcome.indexed++
				outcome.chunks += len(chunks)
				outcome.edges += len(edges)
				continue
			} else if err != store.ErrNotFound {
				return files, outcome, fmt.Errorf("lookup cached file %s: %w", fd.RelPath, err)
			}
		}

		start := time.Now()
		file, chunks, contents, edges, fts, err := o.parseFresh(snapshotID, worktreePath, fd)
		outcome.parseMillis += time.Since(start).Milliseconds()
		if err != nil {
			return files, outcome, fmt.Errorf("parse %s: %w", fd.RelPath, err)
		}

		files = append(files, file)
		switch file.ParsingStatus {
		case "failed":
			outcome.failed++
		case "skipped":
			outcome.skipped++
		default:
			outcome.indexed++
		}
		allChunks = append(allChunks, chunks...)
		allContents = append(allContents, contents...)
		allEdges = append(allEdges, edges...)
		allFTS = append(allFTS, fts...)
		outcome.chunks += len(chunks)
		outcome.edges += len(edges)
	}

	if err := o.store.AddFiles(ctx, files); err != nil {
		return files, outcome, fmt.Errorf("add files: %w", err)
	}
	if err := o.store.AddContents(ctx, allContents); err != nil {
		return files, outcome, fmt.Errorf("add contents: %w", err)
	}
	if err := o.store.AddChunks(ctx, allChunks); err != nil {
		return files, outcome, fmt.Errorf("add chunks: %w", err)
	}
	if err := o.store.AddEdges(ctx, allEdges); err != nil {
		return files, outcome, fmt.Errorf("add edges: %w", err)
	}
	if err := o.store.AddFTS(ctx, allFTS); err != nil {
		return files, outcome, fmt.Errorf("add fts: %w", err)
	}

	return files, outcome, nil
}

// reattach re-parents a file unchanged since a prior snapshot (same git
// blob hash) onto the new snapshot without re-running the parser (spec
// §4.5 step 4: "no parse work"). Chunk and edge ids are re-minted against
// the new file id; content is untouched since it is addressed by hash.
func (o *Orchestrator) reattach(ctx context.Context, snapshotID string, fd collector.FileDescriptor, prior *store.File) (store.File, []store.Chunk, []store.Content, []store.Edge, []store.FTSEntry, error) {
	newFile := store.File{
		ID:            uuid.NewString(),
		SnapshotID:    snapshotID,
		Path:          fd.RelPath,
		Language:      prior.Language,
		SizeBytes:     fd.Size,
		Category:      store.FileCategory(fd.Category),
		BlobHash:      fd.GitHash,
		ParsingStatus: prior.ParsingStatus,
		ParsingError:  prior.ParsingError,
	}

	priorChunks, err := o.store.ChunksByFile(ctx, prior.ID)
	if err != nil {
		return newFile, nil, nil, nil, nil, fmt.Errorf("chunks by file: %w", err)
	}

	idMap := make(map[string]string, len(priorChunks))
	chunks := make([]store.Chunk, len(priorChunks))
	fts := make([]store.FTSEntry, 0, len(priorChunks))
	for i, pc := range priorChunks {
		newID := chunkID(newFile.ID, pc.StartByte, pc.EndByte)
		idMap[pc.ID] = newID
		chunks[i] = store.Chunk{
			ID:          newID,
			FileID:      newFile.ID,
			ContentHash: pc.ContentHash,
			StartByte:   pc.StartByte,
			EndByte:     pc.EndByte,
			StartLine:   pc.StartLine,
			EndLine:     pc.EndLine,
			Metadata:    pc.Metadata,
		}

		content, err := o.store.ContentByHash(ctx, pc.ContentHash)
		var text string
		if err == nil {
			text = content.Text
		}
		tagText, contentText := chunker.FTSDocument(pc.Metadata.Kind, pc.Metadata.Name, pc.Metadata.Roles, pc.Metadata.Tags, pc.Metadata.Identifiers, text)
		fts = append(fts, store.FTSEntry{
			ChunkID:    newID,
			SnapshotID: snapshotID,
			FileID:     newFile.ID,
			Tags:       tagText,
			Content:    contentText,
		})
	}

	// child_of edges only ever point within the same file, so remapping
	// source/target through idMap is sufficient; cross-file edges are
	// recomputed fresh by the Relation Extractor against the new snapshot.
	priorEdges, err := o.childEdgesForFile(ctx, priorChunks)
	if err != nil {
		return newFile, nil, nil, nil, nil, err
	}
	edges := make([]store.Edge, 0, len(priorEdges))
	for _, pe := range priorEdges {
		target, ok := idMap[pe.TargetChunkID]
		if !ok {
			continue
		}
		source, ok := idMap[pe.SourceChunkID]
		if !ok {
			continue
		}
		edges = append(edges, store.Edge{
			ID:            fmt.Sprintf("%s:%s:%s", source, target, pe.Kind),
			SourceChunkID: source,
			TargetChunkID: target,
			Kind:          pe.Kind,
			Metadata:      pe.Metadata,
		})
	}

	return newFile, chunks, nil, edges, fts, nil
}

// childEdgesForFile collects the child_of edges among a file's chunks by
// querying each chunk's outgoing edges (no dedicated by-file edge query
// exists in the storage engine's public contract).
func (o *Orchestrator) childEdgesForFile(ctx context.Context, chunks []store.Chunk) ([]store.Edge, error) {
	var edges []store.Edge
	for _, c := range chunks {
		neighbors, err := o.store.Neighbors(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", c.ID, err)
		}
		for _, e := range neighbors {
			if e.Kind == store.RelationChildOf {
				edges = append(edges, e)
			}
		}
	}
	return edges, nil
}

// parseFresh reads a file's bytes off disk and runs the full parse path:
// skip detection, chunking, content dedup, intra-file child_of edges, and
// FTS payload construction (spec §4.3).
func (o *Orchestrator) parseFresh(snapshotID, worktreePath string, fd collector.FileDescriptor) (store.File, []store.Chunk, []store.Content, []store.Edge, []store.FTSEntry, error) {
	file := store.File{
		ID:            uuid.NewString(),
		SnapshotID:    snapshotID,
		Path:          fd.RelPath,
		Language:      o.registry.LanguageName(fd.RelPath),
		SizeBytes:     fd.Size,
		Category:      store.FileCategory(fd.Category),
		BlobHash:      fd.GitHash,
		ParsingStatus: "success",
	}

	src, err := os.ReadFile(filepath.Join(worktreePath, filepath.FromSlash(fd.RelPath)))
	if err != nil {
		file.ParsingStatus = "failed"
		file.ParsingError = err.Error()
		content := wholeFileContent(nil)
		return file, nil, []store.Content{content}, nil, nil, nil
	}

	if chunker.IsBinary(src) || chunker.IsMinifiedOrGenerated(src) {
		file.ParsingStatus = "skipped"
		content := wholeFileContent(src)
		return file, nil, []store.Content{content}, nil, nil, nil
	}

	raw, err := o.astChunk.Chunk(fd.RelPath, src)
	if err != nil {
		file.ParsingStatus = "failed"
		file.ParsingError = err.Error()
		content := wholeFileContent(src)
		return file, nil, []store.Content{content}, nil, nil, nil
	}

	chunks, contents, edges, fts := materialize(file.ID, snapshotID, src, raw)
	return file, chunks, contents, edges, fts, nil
}

// materialize converts the chunker's byte-range output into storable rows:
// one Chunk + deduplicated Content per RawChunk, one child_of Edge per
// parent/child pair, and one FTSEntry per chunk.
func materialize(fileID, snapshotID string, src []byte, raw []chunker.RawChunk) ([]store.Chunk, []store.Content, []store.Edge, []store.FTSEntry) {
	chunks := make([]store.Chunk, len(raw))
	ids := make([]string, len(raw))
	seenContent := make(map[string]bool)
	var contents []store.Content
	var edges []store.Edge
	fts := make([]store.FTSEntry, len(raw))

	for i, rc := range raw {
		text := string(src[rc.StartByte:rc.EndByte])
		hash := contentHash(text)
		if !seenContent[hash] {
			seenContent[hash] = true
			contents = append(contents, store.Content{Hash: hash, Text: text, Size: len(text)})
		}

		id := chunkID(fileID, rc.StartByte, rc.EndByte)
		ids[i] = id
		meta := store.ChunkMetadata{
			Kind:        rc.Kind,
			Name:        rc.Name,
			Roles:       rc.Roles,
			Tags:        rc.Tags,
			Oversize:    rc.Oversize,
			Identifiers: rc.Identifiers,
		}
		chunks[i] = store.Chunk{
			ID:          id,
			FileID:      fileID,
			ContentHash: hash,
			StartByte:   rc.StartByte,
			EndByte:     rc.EndByte,
			StartLine:   rc.StartLine,
			EndLine:     rc.EndLine,
			Metadata:    meta,
		}
		tagText, contentText := chunker.FTSDocument(meta.Kind, meta.Name, meta.Roles, meta.Tags, meta.Identifiers, text)
		fts[i] = store.FTSEntry{
			ChunkID:    id,
			SnapshotID: snapshotID,
			FileID:     fileID,
			Tags:       tagText,
			Content:    contentText,
		}
	}

	for i, rc := range raw {
		if rc.ParentIndex < 0 {
			continue
		}
		parentID := ids[rc.ParentIndex]
		edges = append(edges, store.Edge{
			ID:            fmt.Sprintf("%s:%s:%s", ids[i], parentID, store.RelationChildOf),
			SourceChunkID: ids[i],
			TargetChunkID: parentID,
			Kind:          store.RelationChildOf,
		})
	}

	return chunks, contents, edges, fts
}

// wholeFileContent stores a skipped/failed file's full text so readers can
// still display it (spec §4.3: "still records... a Content row for the
// whole file text").
func wholeFileContent(src []byte) store.Content {
	text := string(src)
	return store.Content{Hash: contentHash(text), Text: text, Size: len(text)}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// chunkID is deterministic per (file id, byte range). File ids are minted
// fresh for each parse, so ids differ across snapshots; re-inserting the
// same rows is kept idempotent by the bulk inserts' ON CONFLICT DO NOTHING.
func chunkID(fileID string, startByte, endByte int) string {
	return fmt.Sprintf("%s:%d-%d", fileID, startByte, endByte)
}
