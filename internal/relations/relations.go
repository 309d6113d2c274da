// Package relations adapts external cross-file relation sources into the
// storage engine's RelationRow shape. No relation indexer ships here; only
// the pluggable interface and a file-feed implementation useful for tests
// and for wiring a real extractor (e.g. a SCIP-backed one) later.
package relations

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"codegraph/internal/store"
)

// Extractor produces cross-file relation rows for one snapshot's worktree.
type Extractor interface {
	Extract(ctx context.Context, snapshotRoot string) ([]store.RelationRow, error)
}

// relationRecord is the on-disk shape of one newline-delimited JSON row.
type relationRecord struct {
	SourcePath      string `json:"source_path"`
	SourceByteRange [2]int `json:"source_byte_range"`
	TargetPath      string `json:"target_path"`
	TargetByteRange [2]int `json:"target_byte_range"`
	Relation        string `json:"relation"`
}

// FileFeedExtractor reads relation rows from a newline-delimited JSON file:
// one relationRecord per line, matching spec §6's cross-file relation feed
// schema. It ignores snapshotRoot and reads from Path (or Reader, if set)
// instead, since the feed is produced out of band by whatever indexer is
// plugged in.
type FileFeedExtractor struct {
	Path   string
	Reader io.Reader
}

// NewFileFeedExtractor builds an extractor reading newline-delimited JSON
// relation rows from path.
func NewFileFeedExtractor(path string) *FileFeedExtractor {
	return &FileFeedExtractor{Path: path}
}

// Extract reads every relation row from the feed, normalizing relation verbs
// (defines, calls, reads_from, inherits, implements, references, imports,
// instantiates, writes_to, overrides -- the verb set a SCIP-style extractor
// would emit) onto the storage engine's RelationKind set.
func (e *FileFeedExtractor) Extract(ctx context.Context, snapshotRoot string) ([]store.RelationRow, error) {
	r := e.Reader
	if r == nil {
		f, err := openFeed(e.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var rows []store.RelationRow
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec relationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("relation feed line %d: %w", lineNo, err)
		}
		kind, ok := normalizeRelation(rec.Relation)
		if !ok {
			return nil, fmt.Errorf("relation feed line %d: unknown relation %q", lineNo, rec.Relation)
		}
		rows = append(rows, store.RelationRow{
			SourcePath:      rec.SourcePath,
			SourceByteRange: rec.SourceByteRange,
			TargetPath:      rec.TargetPath,
			TargetByteRange: rec.TargetByteRange,
			Relation:        kind,
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("relation feed: %w", err)
	}
	return rows, nil
}

// normalizeRelation maps a feed's verb string onto the stored RelationKind
// set, folding the scip role-mask verbs (overrides, implements, writes_to)
// that don't have a dedicated edge kind onto the closest existing one.
func normalizeRelation(verb string) (store.RelationKind, bool) {
	switch verb {
	case string(store.RelationCalls):
		return store.RelationCalls, true
	case string(store.RelationReferences):
		return store.RelationReferences, true
	case string(store.RelationImports):
		return store.RelationImports, true
	case string(store.RelationInherits), "implements", "overrides":
		return store.RelationInherits, true
	case string(store.RelationDefines):
		return store.RelationDefines, true
	case string(store.RelationReadsFrom), "writes_to":
		return store.RelationReadsFrom, true
	case string(store.RelationInstantiates):
		return store.RelationInstantiates, true
	default:
		return "", false
	}
}
