package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"codegraph/internal/collector"
	"codegraph/internal/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// runSnapshot executes steps 4-7 of spec §4.5 against an already-created,
// still-`indexing` snapshot checked out at worktreePath, returning the stats
// and manifest the caller activates the snapshot with.
func (o *Orchestrator) runSnapshot(ctx context.Context, repoID, snapshotID, worktreePath string) (store.SnapshotStats, *store.ManifestNode, error) {
	batches, err := collector.New(worktreePath, o.log).StreamFiles(o.filesPerTask)
	if err != nil {
		return store.SnapshotStats{}, nil, fmt.Errorf("stream files: %w", err)
	}

	var mu sync.Mutex
	var stats store.SnapshotStats
	var allFiles []store.File

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.workers))

	var relRows []store.RelationRow
	g.Go(func() error {
		if o.extractor == nil {
			return nil
		}
		rows, err := o.extractor.Extract(gctx, worktreePath)
		if err != nil {
			// Advisory per spec §4.4: log and proceed without cross-file edges.
			o.log.Warn("relation extraction failed, continuing without cross-file edges", "error", err)
			return nil
		}
		relRows = rows
		return nil
	})

	for _, batch := range batches {
		batch := batch
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			files, outcome, err := o.processBatch(gctx, repoID, snapshotID, worktreePath, batch)
			mu.Lock()
			allFiles = append(allFiles, files...)
			applyOutcome(&stats, outcome)
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return store.SnapshotStats{}, nil, err
	}

	if len(relRows) > 0 {
		resolved, dropped, err := o.store.IngestCrossFileRelations(ctx, snapshotID, relRows)
		if err != nil {
			return store.SnapshotStats{}, nil, fmt.Errorf("ingest cross-file relations: %w", err)
		}
		stats.EdgesTotal += resolved + dropped
		stats.EdgesDroppedToFile += dropped
	}

	stats.FilesTotal = len(allFiles)
	manifest := buildManifest(allFiles)
	return stats, manifest, nil
}

// fileOutcome is one batch's contribution to snapshot stats.
type fileOutcome struct {
	indexed, skipped, failed int
	chunks                   int
	edges                    int
	parseMillis              int64
}

func applyOutcome(stats *store.SnapshotStats, o fileOutcome) {
	stats.FilesIndexed += o.indexed
	stats.FilesSkipped += o.skipped
	stats.FilesFailed += o.failed
	stats.ChunksTotal += o.chunks
	stats.EdgesTotal += o.edges
	stats.ParseDurationMillis += o.parseMillis
}
