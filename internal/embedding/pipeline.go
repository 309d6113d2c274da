// Package embedding stages unembedded chunks, deduplicates them by prompt
// hash against the permanent cache, batches the remainder through a
// Provider, and promotes the results (spec §4.6).
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"codegraph/internal/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Event is one status update emitted while a Pipeline runs (spec §4.6: init,
// staging_progress, deduplicating, embedding_progress, embedding_failed,
// completed).
type Event struct {
	Kind          string
	Processed     int
	Total         int
	NewlyEmbedded int
	Reused        int
	Failed        int
}

const (
	retryBase             = time.Second
	retryCap              = 10 * time.Second
	retryMax              = 3
	defaultBatchSize      = 32
	defaultMaxConcurrency = 8
)

// Pipeline runs the staging -> dedup -> delta -> promote cycle for one
// snapshot and model.
type Pipeline struct {
	store          store.Store
	provider       Provider
	log            *slog.Logger
	batchSize      int
	maxConcurrency int
}

// New creates a Pipeline. batchSize and maxConcurrency fall back to spec
// defaults (32, 8) when <= 0.
func New(s store.Store, p Provider, log *slog.Logger, batchSize, maxConcurrency int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: s, provider: p, log: log, batchSize: batchSize, maxConcurrency: maxConcurrency}
}

// Run embeds every chunk of snapshotID missing a vector under the
// provider's model, reporting progress on events if non-nil (the channel is
// never closed by Run; the caller owns its lifetime).
func (p *Pipeline) Run(ctx context.Context, snapshotID string, events chan<- Event) (newlyEmbedded, reused, failed int, err error) {
	model := p.provider.ModelName()
	emit := func(e Event) {
		if events != nil {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		}
	}

	emit(Event{Kind: "init"})
	if err := p.store.PrepareStaging(ctx, snapshotID); err != nil {
		return 0, 0, 0, fmt.Errorf("prepare staging: %w", err)
	}

	candidates, err := p.store.ChunksNeedingEmbedding(ctx, snapshotID, model)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("chunks needing embedding: %w", err)
	}
	total := len(candidates)
	if total == 0 {
		emit(Event{Kind: "completed", NewlyEmbedded: 0, Reused: 0})
		return 0, 0, 0, nil
	}

	rows := make([]store.StagingRow, total)
	for i, c := range candidates {
		prompt := BuildPrompt(PromptInput{
			RelPath:   c.RelPath,
			Language:  c.Language,
			Category:  string(c.Category),
			Roles:     c.Chunk.Metadata.Roles,
			Tags:      c.Chunk.Metadata.Tags,
			DefinedBy: c.DefinedBy,
			Content:   c.Content,
		})
		rows[i] = store.StagingRow{
			ChunkID:    c.Chunk.ID,
			SnapshotID: snapshotID,
			FileID:     c.FileID,
			Model:      model,
			VectorHash: VectorHash(prompt),
			Prompt:     prompt,
		}
	}
	if err := p.store.BulkLoadStaging(ctx, rows); err != nil {
		return 0, 0, 0, fmt.Errorf("bulk load staging: %w", err)
	}
	emit(Event{Kind: "staging_progress", Total: total})

	emit(Event{Kind: "deduplicating"})
	reused, err = p.store.CopyCachedVectors(ctx, snapshotID, model)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("copy cached vectors: %w", err)
	}

	var processed atomic.Int64
	processed.Add(int64(reused))
	emit(Event{Kind: "embedding_progress", Processed: int(processed.Load()), Total: total})

	sem := semaphore.NewWeighted(int64(p.maxConcurrency))
	for {
		delta, err := p.store.FetchStagingDelta(ctx, snapshotID, model, p.batchSize)
		if err != nil {
			return 0, 0, failed, fmt.Errorf("fetch staging delta: %w", err)
		}
		if len(delta) == 0 {
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return 0, 0, failed, err
		}
		batch := delta
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer sem.Release(1)
			n, err := p.embedBatch(gctx, batch)
			processed.Add(int64(n))
			emit(Event{Kind: "embedding_progress", Processed: int(processed.Load()), Total: total})
			return err
		})
		if err := g.Wait(); err != nil {
			chunkIDs := make([]string, len(batch))
			for i, r := range batch {
				chunkIDs[i] = r.ChunkID
			}
			if markErr := p.store.MarkStagingErrored(ctx, chunkIDs, model, err.Error()); markErr != nil {
				p.log.Error("mark staging errored failed", "error", markErr)
			}
			failed += len(batch)
			processed.Add(int64(len(batch)))
			p.log.Error("embedding batch failed, rows marked errored", "error", err, "count", len(batch))
			emit(Event{Kind: "embedding_failed", Failed: len(batch), Processed: int(processed.Load()), Total: total})
		}
	}

	promoted, err := p.store.PromoteStaging(ctx, snapshotID, model)
	if err != nil {
		return 0, reused, failed, fmt.Errorf("promote staging: %w", err)
	}
	emit(Event{Kind: "completed", NewlyEmbedded: promoted, Reused: reused, Failed: failed})
	return promoted, reused, failed, nil
}

// embedBatch embeds one batch with capped exponential backoff retries,
// writing the vectors back to staging on success. A batch that exhausts its
// retries returns an error; Run then marks that batch's staging rows errored
// and continues with the other batches.
func (p *Pipeline) embedBatch(ctx context.Context, rows []store.StagingRow) (int, error) {
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Prompt
	}

	var vectors [][]float32
	var lastErr error
	for attempt := 0; attempt < retryMax; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Min(float64(retryCap), float64(retryBase)*math.Pow(2, float64(attempt-1))))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		vectors, lastErr = p.provider.Embed(ctx, texts)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return 0, fmt.Errorf("embed batch of %d: %w", len(rows), lastErr)
	}
	if len(vectors) != len(rows) {
		return 0, fmt.Errorf("embed batch: expected %d vectors, got %d", len(rows), len(vectors))
	}

	for i := range rows {
		rows[i].Vector = vectors[i]
	}
	if err := p.store.WriteVectors(ctx, rows); err != nil {
		return 0, fmt.Errorf("write vectors: %w", err)
	}
	return len(rows), nil
}
