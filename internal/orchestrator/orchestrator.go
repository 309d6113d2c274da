// Package orchestrator drives one indexing run end to end: ensure
// repository and worktree, create a snapshot under an advisory lock,
// split collected files into cache hits and misses, parse misses through a
// bounded worker pool, extract cross-file relations in parallel, then
// activate the snapshot (spec §4.5).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"codegraph/internal/chunker"
	"codegraph/internal/chunker/languages"
	"codegraph/internal/coordinator"
	"codegraph/internal/gitrepo"
	"codegraph/internal/relations"
	"codegraph/internal/store"
)

// IndexStatus is the terminal outcome of IndexRepository.
type IndexStatus string

const (
	StatusCompleted IndexStatus = "completed"
	StatusQueued    IndexStatus = "queued" // another indexing run on this repo is in flight
	StatusReused    IndexStatus = "reused" // the commit was already indexed and force_new was false
)

// Result describes one completed call to IndexRepository.
type Result struct {
	RepositoryID string
	SnapshotID   string
	Status       IndexStatus
	Stats        store.SnapshotStats
}

const (
	defaultWorkers      = 5
	defaultFilesPerTask = 50
	lockTTL             = 30 * time.Minute
	staleWorktreeAge    = 6 * time.Hour // a crashed worker's leftover worktree
)

// NewRegistry builds the tree-sitter language registry wiring every bundled
// grammar (kept outside the chunker package itself to avoid chunker <->
// languages import cycle).
func NewRegistry() *chunker.Registry {
	r := chunker.NewRegistry()
	languages.RegisterGo(r)
	languages.RegisterJavaScript(r)
	languages.RegisterTypeScript(r)
	languages.RegisterPython(r)
	return r
}

// Orchestrator wires together every leaf component needed to index a
// repository.
type Orchestrator struct {
	store     store.Store
	git       *gitrepo.Manager
	registry  *chunker.Registry
	astChunk  *chunker.ASTChunker
	extractor relations.Extractor // nil: skip cross-file relation extraction
	locker    coordinator.Locker
	repoRoot  string // config.RepoVolume
	workers   int
	filesPerTask int
	log       *slog.Logger
}

// New creates an Orchestrator. extractor may be nil when no cross-file
// relation feed is configured (spec §4.4: "advisory... the rest of the
// pipeline must function").
func New(s store.Store, git *gitrepo.Manager, registry *chunker.Registry, extractor relations.Extractor, locker coordinator.Locker, repoRoot string, workers, filesPerTask int, log *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if filesPerTask <= 0 {
		filesPerTask = defaultFilesPerTask
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:        s,
		git:          git,
		registry:     registry,
		astChunk:     chunker.NewASTChunker(registry),
		extractor:    extractor,
		locker:       locker,
		repoRoot:     repoRoot,
		workers:      workers,
		filesPerTask: filesPerTask,
		log:          log,
	}
}

// IndexRepository runs the full lifecycle of spec §4.5 for one repository
// at one ref.
func (o *Orchestrator) IndexRepository(ctx context.Context, url, branch, name, ref string, forceNew bool) (Result, error) {
	repoID, err := o.store.EnsureRepository(ctx, url, branch, name)
	if err != nil {
		return Result{}, fmt.Errorf("ensure repository: %w", err)
	}

	lockKey := coordinator.RepositoryIndexingLock(repoID)
	acquired, err := o.locker.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("acquire indexing lock: %w", err)
	}
	if !acquired {
		return Result{RepositoryID: repoID, Status: StatusQueued}, nil
	}
	defer func() {
		if err := o.locker.Release(ctx, lockKey); err != nil {
			o.log.Warn("release indexing lock failed", "repo", repoID, "error", err)
		}
	}()

	urlHash := gitrepo.HashURL(url)
	mirrorPath := filepath.Join(o.repoRoot, urlHash, "mirror")
	worktreesRoot := filepath.Join(o.repoRoot, urlHash, "worktrees")
	if err := o.git.EnsureMirror(ctx, urlHash, url, mirrorPath); err != nil {
		return Result{}, fmt.Errorf("ensure mirror: %w", err)
	}
	if removed, err := o.git.CleanupOrphanedWorktrees(ctx, worktreesRoot, mirrorPath, staleWorktreeAge); err != nil {
		o.log.Warn("cleanup orphaned worktrees failed", "repo", repoID, "error", err)
	} else if removed > 0 {
		o.log.Info("removed orphaned worktrees", "repo", repoID, "count", removed)
	}
	commitHash, err := o.git.ResolveCommit(ctx, mirrorPath, ref)
	if err != nil {
		return Result{}, fmt.Errorf("resolve commit: %w", err)
	}

	snapshotID, created, err := o.store.CreateSnapshot(ctx, repoID, commitHash, forceNew)
	if err != nil {
		return Result{}, fmt.Errorf("create snapshot: %w", err)
	}
	if snapshotID == "" {
		return Result{RepositoryID: repoID, Status: StatusQueued}, nil
	}
	if !created {
		return Result{RepositoryID: repoID, SnapshotID: snapshotID, Status: StatusReused}, nil
	}

	worktreePath := filepath.Join(worktreesRoot, snapshotID)
	if err := o.git.EnsureWorktree(ctx, mirrorPath, worktreePath, commitHash); err != nil {
		_ = o.store.FailSnapshot(ctx, snapshotID, err.Error())
		return Result{}, fmt.Errorf("ensure worktree: %w", err)
	}
	defer func() {
		if err := o.git.RemoveWorktree(context.Background(), mirrorPath, worktreePath); err != nil {
			o.log.Warn("remove worktree failed", "path", worktreePath, "error", err)
		}
	}()

	stats, manifest, err := o.runSnapshot(ctx, repoID, snapshotID, worktreePath)
	if err != nil {
		_ = o.store.FailSnapshot(ctx, snapshotID, err.Error())
		return Result{}, fmt.Errorf("run snapshot: %w", err)
	}

	if err := o.store.ActivateSnapshot(ctx, repoID, snapshotID, stats, manifest); err != nil {
		return Result{}, fmt.Errorf("activate snapshot: %w", err)
	}

	return Result{RepositoryID: repoID, SnapshotID: snapshotID, Status: StatusCompleted, Stats: stats}, nil
}
