package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CleanupOrphanedWorktrees removes worktree directories under worktreesRoot
// older than maxAge (a crashed worker's leftovers), then prunes the
// worktree metadata of the mirror at mirrorPath when it is set. Returns the
// number of directories removed.
func (m *Manager) CleanupOrphanedWorktrees(ctx context.Context, worktreesRoot, mirrorPath string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(worktreesRoot)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(worktreesRoot, e.Name())
			if err := os.RemoveAll(path); err == nil {
				removed++
			}
		}
	}

	if mirrorPath != "" {
		_ = m.pruneWorktrees(ctx, mirrorPath)
	}
	return removed, nil
}

func (m *Manager) pruneWorktrees(ctx context.Context, mirrorPath string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "prune")
	cmd.Dir = mirrorPath
	return cmd.Run()
}
