package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// initUpstream creates a tiny local git repository to stand in for a remote,
// since cloning over a real network is out of bounds for a unit test.
func initUpstream(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	run("tag", "v1")
	return dir
}

func TestHashURL_StableAndDistinct(t *testing.T) {
	h1 := HashURL("https://example.com/repo.git")
	h2 := HashURL("https://example.com/repo.git")
	h3 := HashURL("https://example.com/other.git")
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.Len(t, h1, 64)
}

func TestManager_MirrorResolveAndWorktreeLifecycle(t *testing.T) {
	upstream := initUpstream(t)
	root := t.TempDir()
	mirrorPath := filepath.Join(root, "mirror")
	worktreePath := filepath.Join(root, "worktrees", "snap-1")

	m := New(root)
	ctx := context.Background()
	urlHash := HashURL(upstream)

	require.NoError(t, m.EnsureMirror(ctx, urlHash, upstream, mirrorPath))
	require.DirExists(t, mirrorPath)

	// Re-running EnsureMirror should fetch (not re-clone) without error.
	require.NoError(t, m.EnsureMirror(ctx, urlHash, upstream, mirrorPath))

	commit, err := m.ResolveCommit(ctx, mirrorPath, "main")
	require.NoError(t, err)
	require.Len(t, commit, 40)

	tagCommit, err := m.ResolveCommit(ctx, mirrorPath, "v1")
	require.NoError(t, err)
	require.Equal(t, commit, tagCommit)

	_, err = m.ResolveCommit(ctx, mirrorPath, "does-not-exist")
	require.Error(t, err)

	require.NoError(t, m.EnsureWorktree(ctx, mirrorPath, worktreePath, commit))
	require.FileExists(t, filepath.Join(worktreePath, "a.txt"))

	require.NoError(t, m.RemoveWorktree(ctx, mirrorPath, worktreePath))
	require.NoDirExists(t, worktreePath)
}

func TestCleanupOrphanedWorktrees_RemovesStaleDirsOnly(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "stale-snap")
	fresh := filepath.Join(root, "fresh-snap")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	m := New(t.TempDir())
	removed, err := m.CleanupOrphanedWorktrees(context.Background(), root, "", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoDirExists(t, stale)
	require.DirExists(t, fresh)
}

func TestCleanupOrphanedWorktrees_MissingRootIsNotError(t *testing.T) {
	m := New(t.TempDir())
	removed, err := m.CleanupOrphanedWorktrees(context.Background(), filepath.Join(t.TempDir(), "missing"), "", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
