package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"codegraph/internal/config"
	"codegraph/internal/coordinator"
	"codegraph/internal/gitrepo"
	"codegraph/internal/store"

	"github.com/redis/go-redis/v9"
)

// flagBranch is shared by index/embed/search, all of which accept
// `--branch <name>` per spec §6.
var flagBranch string

// dbPath derives the SQLite file backing the storage engine from the
// configured DB_URL (spec §6), defaulting to a per-repo-volume file so a
// bare `codegraph` invocation with no config still works against local
// state.
func dbPath(cfg config.Config) string {
	if cfg.DBURL != "" {
		return cfg.DBURL
	}
	return filepath.Join(cfg.RepoVolume, "codegraph.db")
}

// openStore opens the SQLite-backed storage engine and runs schema
// migrations (spec §6 `db upgrade` runs the same Init path).
func openStore(cfg config.Config) (*store.SQLiteStore, error) {
	return store.Open(dbPath(cfg), cfg.VectorDimension)
}

// newLocker builds a Redis-backed Locker when REDIS_URL/redis_url is
// configured, falling back to an in-process mutex otherwise (spec §9
// "per-repo mutex" standalone fallback; see internal/coordinator).
func newLocker(cfg config.Config) (coordinator.Locker, error) {
	if cfg.RedisURL == "" {
		return coordinator.NewInProcessLocker(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return coordinator.NewRedisLocker(redis.NewClient(opts)), nil
}

func newGitManager(cfg config.Config) *gitrepo.Manager {
	return gitrepo.New(cfg.RepoVolume)
}

// repoDisplayName derives a human-readable name from a remote URL, e.g.
// "https://github.com/owner/repo.git" -> "repo".
func repoDisplayName(url string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = url
	}
	return name
}
