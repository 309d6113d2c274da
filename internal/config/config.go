// Package config loads a single typed configuration value, merged in order
// of increasing precedence: defaults, the TOML file passed to Load
// (codegraph.toml unless --config names another), .env, then the process
// environment. CLI flags are applied by the commands in cmd, not by this
// package. No value is read from the process
// environment anywhere outside this package.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultRepoVolume      = "./data/repositories"
	DefaultVectorDimension = 768
	DefaultWorkers         = 5
	DefaultFilesPerTask    = 50
	DefaultMaxConcurrency  = 8
	DefaultBatchSize       = 32
)

// Config is threaded explicitly through constructors; nothing in this
// module reaches back into the environment on its own.
type Config struct {
	DBURL           string `toml:"db_url"`
	RepoVolume      string `toml:"repo_volume"`
	EmbeddingAPIKey string `toml:"embedding_api_key"`
	RedisURL        string `toml:"redis_url"`

	VectorDimension int `toml:"vector_dimension"`
	Workers         int `toml:"workers"`
	FilesPerTask    int `toml:"files_per_task"`
	MaxConcurrency  int `toml:"max_concurrency"`
	BatchSize       int `toml:"batch_size"`
}

// Default returns the hardcoded baseline every other source overrides.
func Default() Config {
	return Config{
		RepoVolume:      DefaultRepoVolume,
		VectorDimension: DefaultVectorDimension,
		Workers:         DefaultWorkers,
		FilesPerTask:    DefaultFilesPerTask,
		MaxConcurrency:  DefaultMaxConcurrency,
		BatchSize:       DefaultBatchSize,
	}
}

// Load resolves configuration from, in increasing precedence: defaults,
// the TOML file at configPath (if it exists), .env (if present,
// non-fatal otherwise), then the process environment.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	_ = godotenv.Load() // best-effort; absence of .env is not an error

	mergeEnv(&cfg)
	return cfg, nil
}

func mergeEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DB_URL")); v != "" {
		cfg.DBURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REPO_VOLUME")); v != "" {
		cfg.RepoVolume = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEGRAPH_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CODEGRAPH_MAX_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrency = n
		}
	}
}

// MirrorPath returns the on-disk path for a repository's bare mirror,
// following the persisted state layout `<REPO_VOLUME>/<hash(url)>/mirror`.
func (c Config) MirrorPath(urlHash string) string {
	return filepath.Join(c.RepoVolume, urlHash, "mirror")
}

// WorktreePath returns the on-disk path for a snapshot's ephemeral worktree.
func (c Config) WorktreePath(urlHash, snapshotID string) string {
	return filepath.Join(c.RepoVolume, urlHash, "worktrees", snapshotID)
}
