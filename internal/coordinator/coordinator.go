// Package coordinator provides the advisory locking used to serialize
// snapshot creation (spec §5): one lock held for the lifetime of a
// repository's indexing run. It also names a per-snapshot staging lock,
// which the embedding pipeline does not acquire. A single repository or
// deployment may run the engine standalone (in-process lock) or scaled out
// behind Redis (distributed lock); callers depend only on Locker.
package coordinator

import (
	"context"
	"time"
)

// Locker coordinates mutually exclusive work across one or more processes.
// Acquire is non-blocking: it reports whether the lock was obtained, never
// blocks waiting for a competitor to release it, matching spec §5's
// "indexing-status advisory lock" (a concurrent request fails fast: Acquire
// reports false and the orchestrator returns StatusQueued).
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)
	Release(ctx context.Context, name string) error
}

// RepositoryIndexingLock is the advisory lock name for create_snapshot's
// "only one indexing run per repository" rule (spec §4.5, §9).
func RepositoryIndexingLock(repoID string) string {
	return "indexing:" + repoID
}

// StagingWriteLock is the advisory lock name for one snapshot's embedding
// staging pass for one model. The embedding pipeline does not acquire it;
// staging writes are not serialized by this package.
func StagingWriteLock(snapshotID, model string) string {
	return "staging:" + snapshotID + ":" + model
}
