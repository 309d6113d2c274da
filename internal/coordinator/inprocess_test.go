package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessLocker_AcquireRelease(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	acquired, err := l.Acquire(ctx, "repo-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = l.Acquire(ctx, "repo-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second acquire of a held lock must fail")

	require.NoError(t, l.Release(ctx, "repo-1"))

	acquired, err = l.Acquire(ctx, "repo-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "acquire after release must succeed")
}

func TestInProcessLocker_ExpiresAfterTTL(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	acquired, err := l.Acquire(ctx, "repo-1", time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(5 * time.Millisecond)

	acquired, err = l.Acquire(ctx, "repo-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lock must be re-acquirable")
}

func TestInProcessLocker_ReleaseUnheldIsSafe(t *testing.T) {
	l := NewInProcessLocker()
	assert.NoError(t, l.Release(context.Background(), "never-acquired"))
}

func TestLockNames(t *testing.T) {
	assert.Equal(t, "indexing:repo-123", RepositoryIndexingLock("repo-123"))
	assert.Equal(t, "staging:snap-1:text-embedding-3", StagingWriteLock("snap-1", "text-embedding-3"))
}
