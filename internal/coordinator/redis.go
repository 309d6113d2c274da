package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockPrefix = "codegraph:lock:"

// RedisLocker implements Locker with Redis SETNX, for deployments scaled out
// across multiple processes (spec §5, "row in a coordination table checked
// atomically"). An owner ID guards release so one instance can never drop a
// lock acquired by another.
type RedisLocker struct {
	client  *redis.Client
	ownerID string
}

// NewRedisLocker creates a Redis-backed lock bound to client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, ownerID: generateOwnerID()}
}

func generateOwnerID() string {
	hostname, _ := os.Hostname()
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(b))
}

// Acquire sets name to this instance's owner ID only if it does not already
// exist, with an expiry of ttl.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release deletes name only if still held by this instance's owner ID.
func (l *RedisLocker) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
