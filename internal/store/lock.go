package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AILockTTL caps how long a crashed holder can block the fleet.
const AILockTTL = 60 * time.Second

// releaseScript deletes the lock only while we still own it. GET-then-DEL
// without the script would race a TTL expiry followed by another holder's
// acquire.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

func aiLockKey(symbol string) string { return Prefix + "lock:ai:" + symbol }

// AcquireAILock tries to take the per-symbol AI single-flight lock.
// Returns a fresh token on success (needed for release) or "" when the
// lock is already held somewhere in the fleet.
func (s *Store) AcquireAILock(ctx context.Context, symbol string) (string, error) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	acquired, err := s.client.SetNX(ctx, aiLockKey(symbol), token, AILockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("ai lock acquire failed: %w", err)
	}
	if !acquired {
		return "", nil
	}
	return token, nil
}

// ReleaseAILock releases the lock if token still owns it. Releasing a lock
// we no longer own is a silent no-op.
func (s *Store) ReleaseAILock(ctx context.Context, symbol string, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{aiLockKey(symbol)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("ai lock release failed: %w", err)
	}
	return nil
}
