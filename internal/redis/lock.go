package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// LockStore handles best-effort distributed locking in Redis.
type LockStore struct {
	client lockClient
}

// NewLockStore creates a new LockStore.
func NewLockStore(client lockClient) *LockStore {
	return &LockStore{client: client}
}

// AcquireProvisioningLock attempts to take the payment-source provisioning
// lock for a rider. Returns the token to release with, or "" if already held.
func (s *LockStore) AcquireProvisioningLock(ctx context.Context, riderID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, provisioningKey(riderID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseProvisioningLock releases the lock if token still owns it.
func (s *LockStore) ReleaseProvisioningLock(ctx context.Context, riderID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{provisioningKey(riderID)}, token).Err()
}

func provisioningKey(riderID string) string {
	return fmt.Sprintf("lock:payment-source:%s", riderID)
}
