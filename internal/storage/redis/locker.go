package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"assistant/backend/internal/storage"
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL ran out cannot free someone else's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a storage.Locker shared by every server instance using the
// same Redis.
type Locker struct {
	client *Client
	prefix string
}

var _ storage.Locker = (*Locker)(nil)

// NewLocker creates a locker whose keys are stored under "lock:".
func NewLocker(client *Client) *Locker {
	return &Locker{client: client, prefix: "lock:"}
}

// TryLock sets the key with NX and a PX expiry.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, storage.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done when the release runs.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client.rdb, []string{redisKey}, token).Err(); err != nil {
				l.client.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
