package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another holder owns the key.
var ErrLockHeld = errors.New("platform/cache: lock held")

// Lock is a best-effort SET NX mutex. The database-side unique constraint
// remains the source of truth; the lock only turns most duplicate attempts
// into a fast rejection before any work starts.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLock takes key for ttl, failing with ErrLockHeld if already taken.
func AcquireLock(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration) (*Lock, error) {
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: client, key: key, token: token, ttl: ttl}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
