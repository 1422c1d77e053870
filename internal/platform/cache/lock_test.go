package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestAcquireLockExclusive(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	lock, err := AcquireLock(ctx, client, "consol:group:1:period:2025-01:lock", "run-a", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, client, "consol:group:1:period:2025-01:lock", "run-b", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))

	_, err = AcquireLock(ctx, client, "consol:group:1:period:2025-01:lock", "run-b", time.Minute)
	require.NoError(t, err)
}

func TestReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	lock, err := AcquireLock(ctx, client, "instrument:lc:7:lock", "holder-1", time.Minute)
	require.NoError(t, err)

	stale := &Lock{client: client, key: "instrument:lc:7:lock", token: "someone-else"}
	require.NoError(t, stale.Release(ctx))

	// Original holder still owns the key.
	_, err = AcquireLock(ctx, client, "instrument:lc:7:lock", "holder-2", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))
}
