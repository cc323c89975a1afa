package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttemptStore(t *testing.T) (*ResetAttemptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResetAttemptStore(client), mr
}

func TestRecordCountsPerEmail(t *testing.T) {
	store, _ := newAttemptStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := store.Record(ctx, "t@x.io", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// A different address has its own counter.
	count, err := store.Record(ctx, "other@x.io", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordWindowExpiry(t *testing.T) {
	store, mr := newAttemptStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)
	_, err = store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)

	count, err := store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter resets once the window lapses")
}

func TestRecordWindowStartsAtFirstAttempt(t *testing.T) {
	store, mr := newAttemptStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)

	// Later attempts must not push the expiry out; the TTL is armed once.
	mr.FastForward(30 * time.Minute)
	_, err = store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)
	count, err := store.Record(ctx, "t@x.io", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordFailsWhenRedisDown(t *testing.T) {
	store, mr := newAttemptStore(t)
	mr.Close()

	_, err := store.Record(context.Background(), "t@x.io", time.Hour)
	require.Error(t, err)
}
