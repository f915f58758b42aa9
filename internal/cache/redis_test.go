package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStorage instance
func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	storage := NewRedisStorage(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return storage, mr, cleanup
}

func TestRedisStorage_SetAndFind(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	entry := &Entry{
		Key:      "GET https://erp/catalog/products?page=1",
		Payload:  json.RawMessage(`{"items":[]}`),
		StoredAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		TTL:      time.Minute,
	}

	require.NoError(t, storage.Set(ctx, entry.Key, entry))
	assert.True(t, mr.Exists(redisKeyPrefix+entry.Key))

	found, err := storage.Find(ctx, entry.Key)
	require.NoError(t, err)
	assert.Equal(t, entry.Key, found.Key)
	assert.Equal(t, entry.Payload, found.Payload)
	assert.True(t, entry.StoredAt.Equal(found.StoredAt))
	assert.Equal(t, time.Minute, found.TTL)
}

func TestRedisStorage_FindMiss(t *testing.T) {
	storage, _, cleanup := setupTestRedis(t)
	defer cleanup()

	_, err := storage.Find(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRedisStorage_FindCorruptEntry(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	key := "GET https://erp/catalog/products?page=1"
	require.NoError(t, mr.Set(redisKeyPrefix+key, `{"key": truncated`))

	_, err := storage.Find(context.Background(), key)
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestRedisStorage_Remove(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	key := "GET https://erp/x"
	require.NoError(t, storage.Set(ctx, key, &Entry{Key: key, Payload: json.RawMessage(`1`), StoredAt: time.Now(), TTL: TTLForever}))
	require.True(t, mr.Exists(redisKeyPrefix+key))

	require.NoError(t, storage.Remove(ctx, key))
	assert.False(t, mr.Exists(redisKeyPrefix+key))

	// Removing a missing key is not an error.
	assert.NoError(t, storage.Remove(ctx, key))
}

func TestRedisStorage_RemovePrefix(t *testing.T) {
	storage, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	keep := "GET https://erp/bank/accounts"
	for _, key := range []string{
		"GET https://erp/catalog/products?page=1",
		"GET https://erp/catalog/products?page=2",
		keep,
	} {
		require.NoError(t, storage.Set(ctx, key, &Entry{Key: key, Payload: json.RawMessage(`1`), StoredAt: time.Now(), TTL: time.Minute}))
	}

	require.NoError(t, storage.RemovePrefix(ctx, "GET https://erp/catalog/"))

	assert.False(t, mr.Exists(redisKeyPrefix+"GET https://erp/catalog/products?page=1"))
	assert.False(t, mr.Exists(redisKeyPrefix+"GET https://erp/catalog/products?page=2"))
	assert.True(t, mr.Exists(redisKeyPrefix+keep))
}
