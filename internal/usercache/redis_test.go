package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedisSet struct {
	key        string
	value      []byte
	expiration time.Duration
}

// fakeRedis answers the commands the cache issues from an in-memory map.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   []fakeRedisSet
	dels   []string
	getErr error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(val), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := value.([]byte)
	f.data[key] = data
	f.sets = append(f.sets, fakeRedisSet{key: key, value: data, expiration: expiration})
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
		delete(f.data, k)
		f.dels = append(f.dels, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRedisCacheCommands(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newRedis(fake, "", 30*time.Minute)

	_, err := c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)

	user := &sessionapi.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Picture: "https://cdn.example.com/ada.png"}
	require.NoError(t, c.Put(ctx, "b1", user))

	require.Len(t, fake.sets, 1)
	set := fake.sets[0]
	assert.Equal(t, DefaultRedisPrefix+"b1", set.key)
	assert.Equal(t, 30*time.Minute, set.expiration)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(set.value, &stored))
	assert.Equal(t, "u1", stored["id"])
	assert.Equal(t, "ada@example.com", stored["email"])

	got, err := c.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	require.NoError(t, c.Delete(ctx, "b1"))
	assert.Equal(t, []string{DefaultRedisPrefix + "b1"}, fake.dels)
	_, err = c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Close())
	assert.True(t, fake.closed)
}

func TestRedisCacheDefaults(t *testing.T) {
	fake := newFakeRedis()
	c := newRedis(fake, "front:", 0)
	require.NoError(t, c.Put(context.Background(), "b1", &sessionapi.User{ID: "u1"}))

	require.Len(t, fake.sets, 1)
	assert.Equal(t, "front:b1", fake.sets[0].key)
	assert.Equal(t, DefaultTTL, fake.sets[0].expiration)
}

func TestRedisCacheErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("connection error is not a miss", func(t *testing.T) {
		fake := newFakeRedis()
		fake.getErr = errors.New("connection reset")
		c := newRedis(fake, "", time.Minute)

		_, err := c.Get(ctx, "b1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMiss)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("corrupt value", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data[DefaultRedisPrefix+"b1"] = []byte("{not json")
		c := newRedis(fake, "", time.Minute)

		_, err := c.Get(ctx, "b1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding cached user")
	})

	t.Run("nil user", func(t *testing.T) {
		fake := newFakeRedis()
		c := newRedis(fake, "", time.Minute)

		assert.Error(t, c.Put(ctx, "b1", nil))
		assert.Empty(t, fake.sets)
	})
}

func TestRedisConfig(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis address is required")
}

// TestRedisCache runs against a real server when STYLEFRONT_TEST_REDIS_ADDR
// is set, for example "localhost:6379".
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("STYLEFRONT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STYLEFRONT_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c, err := NewRedis(ctx, RedisOptions{
		Addr:   addr,
		Prefix: "stylefront:test:" + uuid.NewString() + ":",
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)

	user := &sessionapi.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, c.Put(ctx, "b1", user))

	got, err := c.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	ttl, err := c.client.(redis.UniversalClient).TTL(ctx, c.key("b1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Delete(ctx, "b1"))
	_, err = c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)
}
