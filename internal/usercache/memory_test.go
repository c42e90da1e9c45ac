package usercache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)

	_, err := c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)

	user := &sessionapi.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, c.Put(ctx, "b1", user))

	got, err := c.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	got.Name = "mutated"
	again, err := c.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)

	require.NoError(t, c.Delete(ctx, "b1"))
	_, err = c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)

	assert.Error(t, c.Put(ctx, "b1", nil))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "b1", &sessionapi.User{ID: "u1"}))
	require.NoError(t, c.Put(ctx, "b2", &sessionapi.User{ID: "u2"}))

	now = now.Add(30 * time.Second)
	require.NoError(t, c.Put(ctx, "b2", &sessionapi.User{ID: "u2"}))

	now = now.Add(45 * time.Second)
	_, err := c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "b2")
	assert.NoError(t, err)

	count, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Put(ctx, "shared", &sessionapi.User{ID: "u1"})
			_, _ = c.Get(ctx, "shared")
			_ = c.Delete(ctx, "shared")
		}()
	}
	wg.Wait()
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Put(ctx, "b1", &sessionapi.User{ID: "u1"}))
	_, err := c.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Delete(ctx, "b1"))
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCleaner) Cleanup(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, nil
}

func (c *countingCleaner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSweeper(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewSweeper(cleaner, 10*time.Millisecond)
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return cleaner.count() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := cleaner.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, cleaner.count())
}
