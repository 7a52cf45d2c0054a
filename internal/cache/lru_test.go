package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		capacity int
		ttl      time.Duration
		actions  func(t *testing.T, c *LRUCache)
	}{
		{
			name:     "set and get within TTL",
			capacity: 2,
			ttl:      time.Second,
			actions: func(t *testing.T, c *LRUCache) {
				require.NoError(t, c.Set(ctx, "a", []byte("1")))
				v, err := c.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "1", string(v))
			},
		},
		{
			name:     "get after expiration",
			capacity: 2,
			ttl:      50 * time.Millisecond,
			actions: func(t *testing.T, c *LRUCache) {
				require.NoError(t, c.Set(ctx, "a", []byte("1")))
				time.Sleep(60 * time.Millisecond)
				_, err := c.Get(ctx, "a")
				assert.ErrorIs(t, err, ErrMiss)
				assert.Equal(t, 0, c.Len())
			},
		},
		{
			name:     "evicts least recently used",
			capacity: 2,
			ttl:      time.Second,
			actions: func(t *testing.T, c *LRUCache) {
				require.NoError(t, c.Set(ctx, "a", []byte("1")))
				require.NoError(t, c.Set(ctx, "b", []byte("2")))
				_, err := c.Get(ctx, "a")
				require.NoError(t, err)
				require.NoError(t, c.Set(ctx, "c", []byte("3")))

				_, err = c.Get(ctx, "b")
				assert.ErrorIs(t, err, ErrMiss)
				_, err = c.Get(ctx, "a")
				assert.NoError(t, err)
				assert.Equal(t, 2, c.Len())
			},
		},
		{
			name:     "overwrite refreshes value",
			capacity: 2,
			ttl:      time.Second,
			actions: func(t *testing.T, c *LRUCache) {
				require.NoError(t, c.Set(ctx, "a", []byte("1")))
				require.NoError(t, c.Set(ctx, "a", []byte("2")))
				v, err := c.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "2", string(v))
				assert.Equal(t, 1, c.Len())
			},
		},
		{
			name:     "delete removes entry",
			capacity: 2,
			ttl:      time.Second,
			actions: func(t *testing.T, c *LRUCache) {
				require.NoError(t, c.Set(ctx, "a", []byte("1")))
				require.NoError(t, c.Delete(ctx, "a"))
				require.NoError(t, c.Delete(ctx, "missing"))
				_, err := c.Get(ctx, "a")
				assert.ErrorIs(t, err, ErrMiss)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLRUCache(tt.capacity, tt.ttl)
			defer c.Close()
			tt.actions(t, c)
		})
	}
}

func TestLRUCache_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10, 20*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	c.removeExpired()

	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_CloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewLRUCache(1, time.Second)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	c := NewNop()

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Delete(ctx, "a"))
	assert.NoError(t, c.Close())
}
