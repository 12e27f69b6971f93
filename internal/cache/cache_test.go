package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryKey_StableAcrossFilterOrder(t *testing.T) {
	a := QueryKey("how does auth work", "proj", 10, map[string]string{"language": "go", "chunk_type": "function"})
	b := QueryKey("how does auth work", "proj", 10, map[string]string{"chunk_type": "function", "language": "go"})
	assert.Equal(t, a, b)
}

func TestQueryKey_SensitiveToEveryInput(t *testing.T) {
	base := QueryKey("q", "proj", 10, nil)

	assert.NotEqual(t, base, QueryKey("q2", "proj", 10, nil))
	assert.NotEqual(t, base, QueryKey("q", "proj2", 10, nil))
	assert.NotEqual(t, base, QueryKey("q", "proj", 20, nil))
	assert.NotEqual(t, base, QueryKey("q", "proj", 10, map[string]string{"language": "go"}))
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(8, time.Minute)
	defer c.Close()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("value"), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(8, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsAtCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, okA, _ := c.Get(ctx, "a")
	_, okC, _ := c.Get(ctx, "c")
	assert.False(t, okA, "oldest entry is evicted")
	assert.True(t, okC)
}
