// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set("az:subnet-1", "us-west-2a", time.Minute)
	got, ok := c.Get("az:subnet-1")
	require.True(t, ok)
	assert.Equal(t, "us-west-2a", got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set("k", "v", -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set("k", "v", time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set("a", 1, time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.Size)
}
