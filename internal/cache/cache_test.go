package cache

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheHitReturnsStoredText(t *testing.T) {
	t.Parallel()

	c, err := New(Config{EntryCap: 10, MemoryLimitBytes: 1 << 20})
	require.NoError(t, err)

	text, err := c.GetOrCompute("fp-1", func() (string, error) { return "hello", nil })
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	// Second call must not invoke compute again.
	text, err = c.GetOrCompute("fp-1", func() (string, error) {
		t.Fatal("compute called on a hit")
		return "", nil
	})
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Equal(t, 1, c.Len())
}

func TestCacheComputeErrorNotCached(t *testing.T) {
	t.Parallel()

	c, err := New(Config{EntryCap: 10, MemoryLimitBytes: 1 << 20})
	require.NoError(t, err)

	_, err = c.GetOrCompute("fp-err", func() (string, error) {
		return "", fmt.Errorf("boom")
	})
	require.Error(t, err)
	require.False(t, c.Contains("fp-err"))

	// A later compute for the same key must run and succeed.
	text, err := c.GetOrCompute("fp-err", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}

func TestCacheSingleFlight(t *testing.T) {
	t.Parallel()

	c, err := New(Config{EntryCap: 10, MemoryLimitBytes: 1 << 20})
	require.NoError(t, err)

	const goroutines = 32
	var computes atomic.Int64
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			text, gerr := c.GetOrCompute("fp-shared", func() (string, error) {
				computes.Add(1)
				return "computed once", nil
			})
			require.NoError(t, gerr)
			require.Equal(t, "computed once", text)
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(1), computes.Load())
	require.Equal(t, 1, c.Len())
}

func TestCacheEvictsByEntryCap(t *testing.T) {
	t.Parallel()

	c, err := New(Config{EntryCap: 3, MemoryLimitBytes: 1 << 20})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.GetOrCompute(fmt.Sprintf("fp-%d", i), func() (string, error) { return "x", nil })
		require.NoError(t, err)
	}

	// Refresh fp-0 so fp-1 becomes the least recently used.
	_, err = c.GetOrCompute("fp-0", func() (string, error) { return "", nil })
	require.NoError(t, err)

	_, err = c.GetOrCompute("fp-3", func() (string, error) { return "x", nil })
	require.NoError(t, err)

	require.Equal(t, 3, c.Len())
	require.True(t, c.Contains("fp-0"))
	require.False(t, c.Contains("fp-1"))
	require.True(t, c.Contains("fp-2"))
	require.True(t, c.Contains("fp-3"))
}

func TestCacheEvictsByByteBudget(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("a", 400)
	c, err := New(Config{EntryCap: 100, MemoryLimitBytes: 1000})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.GetOrCompute(fmt.Sprintf("fp-%d", i), func() (string, error) { return big, nil })
		require.NoError(t, err)
	}

	// 3 * 400 = 1200 > 1000: the oldest entry is evicted.
	require.Equal(t, 2, c.Len())
	require.False(t, c.Contains("fp-0"))
	require.LessOrEqual(t, c.SizeBytes(), int64(1000))
}

func TestCacheRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{EntryCap: 0, MemoryLimitBytes: 100})
	require.Error(t, err)

	_, err = New(Config{EntryCap: 1, MemoryLimitBytes: 0})
	require.Error(t, err)
}
