package clips

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videomoments/core"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "clip_001_10.00_15.50.mp4", Filename("clip_001", 10, 15.5))
	assert.Equal(t, "clip_0.00_2.00.mp4", Filename(core.UnscopedSource, 0, 2))
	assert.Equal(t, "clip_0.00_2.00.mp4", Filename("", 0, 2))
	// Rounded to 2 decimals before naming.
	assert.Equal(t, "clip_001_1.23_4.57.mp4", Filename("clip_001", 1.234, 4.567))
}

func newTestCache(t *testing.T, trimCalls *int, trimErr error) *Cache {
	t.Helper()
	c := NewCache(t.TempDir(), func(sourceID string) (string, error) {
		return "/media/" + sourceID + ".mp4", nil
	})
	c.trim = func(srcPath string, start, duration float64, outPath string) error {
		*trimCalls++
		if trimErr != nil {
			return trimErr
		}
		return os.WriteFile(outPath, []byte("clip"), 0644)
	}
	return c
}

func TestEnsureClipGeneratesOnce(t *testing.T) {
	var calls int
	c := newTestCache(t, &calls, nil)

	first, err := c.EnsureClip("clip_001", 1.0, 4.0)
	require.NoError(t, err)
	second, err := c.EnsureClip("clip_001", 1.0, 4.0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.FileExists(t, filepath.Join(c.dir, first))
}

func TestEnsureClipCollapsesRoundedKeys(t *testing.T) {
	var calls int
	c := newTestCache(t, &calls, nil)

	a, err := c.EnsureClip("clip_001", 1.001, 3.999)
	require.NoError(t, err)
	b, err := c.EnsureClip("clip_001", 0.9999, 4.0001)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "clip_001_1.00_4.00.mp4", a)
	assert.Equal(t, 1, calls)
}

func TestEnsureClipConcurrentCallersShareOneGeneration(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := NewCache(t.TempDir(), func(sourceID string) (string, error) {
		return "/media/" + sourceID + ".mp4", nil
	})
	c.trim = func(srcPath string, start, duration float64, outPath string) error {
		atomic.AddInt32(&calls, 1)
		// Hold the generation open until every caller has arrived.
		<-release
		return os.WriteFile(outPath, []byte("clip"), 0644)
	}

	const n = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	started.Add(n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = c.EnsureClip("clip_001", 1.0, 4.0)
		}(i)
	}
	started.Wait()
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "clip_001_1.00_4.00.mp4", results[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnsureClipDistinctKeysGenerateSeparately(t *testing.T) {
	var calls int
	c := newTestCache(t, &calls, nil)

	a, err := c.EnsureClip("clip_001", 1.0, 4.0)
	require.NoError(t, err)
	b, err := c.EnsureClip("clip_002", 1.0, 4.0)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, calls)
}

func TestEnsureClipFailureLeavesNoArtifact(t *testing.T) {
	var calls int
	c := newTestCache(t, &calls, fmt.Errorf("encoder exploded"))

	_, err := c.EnsureClip("clip_001", 1.0, 4.0)
	require.Error(t, err)

	entries, readErr := os.ReadDir(c.dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)

	// A later request retries instead of serving the failure from cache.
	c.trim = func(srcPath string, start, duration float64, outPath string) error {
		calls++
		return os.WriteFile(outPath, []byte("clip"), 0644)
	}
	name, err := c.EnsureClip("clip_001", 1.0, 4.0)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(c.dir, name))
}

func TestEnsureClipResolveFailure(t *testing.T) {
	c := NewCache(t.TempDir(), func(sourceID string) (string, error) {
		return "", fmt.Errorf("source %q not found", sourceID)
	})
	var calls int
	c.trim = func(srcPath string, start, duration float64, outPath string) error {
		calls++
		return nil
	}
	_, err := c.EnsureClip("clip_404", 0, 3)
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}
