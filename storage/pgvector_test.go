package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videomoments/core"
)

// Requires a running Postgres with the pgvector extension; set
// TEST_POSTGRES_URL to enable.
func newPgIndex(t *testing.T) *PgVectorIndex {
	t.Helper()
	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	idx, err := NewPgVectorIndex(context.Background(), dbURL, core.ModalityVisual, 256)
	require.NoError(t, err)
	t.Cleanup(idx.Close)
	require.NoError(t, idx.Clear(context.Background()))
	return idx
}

func TestPgVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := newPgIndex(t)
	embedder := NewLocalEmbedder()

	records := []core.Record{
		core.NewRecord("clip_001_frame_0005.jpg", "a red car", core.ModalityVisual, 5),
		core.NewRecord("clip_001_frame_0010.jpg", "a dog in a park", core.ModalityVisual, 5),
	}
	vectors, err := embedder.Embed(ctx, []string{records[0].Text, records[1].Text})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, records, vectors))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	query, err := embedder.Embed(ctx, []string{"red car"})
	require.NoError(t, err)
	hits, err := idx.Search(ctx, query[0], 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "clip_001_frame_0005.jpg", hits[0].ID)
}

func TestPgVectorConcurrentSearches(t *testing.T) {
	ctx := context.Background()
	idx := newPgIndex(t)
	embedder := NewLocalEmbedder()

	var records []core.Record
	var texts []string
	for i := 1; i <= 20; i++ {
		r := core.NewRecord(fmt.Sprintf("clip_001_frame_%04d.jpg", i),
			fmt.Sprintf("caption number %d", i), core.ModalityVisual, 5)
		records = append(records, r)
		texts = append(texts, r.Text)
	}
	vectors, err := embedder.Embed(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, records, vectors))

	query, err := embedder.Embed(ctx, []string{"caption number"})
	require.NoError(t, err)

	// Parallel readers must not contend on a shared connection.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := idx.Search(ctx, query[0], 10)
			if err != nil {
				errs <- err
				return
			}
			if len(hits) != 10 {
				errs <- fmt.Errorf("got %d hits, want 10", len(hits))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
