package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videomoments/config"
	"videomoments/core"
	"videomoments/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		SampleRateFPS:   5,
		VisualGap:       1.0,
		AudioGap:        2.0,
		TopClusters:     5,
		SearchThreshold: 0.4,
	}
}

func newTestEngine(t *testing.T) (*Engine, *storage.IndexStore, *storage.IndexStore) {
	t.Helper()
	dir := t.TempDir()
	embedder := storage.NewLocalEmbedder()
	visual := storage.NewIndexStore(filepath.Join(dir, "captions.txt"),
		storage.NewMemoryVectorIndex(), embedder, core.ModalityVisual, 5)
	audio := storage.NewIndexStore(filepath.Join(dir, "audio_transcriptions.txt"),
		storage.NewMemoryVectorIndex(), embedder, core.ModalityAudio, 5)
	return NewEngine(visual, audio, testConfig()), visual, audio
}

func TestSearchEmptyIndex(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	spans, err := engine.Search(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestSearchClustersAdjacentFrames(t *testing.T) {
	ctx := context.Background()
	engine, visual, _ := newTestEngine(t)

	records := []core.Record{
		core.NewRecord("clip_001_frame_0005.jpg", "a red car", core.ModalityVisual, 5),
		core.NewRecord("clip_001_frame_0006.jpg", "a red car on the road", core.ModalityVisual, 5),
		core.NewRecord("clip_001_frame_0050.jpg", "trees swaying gently", core.ModalityVisual, 5),
	}
	_, _, err := visual.Upsert(ctx, records, true)
	require.NoError(t, err)

	spans, err := engine.Search(ctx, "red car")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "clip_001", spans[0].SourceID)
	assert.InDelta(t, 1.0, spans[0].Start, 1e-9)
	assert.InDelta(t, 1.2, spans[0].End, 1e-9)
	assert.Equal(t, 2, spans[0].MemberCount)
}

func TestSearchWithIntentAdjustsWindow(t *testing.T) {
	ctx := context.Background()
	engine, visual, _ := newTestEngine(t)

	records := []core.Record{
		core.NewRecord("clip_001_frame_0005.jpg", "a red car", core.ModalityVisual, 5),
		core.NewRecord("clip_001_frame_0006.jpg", "a red car on the road", core.ModalityVisual, 5),
	}
	_, _, err := visual.Upsert(ctx, records, true)
	require.NoError(t, err)

	intent, moments, err := engine.SearchWithIntent(ctx, "before the red car")
	require.NoError(t, err)
	assert.Equal(t, IntentBefore, intent)
	require.Len(t, moments, 1)

	m := moments[0]
	assert.InDelta(t, 1.0, m.OriginalStart, 1e-9)
	assert.InDelta(t, 1.2, m.OriginalEnd, 1e-9)
	// Lookback clamps at zero; the minimum duration then stretches the
	// tail to 2.0s.
	assert.Equal(t, 0.0, m.AdjStart)
	assert.Equal(t, 2.0, m.AdjEnd)
}

func TestFusedSearchAudioOnly(t *testing.T) {
	ctx := context.Background()
	engine, visual, audio := newTestEngine(t)

	_, _, err := visual.Upsert(ctx, []core.Record{
		core.NewRecord("clip_001_frame_0005.jpg", "a quiet street", core.ModalityVisual, 5),
	}, true)
	require.NoError(t, err)
	_, _, err = audio.Upsert(ctx, []core.Record{
		core.NewRecord("clip_001_audio_12.40", "the engine roars loudly", core.ModalityAudio, 5),
	}, true)
	require.NoError(t, err)

	intent, moments, err := engine.FusedSearch(ctx, "engine roars", true)
	require.NoError(t, err)
	assert.Equal(t, IntentDuring, intent)
	require.Len(t, moments, 1)
	assert.Equal(t, core.ModalityAudio, moments[0].Modality)
	assert.InDelta(t, 12.4, moments[0].OriginalStart, 1e-9)
	// Audio spans get a frame reference derived from their timestamp.
	assert.Equal(t, "clip_001_frame_0062.jpg", moments[0].BestFrame)
	// Audio "during" padding plus the minimum-duration expansion.
	assert.InDelta(t, 10.9, moments[0].AdjStart, 1e-9)
	assert.InDelta(t, 13.9, moments[0].AdjEnd, 1e-9)
}

func TestSearchRespectsThreshold(t *testing.T) {
	ctx := context.Background()
	engine, visual, _ := newTestEngine(t)

	_, _, err := visual.Upsert(ctx, []core.Record{
		core.NewRecord("clip_001_frame_0001.jpg", "completely unrelated topic", core.ModalityVisual, 5),
	}, true)
	require.NoError(t, err)

	spans, err := engine.Search(ctx, "red car")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestSearchCapsClusterCount(t *testing.T) {
	ctx := context.Background()
	engine, visual, _ := newTestEngine(t)

	// Eight well-separated moments all matching the query; only the
	// configured number of clusters comes back.
	var records []core.Record
	for i := 0; i < 8; i++ {
		// 20s apart at 5 fps: frames 1, 101, 201, ...
		id := fmt.Sprintf("clip_001_frame_%04d.jpg", i*100+1)
		records = append(records, core.NewRecord(id, "a red car", core.ModalityVisual, 5))
	}
	_, _, err := visual.Upsert(ctx, records, true)
	require.NoError(t, err)

	spans, err := engine.Search(ctx, "red car")
	require.NoError(t, err)
	assert.Len(t, spans, 5)
}
