package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videomoments/core"
)

func visualHit(id, source string, ts, score float64, text string) core.RawHit {
	return core.RawHit{ID: id, SourceID: source, Timestamp: ts, Score: score, Text: text, Modality: core.ModalityVisual}
}

func TestClusterEmptyAndSingle(t *testing.T) {
	assert.Nil(t, Cluster(nil, 1.0))

	spans := Cluster([]core.RawHit{visualHit("clip_001_frame_0005.jpg", "clip_001", 1.0, 0.9, "a red car")}, 1.0)
	require.Len(t, spans, 1)
	assert.Equal(t, 1.0, spans[0].Start)
	assert.Equal(t, 1.0, spans[0].End)
	assert.Equal(t, 1, spans[0].MemberCount)
}

func TestClusterAdjacentFramesFormOneSpan(t *testing.T) {
	hits := []core.RawHit{
		visualHit("clip_001_frame_0006.jpg", "clip_001", 1.2, 0.82, "a red car on the road"),
		visualHit("clip_001_frame_0005.jpg", "clip_001", 1.0, 0.91, "a red car"),
	}
	spans := Cluster(hits, 1.0)
	require.Len(t, spans, 1)
	assert.Equal(t, "clip_001", spans[0].SourceID)
	assert.Equal(t, 1.0, spans[0].Start)
	assert.Equal(t, 1.2, spans[0].End)
	assert.Equal(t, 2, spans[0].MemberCount)
	assert.Equal(t, 0.91, spans[0].Score)
	assert.Equal(t, "a red car", spans[0].RepresentativeText)
	assert.Equal(t, "clip_001_frame_0005.jpg", spans[0].BestFrame)
}

func TestClusterSplitsOnGap(t *testing.T) {
	hits := []core.RawHit{
		visualHit("a", "clip_001", 1.0, 0.5, ""),
		visualHit("b", "clip_001", 1.8, 0.6, ""),
		visualHit("c", "clip_001", 4.0, 0.7, ""), // 2.2s after previous
	}
	spans := Cluster(hits, 1.0)
	require.Len(t, spans, 2)
	// Ranked by best score, so the singleton at 4.0 comes first.
	assert.Equal(t, 4.0, spans[0].Start)
	assert.Equal(t, 1, spans[0].MemberCount)
	assert.Equal(t, 1.0, spans[1].Start)
	assert.Equal(t, 1.8, spans[1].End)
	assert.Equal(t, 2, spans[1].MemberCount)
}

func TestClusterNeverMergesSources(t *testing.T) {
	// Same local timestamps, different sources: must stay apart.
	hits := []core.RawHit{
		visualHit("clip_001_frame_0005.jpg", "clip_001", 1.0, 0.9, ""),
		visualHit("clip_002_frame_0005.jpg", "clip_002", 1.0, 0.8, ""),
	}
	spans := Cluster(hits, 1.0)
	require.Len(t, spans, 2)
	assert.NotEqual(t, spans[0].SourceID, spans[1].SourceID)
	for _, s := range spans {
		assert.Equal(t, 1, s.MemberCount)
	}
}

func TestClusterGapExactlyAtThresholdMerges(t *testing.T) {
	hits := []core.RawHit{
		visualHit("a", "clip_001", 1.0, 0.5, ""),
		visualHit("b", "clip_001", 2.0, 0.5, ""),
	}
	spans := Cluster(hits, 1.0)
	require.Len(t, spans, 1)
	assert.Equal(t, 2, spans[0].MemberCount)
}

func TestClusterRanksByScoreDescending(t *testing.T) {
	hits := []core.RawHit{
		visualHit("a", "clip_001", 0.0, 0.41, ""),
		visualHit("b", "clip_002", 0.0, 0.99, ""),
		visualHit("c", "clip_003", 0.0, 0.63, ""),
	}
	spans := Cluster(hits, 1.0)
	require.Len(t, spans, 3)
	assert.True(t, spans[0].Score >= spans[1].Score && spans[1].Score >= spans[2].Score)
}
