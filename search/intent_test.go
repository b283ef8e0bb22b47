package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"videomoments/core"
)

func TestDetectIntent(t *testing.T) {
	assert.Equal(t, IntentBefore, DetectIntent("before the car crashes"))
	assert.Equal(t, IntentAfter, DetectIntent("after the goal"))
	assert.Equal(t, IntentDuring, DetectIntent("during the speech"))
	assert.Equal(t, IntentDuring, DetectIntent("a red car"))
	// "before" wins when both words appear.
	assert.Equal(t, IntentBefore, DetectIntent("before and after the jump"))
	assert.Equal(t, IntentBefore, DetectIntent("BEFORE the storm"))
}

func TestCleanQuery(t *testing.T) {
	assert.Equal(t, "the car crashes", CleanQuery("before the car crashes"))
	assert.Equal(t, "the goal", CleanQuery("After the goal"))
	assert.Equal(t, "a red car", CleanQuery("a red car"))
	assert.Equal(t, "the speech", CleanQuery("during the speech"))
}

func span(start, end float64) core.MomentSpan {
	return core.MomentSpan{SourceID: "clip_001", Start: start, End: end, Modality: core.ModalityVisual}
}

func TestAdjustWindowBefore(t *testing.T) {
	start, end := AdjustWindow(span(10.0, 12.0), IntentBefore)
	assert.Equal(t, 5.0, start)
	assert.Equal(t, 10.0, end)
}

func TestAdjustWindowBeforeClampsAtZero(t *testing.T) {
	// Span starting at 1.0: the 5s lookback clamps to 0, leaving a 1s
	// range that the minimum-duration expansion widens to [0, 2.0].
	start, end := AdjustWindow(span(1.0, 1.2), IntentBefore)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 2.0, end)
}

func TestAdjustWindowAfter(t *testing.T) {
	start, end := AdjustWindow(span(10.0, 12.0), IntentAfter)
	assert.Equal(t, 12.0, start)
	assert.Equal(t, 17.0, end)
}

func TestAdjustWindowDuringKeepsRange(t *testing.T) {
	start, end := AdjustWindow(span(10.0, 14.0), IntentDuring)
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 14.0, end)
}

func TestAdjustWindowMinimumDuration(t *testing.T) {
	// A 0.4s span is expanded symmetrically around its midpoint.
	start, end := AdjustWindow(span(10.0, 10.4), IntentDuring)
	assert.InDelta(t, 8.7, start, 1e-9)
	assert.InDelta(t, 11.7, end, 1e-9)
	assert.InDelta(t, minClipDuration, end-start, 1e-9)
}

func TestAdjustWindowAudioDuringPadded(t *testing.T) {
	s := core.MomentSpan{SourceID: "clip_001", Start: 10.0, End: 14.0, Modality: core.ModalityAudio}
	start, end := AdjustWindow(s, IntentDuring)
	assert.Equal(t, 9.0, start)
	assert.Equal(t, 15.0, end)

	// Padding never pushes the start negative.
	s.Start, s.End = 0.5, 4.0
	start, end = AdjustWindow(s, IntentDuring)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 5.0, end)
}
