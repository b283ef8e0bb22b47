package search

import (
	"fmt"
	"math"
	"sort"

	"videomoments/core"
)

type fuseKey struct {
	sourceID string
	ts       float64
}

// Fuse merges the visual and audio moment lists into one ranked result
// set. A visual and an audio span that land on the same
// (source, tenth-of-a-second) key are not both kept; iteration order
// decides the winner. audioPriority flips iteration to audio-first and
// widens the retained pool (15 vs 10). Audio spans without a visual
// anchor get a deterministic placeholder frame reference.
func Fuse(visualSpans, audioSpans []core.MomentSpan, audioPriority bool, fps float64, topN int) []core.MomentSpan {
	retain := 10
	ordered := append(append([]core.MomentSpan{}, visualSpans...), audioSpans...)
	if audioPriority {
		retain = 15
		ordered = append(append([]core.MomentSpan{}, audioSpans...), visualSpans...)
	}

	seen := map[fuseKey]bool{}
	var fused []core.MomentSpan
	for _, span := range ordered {
		key := fuseKey{span.SourceID, math.Round(span.Start*10) / 10}
		if seen[key] {
			continue
		}
		seen[key] = true
		if span.Modality == core.ModalityAudio {
			span.BestFrame = placeholderFrame(span.SourceID, span.Start, fps)
		}
		fused = append(fused, span)
		if len(fused) >= retain {
			break
		}
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if topN > 0 && topN < len(fused) {
		fused = fused[:topN]
	}
	return fused
}

// placeholderFrame names the extracted frame nearest to the timestamp.
// Extraction tools number frames from 1, so the index is clamped there.
func placeholderFrame(sourceID string, timestamp, fps float64) string {
	idx := int(math.Floor(timestamp * fps))
	if idx < 1 {
		idx = 1
	}
	if sourceID == core.UnscopedSource {
		return fmt.Sprintf("frame_%04d.jpg", idx)
	}
	return fmt.Sprintf("%s_frame_%04d.jpg", sourceID, idx)
}
