package search

import (
	"sort"

	"videomoments/core"
)

// Cluster groups raw similarity hits into moment spans. Hits are walked
// in (sourceId, timestamp) order; a new span starts whenever the source
// changes or the gap to the previous member exceeds gapThreshold, so
// two sources are never merged even if their frame-local timestamps
// coincide. Spans come back ranked by their best member's score, not
// chronologically.
func Cluster(hits []core.RawHit, gapThreshold float64) []core.MomentSpan {
	if len(hits) == 0 {
		return nil
	}

	sorted := make([]core.RawHit, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SourceID != sorted[j].SourceID {
			return sorted[i].SourceID < sorted[j].SourceID
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var spans []core.MomentSpan
	current := []core.RawHit{sorted[0]}
	for _, hit := range sorted[1:] {
		prev := current[len(current)-1]
		sameSource := hit.SourceID == prev.SourceID
		if sameSource && hit.Timestamp-prev.Timestamp <= gapThreshold {
			current = append(current, hit)
			continue
		}
		spans = append(spans, closeSpan(current))
		current = []core.RawHit{hit}
	}
	spans = append(spans, closeSpan(current))

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Score > spans[j].Score })
	return spans
}

func closeSpan(members []core.RawHit) core.MomentSpan {
	best := members[0]
	for _, m := range members[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	return core.MomentSpan{
		SourceID:           best.SourceID,
		Start:              members[0].Timestamp,
		End:                members[len(members)-1].Timestamp,
		RepresentativeText: best.Text,
		Score:              best.Score,
		MemberCount:        len(members),
		BestFrame:          best.ID,
		Modality:           best.Modality,
	}
}
