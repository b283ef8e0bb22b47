package search

import (
	"strings"

	"videomoments/core"
)

// Temporal intent detected from the query text.
const (
	IntentBefore = "before"
	IntentAfter  = "after"
	IntentDuring = "during"
)

const (
	// Window added before/after a span for the matching intents.
	intentWindow = 5.0
	// Adjusted ranges shorter than this are expanded symmetrically
	// around their midpoint.
	minClipDuration = 3.0
	// Audio "during" spans get padded so a spoken phrase is not cut
	// mid-word at either edge.
	audioPad = 1.0
)

// DetectIntent classifies the query by literal substring match.
// "before" and "after" are checked first; "during" is the default.
func DetectIntent(query string) string {
	q := strings.ToLower(query)
	if strings.Contains(q, "before") {
		return IntentBefore
	}
	if strings.Contains(q, "after") {
		return IntentAfter
	}
	return IntentDuring
}

// CleanQuery strips the intent words so they do not pollute the
// embedding lookup. The cleaned string, not the original, goes to
// vector search.
func CleanQuery(query string) string {
	clean := strings.ToLower(query)
	for _, w := range []string{"before", "after", "during"} {
		clean = strings.ReplaceAll(clean, w, "")
	}
	return strings.TrimSpace(clean)
}

// AdjustWindow maps a span and intent to the playable range. Purely
// presentational: the result decides which sub-clip gets generated and
// never feeds back into ranking.
func AdjustWindow(span core.MomentSpan, intent string) (start, end float64) {
	switch intent {
	case IntentBefore:
		start = span.Start - intentWindow
		if start < 0 {
			start = 0
		}
		end = span.Start
	case IntentAfter:
		start = span.End
		end = span.End + intentWindow
	default:
		start = span.Start
		end = span.End
		if span.Modality == core.ModalityAudio {
			start -= audioPad
			if start < 0 {
				start = 0
			}
			end += audioPad
		}
	}

	if end-start < minClipDuration {
		diff := minClipDuration - (end - start)
		start -= diff / 2
		if start < 0 {
			start = 0
		}
		end += diff / 2
	}
	return start, end
}
