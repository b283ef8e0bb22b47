package core

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sourcePrefixRe = regexp.MustCompile(`^(clip|youtube)_(\d+)_`)
	digitRunRe     = regexp.MustCompile(`\d+`)
)

// SourceIDFromRecordID extracts the namespace-scoped source identifier
// from a record ID. IDs look like clip_001_frame_0005.jpg,
// youtube_002_frame_0123.jpg or clip_001_audio_12.40. IDs without a
// recognized prefix belong to the legacy unscoped source "0".
func SourceIDFromRecordID(id string) string {
	m := sourcePrefixRe.FindStringSubmatch(id)
	if m == nil {
		return UnscopedSource
	}
	return m[1] + "_" + m[2]
}

// TimestampFromRecordID derives the record's position in its source.
// Audio segment IDs carry the start second directly after "_audio_";
// frame IDs carry a frame index as their last digit run, divided by the
// extraction rate.
func TimestampFromRecordID(id string, fps float64) float64 {
	if i := strings.LastIndex(id, "_audio_"); i >= 0 {
		if ts, err := strconv.ParseFloat(id[i+len("_audio_"):], 64); err == nil {
			return ts
		}
	}
	runs := digitRunRe.FindAllString(id, -1)
	if len(runs) == 0 {
		return 0
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil || fps <= 0 {
		return 0
	}
	return float64(n) / fps
}

// NewRecord builds a Record with source and timestamp derived from the ID.
func NewRecord(id, text string, modality Modality, fps float64) Record {
	return Record{
		ID:        id,
		Text:      text,
		SourceID:  SourceIDFromRecordID(id),
		Timestamp: TimestampFromRecordID(id, fps),
		Modality:  modality,
	}
}
