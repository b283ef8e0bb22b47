package core

import "time"

// Modality distinguishes which index a record lives in.
type Modality string

const (
	ModalityVisual Modality = "visual"
	ModalityAudio  Modality = "audio"
)

// UnscopedSource is the legacy source ID for records whose IDs carry no
// clip_NNN / youtube_NNN prefix.
const UnscopedSource = "0"

// Record is one embedded text unit: a frame caption or a transcribed
// audio segment. ID is globally unique within a modality and stable
// across re-ingestion (it is the normalized frame/segment filename).
type Record struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	SourceID  string   `json:"source_id"`
	Timestamp float64  `json:"timestamp"`
	Modality  Modality `json:"modality"`
}

// Source is one ingested media file and its namespace-scoped identifier
// (clip_NNN or youtube_NNN, zero-padded, never reused).
type Source struct {
	SourceID      string    `json:"source_id"`
	MediaPath     string    `json:"media_path"`
	SampleRateFPS float64   `json:"sample_rate_fps"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// RawHit is a single similarity match before clustering.
type RawHit struct {
	ID        string   `json:"id"`
	SourceID  string   `json:"source_id"`
	Timestamp float64  `json:"timestamp"`
	Text      string   `json:"text"`
	Score     float64  `json:"score"`
	Modality  Modality `json:"modality"`
}

// MomentSpan is a clustered, ranked time range. Derived per query,
// never persisted.
type MomentSpan struct {
	SourceID           string   `json:"source_id"`
	Start              float64  `json:"start"`
	End                float64  `json:"end"`
	RepresentativeText string   `json:"caption"`
	Score              float64  `json:"score"`
	MemberCount        int      `json:"frame_count"`
	BestFrame          string   `json:"best_frame"`
	Modality           Modality `json:"modality"`
}

// AdjustedMoment is a MomentSpan after intent window adjustment, with
// the playable clip reference attached.
type AdjustedMoment struct {
	MomentSpan
	Intent        string  `json:"intent"`
	OriginalStart float64 `json:"original_start"`
	OriginalEnd   float64 `json:"original_end"`
	AdjStart      float64 `json:"start_adjusted"`
	AdjEnd        float64 `json:"end_adjusted"`
	ClipURL       string  `json:"video_url,omitempty"`
	ClipError     string  `json:"clip_error,omitempty"`
}

// IngestState is the coarse lifecycle of a background ingestion job.
type IngestState string

const (
	StateIdle       IngestState = "idle"
	StateStarting   IngestState = "starting"
	StateProcessing IngestState = "processing"
	StateCompleted  IngestState = "completed"
	StateError      IngestState = "error"
)

// IngestStatus is the single-writer status cell polled by status
// queries while an ingestion job runs.
type IngestStatus struct {
	JobID   string      `json:"job_id,omitempty"`
	State   IngestState `json:"state"`
	Message string      `json:"message"`
}

// Segment is one transcribed utterance with timing, as returned by the
// transcription provider.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
