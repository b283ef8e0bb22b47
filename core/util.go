package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// DataRoot is the base directory for persisted state: the caption and
// transcription logs, ingested source media, frames and generated clips.
func DataRoot() string {
	if v := os.Getenv("DATA_ROOT"); v != "" {
		return v
	}
	return filepath.Join(".", "data")
}

func CaptionsLogPath() string { return filepath.Join(DataRoot(), "captions.txt") }

func TranscriptionsLogPath() string {
	return filepath.Join(DataRoot(), "audio_transcriptions.txt")
}

func SourceClipsDir() string { return filepath.Join(DataRoot(), "source_clips") }

func FramesDir() string { return filepath.Join(DataRoot(), "frames") }

func ClipsDir() string { return filepath.Join(DataRoot(), "clips") }

func AudioDir() string { return filepath.Join(DataRoot(), "audio_extracts") }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}
