package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"videomoments/core"
)

// Origin kinds for source ID namespaces.
const (
	KindClip    = "clip"
	KindYouTube = "youtube"
)

var allowedMediaExts = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".avi": true, ".mkv": true,
}

// NextSourceIndex scans the source media dir and the frames dir for the
// highest index already used in the kind's namespace and returns the
// next one. Scanning both means an interrupted ingestion that produced
// frames but no saved media (or vice versa) still never reuses an index.
func NextSourceIndex(kind string) int {
	max := 0
	mediaRe := regexp.MustCompile(`(?i)^` + kind + `_(\d+)\.`)
	frameRe := regexp.MustCompile(`^` + kind + `_(\d+)_frame`)

	if entries, err := os.ReadDir(core.SourceClipsDir()); err == nil {
		for _, e := range entries {
			if m := mediaRe.FindStringSubmatch(e.Name()); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > max {
					max = n
				}
			}
		}
	}
	if entries, err := os.ReadDir(core.FramesDir()); err == nil {
		for _, e := range entries {
			if m := frameRe.FindStringSubmatch(e.Name()); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > max {
					max = n
				}
			}
		}
	}
	return max + 1
}

// FormatSourceID builds the namespace-scoped, zero-padded identifier.
func FormatSourceID(kind string, index int) string {
	return fmt.Sprintf("%s_%03d", kind, index)
}

// ResolveSource maps a source ID to its media file. The unscoped legacy
// source resolves to the default video at the data root.
func ResolveSource(sourceID string) (string, error) {
	if sourceID == "" || sourceID == core.UnscopedSource {
		return filepath.Join(core.DataRoot(), "video.mp4"), nil
	}
	entries, err := os.ReadDir(core.SourceClipsDir())
	if err != nil {
		return "", fmt.Errorf("read source dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if allowedMediaExts[ext] && strings.TrimSuffix(name, filepath.Ext(name)) == sourceID {
			return filepath.Join(core.SourceClipsDir(), name), nil
		}
	}
	return "", fmt.Errorf("source %q not found", sourceID)
}

// ListSources returns the ingested media files in name order.
func ListSources() []string {
	entries, err := os.ReadDir(core.SourceClipsDir())
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if allowedMediaExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// AllowedMedia reports whether the filename has a supported container
// extension.
func AllowedMedia(filename string) bool {
	return allowedMediaExts[strings.ToLower(filepath.Ext(filename))]
}

// HistoryEntry records one completed ingestion in video_history.json.
type HistoryEntry struct {
	SourceID   string    `json:"source_id"`
	Origin     string    `json:"origin"`
	Name       string    `json:"name"`
	IngestedAt time.Time `json:"ingested_at"`
}

type history struct {
	Videos []HistoryEntry `json:"videos"`
}

func historyPath() string { return filepath.Join(core.DataRoot(), "video_history.json") }

// AppendHistory adds an entry to the ingestion history file.
func AppendHistory(entry HistoryEntry) error {
	h := loadHistory()
	h.Videos = append(h.Videos, entry)
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(historyPath(), data, 0644)
}

// LoadHistory returns all recorded ingestions, oldest first.
func LoadHistory() []HistoryEntry {
	return loadHistory().Videos
}

func loadHistory() history {
	var h history
	data, err := os.ReadFile(historyPath())
	if err != nil {
		return h
	}
	_ = json.Unmarshal(data, &h)
	return h
}
