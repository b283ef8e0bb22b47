package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"videomoments/core"
	"videomoments/storage"
	"videomoments/utils"
)

// UploadedFile is one uploaded media file, content already read out of
// the request body.
type UploadedFile struct {
	Name string
	Data []byte
}

// Coordinator runs ingestion jobs: it assigns source IDs, extracts
// frames and audio, captions and transcribes new records, and commits
// them into the index stores. One job runs at a time per process;
// status is a single-writer cell that concurrent status queries poll.
type Coordinator struct {
	visual      *storage.IndexStore
	audio       *storage.IndexStore
	captioner   Captioner
	transcriber Transcriber
	fps         float64

	busy chan struct{}

	statusMu sync.RWMutex
	status   core.IngestStatus
}

func NewCoordinator(visual, audio *storage.IndexStore, captioner Captioner, transcriber Transcriber, fps float64) *Coordinator {
	c := &Coordinator{
		visual:      visual,
		audio:       audio,
		captioner:   captioner,
		transcriber: transcriber,
		fps:         fps,
		busy:        make(chan struct{}, 1),
		status:      core.IngestStatus{State: core.StateIdle},
	}
	return c
}

// Status returns the current job status snapshot.
func (c *Coordinator) Status() core.IngestStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Coordinator) setStatus(jobID string, state core.IngestState, format string, args ...any) {
	c.statusMu.Lock()
	c.status = core.IngestStatus{JobID: jobID, State: state, Message: fmt.Sprintf(format, args...)}
	c.statusMu.Unlock()
}

// EnsureLoaded warms both index stores from their logs.
func (c *Coordinator) EnsureLoaded(ctx context.Context) error {
	if err := c.visual.EnsureLoaded(ctx); err != nil {
		return err
	}
	return c.audio.EnsureLoaded(ctx)
}

// Ingest commits pre-built records for a source directly, append-only.
func (c *Coordinator) Ingest(ctx context.Context, records []core.Record, modality core.Modality) (added, skipped int, err error) {
	store := c.visual
	if modality == core.ModalityAudio {
		store = c.audio
	}
	return store.Upsert(ctx, records, true)
}

func (c *Coordinator) acquire() bool {
	select {
	case c.busy <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Coordinator) release() { <-c.busy }

// StartClipIngestion launches a background job over uploaded clips.
// Returns an error immediately if a job is already running.
func (c *Coordinator) StartClipIngestion(files []UploadedFile) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no files to ingest")
	}
	if !c.acquire() {
		return "", fmt.Errorf("an ingestion job is already running")
	}
	jobID := uuid.NewString()
	c.setStatus(jobID, core.StateStarting, "Processing %d clip(s)...", len(files))
	go c.runClips(jobID, files)
	return jobID, nil
}

// StartYouTubeIngestion launches a background job that downloads the
// video and ingests it under the youtube namespace.
func (c *Coordinator) StartYouTubeIngestion(url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("url required")
	}
	if !c.acquire() {
		return "", fmt.Errorf("an ingestion job is already running")
	}
	jobID := uuid.NewString()
	c.setStatus(jobID, core.StateStarting, "Starting job...")
	go c.runYouTube(jobID, url)
	return jobID, nil
}

func (c *Coordinator) runClips(jobID string, files []UploadedFile) {
	defer c.release()
	ctx := context.Background()

	startIdx := NextSourceIndex(KindClip)
	for i, f := range files {
		sourceID := FormatSourceID(KindClip, startIdx+i)
		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext == "" {
			ext = ".mp4"
		}
		savePath := filepath.Join(core.SourceClipsDir(), sourceID+ext)
		c.setStatus(jobID, core.StateProcessing, "Saving clip %s: %s", sourceID, f.Name)
		if err := utils.EnsureDir(core.SourceClipsDir()); err != nil {
			c.setStatus(jobID, core.StateError, "ERROR saving %s: %v", sourceID, err)
			return
		}
		if err := os.WriteFile(savePath, f.Data, 0644); err != nil {
			c.setStatus(jobID, core.StateError, "ERROR saving %s: %v", sourceID, err)
			return
		}
		if err := c.processSource(ctx, jobID, sourceID, savePath, f.Name, KindClip); err != nil {
			c.setStatus(jobID, core.StateError, "ERROR processing %s: %v", sourceID, err)
			return
		}
	}
	c.setStatus(jobID, core.StateCompleted, "Done! Search now.")
}

func (c *Coordinator) runYouTube(jobID, url string) {
	defer c.release()
	ctx := context.Background()

	sourceID := FormatSourceID(KindYouTube, NextSourceIndex(KindYouTube))
	savePath := filepath.Join(core.SourceClipsDir(), sourceID+".mp4")

	c.setStatus(jobID, core.StateProcessing, "Downloading video...")
	if err := utils.EnsureDir(core.SourceClipsDir()); err != nil {
		c.setStatus(jobID, core.StateError, "ERROR: %v", err)
		return
	}
	if out, err := utils.RunCommand("yt-dlp",
		"-f", "best[ext=mp4]/best",
		"-o", savePath,
		"--force-overwrites",
		url); err != nil {
		c.setStatus(jobID, core.StateError, "ERROR downloading video: %v (%s)", err, out)
		return
	}

	if err := c.processSource(ctx, jobID, sourceID, savePath, url, KindYouTube); err != nil {
		c.setStatus(jobID, core.StateError, "ERROR processing %s: %v", sourceID, err)
		return
	}
	c.setStatus(jobID, core.StateCompleted, "Done! Search now.")
}

// processSource runs the per-source pipeline: frames out, new frames
// captioned and committed, audio transcribed and committed. Committed
// work from earlier sources of the same job survives a failure here.
func (c *Coordinator) processSource(ctx context.Context, jobID, sourceID, mediaPath, displayName, origin string) error {
	c.setStatus(jobID, core.StateProcessing, "Extracting frames from %s...", sourceID)
	if err := c.extractFrames(mediaPath, sourceID); err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}

	if err := c.captionAndCommit(ctx, jobID, sourceID); err != nil {
		return err
	}

	// Audio is best-effort: a silent or audio-less source should not
	// fail the whole job.
	if err := c.transcribeAndCommit(ctx, jobID, sourceID, mediaPath); err != nil {
		log.Printf("Warning: audio pipeline for %s failed: %v", sourceID, err)
	}

	return AppendHistory(HistoryEntry{
		SourceID:   sourceID,
		Origin:     origin,
		Name:       displayName,
		IngestedAt: time.Now(),
	})
}

func (c *Coordinator) extractFrames(mediaPath, sourceID string) error {
	if err := utils.EnsureDir(core.FramesDir()); err != nil {
		return err
	}
	pattern := filepath.Join(core.FramesDir(), sourceID+"_frame_%04d.jpg")
	return utils.RunFFmpeg([]string{
		"-i", mediaPath,
		"-vf", fmt.Sprintf("fps=%g", c.fps),
		"-q:v", "2",
		"-y", pattern,
	})
}

func (c *Coordinator) captionAndCommit(ctx context.Context, jobID, sourceID string) error {
	entries, err := os.ReadDir(core.FramesDir())
	if err != nil {
		return fmt.Errorf("read frames dir: %w", err)
	}
	logged, err := c.visual.LoggedIDs()
	if err != nil {
		return err
	}

	prefix := sourceID + "_frame_"
	var newFrames []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		if _, ok := logged[name]; ok {
			continue
		}
		newFrames = append(newFrames, name)
	}
	sort.Strings(newFrames)
	if len(newFrames) == 0 {
		log.Printf("No new frames to caption for %s", sourceID)
		return nil
	}

	c.setStatus(jobID, core.StateProcessing, "Captioning %d new frames from %s...", len(newFrames), sourceID)
	var records []core.Record
	for _, frame := range newFrames {
		caption, err := c.captioner.Caption(ctx, filepath.Join(core.FramesDir(), frame))
		if err != nil {
			log.Printf("Warning: caption error for %s: %v", frame, err)
			continue
		}
		records = append(records, core.NewRecord(frame, caption, core.ModalityVisual, c.fps))
	}

	added, skipped, err := c.visual.Upsert(ctx, records, true)
	if err != nil {
		return fmt.Errorf("commit captions: %w", err)
	}
	log.Printf("Committed %d captions for %s (%d skipped)", added, sourceID, skipped)
	return nil
}

func (c *Coordinator) transcribeAndCommit(ctx context.Context, jobID, sourceID, mediaPath string) error {
	if err := utils.EnsureDir(core.AudioDir()); err != nil {
		return err
	}
	audioPath := filepath.Join(core.AudioDir(), sourceID+".wav")

	c.setStatus(jobID, core.StateProcessing, "Extracting audio from %s...", sourceID)
	if err := utils.RunFFmpeg([]string{
		"-y",
		"-i", mediaPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	}); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}

	c.setStatus(jobID, core.StateProcessing, "Transcribing audio from %s...", sourceID)
	segments, err := c.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if len(segments) == 0 {
		return nil
	}

	var records []core.Record
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		id := fmt.Sprintf("%s_audio_%.2f", sourceID, seg.Start)
		records = append(records, core.NewRecord(id, text, core.ModalityAudio, c.fps))
	}

	added, skipped, err := c.audio.Upsert(ctx, records, true)
	if err != nil {
		return fmt.Errorf("commit transcriptions: %w", err)
	}
	log.Printf("Committed %d transcriptions for %s (%d skipped)", added, sourceID, skipped)
	return nil
}
