package clips

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"videomoments/core"
	"videomoments/utils"
)

// SourceResolver maps a source ID to its media file path.
type SourceResolver func(sourceID string) (string, error)

// Cache materializes playable sub-clips keyed by (source, start, end).
// Keys are rounded to 2 decimals so requests differing only in
// floating-point noise collapse to one artifact. Artifacts are
// immutable once written; staleness against changed source media is an
// accepted limitation.
type Cache struct {
	dir     string
	resolve SourceResolver
	group   singleflight.Group
	trim    func(srcPath string, start, duration float64, outPath string) error
}

func NewCache(dir string, resolve SourceResolver) *Cache {
	return &Cache{dir: dir, resolve: resolve, trim: preciseTrim}
}

// Filename returns the deterministic artifact name for a rounded key.
// Unscoped sources use the literal "clip" base.
func Filename(sourceID string, start, end float64) string {
	base := sourceID
	if base == "" || base == core.UnscopedSource {
		base = "clip"
	}
	return fmt.Sprintf("%s_%.2f_%.2f.mp4", base, round2(start), round2(end))
}

// EnsureClip returns the cached clip filename for the range, generating
// it on first request. Concurrent callers for the same key share one
// invocation of the trim tool; callers for different keys run fully in
// parallel.
func (c *Cache) EnsureClip(sourceID string, start, end float64) (string, error) {
	start, end = round2(start), round2(end)
	filename := Filename(sourceID, start, end)

	_, err, _ := c.group.Do(filename, func() (interface{}, error) {
		return nil, c.generate(sourceID, start, end, filename)
	})
	if err != nil {
		return "", err
	}
	return filename, nil
}

func (c *Cache) generate(sourceID string, start, end float64, filename string) error {
	outPath := filepath.Join(c.dir, filename)
	if utils.FileExists(outPath) {
		return nil
	}

	srcPath, err := c.resolve(sourceID)
	if err != nil {
		return fmt.Errorf("resolve source %q: %w", sourceID, err)
	}
	if err := utils.EnsureDir(c.dir); err != nil {
		return err
	}

	// Trim into a temp file and rename on success so a failed run never
	// leaves a partial artifact behind to be treated as a cache hit.
	// The temp name keeps the .mp4 suffix so ffmpeg picks the muxer.
	tmpPath := strings.TrimSuffix(outPath, ".mp4") + ".tmp.mp4"
	log.Printf("Generating clip %s from %s", filename, srcPath)
	if err := c.trim(srcPath, start, round2(end-start), tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("generate clip %s: %w", filename, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize clip %s: %w", filename, err)
	}
	return nil
}

// preciseTrim re-encodes rather than stream-copies so the start offset
// is frame-accurate instead of snapped to the nearest keyframe.
func preciseTrim(srcPath string, start, duration float64, outPath string) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.2f", start),
		"-i", srcPath,
		"-t", fmt.Sprintf("%.2f", duration),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-avoid_negative_ts", "make_zero",
		outPath,
	}
	return utils.RunFFmpeg(args)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
