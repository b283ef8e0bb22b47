package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videomoments/config"
	"videomoments/core"
	"videomoments/utils"
)

// Captioner produces one line of text describing an extracted frame.
type Captioner interface {
	Caption(ctx context.Context, imagePath string) (string, error)
}

// Transcriber turns an audio track into timed utterance segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error)
}

// MockCaptioner is the offline fallback: a deterministic placeholder
// derived from the filename, keeping the pipeline runnable end to end
// without an API key.
type MockCaptioner struct{}

func (MockCaptioner) Caption(_ context.Context, imagePath string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return fmt.Sprintf("placeholder caption for %s", name), nil
}

// OpenAICaptioner captions frames with a vision-capable chat model.
type OpenAICaptioner struct {
	cli   *openai.Client
	model string
}

func NewOpenAICaptioner(cfg *config.Config) *OpenAICaptioner {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAICaptioner{cli: openai.NewClientWithConfig(clientConfig), model: cfg.CaptionModel}
}

func (c *OpenAICaptioner) Caption(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read frame %s: %w", imagePath, err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Describe this video frame in one short sentence.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + encoded,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens: 60,
	})
	if err != nil {
		return "", fmt.Errorf("caption API failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("caption API returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// MockTranscriber emits fixed-length placeholder segments covering the
// audio duration.
type MockTranscriber struct{}

func (MockTranscriber) Transcribe(_ context.Context, audioPath string) ([]core.Segment, error) {
	dur, err := utils.ProbeDuration(audioPath)
	if err != nil {
		return nil, err
	}
	const segLen = 15.0
	var segs []core.Segment
	for start := 0.0; start < dur; start += segLen {
		end := start + segLen
		if end > dur {
			end = dur
		}
		segs = append(segs, core.Segment{
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("placeholder transcript from %.0fs to %.0fs", start, end),
		})
	}
	return segs, nil
}

// OpenAITranscriber calls the configured transcription model and keeps
// the per-segment timing from the verbose response.
type OpenAITranscriber struct {
	cli   *openai.Client
	model string
}

func NewOpenAITranscriber(cfg *config.Config) *OpenAITranscriber {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAITranscriber{cli: openai.NewClientWithConfig(clientConfig), model: cfg.TranscribeModel}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	resp, err := t.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription API failed: %w", err)
	}

	var segs []core.Segment
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segs = append(segs, core.Segment{Start: s.Start, End: s.End, Text: text})
	}
	if len(segs) == 0 && strings.TrimSpace(resp.Text) != "" {
		dur, _ := utils.ProbeDuration(audioPath)
		segs = append(segs, core.Segment{Start: 0, End: dur, Text: strings.TrimSpace(resp.Text)})
	}
	return segs, nil
}

// PickProviders selects API-backed providers when configured, mocks
// otherwise.
func PickProviders(cfg *config.Config) (Captioner, Transcriber) {
	if cfg.HasValidAPI() {
		return NewOpenAICaptioner(cfg), NewOpenAITranscriber(cfg)
	}
	return MockCaptioner{}, MockTranscriber{}
}
