package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videomoments/config"
	"videomoments/core"
)

// Suggester turns a result set into a natural-language explanation and
// follow-up query suggestions. With no API configured it degrades to a
// deterministic summary instead of failing the search response.
type Suggester struct {
	cli   *openai.Client
	model string
}

func NewSuggester(cfg *config.Config) *Suggester {
	if !cfg.HasValidAPI() {
		return &Suggester{}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Suggester{cli: openai.NewClientWithConfig(clientConfig), model: cfg.ChatModel}
}

func (s *Suggester) Explain(ctx context.Context, query string, moments []core.AdjustedMoment) string {
	if len(moments) == 0 {
		return "No matching moments found. Try rephrasing your query or using different keywords."
	}
	if s.cli == nil {
		return s.explainSimple(moments)
	}

	var lines []string
	for i, m := range moments {
		if i >= 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. At %.1fs-%.1fs: %q (relevance: %.0f%%)",
			i+1, m.Start, m.End, m.RepresentativeText, m.Score*100))
	}
	prompt := fmt.Sprintf(`A user searched a video library for: %q

Found %d matching moments:
%s

In 2-3 sentences, confirm what was found and say why the top result matches the query. Be conversational.`,
		query, len(moments), strings.Join(lines, "\n"))

	answer, err := s.chat(ctx, prompt)
	if err != nil {
		log.Printf("Warning: explanation LLM call failed (%v), falling back to simple summary", err)
		return s.explainSimple(moments)
	}
	return answer
}

func (s *Suggester) Suggest(ctx context.Context, query string, moments []core.AdjustedMoment) []string {
	if s.cli == nil || len(moments) == 0 {
		return s.suggestSimple(query)
	}

	var texts []string
	for i, m := range moments {
		if i >= 5 {
			break
		}
		texts = append(texts, m.RepresentativeText)
	}
	prompt := fmt.Sprintf(`A user searched a video library for %q and matched these moment descriptions:
%s

Propose 3 short follow-up search queries, one per line, no numbering.`,
		query, strings.Join(texts, "\n"))

	answer, err := s.chat(ctx, prompt)
	if err != nil {
		log.Printf("Warning: suggestion LLM call failed (%v), falling back to canned suggestions", err)
		return s.suggestSimple(query)
	}
	var suggestions []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			suggestions = append(suggestions, line)
		}
		if len(suggestions) == 3 {
			break
		}
	}
	if len(suggestions) == 0 {
		return s.suggestSimple(query)
	}
	return suggestions
}

func (s *Suggester) chat(ctx context.Context, prompt string) (string, error) {
	resp, err := s.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful video search assistant."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *Suggester) explainSimple(moments []core.AdjustedMoment) string {
	var times []string
	for _, m := range moments {
		times = append(times, fmt.Sprintf("%.1fs", m.Start))
	}
	return fmt.Sprintf("Found %d matching moment(s) at: %s. Top match: %q.",
		len(moments), strings.Join(times, ", "), moments[0].RepresentativeText)
}

func (s *Suggester) suggestSimple(query string) []string {
	clean := strings.TrimSpace(query)
	return []string{
		"before " + clean,
		"after " + clean,
		clean + " close up",
	}
}
