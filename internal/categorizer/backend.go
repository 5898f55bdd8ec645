package categorizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/anthropic"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// maxPromptChars bounds how much of each prompt is sent to the model.
const maxPromptChars = 2000

// AnthropicBackend categorizes prompts with a Claude model.
type AnthropicBackend struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func NewAnthropicBackend(llm *anthropic.Client, logger *slog.Logger) *AnthropicBackend {
	return &AnthropicBackend{llm: llm, logger: logger}
}

type llmCategorization struct {
	Index int `json:"index"`
	Categorization
}

func (b *AnthropicBackend) Categorize(ctx context.Context, contents []string) ([]Categorization, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, userPromptHeader, len(contents))
	for i, c := range contents {
		fmt.Fprintf(&sb, "\n<prompt index=\"%d\">\n%s\n</prompt>\n", i, prompt.Truncate(c, maxPromptChars))
	}

	b.logger.Info("categorizing prompts", "count", len(contents), "model", b.llm.Model())

	raw, err := b.llm.Complete(ctx, systemPrompt, []anthropic.Message{{Role: "user", Content: sb.String()}}, 4096)
	if err != nil {
		return nil, fmt.Errorf("llm categorization: %w", err)
	}

	var items []llmCategorization
	if err := json.Unmarshal([]byte(anthropic.StripFence(raw)), &items); err != nil {
		b.logger.Error("failed to parse categorization response", "error", err, "raw", raw)
		return nil, fmt.Errorf("parse categorization: %w", err)
	}

	out := make([]Categorization, len(contents))
	filled := make([]bool, len(contents))
	seen := 0
	for pos, item := range items {
		idx := item.Index
		if idx < 0 || idx >= len(contents) {
			idx = pos
		}
		if idx >= len(contents) || filled[idx] {
			continue
		}
		c := item.Categorization
		c.Complexity = prompt.Complexity(strings.ToLower(string(c.Complexity)))
		out[idx] = c
		filled[idx] = true
		seen++
	}
	if seen < len(contents) {
		return nil, fmt.Errorf("parse categorization: got %d results for %d prompts", seen, len(contents))
	}
	return out, nil
}
