// Package explain provides the LLM-backed summarizer the reasoner uses to
// turn reasoning paths into technician-friendly prose. It is strictly
// optional: the reasoner falls back to deterministic templates whenever
// summarization fails or is not configured.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/HoistlineAI/hoistline-mvp/pkg/fn"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

const (
	maxTokens      = 1024
	requestTimeout = 20 * time.Second
)

var ErrEmptyResponse = errors.New("explain: empty completion")

// Claude summarizes reasoning prompts with the Anthropic API.
type Claude struct {
	client anthropic.Client
	model  anthropic.Model
	retry  fn.RetryOpts
	logger *slog.Logger
}

// NewClaude creates a summarizer. model may be empty; logger defaults to
// slog.Default().
func NewClaude(apiKey, model string, logger *slog.Logger) *Claude {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		retry:  fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Second, MaxWait: 5 * time.Second, Jitter: true},
		logger: logger,
	}
}

// Summarize implements knowledge.Summarizer.
func (c *Claude) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[string] {
		completion, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return fn.Err[string](fmt.Errorf("explain: completion: %w", err))
		}
		var b strings.Builder
		for _, block := range completion.Content {
			if _, ok := block.AsAny().(anthropic.TextBlock); ok {
				b.WriteString(block.Text)
			}
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			return fn.Err[string](ErrEmptyResponse)
		}
		return fn.Ok(text)
	})

	text, err := result.Unwrap()
	if err != nil {
		c.logger.Warn("summarize failed", "model", string(c.model), "error", err)
		return "", err
	}
	return text, nil
}
