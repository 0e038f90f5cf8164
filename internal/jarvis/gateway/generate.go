package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bdobrica/jarvis/common/redact"
	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

const (
	instructionPrefix = "You are Jarvis, a friendly assistant inside a todo app. Answer briefly and helpfully."
	assistantLabel    = "Jarvis:"
)

// wrapPrompt surrounds the user's message with the instruction prompt.
func wrapPrompt(prompt string) string {
	return fmt.Sprintf("%s\n\nUser: %s\n%s", instructionPrefix, strings.TrimSpace(prompt), assistantLabel)
}

// stripEcho removes a copy of the instruction prompt that some models repeat
// at the start of their answer.
func stripEcho(text, wrapped string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, wrapped):
		text = text[len(wrapped):]
	case strings.HasPrefix(text, instructionPrefix):
		text = text[len(instructionPrefix):]
		if i := strings.Index(text, assistantLabel); i >= 0 {
			text = text[i+len(assistantLabel):]
		}
	}
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimPrefix(text, assistantLabel))
}

// Generate asks the completion model for a conversational reply to prompt.
func (g *Gateway) Generate(ctx context.Context, prompt string) Result {
	if !g.Enabled() {
		return Result{Status: StatusDisabled, Err: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	wrapped := wrapPrompt(prompt)
	req := openai.ChatCompletionRequest{
		Model:     g.cfg.GenerateModel,
		MaxTokens: g.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: wrapped},
		},
	}

	var text string
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		resp, err := g.chat.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices", ErrMalformedResponse)
		}
		text = stripEcho(resp.Choices[0].Message.Content, wrapped)
		if text == "" {
			return fmt.Errorf("%w: empty completion", ErrMalformedResponse)
		}
		return nil
	})
	if err != nil {
		status := failureStatus(err)
		observability.WithTrace(ctx).Warn("gateway: generate failed",
			"status", status,
			"model", g.cfg.GenerateModel,
			"err", redact.Error(err, g.cfg.APIKey),
		)
		return Result{Status: status, Err: err}
	}
	return Result{Text: text, Status: StatusOK}
}
