package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic API for review generation and judging.
// Candidate reviews are generated with the model named per call; judge and
// focus calls use the configured judge model.
type Client struct {
	api        *anthropic.Client
	judgeModel anthropic.Model
}

// NewClient creates an LLM client with the given API key and judge model.
func NewClient(apiKey, judgeModel string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:        &client,
		judgeModel: anthropic.Model(judgeModel),
	}
}

// GenerateReview asks the candidate model to review a PR diff under the
// given system prompt and returns the review text.
func (c *Client) GenerateReview(ctx context.Context, model, systemPrompt, diff string) (string, error) {
	user := fmt.Sprintf("PR Diff:\n```\n%s\n```\n\nProvide your code review:", diff)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	text := extractText(msg)
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}

// extractText returns the first text block of a response.
func extractText(msg *anthropic.Message) string {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

// stripFence removes surrounding markdown code fencing from LLM output.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// truncate caps s at n bytes so a huge diff cannot blow the token budget.
// The cut backs up to a rune boundary so the prompt stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
