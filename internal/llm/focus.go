package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// focusDiffLimit caps the diff text sent to a focus-generation call.
const focusDiffLimit = 3000

// Focus is the generated expected-focus label for one PR.
type Focus struct {
	Focus       string `json:"focus"`
	Explanation string `json:"explanation"`
}

// FocusCategories is the closed vocabulary the focus generator chooses from.
var FocusCategories = []string{
	"error_handling", "null_check", "security_vulnerability",
	"performance_issue", "race_condition", "memory_leak",
	"input_validation", "authentication", "data_integrity",
	"logging", "edge_case", "type_safety", "api_contract",
	"configuration", "refactoring",
}

// buildFocusPrompt constructs the user prompt for focus generation.
func buildFocusPrompt(title, diff string) string {
	var sb strings.Builder
	sb.WriteString("Analyze this pull request and determine what a code reviewer should focus on.\n\n")
	fmt.Fprintf(&sb, "PR Title: %s\n\n", title)
	fmt.Fprintf(&sb, "Diff:\n```\n%s\n```\n\n", truncate(diff, focusDiffLimit))
	sb.WriteString("Choose ONE focus area:\n")
	sb.WriteString(strings.Join(FocusCategories, ", "))
	sb.WriteString("\n\nRespond with JSON: {\"focus\": \"chosen_focus\", \"explanation\": \"brief reason\"}")
	return sb.String()
}

// GenerateFocus asks the judge model to classify the primary risk a
// reviewer should look for in the PR.
func (c *Client) GenerateFocus(ctx context.Context, title, diff string) (*Focus, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.judgeModel,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildFocusPrompt(title, diff))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	text := extractText(msg)
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	var f Focus
	if err := json.Unmarshal([]byte(stripFence(text)), &f); err != nil {
		return nil, fmt.Errorf("parse focus response as JSON: %w\nraw response: %s", err, text)
	}
	if f.Focus == "" {
		return nil, fmt.Errorf("focus response missing focus field")
	}
	return &f, nil
}
