package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/joescharf/prarena/internal/models"
)

// judgeInputLimit caps the diff and review text passed to a judge call.
const judgeInputLimit = 2000

// JudgeResult is a single binary judgment with an optional explanation.
type JudgeResult struct {
	Verdict   bool
	Rationale string
}

// focusDescriptions expands the short focus keys attached to probe PRs
// into the phrasing the critical-detection judge reasons about. Unknown
// keys (including free-text focus from the repo stage) pass through as-is.
var focusDescriptions = map[string]string{
	"silent_failure":     "silent failure or missing error handling when operation fails",
	"null_reference":     "null or undefined reference that could cause runtime errors",
	"sql_injection":      "SQL injection vulnerability from unsanitized input",
	"duplicate_charge":   "risk of duplicate charges or transactions without idempotency",
	"signature_bypass":   "webhook or request signature verification being bypassed",
	"weak_crypto":        "weak cryptographic practices like MD5 or SHA1 for passwords",
	"auth_bypass":        "authentication or authorization check being removed or bypassed",
	"open_redirect":      "open redirect vulnerability allowing redirect to external domains",
	"missing_backoff":    "missing exponential backoff in retry logic",
	"rate_limit_removed": "rate limiting being removed or disabled",
	"path_traversal":     "path traversal vulnerability allowing access to arbitrary files",
	"hardcoded_secret":   "hardcoded secrets or credentials in source code",
	"error_disclosure":   "sensitive error information being exposed to clients",
	"race_condition":     "race condition in concurrent operations",
	"missing_timeout":    "missing timeout on external calls that could hang",
	"missing_audit":      "missing audit logging for sensitive operations",
}

// FocusDescription resolves a focus key to its judge-facing description.
func FocusDescription(focus string) string {
	if d, ok := focusDescriptions[focus]; ok {
		return d
	}
	return focus
}

// buildJudgePrompt constructs the system and user prompts for one judge
// call. Each criterion gets its own rubric; all three answer with the same
// JSON shape so parsing is uniform.
func buildJudgePrompt(criterion models.Criterion, review, focus, diff string) (system string, user string, err error) {
	const answerFormat = `Respond with ONLY a JSON object, no markdown fencing:
{"judgment": true or false, "explanation": "one or two sentences"}`

	var sb strings.Builder
	switch criterion {
	case models.CriterionCriticalDetection:
		system = `You judge AI-generated code reviews. Determine whether the review identifies the expected critical issue in the diff. The review does not need to use the exact words, but it must clearly call out the same underlying problem. Answer true only if the expected issue is identified.

` + answerFormat
		fmt.Fprintf(&sb, "Expected critical issue: %s\n\n", FocusDescription(focus))
		fmt.Fprintf(&sb, "Diff:\n```\n%s\n```\n\n", truncate(diff, judgeInputLimit))
		fmt.Fprintf(&sb, "Review:\n%s\n", truncate(review, judgeInputLimit))
	case models.CriterionHallucination:
		system = `You judge AI-generated code reviews for hallucinations. Determine whether the review makes claims about code, files, functions, or behavior that do not appear in the diff. Minor speculation clearly marked as such is not a hallucination. Answer true only if the review asserts something the diff does not support.

` + answerFormat
		fmt.Fprintf(&sb, "Diff:\n```\n%s\n```\n\n", truncate(diff, judgeInputLimit))
		fmt.Fprintf(&sb, "Review:\n%s\n", truncate(review, judgeInputLimit))
	case models.CriterionHelpfulness:
		system = `You judge AI-generated code reviews for helpfulness. A helpful review is specific, actionable, and tells the author what to change or verify. Vague praise, restating the diff, or generic advice is not helpful. Answer true only if a developer would act on this review.

` + answerFormat
		fmt.Fprintf(&sb, "Review:\n%s\n", truncate(review, judgeInputLimit))
	default:
		return "", "", fmt.Errorf("unknown criterion: %s", criterion)
	}
	return system, sb.String(), nil
}

// Judge evaluates a review against one criterion and returns the binary
// verdict. The focus argument is only consulted for critical detection.
func (c *Client) Judge(ctx context.Context, criterion models.Criterion, review, focus, diff string) (*JudgeResult, error) {
	systemPrompt, userPrompt, err := buildJudgePrompt(criterion, review, focus, diff)
	if err != nil {
		return nil, err
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.judgeModel,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	text := extractText(msg)
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseJudgment(text)
}

// parseJudgment decodes the judge's JSON answer. Models occasionally return
// the judgment as a string, so both forms are accepted.
func parseJudgment(text string) (*JudgeResult, error) {
	var raw struct {
		Judgment    json.RawMessage `json:"judgment"`
		Explanation string          `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse judge response as JSON: %w\nraw response: %s", err, text)
	}

	verdict, err := parseBoolish(raw.Judgment)
	if err != nil {
		return nil, err
	}
	return &JudgeResult{Verdict: verdict, Rationale: raw.Explanation}, nil
}

func parseBoolish(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, fmt.Errorf("judge response missing judgment field")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "true", "1":
			return true, nil
		default:
			return false, nil
		}
	}
	return false, fmt.Errorf("judgment is neither bool nor string: %s", string(raw))
}
