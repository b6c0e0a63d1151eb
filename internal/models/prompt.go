package models

// SystemPrompt is one candidate reviewer system prompt, keyed by ID.
type SystemPrompt struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}
