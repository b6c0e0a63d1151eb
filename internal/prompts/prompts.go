// Package prompts provides the candidate system prompt registry.
//
// Built-in prompts ship embedded; users can add or override prompts with a
// prompts.yaml in the config directory. Prompts are keyed by id, and a user
// prompt with a built-in id replaces it.
package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/prarena/internal/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type promptFile struct {
	Prompts []models.SystemPrompt `yaml:"prompts"`
}

// Defaults returns the embedded built-in prompts.
func Defaults() ([]models.SystemPrompt, error) {
	return parse(defaultsYAML)
}

// Load returns the built-in prompts merged with the user prompt file at
// path. A missing user file is not an error.
func Load(path string) ([]models.SystemPrompt, error) {
	defaults, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return nil, fmt.Errorf("read prompt file %s: %w", path, err)
	}
	user, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}

	return merge(defaults, user), nil
}

func parse(data []byte) ([]models.SystemPrompt, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts YAML: %w", err)
	}
	seen := make(map[string]bool, len(f.Prompts))
	for _, p := range f.Prompts {
		if p.ID == "" {
			return nil, fmt.Errorf("prompt with empty id")
		}
		if p.Content == "" {
			return nil, fmt.Errorf("prompt %s has empty content", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate prompt id %s", p.ID)
		}
		seen[p.ID] = true
	}
	return f.Prompts, nil
}

// merge appends user prompts to defaults, replacing defaults that share an id.
func merge(defaults, user []models.SystemPrompt) []models.SystemPrompt {
	byID := make(map[string]int, len(defaults))
	out := make([]models.SystemPrompt, len(defaults))
	copy(out, defaults)
	for i, p := range out {
		byID[p.ID] = i
	}
	for _, p := range user {
		if i, ok := byID[p.ID]; ok {
			out[i] = p
			continue
		}
		byID[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}
