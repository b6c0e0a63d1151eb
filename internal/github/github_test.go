package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https URL", "https://github.com/golang/go", "golang", "go", false},
		{"https URL with .git", "https://github.com/golang/go.git", "golang", "go", false},
		{"ssh URL", "git@github.com:golang/go.git", "golang", "go", false},
		{"owner/repo shorthand", "golang/go", "golang", "go", false},
		{"trailing path", "https://github.com/golang/go/pulls", "golang", "go", false},
		{"whitespace trimmed", "  golang/go  ", "golang", "go", false},
		{"bare word", "golang", "", "", true},
		{"empty", "", "", "", true},
		{"not a repo url", "https://example.com/foo", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   error
	}{
		{"GraphQL: Could not resolve to a Repository", ErrNotFound},
		{"HTTP 404: Not Found", ErrNotFound},
		{"API rate limit exceeded for user", ErrRateLimited},
		{"HTTP 403: Forbidden", ErrRateLimited},
		{"gh: To get started with GitHub CLI, please run: gh auth login", ErrAuth},
		{"HTTP 401: Unauthorized", ErrAuth},
	}
	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.stderr), tt.want)
		})
	}

	t.Run("unknown stderr", func(t *testing.T) {
		err := classify("something exploded")
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrAuth)
	})
}
