// Package github fetches closed pull requests and their diffs via the
// gh CLI.
package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/joescharf/prarena/internal/models"
)

// diffLimit caps the diff text kept per PR. GitHub diffs can run to
// megabytes; everything past the cap is useless to a review prompt.
const diffLimit = 10000

// Sentinel errors mapped from gh CLI failures.
var (
	ErrNotFound    = errors.New("repository not found")
	ErrRateLimited = errors.New("github rate limit exceeded")
	ErrAuth        = errors.New("github authentication failed")
)

// Client fetches PR data for a repository.
type Client interface {
	ClosedPRs(repoURL string, limit int) ([]models.PullRequest, error)
}

// RealClient implements Client using the gh CLI.
type RealClient struct{}

// NewRealClient returns a gh-CLI backed client.
func NewRealClient() *RealClient {
	return &RealClient{}
}

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[/:]([^/]+)/([^/.]+)`),
	regexp.MustCompile(`^([^/\s]+)/([^/\s]+)$`),
}

// ParseRepoURL extracts owner and repo from a GitHub URL or "owner/repo"
// shorthand.
func ParseRepoURL(url string) (owner, repo string, err error) {
	for _, p := range repoURLPatterns {
		if m := p.FindStringSubmatch(strings.TrimSpace(url)); m != nil {
			return m[1], strings.TrimSuffix(m[2], ".git"), nil
		}
	}
	return "", "", fmt.Errorf("invalid GitHub repo URL: %s", url)
}

func ghCmd(args ...string) (string, error) {
	out, err := exec.Command("gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return "", fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), stderr, classify(stderr))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// classify maps gh stderr output onto the sentinel errors.
func classify(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "could not resolve") || strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return ErrNotFound
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "403"):
		return ErrRateLimited
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "auth") || strings.Contains(lower, "401"):
		return ErrAuth
	default:
		return errors.New("gh command failed")
	}
}

type prRaw struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	MergedAt  *time.Time `json:"mergedAt"`
	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	Author    struct {
		Login string `json:"login"`
	} `json:"author"`
}

// ClosedPRs fetches the most recently updated closed PRs for the repo,
// including their (truncated) diffs.
func (c *RealClient) ClosedPRs(repoURL string, limit int) ([]models.PullRequest, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	slug := fmt.Sprintf("%s/%s", owner, repo)
	out, err := ghCmd("pr", "list",
		"--repo", slug,
		"--state", "closed",
		"--limit", fmt.Sprintf("%d", limit),
		"--json", "number,title,url,author,mergedAt,createdAt,closedAt",
	)
	if err != nil {
		return nil, err
	}

	var raw []prRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse PR list: %w", err)
	}

	prs := make([]models.PullRequest, 0, len(raw))
	for _, r := range raw {
		pr := models.PullRequest{
			ID:        fmt.Sprintf("%d", r.Number),
			Title:     r.Title,
			URL:       r.URL,
			Merged:    r.MergedAt != nil,
			Author:    r.Author.Login,
			CreatedAt: r.CreatedAt,
		}
		if r.ClosedAt != nil {
			pr.ClosedAt = *r.ClosedAt
		}
		// A PR whose diff cannot be fetched is still listed; the eval
		// pipeline skips empty diffs with a logged notice.
		if diff, err := c.prDiff(slug, r.Number); err == nil {
			pr.Diff = diff
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

func (c *RealClient) prDiff(slug string, number int) (string, error) {
	out, err := ghCmd("pr", "diff", fmt.Sprintf("%d", number), "--repo", slug)
	if err != nil {
		return "", err
	}
	if len(out) > diffLimit {
		out = out[:diffLimit] + "\n... (truncated)"
	}
	return out, nil
}
