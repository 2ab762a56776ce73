package vcs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"holly/internal/types"
)

// PullRequest is the subset of the pulls API holly reads.
type PullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Title  string `json:"title"`
	URL    string `json:"html_url"`
	Head   struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Merged bool `json:"merged"`
}

// RiskLabels returns the review labels attached to a PR at the given risk
// level. Low-risk changes get no labels.
func RiskLabels(risk types.RiskLevel) []string {
	switch risk {
	case types.RiskHigh:
		return []string{"needs-review", "high-risk"}
	case types.RiskMedium:
		return []string{"needs-review"}
	default:
		return nil
	}
}

// CreatePullRequest opens a PR from head into base and attaches labels.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string, labels []string) (*PullRequest, error) {
	in := map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}
	var pr PullRequest
	if err := c.post(ctx, c.repoPath("/pulls"), in, &pr); err != nil {
		return nil, fmt.Errorf("failed to open pull request: %w", err)
	}

	if len(labels) > 0 {
		labelIn := map[string][]string{"labels": labels}
		if err := c.post(ctx, c.repoPath("/issues/%d/labels", pr.Number), labelIn, nil); err != nil {
			// The PR exists; a label failure is not worth failing the change.
			c.logger.Warn("failed to label pull request",
				zap.Int("number", pr.Number),
				zap.Error(err))
		}
	}

	c.logger.Info("pull request opened",
		zap.Int("number", pr.Number),
		zap.String("head", head),
		zap.Strings("labels", labels))
	return &pr, nil
}

// GetPullRequest fetches one PR by number.
func (c *Client) GetPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	var pr PullRequest
	if err := c.get(ctx, c.repoPath("/pulls/%d", number), &pr); err != nil {
		return nil, fmt.Errorf("failed to get pull request #%d: %w", number, err)
	}
	return &pr, nil
}

// MergePullRequest merges a PR with the given method (merge, squash, rebase).
func (c *Client) MergePullRequest(ctx context.Context, number int, method string) error {
	if method == "" {
		method = "squash"
	}
	in := map[string]string{"merge_method": method}
	if err := c.put(ctx, c.repoPath("/pulls/%d/merge", number), in, nil); err != nil {
		return fmt.Errorf("failed to merge pull request #%d: %w", number, err)
	}
	return nil
}
