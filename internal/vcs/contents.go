package vcs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetFileSHA returns the blob sha of a file on a branch, or an empty string
// when the file does not exist. The contents API requires the current sha
// for single-file updates and deletes.
func (c *Client) GetFileSHA(ctx context.Context, path, branch string) (string, error) {
	var out struct {
		SHA string `json:"sha"`
	}
	apiPath := c.repoPath("/contents/%s?ref=%s", path, url.QueryEscape(branch))
	if err := c.get(ctx, apiPath, &out); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return out.SHA, nil
}

// DeleteFile removes one file from a branch through the contents API.
func (c *Client) DeleteFile(ctx context.Context, path, branch, message, sha string) error {
	in := map[string]string{
		"message": message,
		"branch":  branch,
		"sha":     sha,
	}
	if err := c.do(ctx, http.MethodDelete, c.repoPath("/contents/%s", path), in, nil); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
