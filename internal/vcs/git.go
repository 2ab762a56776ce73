package vcs

import (
	"context"
	"fmt"
	"net/http"
)

// Git data plumbing: the low-level object API the atomic commit saga is
// built from. Blob = raw content, tree = path snapshot, commit = tree plus
// parent, ref = named pointer to a commit.

// Ref is a named pointer (branch) to an object.
type Ref struct {
	Name   string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// Commit is a git commit object.
type Commit struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
	Message string `json:"message"`
}

// TreeEntry is one path in a tree. A nil SHA removes the path from the
// resulting tree, which is how deletes are expressed.
type TreeEntry struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

// regular file mode; holly never commits executables or symlinks.
const blobMode = "100644"

// GetRef resolves refs/heads/{branch}.
func (c *Client) GetRef(ctx context.Context, branch string) (*Ref, error) {
	var ref Ref
	if err := c.get(ctx, c.repoPath("/git/ref/heads/%s", branch), &ref); err != nil {
		return nil, fmt.Errorf("failed to resolve ref %s: %w", branch, err)
	}
	return &ref, nil
}

// CreateRef creates refs/heads/{branch} pointing at sha.
func (c *Client) CreateRef(ctx context.Context, branch, sha string) error {
	in := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	if err := c.post(ctx, c.repoPath("/git/refs"), in, nil); err != nil {
		return fmt.Errorf("failed to create ref %s: %w", branch, err)
	}
	return nil
}

// UpdateRef fast-forwards refs/heads/{branch} to sha. Never forced: the
// remote refuses non-fast-forward updates, which is exactly the guarantee
// the commit saga relies on.
func (c *Client) UpdateRef(ctx context.Context, branch, sha string) error {
	in := map[string]interface{}{
		"sha":   sha,
		"force": false,
	}
	if err := c.patch(ctx, c.repoPath("/git/refs/heads/%s", branch), in, nil); err != nil {
		return fmt.Errorf("failed to advance ref %s: %w", branch, err)
	}
	return nil
}

// GetCommit fetches a commit object by sha.
func (c *Client) GetCommit(ctx context.Context, sha string) (*Commit, error) {
	var commit Commit
	if err := c.get(ctx, c.repoPath("/git/commits/%s", sha), &commit); err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", sha, err)
	}
	return &commit, nil
}

// CreateBlob uploads raw content, returning the blob sha.
func (c *Client) CreateBlob(ctx context.Context, content string) (string, error) {
	in := map[string]string{
		"content":  content,
		"encoding": "utf-8",
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.post(ctx, c.repoPath("/git/blobs"), in, &out); err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	return out.SHA, nil
}

// CreateTree layers entries on top of baseTree, returning the new tree sha.
func (c *Client) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	in := map[string]interface{}{
		"base_tree": baseTree,
		"tree":      entries,
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.post(ctx, c.repoPath("/git/trees"), in, &out); err != nil {
		return "", fmt.Errorf("failed to create tree: %w", err)
	}
	return out.SHA, nil
}

// CreateCommit creates a commit of tree with a single parent.
func (c *Client) CreateCommit(ctx context.Context, message, tree, parent string) (string, error) {
	in := map[string]interface{}{
		"message": message,
		"tree":    tree,
		"parents": []string{parent},
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.post(ctx, c.repoPath("/git/commits"), in, &out); err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}
	return out.SHA, nil
}

// DeleteRef removes refs/heads/{branch}. Used by callers that choose to
// clean up branches orphaned by a failed commit.
func (c *Client) DeleteRef(ctx context.Context, branch string) error {
	if err := c.do(ctx, http.MethodDelete, c.repoPath("/git/refs/heads/%s", branch), nil, nil); err != nil {
		return fmt.Errorf("failed to delete ref %s: %w", branch, err)
	}
	return nil
}
