package vcs

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"holly/internal/types"
)

// CreateBranch resolves base's head commit and creates a new branch ref at
// the same sha. Fails if the base ref cannot be resolved.
func (c *Client) CreateBranch(ctx context.Context, name, base string) error {
	ref, err := c.GetRef(ctx, base)
	if err != nil {
		return err
	}
	if err := c.CreateRef(ctx, name, ref.Object.SHA); err != nil {
		return err
	}
	c.logger.Info("branch created",
		zap.String("branch", name),
		zap.String("base", base),
		zap.String("sha", ref.Object.SHA))
	return nil
}

// WriteSingleFile creates or updates one file on a branch through the
// contents API. Pass existingSHA for updates; leave it empty for creates.
// Deletes and multi-file changes go through CommitMultipleFiles.
func (c *Client) WriteSingleFile(ctx context.Context, path, content, branch, message, existingSHA string) (types.CommitOutcome, error) {
	in := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if existingSHA != "" {
		in["sha"] = existingSHA
	}

	var out struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.put(ctx, c.repoPath("/contents/%s", path), in, &out); err != nil {
		return types.CommitOutcome{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	c.logger.Info("file committed",
		zap.String("branch", branch),
		zap.String("path", path),
		zap.String("sha", out.Commit.SHA))
	return types.CommitOutcome{Branch: branch, CommitSHA: out.Commit.SHA}, nil
}

// commitStage names the steps of the multi-file commit saga, in order. The
// branch ref is only mutated by the final stage; a failure at any earlier
// stage leaves the branch observably unchanged.
type commitStage string

const (
	stageRefResolved  commitStage = "ref_resolved"
	stageTreeResolved commitStage = "tree_resolved"
	stageBlobsCreated commitStage = "blobs_created"
	stageTreeCreated  commitStage = "tree_created"
	stageCommitMade   commitStage = "commit_created"
	stageRefAdvanced  commitStage = "ref_advanced"
)

// stageError reports which saga stage failed.
type stageError struct {
	stage commitStage
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("commit aborted at %s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// CommitMultipleFiles commits an ordered set of file operations to branch as
// one commit: all files land together or the branch is untouched. Deletes
// are expressed as nil-sha tree entries.
func (c *Client) CommitMultipleFiles(ctx context.Context, branch, message string, files []types.FileOp) (types.CommitOutcome, error) {
	// Stage 1: resolve the branch head.
	ref, err := c.GetRef(ctx, branch)
	if err != nil {
		return types.CommitOutcome{}, &stageError{stageRefResolved, err}
	}
	head := ref.Object.SHA

	// Stage 2: resolve the head commit's tree.
	parent, err := c.GetCommit(ctx, head)
	if err != nil {
		return types.CommitOutcome{}, &stageError{stageTreeResolved, err}
	}

	// Stage 3: one blob per create/update; deletes record a nil sha.
	entries := make([]TreeEntry, 0, len(files))
	for _, f := range files {
		entry := TreeEntry{Path: f.Path, Mode: blobMode, Type: "blob"}
		if f.Action == types.ActionDelete {
			entries = append(entries, entry)
			continue
		}
		sha, err := c.CreateBlob(ctx, f.Content)
		if err != nil {
			return types.CommitOutcome{}, &stageError{stageBlobsCreated, fmt.Errorf("blob for %s: %w", f.Path, err)}
		}
		blobSHA := sha
		entry.SHA = &blobSHA
		entries = append(entries, entry)
	}

	// Stage 4: layer the entries onto the parent tree.
	tree, err := c.CreateTree(ctx, parent.Tree.SHA, entries)
	if err != nil {
		return types.CommitOutcome{}, &stageError{stageTreeCreated, err}
	}

	// Stage 5: the new commit, parented on the current head.
	commit, err := c.CreateCommit(ctx, message, tree, head)
	if err != nil {
		return types.CommitOutcome{}, &stageError{stageCommitMade, err}
	}

	// Stage 6: the only externally visible mutation of the branch.
	if err := c.UpdateRef(ctx, branch, commit); err != nil {
		return types.CommitOutcome{}, &stageError{stageRefAdvanced, err}
	}

	c.logger.Info("multi-file commit landed",
		zap.String("branch", branch),
		zap.String("sha", commit),
		zap.Int("files", len(files)))
	return types.CommitOutcome{Branch: branch, CommitSHA: commit}, nil
}
