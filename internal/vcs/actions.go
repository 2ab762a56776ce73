package vcs

import (
	"context"
	"fmt"
	"net/url"
)

// CI surface: workflow dispatch plus run polling. The deploy controller
// drives these; nothing here blocks or sleeps.

// WorkflowRun is one CI run as reported by the runs listing.
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, ...
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
}

// RunCompleted reports whether the run reached a terminal status.
func (r WorkflowRun) Completed() bool { return r.Status == "completed" }

// Succeeded reports a completed, successful run.
func (r WorkflowRun) Succeeded() bool { return r.Completed() && r.Conclusion == "success" }

// DispatchWorkflow triggers a workflow file on ref with the given inputs.
// The dispatch endpoint returns 204 with no body.
func (c *Client) DispatchWorkflow(ctx context.Context, workflow, ref string, inputs map[string]string) error {
	in := map[string]interface{}{
		"ref":    ref,
		"inputs": inputs,
	}
	path := c.repoPath("/actions/workflows/%s/dispatches", workflow)
	if err := c.post(ctx, path, in, nil); err != nil {
		return fmt.Errorf("failed to dispatch workflow %s: %w", workflow, err)
	}
	return nil
}

// ListWorkflowRuns returns runs for a branch, newest first (the remote's
// default ordering). The caller inspects the most recent run.
func (c *Client) ListWorkflowRuns(ctx context.Context, branch string) ([]WorkflowRun, error) {
	path := c.repoPath("/actions/runs?branch=%s&per_page=5", url.QueryEscape(branch))
	var out struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}
	return out.WorkflowRuns, nil
}
