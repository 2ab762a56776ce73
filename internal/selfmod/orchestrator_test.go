package selfmod

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"holly/internal/config"
	"holly/internal/safety"
	"holly/internal/types"
	"holly/internal/vcs"
)

// fakeCommitter records calls and can be told to fail at each step.
type fakeCommitter struct {
	branches    []string
	singleCalls int
	multiCalls  int
	prCalls     int
	prLabels    []string

	branchErr error
	commitErr error
	prErr     error
}

func (f *fakeCommitter) CreateBranch(_ context.Context, name, base string) error {
	if f.branchErr != nil {
		return f.branchErr
	}
	f.branches = append(f.branches, name)
	return nil
}

func (f *fakeCommitter) GetFileSHA(context.Context, string, string) (string, error) {
	return "blob0", nil
}

func (f *fakeCommitter) WriteSingleFile(_ context.Context, path, content, branch, message, existingSHA string) (types.CommitOutcome, error) {
	f.singleCalls++
	if f.commitErr != nil {
		return types.CommitOutcome{}, f.commitErr
	}
	return types.CommitOutcome{Branch: branch, CommitSHA: "c-single"}, nil
}

func (f *fakeCommitter) CommitMultipleFiles(_ context.Context, branch, message string, files []types.FileOp) (types.CommitOutcome, error) {
	f.multiCalls++
	if f.commitErr != nil {
		return types.CommitOutcome{}, f.commitErr
	}
	return types.CommitOutcome{Branch: branch, CommitSHA: "c-multi"}, nil
}

func (f *fakeCommitter) CreatePullRequest(_ context.Context, title, body, head, base string, labels []string) (*vcs.PullRequest, error) {
	f.prCalls++
	f.prLabels = labels
	if f.prErr != nil {
		return nil, f.prErr
	}
	pr := &vcs.PullRequest{Number: 7, State: "open", URL: "https://example.test/pulls/7"}
	pr.Head.Ref = head
	return pr, nil
}

// fakeAuditor counts audit activity.
type fakeAuditor struct {
	prepared  int
	committed int
	tickets   int
	episodes  int
}

func (f *fakeAuditor) PrepareEffect(string, interface{}) (string, error) {
	f.prepared++
	return fmt.Sprintf("effect-%d", f.prepared), nil
}

func (f *fakeAuditor) CommitEffect(string, string) error {
	f.committed++
	return nil
}

func (f *fakeAuditor) OpenTicket(string, string) (string, error) {
	f.tickets++
	return "ticket-1", nil
}

func (f *fakeAuditor) StoreEpisode(string, string, interface{}) error {
	f.episodes++
	return nil
}

func newTestOrchestrator(committer *fakeCommitter, auditor *fakeAuditor) *Orchestrator {
	gate := safety.NewGate(config.DefaultSafetyConfig(), nil)
	return New(gate, committer, auditor, "main", nil)
}

func TestPropose_RejectedByPolicy(t *testing.T) {
	committer := &fakeCommitter{}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(committer, auditor)

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName: "holly/break-auth",
		Files: []types.FileOp{
			{Path: "src/security/auth.py", Content: "pass", Action: types.ActionUpdate},
		},
	})

	if result.Status != types.ProposalRejected {
		t.Fatalf("status = %s, want rejected", result.Status)
	}
	if result.Reason != types.ReasonForbiddenFile {
		t.Errorf("reason = %s, want forbidden_file", result.Reason)
	}
	// No commit attempted, nothing audited.
	if committer.singleCalls+committer.multiCalls != 0 {
		t.Error("rejected proposal must not reach the commit protocol")
	}
	if len(committer.branches) != 0 {
		t.Error("rejected proposal must not create a branch")
	}
	if auditor.prepared != 0 {
		t.Error("rejected proposal must not be audited")
	}
}

func TestPropose_SingleFileCreate(t *testing.T) {
	committer := &fakeCommitter{}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(committer, auditor)

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName:  "holly/add-tool",
		Description: "add weather tool",
		Files: []types.FileOp{
			{Path: "src/tools/x.py", Content: "def run(): pass", Action: types.ActionCreate},
		},
	})

	if result.Status != types.ProposalCommitted {
		t.Fatalf("result = %+v, want committed", result)
	}
	if result.Risk != types.RiskMedium {
		t.Errorf("risk = %s, want medium for a new tool", result.Risk)
	}
	if result.Outcome.CommitSHA == "" {
		t.Error("empty commit sha")
	}
	if committer.singleCalls != 1 || committer.multiCalls != 0 {
		t.Errorf("single=%d multi=%d, want the contents path for one non-delete file",
			committer.singleCalls, committer.multiCalls)
	}
	if auditor.prepared != 1 || auditor.committed != 1 || auditor.tickets != 1 || auditor.episodes != 1 {
		t.Errorf("audit calls = %+v, want one of each", *auditor)
	}
}

func TestPropose_SingleDeleteUsesMultiFileProtocol(t *testing.T) {
	committer := &fakeCommitter{}
	o := newTestOrchestrator(committer, &fakeAuditor{})

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName:  "holly/drop-tool",
		Description: "remove stale tool",
		Files: []types.FileOp{
			{Path: "src/tools/old.py", Action: types.ActionDelete},
		},
	})

	if result.Status != types.ProposalCommitted {
		t.Fatalf("result = %+v", result)
	}
	if committer.multiCalls != 1 || committer.singleCalls != 0 {
		t.Errorf("deletes must go through the atomic protocol (single=%d multi=%d)",
			committer.singleCalls, committer.multiCalls)
	}
}

func TestPropose_CommitFailureIsNotAudited(t *testing.T) {
	committer := &fakeCommitter{commitErr: errors.New("ref update refused")}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(committer, auditor)

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName:  "holly/add-tool",
		Description: "add tool",
		Files: []types.FileOp{
			{Path: "src/tools/x.py", Content: "ok", Action: types.ActionCreate},
		},
	})

	if result.Status != types.ProposalFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Err == "" {
		t.Error("failed result must carry the underlying error")
	}
	if auditor.prepared != 0 {
		t.Error("a failed commit must never appear as an audited change")
	}
}

func TestPropose_PullRequestLabels(t *testing.T) {
	tests := []struct {
		name   string
		file   types.FileOp
		labels []string
	}{
		{
			name:   "medium risk gets needs-review",
			file:   types.FileOp{Path: "src/tools/x.py", Content: "ok", Action: types.ActionCreate},
			labels: []string{"needs-review"},
		},
		{
			name:   "high risk adds high-risk",
			file:   types.FileOp{Path: "src/agent/loop.py", Content: "ok", Action: types.ActionUpdate},
			labels: []string{"needs-review", "high-risk"},
		},
		{
			name:   "low risk gets none",
			file:   types.FileOp{Path: "docs/usage.md", Content: "ok", Action: types.ActionUpdate},
			labels: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			committer := &fakeCommitter{}
			o := newTestOrchestrator(committer, &fakeAuditor{})

			result := o.Propose(context.Background(), types.ProposedChange{
				BranchName:  "holly/change",
				Description: "change",
				Files:       []types.FileOp{tt.file},
				OpenPR:      true,
			})

			if result.Status != types.ProposalCommitted {
				t.Fatalf("result = %+v", result)
			}
			if result.Outcome.PRNumber != 7 {
				t.Errorf("pr number = %d, want 7", result.Outcome.PRNumber)
			}
			if len(committer.prLabels) != len(tt.labels) {
				t.Fatalf("labels = %v, want %v", committer.prLabels, tt.labels)
			}
			for i := range tt.labels {
				if committer.prLabels[i] != tt.labels[i] {
					t.Errorf("labels = %v, want %v", committer.prLabels, tt.labels)
				}
			}
		})
	}
}

func TestPropose_BranchCreateFailure(t *testing.T) {
	committer := &fakeCommitter{branchErr: errors.New("base ref unresolvable")}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(committer, auditor)

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName:  "holly/x",
		Description: "x",
		Files: []types.FileOp{
			{Path: "src/tools/x.py", Content: "ok", Action: types.ActionCreate},
		},
	})

	if result.Status != types.ProposalFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if auditor.prepared != 0 {
		t.Error("no audit on branch failure")
	}
}

func TestPropose_ExistingBranchIsReused(t *testing.T) {
	committer := &fakeCommitter{branchErr: errors.New("Reference already exists")}
	o := newTestOrchestrator(committer, &fakeAuditor{})

	result := o.Propose(context.Background(), types.ProposedChange{
		BranchName:  "holly/retry",
		Description: "retry",
		Files: []types.FileOp{
			{Path: "src/tools/x.py", Content: "ok", Action: types.ActionCreate},
		},
	})

	if result.Status != types.ProposalCommitted {
		t.Fatalf("result = %+v, want committed onto the existing branch", result)
	}
}
