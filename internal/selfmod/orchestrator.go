// Package selfmod orchestrates holly's code-change pipeline: a proposed
// change passes the safety gate, is committed through the VCS protocol, and
// is audited. The orchestrator owns the sequencing and nothing else; policy
// lives in safety, wire mechanics in vcs, persistence in audit.
package selfmod

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"holly/internal/safety"
	"holly/internal/types"
	"holly/internal/vcs"
)

// Committer is the slice of the VCS client the orchestrator drives.
type Committer interface {
	CreateBranch(ctx context.Context, name, base string) error
	GetFileSHA(ctx context.Context, path, branch string) (string, error)
	WriteSingleFile(ctx context.Context, path, content, branch, message, existingSHA string) (types.CommitOutcome, error)
	CommitMultipleFiles(ctx context.Context, branch, message string, files []types.FileOp) (types.CommitOutcome, error)
	CreatePullRequest(ctx context.Context, title, body, head, base string, labels []string) (*vcs.PullRequest, error)
}

// Auditor records committed changes. A failed commit is never audited.
type Auditor interface {
	PrepareEffect(kind string, payload interface{}) (string, error)
	CommitEffect(id, outcome string) error
	OpenTicket(effectID, title string) (string, error)
	StoreEpisode(kind, summary string, detail interface{}) error
}

// Orchestrator composes gate, committer, and auditor.
type Orchestrator struct {
	gate       *safety.Gate
	committer  Committer
	auditor    Auditor
	baseBranch string
	logger     *zap.Logger
}

// New builds an orchestrator. baseBranch is where proposal branches fork
// from and where PRs land.
func New(gate *safety.Gate, committer Committer, auditor Auditor, baseBranch string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gate:       gate,
		committer:  committer,
		auditor:    auditor,
		baseBranch: baseBranch,
		logger:     logger,
	}
}

// Propose runs a change through the full pipeline. Terminal states:
// rejected (policy, no remote mutation), failed (protocol error, no audit),
// committed (with optional PR).
func (o *Orchestrator) Propose(ctx context.Context, change types.ProposedChange) types.ProposalResult {
	verdict := o.gate.Validate(change)
	if !verdict.Valid {
		return types.ProposalResult{Status: types.ProposalRejected, Reason: verdict.Reason}
	}

	outcome, err := o.commit(ctx, change)
	if err != nil {
		o.logger.Error("commit failed",
			zap.String("branch", change.BranchName),
			zap.Error(err))
		return types.ProposalResult{Status: types.ProposalFailed, Risk: verdict.Risk, Err: err.Error()}
	}

	if change.OpenPR {
		pr, err := o.committer.CreatePullRequest(ctx,
			o.prTitle(change), change.PRBody,
			change.BranchName, o.baseBranch,
			vcs.RiskLabels(verdict.Risk))
		if err != nil {
			// The commit landed; surface the PR failure as a failed
			// proposal without auditing a half-done change.
			return types.ProposalResult{Status: types.ProposalFailed, Risk: verdict.Risk, Err: err.Error()}
		}
		outcome.PRNumber = pr.Number
		outcome.PRURL = pr.URL
	}

	o.audit(change, verdict.Risk, outcome)

	return types.ProposalResult{
		Status:  types.ProposalCommitted,
		Risk:    verdict.Risk,
		Outcome: &outcome,
	}
}

// commit creates the proposal branch and lands the files on it. A single
// non-delete file goes through the contents API; everything else through
// the atomic multi-file protocol.
func (o *Orchestrator) commit(ctx context.Context, change types.ProposedChange) (types.CommitOutcome, error) {
	if err := o.committer.CreateBranch(ctx, change.BranchName, o.baseBranch); err != nil {
		// Re-proposing onto an existing branch is fine; anything else is not.
		if !strings.Contains(err.Error(), "already exists") {
			return types.CommitOutcome{}, err
		}
	}

	if len(change.Files) == 1 && change.Files[0].Action != types.ActionDelete {
		f := change.Files[0]
		existingSHA := ""
		if f.Action == types.ActionUpdate {
			sha, err := o.committer.GetFileSHA(ctx, f.Path, change.BranchName)
			if err != nil {
				return types.CommitOutcome{}, err
			}
			existingSHA = sha
		}
		return o.committer.WriteSingleFile(ctx, f.Path, f.Content, change.BranchName, change.Description, existingSHA)
	}

	return o.committer.CommitMultipleFiles(ctx, change.BranchName, change.Description, change.Files)
}

// audit records the committed change: a two-phase effect, an auto-approved
// ticket, and a memory episode. Audit failures are logged, not surfaced;
// the change itself already landed.
func (o *Orchestrator) audit(change types.ProposedChange, risk types.RiskLevel, outcome types.CommitOutcome) {
	if o.auditor == nil {
		return
	}

	payload := map[string]interface{}{
		"branch":      change.BranchName,
		"description": change.Description,
		"files":       len(change.Files),
		"risk":        string(risk),
	}
	effectID, err := o.auditor.PrepareEffect("code_change", payload)
	if err != nil {
		o.logger.Warn("audit prepare failed", zap.Error(err))
		return
	}
	if err := o.auditor.CommitEffect(effectID, "commit_sha="+outcome.CommitSHA); err != nil {
		o.logger.Warn("audit commit failed", zap.Error(err))
	}
	if _, err := o.auditor.OpenTicket(effectID, "self-change: "+change.Description); err != nil {
		o.logger.Warn("audit ticket failed", zap.Error(err))
	}

	summary := fmt.Sprintf("committed %d file(s) to %s (%s risk)", len(change.Files), change.BranchName, risk)
	if outcome.PRNumber > 0 {
		summary += fmt.Sprintf(", PR #%d", outcome.PRNumber)
	}
	if err := o.auditor.StoreEpisode("code_change", summary, outcome); err != nil {
		o.logger.Warn("audit episode failed", zap.Error(err))
	}
}

func (o *Orchestrator) prTitle(change types.ProposedChange) string {
	if change.PRTitle != "" {
		return change.PRTitle
	}
	return change.Description
}
