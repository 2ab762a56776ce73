// Package types defines the shared data model for the self-modification
// pipeline: proposed changes, validation verdicts, commit outcomes, and
// deployment results. Keeping these here avoids import cycles between the
// safety gate, the VCS protocol, and the orchestrators.
package types

import (
	"fmt"
	"strings"
)

// FileAction describes what a FileOp does to its path.
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionUpdate FileAction = "update"
	ActionDelete FileAction = "delete"
)

// FileOp is a single file operation within a proposed change.
// Content is ignored for deletes.
type FileOp struct {
	Path    string     `json:"path" yaml:"path"`
	Content string     `json:"content,omitempty" yaml:"content,omitempty"`
	Action  FileAction `json:"action" yaml:"action"`
}

// ProposedChange is the immutable input to the safety gate and the commit
// protocol. Files are applied in order within a single commit.
type ProposedChange struct {
	BranchName  string   `json:"branch_name" yaml:"branch_name"`
	Description string   `json:"description" yaml:"description"`
	Files       []FileOp `json:"files" yaml:"files"`

	// Pull request options. When OpenPR is false the change is committed
	// to the branch without opening a PR.
	OpenPR  bool   `json:"open_pr" yaml:"open_pr"`
	PRTitle string `json:"pr_title,omitempty" yaml:"pr_title,omitempty"`
	PRBody  string `json:"pr_body,omitempty" yaml:"pr_body,omitempty"`
}

// TotalContentBytes returns the summed content size across all file ops.
func (c ProposedChange) TotalContentBytes() int {
	total := 0
	for _, f := range c.Files {
		total += len(f.Content)
	}
	return total
}

// RiskLevel classifies how dangerous a change is. Ordering: low < medium < high.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank maps risk levels onto their ordering.
func (r RiskLevel) rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// Max returns the higher of the two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// RejectReason identifies why the safety gate refused a proposal.
type RejectReason string

const (
	ReasonForbiddenFile     RejectReason = "forbidden_file"
	ReasonPrincipalOnly     RejectReason = "principal_only"
	ReasonRateLimitExceeded RejectReason = "rate_limit_exceeded"
	ReasonTooManyFiles      RejectReason = "too_many_files"
	ReasonContentTooLarge   RejectReason = "content_too_large"
	ReasonCooldownActive    RejectReason = "cooldown_active"

	// secretDetectedPrefix prefixes reasons produced by the content scanner.
	// The full reason carries the matched signature label, e.g.
	// "secret_detected:aws_access_key".
	secretDetectedPrefix = "secret_detected:"
)

// SecretDetected builds the reject reason for a matched secret signature.
func SecretDetected(label string) RejectReason {
	return RejectReason(secretDetectedPrefix + label)
}

// IsSecretDetected reports whether the reason came from the content scanner,
// returning the signature label when it did.
func (r RejectReason) IsSecretDetected() (string, bool) {
	if strings.HasPrefix(string(r), secretDetectedPrefix) {
		return strings.TrimPrefix(string(r), secretDetectedPrefix), true
	}
	return "", false
}

// ValidationVerdict is the safety gate's decision on a proposed change.
// Reason is set only when Valid is false; Risk only when Valid is true.
type ValidationVerdict struct {
	Valid  bool         `json:"valid"`
	Reason RejectReason `json:"reason,omitempty"`
	Risk   RiskLevel    `json:"risk_level,omitempty"`
}

// Rejected builds a failing verdict.
func Rejected(reason RejectReason) ValidationVerdict {
	return ValidationVerdict{Valid: false, Reason: reason}
}

// Approved builds a passing verdict at the given risk level.
func Approved(risk RiskLevel) ValidationVerdict {
	return ValidationVerdict{Valid: true, Risk: risk}
}

// CommitOutcome reports a successful commit (and optional PR) on the remote.
type CommitOutcome struct {
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
	PRNumber  int    `json:"pr_number,omitempty"`
	PRURL     string `json:"pr_url,omitempty"`
}

// ProposalStatus is the terminal state of a change proposal.
type ProposalStatus string

const (
	ProposalCommitted ProposalStatus = "committed"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalFailed    ProposalStatus = "failed"
)

// ProposalResult is the orchestrator's answer to a proposed change.
// Exactly one of Outcome/Reason/Err is meaningful depending on Status;
// Outcome is nil unless the proposal committed.
type ProposalResult struct {
	Status  ProposalStatus `json:"status"`
	Risk    RiskLevel      `json:"risk_level,omitempty"`
	Outcome *CommitOutcome `json:"outcome,omitempty"`
	Reason  RejectReason   `json:"reason,omitempty"`
	Err     string         `json:"error,omitempty"`
}

func (r ProposalResult) String() string {
	switch r.Status {
	case ProposalCommitted:
		sha := ""
		if r.Outcome != nil {
			sha = r.Outcome.CommitSHA
		}
		return fmt.Sprintf("committed %s (risk=%s)", sha, r.Risk)
	case ProposalRejected:
		return fmt.Sprintf("rejected: %s", r.Reason)
	default:
		return fmt.Sprintf("failed: %s", r.Err)
	}
}
