package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRiskLevelMax(t *testing.T) {
	tests := []struct {
		a, b, want RiskLevel
	}{
		{RiskLow, RiskLow, RiskLow},
		{RiskLow, RiskMedium, RiskMedium},
		{RiskMedium, RiskLow, RiskMedium},
		{RiskMedium, RiskHigh, RiskHigh},
		{RiskHigh, RiskLow, RiskHigh},
	}
	for _, tt := range tests {
		if got := tt.a.Max(tt.b); got != tt.want {
			t.Errorf("%s.Max(%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSecretDetectedReason(t *testing.T) {
	reason := SecretDetected("aws_access_key")
	if reason != "secret_detected:aws_access_key" {
		t.Errorf("reason = %q", reason)
	}
	label, ok := reason.IsSecretDetected()
	if !ok || label != "aws_access_key" {
		t.Errorf("IsSecretDetected() = %q, %v", label, ok)
	}
	if _, ok := ReasonForbiddenFile.IsSecretDetected(); ok {
		t.Error("forbidden_file is not a secret reason")
	}
}

func TestProposalResultJSON(t *testing.T) {
	rejected, err := json.Marshal(ProposalResult{
		Status: ProposalRejected,
		Reason: ReasonForbiddenFile,
	})
	if err != nil {
		t.Fatalf("marshal rejected: %v", err)
	}
	if strings.Contains(string(rejected), "outcome") {
		t.Errorf("rejected result must not carry an outcome: %s", rejected)
	}

	committed, err := json.Marshal(ProposalResult{
		Status:  ProposalCommitted,
		Risk:    RiskMedium,
		Outcome: &CommitOutcome{Branch: "holly/add-tool", CommitSHA: "abc123"},
	})
	if err != nil {
		t.Fatalf("marshal committed: %v", err)
	}
	if !strings.Contains(string(committed), `"commit_sha":"abc123"`) {
		t.Errorf("committed result missing outcome: %s", committed)
	}
}

func TestTotalContentBytes(t *testing.T) {
	c := ProposedChange{Files: []FileOp{
		{Path: "a", Content: "12345", Action: ActionCreate},
		{Path: "b", Action: ActionDelete},
		{Path: "c", Content: "678", Action: ActionUpdate},
	}}
	if got := c.TotalContentBytes(); got != 8 {
		t.Errorf("TotalContentBytes() = %d, want 8", got)
	}
}
