package types

// DeployStatus is the terminal state of a self-deployment run.
type DeployStatus string

const (
	DeployDeployed    DeployStatus = "deployed"
	DeployBlocked     DeployStatus = "blocked"
	DeployBuildFailed DeployStatus = "build_failed"
	DeployFailed      DeployStatus = "deploy_failed"
)

// HealthResult is the post-deploy health probe outcome.
type HealthResult string

const (
	HealthPassed  HealthResult = "passed"
	HealthFailed  HealthResult = "failed"
	HealthSkipped HealthResult = "skipped"
)

// DeployResult reports the outcome of a full deployment run.
type DeployResult struct {
	Status   DeployStatus `json:"status"`
	RunID    string       `json:"run_id,omitempty"`
	ImageTag string       `json:"image_tag,omitempty"`

	// Revision is the newly registered task revision on success.
	Revision string `json:"revision,omitempty"`

	// RolledBackTo carries the restored revision when Status is
	// deploy_failed and an automatic rollback ran.
	RolledBackTo string `json:"rolled_back_to,omitempty"`

	// HealthCheck is set on the deployed path only.
	HealthCheck HealthResult `json:"health_check,omitempty"`

	// Reason explains blocked, build_failed, and deploy_failed statuses.
	Reason string `json:"reason,omitempty"`
}

// TaskRevision is an immutable, versioned deployment spec. New revisions are
// always registered with the orchestrator, never mutated in place.
type TaskRevision struct {
	Family   string `json:"family"`
	Revision string `json:"revision"`
	ARN      string `json:"arn,omitempty"`
	Image    string `json:"image"`
}
