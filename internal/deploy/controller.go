// Package deploy implements holly's self-deployment state machine:
// pre-check, CI build with bounded polling, ECS rollout with automatic
// rollback, and a post-rollout health probe. At most one deploy runs at a
// time, enforced by a compare-and-swap guard that every terminal path
// releases.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"holly/internal/config"
	"holly/internal/types"
	"holly/internal/vcs"
)

// CI is the build surface: trigger a workflow and list its runs.
// *vcs.Client satisfies it.
type CI interface {
	DispatchWorkflow(ctx context.Context, workflow, ref string, inputs map[string]string) error
	ListWorkflowRuns(ctx context.Context, branch string) ([]vcs.WorkflowRun, error)
}

// Orchestrator is the container-orchestration surface the controller
// sequences. ECSOrchestrator is the production implementation.
type Orchestrator interface {
	// CurrentRevision returns the revision the service is running now.
	CurrentRevision(ctx context.Context) (string, error)

	// RegisterRevision clones the active task definition with image
	// swapped in and registers it, returning the new revision.
	RegisterRevision(ctx context.Context, image string) (string, error)

	// PointServiceAt updates the service to a revision, forcing a fresh
	// rollout.
	PointServiceAt(ctx context.Context, revision string) error

	// ServiceStable reports whether the rollout has settled.
	ServiceStable(ctx context.Context) (bool, error)
}

// Auditor records deploy effects and episodes.
type Auditor interface {
	PrepareEffect(kind string, payload interface{}) (string, error)
	CommitEffect(id, outcome string) error
	StoreEpisode(kind, summary string, detail interface{}) error
}

// ErrDeployInProgress is returned by PreCheck when another deploy holds the
// guard. The caller is rejected outright, never queued.
var ErrDeployInProgress = errors.New("deploy_in_progress")

// BuildError is the typed failure of the build stage.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %s", e.Reason)
}

// RolloutError is the typed failure of the rollout stage. RolledBackTo is
// empty when the service was never repointed and nothing needed reverting.
type RolloutError struct {
	Reason       string
	RolledBackTo string
}

func (e *RolloutError) Error() string {
	if e.RolledBackTo == "" {
		return fmt.Sprintf("rollout failed: %s", e.Reason)
	}
	return fmt.Sprintf("rollout failed: %s (rolled back to %s)", e.Reason, e.RolledBackTo)
}

// Guard states.
const (
	guardIdle int32 = iota
	guardRunning
)

// Controller drives a self-deployment end to end.
type Controller struct {
	cfg     config.DeployConfig
	ci      CI
	orch    Orchestrator
	auditor Auditor
	logger  *zap.Logger

	// guard is the sole mutual-exclusion device for the whole pipeline.
	guard atomic.Int32

	// test seams; production uses the clock.
	now   func() time.Time
	sleep func(time.Duration)
	probe HealthProber
}

// New builds a controller. auditor may be nil (deploys then go unaudited).
func New(cfg config.DeployConfig, ci CI, orch Orchestrator, auditor Auditor, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		ci:      ci,
		orch:    orch,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
		probe:   NewHTTPProber(cfg.HealthTimeout()),
	}
}

// releaseGuard returns the controller to idle. Safe to call on any terminal
// path; releasing an idle guard is a no-op.
func (c *Controller) releaseGuard() {
	c.guard.Store(guardIdle)
}

// InProgress reports whether a deploy currently holds the guard.
func (c *Controller) InProgress() bool {
	return c.guard.Load() == guardRunning
}

// PreCheck acquires the deploy guard and captures the running revision as
// the rollback target. A concurrent caller gets ErrDeployInProgress without
// any remote reads.
func (c *Controller) PreCheck(ctx context.Context) (string, error) {
	if !c.guard.CompareAndSwap(guardIdle, guardRunning) {
		return "", ErrDeployInProgress
	}

	current, err := c.orch.CurrentRevision(ctx)
	if err != nil {
		c.releaseGuard()
		return "", fmt.Errorf("pre-check failed: %w", err)
	}

	c.logger.Info("pre-check passed", zap.String("current_revision", current))
	return current, nil
}

// BuildAndPush dispatches the image build workflow and polls the run
// listing on a fixed interval until the most recent run completes or the
// wall-clock deadline passes. The guard is released on every failure path;
// on success the caller still holds it.
func (c *Controller) BuildAndPush(ctx context.Context, imageTag string) error {
	inputs := map[string]string{"image_tag": imageTag}
	if err := c.ci.DispatchWorkflow(ctx, c.cfg.WorkflowFile, c.cfg.WorkflowBranch, inputs); err != nil {
		c.releaseGuard()
		return &BuildError{Reason: err.Error()}
	}

	deadline := c.now().Add(c.cfg.BuildDeadline())
	for {
		c.sleep(c.cfg.BuildPollInterval())

		if c.now().After(deadline) {
			c.releaseGuard()
			return &BuildError{Reason: "build_timeout"}
		}
		if err := ctx.Err(); err != nil {
			c.releaseGuard()
			return &BuildError{Reason: err.Error()}
		}

		runs, err := c.ci.ListWorkflowRuns(ctx, c.cfg.WorkflowBranch)
		if err != nil {
			c.releaseGuard()
			return &BuildError{Reason: err.Error()}
		}
		if len(runs) == 0 || !runs[0].Completed() {
			continue
		}
		if runs[0].Succeeded() {
			c.logger.Info("build completed",
				zap.String("image_tag", imageTag),
				zap.Int64("run_id", runs[0].ID))
			return nil
		}
		c.releaseGuard()
		return &BuildError{Reason: runs[0].Conclusion}
	}
}

// DeployToECS registers a new task revision for imageTag and points the
// service at it, then waits for stabilization. The rollback action is wired
// to this stage's failure edge only: once the service has been repointed,
// any failure reverts it to previousRevision with exactly one additional
// update call. Every failure path releases the guard.
func (c *Controller) DeployToECS(ctx context.Context, imageTag, previousRevision string) (string, error) {
	newRevision, err := c.orch.RegisterRevision(ctx, c.cfg.Image(imageTag))
	if err != nil {
		// Service untouched; nothing to revert.
		c.releaseGuard()
		return "", &RolloutError{Reason: err.Error()}
	}

	if err := c.orch.PointServiceAt(ctx, newRevision); err != nil {
		return "", c.rollback(ctx, previousRevision, err.Error())
	}

	for attempt := 0; attempt < c.cfg.StabilizeAttempts; attempt++ {
		stable, err := c.orch.ServiceStable(ctx)
		if err != nil {
			return "", c.rollback(ctx, previousRevision, err.Error())
		}
		if stable {
			c.logger.Info("rollout stabilized",
				zap.String("new_revision", newRevision),
				zap.Int("attempts", attempt+1))
			return newRevision, nil
		}
		c.sleep(c.cfg.StabilizeWait())
	}

	return "", c.rollback(ctx, previousRevision, "failed_to_stabilize")
}

// rollback reverts the service to previousRevision (best effort), releases
// the guard, and builds the rollout failure.
func (c *Controller) rollback(ctx context.Context, previousRevision, reason string) error {
	c.logger.Warn("rolling back",
		zap.String("reason", reason),
		zap.String("target", previousRevision))

	if err := c.orch.PointServiceAt(ctx, previousRevision); err != nil {
		c.logger.Error("rollback update failed", zap.Error(err))
	}
	c.releaseGuard()
	return &RolloutError{Reason: reason, RolledBackTo: previousRevision}
}

// VerifyDeploy runs one health probe against the deployed service. The
// outcome is recorded, not acted on: a failed probe does not roll back at
// this stage. The guard is released unconditionally.
func (c *Controller) VerifyDeploy(ctx context.Context, imageTag, newRevision, runID string) types.HealthResult {
	defer c.releaseGuard()

	health := types.HealthSkipped
	if c.cfg.HealthCheckURL != "" {
		if err := c.probe.Probe(ctx, c.cfg.HealthCheckURL); err != nil {
			c.logger.Warn("health check failed", zap.Error(err))
			health = types.HealthFailed
		} else {
			health = types.HealthPassed
		}
	}

	c.recordDeploy(runID, imageTag, newRevision, health)
	return health
}

// recordDeploy writes the two-phase deploy effect and a memory episode.
func (c *Controller) recordDeploy(runID, imageTag, newRevision string, health types.HealthResult) {
	if c.auditor == nil {
		return
	}

	payload := map[string]string{
		"run_id":    runID,
		"image_tag": imageTag,
		"revision":  newRevision,
	}
	effectID, err := c.auditor.PrepareEffect("self_deploy", payload)
	if err != nil {
		c.logger.Warn("deploy audit prepare failed", zap.Error(err))
		return
	}
	if err := c.auditor.CommitEffect(effectID, "health_check="+string(health)); err != nil {
		c.logger.Warn("deploy audit commit failed", zap.Error(err))
	}

	summary := fmt.Sprintf("deployed %s as revision %s (health %s)", imageTag, newRevision, health)
	if err := c.auditor.StoreEpisode("self_deploy", summary, payload); err != nil {
		c.logger.Warn("deploy episode failed", zap.Error(err))
	}
}

// Run drives the full state machine for one image tag.
func (c *Controller) Run(ctx context.Context, imageTag string) types.DeployResult {
	runID := uuid.NewString()
	result := types.DeployResult{RunID: runID, ImageTag: imageTag}

	previous, err := c.PreCheck(ctx)
	if err != nil {
		if errors.Is(err, ErrDeployInProgress) {
			result.Status = types.DeployBlocked
			result.Reason = ErrDeployInProgress.Error()
			return result
		}
		result.Status = types.DeployFailed
		result.Reason = err.Error()
		return result
	}

	if err := c.BuildAndPush(ctx, imageTag); err != nil {
		var buildErr *BuildError
		result.Status = types.DeployBuildFailed
		if errors.As(err, &buildErr) {
			result.Reason = buildErr.Reason
		} else {
			result.Reason = err.Error()
		}
		return result
	}

	newRevision, err := c.DeployToECS(ctx, imageTag, previous)
	if err != nil {
		var rolloutErr *RolloutError
		result.Status = types.DeployFailed
		if errors.As(err, &rolloutErr) {
			result.Reason = rolloutErr.Reason
			result.RolledBackTo = rolloutErr.RolledBackTo
		} else {
			result.Reason = err.Error()
		}
		return result
	}

	result.Status = types.DeployDeployed
	result.Revision = newRevision
	result.HealthCheck = c.VerifyDeploy(ctx, imageTag, newRevision, runID)
	return result
}
