package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DeployConfig configures the self-deployment controller: the CI workflow
// that builds the image, the ECS service that runs holly, and the health
// probe used after rollout.
type DeployConfig struct {
	// CI build
	WorkflowFile     string `yaml:"workflow_file"`      // e.g. build-image.yml
	WorkflowBranch   string `yaml:"workflow_branch"`    // ref the dispatch targets
	BuildPollSeconds int    `yaml:"build_poll_seconds"` // poll interval
	BuildTimeoutSecs int    `yaml:"build_timeout_seconds"`

	// Container orchestration (ECS)
	Region          string `yaml:"region"`
	Cluster         string `yaml:"cluster"`
	Service         string `yaml:"service"`
	TaskFamily      string `yaml:"task_family"`
	ImageRepository string `yaml:"image_repository"`
	ContainerName   string `yaml:"container_name"`

	// Post-rollout stabilization wait
	StabilizeAttempts int `yaml:"stabilize_attempts"`
	StabilizeInterval int `yaml:"stabilize_interval_seconds"`

	// Health probe
	HealthCheckURL    string `yaml:"health_check_url"`
	HealthTimeoutSecs int    `yaml:"health_timeout_seconds"`
}

// DefaultDeployConfig returns deployment defaults. Cluster/service names are
// deployment-specific and expected from the environment.
func DefaultDeployConfig() DeployConfig {
	return DeployConfig{
		WorkflowFile:      "build-image.yml",
		WorkflowBranch:    "main",
		BuildPollSeconds:  15,
		BuildTimeoutSecs:  600,
		Region:            "us-east-1",
		TaskFamily:        "holly",
		ContainerName:     "holly",
		StabilizeAttempts: 40,
		StabilizeInterval: 15,
		HealthTimeoutSecs: 10,
	}
}

func (d *DeployConfig) applyEnvOverrides() {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("HOLLY_ECS_CLUSTER", &d.Cluster)
	set("HOLLY_ECS_SERVICE", &d.Service)
	set("HOLLY_TASK_FAMILY", &d.TaskFamily)
	set("HOLLY_IMAGE_REPO", &d.ImageRepository)
	set("HOLLY_AWS_REGION", &d.Region)
	set("HOLLY_HEALTH_URL", &d.HealthCheckURL)
	set("HOLLY_BUILD_WORKFLOW", &d.WorkflowFile)
	if v := os.Getenv("HOLLY_BUILD_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.BuildTimeoutSecs = n
		}
	}
}

// Validate checks the deployment timings.
func (d DeployConfig) Validate() error {
	if d.BuildPollSeconds < 1 {
		return fmt.Errorf("build_poll_seconds must be >= 1")
	}
	if d.BuildTimeoutSecs < d.BuildPollSeconds {
		return fmt.Errorf("build_timeout_seconds must be >= build_poll_seconds")
	}
	if d.StabilizeAttempts < 1 {
		return fmt.Errorf("stabilize_attempts must be >= 1")
	}
	if d.StabilizeInterval < 1 {
		return fmt.Errorf("stabilize_interval_seconds must be >= 1")
	}
	return nil
}

// BuildPollInterval returns the CI poll interval as a duration.
func (d DeployConfig) BuildPollInterval() time.Duration {
	return time.Duration(d.BuildPollSeconds) * time.Second
}

// BuildDeadline returns the CI wall-clock deadline as a duration.
func (d DeployConfig) BuildDeadline() time.Duration {
	return time.Duration(d.BuildTimeoutSecs) * time.Second
}

// StabilizeWait returns the rollout stabilization poll interval.
func (d DeployConfig) StabilizeWait() time.Duration {
	return time.Duration(d.StabilizeInterval) * time.Second
}

// HealthTimeout returns the health probe timeout.
func (d DeployConfig) HealthTimeout() time.Duration {
	if d.HealthTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.HealthTimeoutSecs) * time.Second
}

// Image returns the full image reference for a tag.
func (d DeployConfig) Image(tag string) string {
	return d.ImageRepository + ":" + tag
}
