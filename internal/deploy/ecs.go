package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"go.uber.org/zap"

	"holly/internal/config"
)

// ecsAPI is the slice of the ECS client the orchestrator uses. Tests
// substitute a fake; production passes *ecs.Client.
type ecsAPI interface {
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

// ECSOrchestrator implements Orchestrator against ECS. Task revisions are
// immutable: deploying always registers a new revision cloned from the
// family's active definition.
type ECSOrchestrator struct {
	api    ecsAPI
	cfg    config.DeployConfig
	logger *zap.Logger
}

// NewECSOrchestrator wires the AWS SDK with the configured region.
func NewECSOrchestrator(ctx context.Context, cfg config.DeployConfig, logger *zap.Logger) (*ECSOrchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &ECSOrchestrator{
		api:    ecs.NewFromConfig(awsCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// describeService fetches the managed service.
func (o *ECSOrchestrator) describeService(ctx context.Context) (*ecstypes.Service, error) {
	out, err := o.api.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(o.cfg.Cluster),
		Services: []string{o.cfg.Service},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe service %s: %w", o.cfg.Service, err)
	}
	if len(out.Services) == 0 {
		return nil, fmt.Errorf("service %s not found in cluster %s", o.cfg.Service, o.cfg.Cluster)
	}
	return &out.Services[0], nil
}

// CurrentRevision returns the family:revision the service runs now.
func (o *ECSOrchestrator) CurrentRevision(ctx context.Context) (string, error) {
	svc, err := o.describeService(ctx)
	if err != nil {
		return "", err
	}
	return revisionFromARN(aws.ToString(svc.TaskDefinition)), nil
}

// RegisterRevision clones the family's active task definition, swaps the
// image on the target container, and registers the clone. Only the image
// reference changes; every other setting, tags included, carries over.
func (o *ECSOrchestrator) RegisterRevision(ctx context.Context, image string) (string, error) {
	out, err := o.api.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(o.cfg.TaskFamily),
		Include:        []ecstypes.TaskDefinitionField{ecstypes.TaskDefinitionFieldTags},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe task definition %s: %w", o.cfg.TaskFamily, err)
	}
	td := out.TaskDefinition

	containers := make([]ecstypes.ContainerDefinition, len(td.ContainerDefinitions))
	copy(containers, td.ContainerDefinitions)
	replaced := false
	for i := range containers {
		if o.cfg.ContainerName == "" || aws.ToString(containers[i].Name) == o.cfg.ContainerName {
			containers[i].Image = aws.String(image)
			replaced = true
		}
	}
	if !replaced {
		return "", fmt.Errorf("container %s not found in task definition %s", o.cfg.ContainerName, o.cfg.TaskFamily)
	}

	reg, err := o.api.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  td.Family,
		ContainerDefinitions:    containers,
		Cpu:                     td.Cpu,
		Memory:                  td.Memory,
		NetworkMode:             td.NetworkMode,
		RequiresCompatibilities: td.RequiresCompatibilities,
		ExecutionRoleArn:        td.ExecutionRoleArn,
		TaskRoleArn:             td.TaskRoleArn,
		Volumes:                 td.Volumes,
		PlacementConstraints:    td.PlacementConstraints,
		ProxyConfiguration:      td.ProxyConfiguration,
		RuntimePlatform:         td.RuntimePlatform,
		EphemeralStorage:        td.EphemeralStorage,
		IpcMode:                 td.IpcMode,
		PidMode:                 td.PidMode,
		InferenceAccelerators:   td.InferenceAccelerators,
		Tags:                    out.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to register task definition: %w", err)
	}

	revision := fmt.Sprintf("%s:%d", aws.ToString(reg.TaskDefinition.Family), reg.TaskDefinition.Revision)
	o.logger.Info("task revision registered",
		zap.String("revision", revision),
		zap.String("image", image))
	return revision, nil
}

// PointServiceAt updates the service to a revision, forcing a fresh rollout
// even when the revision string has not changed.
func (o *ECSOrchestrator) PointServiceAt(ctx context.Context, revision string) error {
	_, err := o.api.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:            aws.String(o.cfg.Cluster),
		Service:            aws.String(o.cfg.Service),
		TaskDefinition:     aws.String(revision),
		ForceNewDeployment: true,
	})
	if err != nil {
		return fmt.Errorf("failed to update service to %s: %w", revision, err)
	}
	return nil
}

// ServiceStable reports the orchestrator's stabilization condition: one
// deployment remaining and running count matching desired.
func (o *ECSOrchestrator) ServiceStable(ctx context.Context) (bool, error) {
	svc, err := o.describeService(ctx)
	if err != nil {
		return false, err
	}
	return len(svc.Deployments) == 1 && svc.RunningCount == svc.DesiredCount, nil
}

// revisionFromARN reduces a task definition ARN to family:revision. Already
// reduced values pass through.
func revisionFromARN(arn string) string {
	if idx := strings.LastIndex(arn, "/"); idx >= 0 {
		return arn[idx+1:]
	}
	return arn
}
