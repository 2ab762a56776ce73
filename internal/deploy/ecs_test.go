package deploy

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"go.uber.org/zap"

	"holly/internal/config"
)

// fakeECS is an in-memory ECS control plane covering the calls the
// orchestrator makes.
type fakeECS struct {
	family        string
	revision      int32
	containers    []ecstypes.ContainerDefinition
	serviceTaskTD string
	running       int32
	desired       int32
	deployments   int

	registered []*ecs.RegisterTaskDefinitionInput
	updates    []*ecs.UpdateServiceInput
}

func (f *fakeECS) DescribeServices(_ context.Context, _ *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	deployments := make([]ecstypes.Deployment, f.deployments)
	return &ecs.DescribeServicesOutput{
		Services: []ecstypes.Service{{
			ServiceName:    aws.String("holly-svc"),
			TaskDefinition: aws.String(f.serviceTaskTD),
			RunningCount:   f.running,
			DesiredCount:   f.desired,
			Deployments:    deployments,
		}},
	}, nil
}

func (f *fakeECS) DescribeTaskDefinition(_ context.Context, _ *ecs.DescribeTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	return &ecs.DescribeTaskDefinitionOutput{
		TaskDefinition: &ecstypes.TaskDefinition{
			Family:               aws.String(f.family),
			Revision:             f.revision,
			ContainerDefinitions: f.containers,
			Cpu:                  aws.String("256"),
			Memory:               aws.String("512"),
			RuntimePlatform: &ecstypes.RuntimePlatform{
				CpuArchitecture:       ecstypes.CPUArchitectureArm64,
				OperatingSystemFamily: ecstypes.OSFamilyLinux,
			},
			EphemeralStorage: &ecstypes.EphemeralStorage{SizeInGiB: 50},
		},
		Tags: []ecstypes.Tag{{Key: aws.String("team"), Value: aws.String("holly")}},
	}, nil
}

func (f *fakeECS) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	f.registered = append(f.registered, in)
	f.revision++
	return &ecs.RegisterTaskDefinitionOutput{
		TaskDefinition: &ecstypes.TaskDefinition{
			Family:   in.Family,
			Revision: f.revision,
		},
	}, nil
}

func (f *fakeECS) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	f.updates = append(f.updates, in)
	return &ecs.UpdateServiceOutput{}, nil
}

func newFakeECS() *fakeECS {
	return &fakeECS{
		family:   "holly",
		revision: 4,
		containers: []ecstypes.ContainerDefinition{
			{Name: aws.String("holly"), Image: aws.String("registry.test/holly:v11")},
			{Name: aws.String("sidecar"), Image: aws.String("registry.test/envoy:v1")},
		},
		serviceTaskTD: "arn:aws:ecs:us-east-1:123456789012:task-definition/holly:4",
		running:       2,
		desired:       2,
		deployments:   1,
	}
}

func newECSOrchestrator(api ecsAPI) *ECSOrchestrator {
	cfg := config.DefaultDeployConfig()
	cfg.Cluster = "holly-prod"
	cfg.Service = "holly-svc"
	cfg.TaskFamily = "holly"
	cfg.ContainerName = "holly"
	return &ECSOrchestrator{api: api, cfg: cfg, logger: zap.NewNop()}
}

func TestCurrentRevision(t *testing.T) {
	api := newFakeECS()
	o := newECSOrchestrator(api)

	rev, err := o.CurrentRevision(context.Background())
	if err != nil {
		t.Fatalf("CurrentRevision: %v", err)
	}
	if rev != "holly:4" {
		t.Errorf("revision = %q, want holly:4", rev)
	}
}

func TestRegisterRevision_SwapsOnlyTargetImage(t *testing.T) {
	api := newFakeECS()
	o := newECSOrchestrator(api)

	rev, err := o.RegisterRevision(context.Background(), "registry.test/holly:v12")
	if err != nil {
		t.Fatalf("RegisterRevision: %v", err)
	}
	if rev != "holly:5" {
		t.Errorf("revision = %q, want holly:5", rev)
	}

	if len(api.registered) != 1 {
		t.Fatalf("registered %d definitions, want 1", len(api.registered))
	}
	in := api.registered[0]
	if got := aws.ToString(in.ContainerDefinitions[0].Image); got != "registry.test/holly:v12" {
		t.Errorf("target image = %q, want the new tag", got)
	}
	if got := aws.ToString(in.ContainerDefinitions[1].Image); got != "registry.test/envoy:v1" {
		t.Errorf("sidecar image = %q, must be untouched", got)
	}
	if aws.ToString(in.Cpu) != "256" || aws.ToString(in.Memory) != "512" {
		t.Error("resources must carry over from the cloned definition")
	}
	if in.RuntimePlatform == nil || in.RuntimePlatform.CpuArchitecture != ecstypes.CPUArchitectureArm64 {
		t.Error("runtime platform must carry over from the cloned definition")
	}
	if in.EphemeralStorage == nil || in.EphemeralStorage.SizeInGiB != 50 {
		t.Error("ephemeral storage must carry over from the cloned definition")
	}
	if len(in.Tags) != 1 || aws.ToString(in.Tags[0].Key) != "team" {
		t.Error("tags must carry over from the cloned definition")
	}
}

func TestRegisterRevision_UnknownContainer(t *testing.T) {
	api := newFakeECS()
	o := newECSOrchestrator(api)
	o.cfg.ContainerName = "ghost"

	if _, err := o.RegisterRevision(context.Background(), "registry.test/holly:v12"); err == nil {
		t.Fatal("expected error for unknown target container")
	}
	if len(api.registered) != 0 {
		t.Error("nothing must be registered when the target container is missing")
	}
}

func TestPointServiceAt_ForcesRollout(t *testing.T) {
	api := newFakeECS()
	o := newECSOrchestrator(api)

	if err := o.PointServiceAt(context.Background(), "holly:5"); err != nil {
		t.Fatalf("PointServiceAt: %v", err)
	}
	if len(api.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(api.updates))
	}
	in := api.updates[0]
	if aws.ToString(in.TaskDefinition) != "holly:5" {
		t.Errorf("task definition = %q", aws.ToString(in.TaskDefinition))
	}
	if !in.ForceNewDeployment {
		t.Error("rollout must force a new deployment")
	}
}

func TestServiceStable(t *testing.T) {
	api := newFakeECS()
	o := newECSOrchestrator(api)

	stable, err := o.ServiceStable(context.Background())
	if err != nil {
		t.Fatalf("ServiceStable: %v", err)
	}
	if !stable {
		t.Error("matched counts with one deployment should be stable")
	}

	api.running = 1
	if stable, _ = o.ServiceStable(context.Background()); stable {
		t.Error("running < desired must not be stable")
	}

	api.running = 2
	api.deployments = 2
	if stable, _ = o.ServiceStable(context.Background()); stable {
		t.Error("an in-flight second deployment must not be stable")
	}
}

func TestRevisionFromARN(t *testing.T) {
	tests := []struct{ in, want string }{
		{"arn:aws:ecs:us-east-1:123456789012:task-definition/holly:4", "holly:4"},
		{"holly:4", "holly:4"},
	}
	for _, tt := range tests {
		if got := revisionFromARN(tt.in); got != tt.want {
			t.Errorf("revisionFromARN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
