// holly is the self-modification and self-deployment pipeline CLI: propose
// audited code changes to holly's own repository, and roll out new builds
// of holly with automatic rollback.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"holly/internal/audit"
	"holly/internal/config"
	"holly/internal/deploy"
	"holly/internal/safety"
	"holly/internal/selfmod"
	"holly/internal/types"
	"holly/internal/vcs"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Propose flags
	changeFile string
	openPR     bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "holly",
	Short: "holly - autonomous code-change and self-deployment pipeline",
	Long: `holly proposes, commits, and deploys changes to its own codebase.

Every proposed change passes a safety gate (forbidden paths, rate limits,
secret scanning, risk classification) before it touches the remote, lands
as an atomic commit, and leaves a two-phase audit trail. Deployments run a
build-rollout-verify state machine with automatic rollback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// proposeCmd runs a change file through the full pipeline
var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a code change through the safety gate and commit protocol",
	Long: `Reads a proposed change (YAML or JSON) and runs it through the pipeline:
validate against policy, commit atomically to a branch, optionally open a
pull request, and record the audit trail.

Example change file:
  branch_name: holly/add-tool
  description: add weather tool
  files:
    - path: src/tools/weather.py
      action: create
      content: |
        def run(): ...`,
	RunE: runPropose,
}

// deployCmd builds and rolls out a new image of holly
var deployCmd = &cobra.Command{
	Use:   "deploy [image-tag]",
	Short: "Build, roll out, and verify a new deployment of holly",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

// statusCmd shows recent audited activity
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent audited changes and deployments",
	RunE:  runStatus,
}

func loadPipeline() (*config.Config, *selfmod.Orchestrator, *audit.Recorder, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	recorder, err := audit.NewRecorder(cfg.Audit.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}

	gate := safety.NewGate(cfg.Safety, logger)
	client := vcs.NewClient(cfg.VCS, cfg.VCSTimeout(), logger)
	orch := selfmod.New(gate, client, recorder, cfg.VCS.BaseBranch, logger)
	return cfg, orch, recorder, nil
}

func runPropose(cmd *cobra.Command, args []string) error {
	if changeFile == "" {
		return fmt.Errorf("--file is required")
	}

	data, err := os.ReadFile(changeFile)
	if err != nil {
		return fmt.Errorf("failed to read change file: %w", err)
	}
	var change types.ProposedChange
	if err := yaml.Unmarshal(data, &change); err != nil {
		return fmt.Errorf("failed to parse change file: %w", err)
	}
	if openPR {
		change.OpenPR = true
	}

	_, orch, recorder, err := loadPipeline()
	if err != nil {
		return err
	}
	defer recorder.Close()

	result := orch.Propose(context.Background(), change)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	// Returning the error (rather than exiting here) lets the deferred
	// recorder close run before the non-zero exit.
	return proposalError(result)
}

// proposalError maps a non-committed proposal result onto the command error.
func proposalError(result types.ProposalResult) error {
	switch result.Status {
	case types.ProposalCommitted:
		return nil
	case types.ProposalRejected:
		return fmt.Errorf("proposal rejected: %s", result.Reason)
	default:
		return fmt.Errorf("proposal failed: %s", result.Err)
	}
}

// deployError maps a non-deployed result onto the command error.
func deployError(result types.DeployResult) error {
	if result.Status == types.DeployDeployed {
		return nil
	}
	return fmt.Errorf("deploy %s: %s", result.Status, result.Reason)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	imageTag := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	recorder, err := audit.NewRecorder(cfg.Audit.DatabasePath)
	if err != nil {
		return err
	}
	defer recorder.Close()

	ctx := context.Background()
	ecsOrch, err := deploy.NewECSOrchestrator(ctx, cfg.Deploy, logger)
	if err != nil {
		return err
	}
	ci := vcs.NewClient(cfg.VCS, cfg.VCSTimeout(), logger)
	controller := deploy.New(cfg.Deploy, ci, ecsOrch, recorder, logger)

	result := controller.Run(ctx, imageTag)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	return deployError(result)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(cfg.Audit.DatabasePath)
	if err != nil {
		return err
	}
	defer recorder.Close()

	for _, kind := range []string{"code_change", "self_deploy"} {
		episodes, err := recorder.RecentEpisodes(kind, 5)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", kind)
		if len(episodes) == 0 {
			fmt.Println("  (none)")
			continue
		}
		for _, e := range episodes {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "holly.yaml", "path to config file")

	proposeCmd.Flags().StringVarP(&changeFile, "file", "f", "", "change file (YAML or JSON)")
	proposeCmd.Flags().BoolVar(&openPR, "pr", false, "open a pull request for the change")

	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
