// shipyard deploys locally produced artifact files into their home
// repositories on a remote content store, then verifies the writes landed.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shipyard/internal/auditlog"
	"shipyard/internal/config"
	"shipyard/internal/deploy"
	"shipyard/internal/pipeline"
	"shipyard/internal/remote"
	"shipyard/internal/verify"
)

var (
	cfgPath string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shipyard",
	Short: "shipyard - rule-routed artifact deployment",
	Long: `shipyard moves a batch of locally produced files into the correct
locations inside one of several remote repositories, using an ordered
routing-rule table to pick each file's destination, and verifies that
every write actually landed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
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

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Scan the source directory and deploy every artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, p, sink, err := buildPipeline()
		if err != nil {
			return err
		}
		if sink != nil {
			defer sink.Close()
		}

		result, outcomes, err := runDeploy(cmd.Context(), cfg, p)
		if err != nil {
			return err
		}
		printDeploySummary(result, outcomes)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a previous deployment against the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, p, sink, err := buildPipeline()
		if err != nil {
			return err
		}
		if sink != nil {
			defer sink.Close()
		}

		runID, started, outcomes, err := auditlog.ReadDeploymentLog(cfg.Artifacts.DeploymentLog)
		if err != nil {
			return err
		}
		return runVerify(cmd.Context(), cfg, p, runID, started, outcomes)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deploy and then verify in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, p, sink, err := buildPipeline()
		if err != nil {
			return err
		}
		if sink != nil {
			defer sink.Close()
		}

		result, outcomes, err := runDeploy(cmd.Context(), cfg, p)
		if err != nil {
			return err
		}
		printDeploySummary(result, outcomes)
		return runVerify(cmd.Context(), cfg, p, result.RunID, result.Started, outcomes)
	},
}

// buildPipeline assembles the pipeline from config. The insights sink is
// best-effort: failure to open it is logged, not fatal.
func buildPipeline() (*config.Config, *pipeline.Pipeline, *auditlog.InsightsSink, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	table, err := cfg.RoutingTable()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := remote.NewGitHubStore(cfg.GitHub, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var sink *auditlog.InsightsSink
	if cfg.Artifacts.InsightsDB != "" {
		sink, err = auditlog.OpenInsights(cfg.Artifacts.InsightsDB, logger)
		if err != nil {
			logger.Warn("insights sink unavailable", zap.Error(err))
			sink = nil
		}
	}

	p := &pipeline.Pipeline{
		Source: pipeline.DirSource{Dir: cfg.Source.Dir},
		Table:  table,
		Deployer: deploy.New(store, logger, deploy.Options{
			MaxAttempts:       cfg.Deploy.MaxAttempts,
			BackoffBase:       config.Duration(cfg.Deploy.BackoffBase, time.Second),
			Concurrency:       cfg.Deploy.Concurrency,
			RequestsPerSecond: cfg.Deploy.RequestsPerSecond,
		}),
		Verifier: verify.New(store, logger, verify.Options{
			MaxAttempts: cfg.Verify.MaxAttempts,
			Delay:       config.Duration(cfg.Verify.Delay, 20*time.Second),
		}),
		Insights: sink,
		Logger:   logger,
	}
	return cfg, p, sink, nil
}

// runDeploy executes the deploy phase and persists its artifacts.
func runDeploy(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) (*pipeline.DeployResult, []deploy.Outcome, error) {
	result, err := p.Prepare()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Deploy.BatchTimeout != "" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Duration(cfg.Deploy.BatchTimeout, time.Hour))
		defer cancel()
	}
	outcomes := p.Deploy(ctx, result)

	if err := result.Log.WriteDeploymentLog(cfg.Artifacts.DeploymentLog); err != nil {
		return nil, nil, err
	}
	if cfg.Artifacts.CommandScript != "" {
		script := deploy.GenerateScript(result.Items, cfg.GitHub.BaseURL, cfg.GitHub.Owner, cfg.GitHub.Branch, result.Started)
		if err := auditlog.WriteScript(cfg.Artifacts.CommandScript, script); err != nil {
			logger.Warn("command script not written", zap.Error(err))
		}
	}
	return result, outcomes, nil
}

// runVerify executes the verification phase, persists the report, and
// returns a non-nil error when any file failed, so the process exits
// non-zero and orchestration can alert.
func runVerify(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, runID string, started time.Time, outcomes []deploy.Outcome) error {
	_, report := p.Verify(ctx, runID, outcomes)

	if err := auditlog.WriteVerificationReport(cfg.Artifacts.VerificationReport, runID, started, report); err != nil {
		return err
	}
	printVerifySummary(report)

	if report.HasFailures() {
		return fmt.Errorf("verification failed: %d of %d files unverified", report.Failed, report.Total)
	}
	return nil
}

func printDeploySummary(result *pipeline.DeployResult, outcomes []deploy.Outcome) {
	counts := deploy.Summarize(outcomes)
	fmt.Printf("\nDeployment run %s\n", result.RunID)
	fmt.Printf("  Total:    %d\n", len(outcomes))
	fmt.Printf("  Accepted: %d\n", counts[deploy.StatusAccepted])
	fmt.Printf("  Rejected: %d\n", counts[deploy.StatusRejected])
	fmt.Printf("  Errors:   %d\n", counts[deploy.StatusError])
	for _, o := range outcomes {
		mark := "ok"
		if o.Status != deploy.StatusAccepted {
			mark = string(o.Status)
		}
		fmt.Printf("  [%s] %s -> %s/%s\n", mark, o.Manifest.Filename, o.Manifest.TargetRepo, o.Manifest.TargetPath)
	}
}

func printVerifySummary(report verify.Report) {
	fmt.Printf("\nVerification\n")
	fmt.Printf("  Total:        %d\n", report.Total)
	fmt.Printf("  Verified:     %d\n", report.Verified)
	fmt.Printf("  Failed:       %d\n", report.Failed)
	fmt.Printf("  Success rate: %.1f%%\n", report.SuccessRate*100)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to shipyard.yaml (defaults + env when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(deployCmd, verifyCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
