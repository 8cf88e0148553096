// Package pipeline wires the deployment stages together: scan, classify,
// encode, build manifests, deploy, verify, persist. Data flows strictly
// forward; each record is created by one stage and handed immutably to the
// next.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shipyard/internal/auditlog"
	"shipyard/internal/deploy"
	"shipyard/internal/manifest"
	"shipyard/internal/payload"
	"shipyard/internal/routing"
	"shipyard/internal/verify"
)

// Pipeline runs one batch end to end.
type Pipeline struct {
	Source   Source
	Table    *routing.Table
	Encoder  payload.Encoder
	Clock    manifest.Clock
	Deployer *deploy.Deployer
	Verifier *verify.Verifier
	Insights *auditlog.InsightsSink // optional
	Logger   *zap.Logger
}

// DeployResult carries everything the deploy phase produced.
type DeployResult struct {
	RunID    string
	Started  time.Time
	Items    []deploy.Item
	Log      *auditlog.Log
	Outcomes []deploy.Outcome
}

// Prepare scans the source and builds one item per discovered file:
// classify, encode, manifest. Pure stages, no remote I/O. Destination
// collisions are logged and kept; the later write wins at deploy time.
func (p *Pipeline) Prepare() (*DeployResult, error) {
	if p.Clock == nil {
		p.Clock = manifest.SystemClock{}
	}
	logger := p.logger()

	files, err := p.Source.Scan()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	runID := uuid.NewString()
	started := p.Clock.Now()
	result := &DeployResult{
		RunID:   runID,
		Started: started,
		Log:     auditlog.NewLog(runID, started),
	}

	seen := make(map[string]string) // repo/path -> source path
	for _, f := range files {
		dst := p.Table.Classify(f.Record.Name)
		pl := p.Encoder.Encode(f.Data)
		m := manifest.Build(f.Record, dst, pl, p.Clock)

		key := m.TargetRepo + "/" + m.TargetPath
		if prev, ok := seen[key]; ok {
			// Accepted ambiguity: both writes are logged, the later one
			// ends up on the remote.
			logger.Warn("destination collision, last write wins",
				zap.String("target", key),
				zap.String("first", prev),
				zap.String("second", m.SourcePath))
		}
		seen[key] = m.SourcePath

		logger.Info("prepared",
			zap.String("file", m.Filename),
			zap.String("repo", m.TargetRepo),
			zap.String("path", m.TargetPath),
			zap.Bool("binary", m.Binary),
			zap.String("checksum", m.Checksum[:8]))

		result.Items = append(result.Items, deploy.Item{Manifest: m, Payload: pl})
	}

	logger.Info("batch prepared", zap.String("run_id", runID), zap.Int("files", len(result.Items)))
	return result, nil
}

// Deploy pushes the prepared items and records every outcome in the run
// log. One outcome per item, always.
func (p *Pipeline) Deploy(ctx context.Context, result *DeployResult) []deploy.Outcome {
	outcomes := p.Deployer.DeployAll(ctx, result.Items)
	result.Log.AppendAll(outcomes)
	result.Outcomes = outcomes

	counts := deploy.Summarize(outcomes)
	p.logger().Info("deploy phase complete",
		zap.String("run_id", result.RunID),
		zap.Int("total", len(outcomes)),
		zap.Int("accepted", counts[deploy.StatusAccepted]),
		zap.Int("rejected", counts[deploy.StatusRejected]),
		zap.Int("errors", counts[deploy.StatusError]))

	if p.Insights != nil {
		p.Insights.Record("deployment", len(outcomes), map[string]any{
			"run_id":   result.RunID,
			"accepted": counts[deploy.StatusAccepted],
			"rejected": counts[deploy.StatusRejected],
			"errors":   counts[deploy.StatusError],
		})
	}
	return outcomes
}

// Verify runs the verification pass over recorded outcomes and reports the
// aggregate. Strictly a separate phase: it must only be called once the
// deploy phase has finalized every outcome.
func (p *Pipeline) Verify(ctx context.Context, runID string, outcomes []deploy.Outcome) ([]verify.Outcome, verify.Report) {
	results, report := p.Verifier.VerifyAll(ctx, outcomes)

	p.logger().Info("verification complete",
		zap.String("run_id", runID),
		zap.Int("total", report.Total),
		zap.Int("verified", report.Verified),
		zap.Int("failed", report.Failed),
		zap.Float64("success_rate", report.SuccessRate))

	if p.Insights != nil {
		p.Insights.Record("verification", report.Total, map[string]any{
			"run_id":       runID,
			"verified":     report.Verified,
			"failed":       report.Failed,
			"success_rate": report.SuccessRate,
		})
	}
	return results, report
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
