// Package auditlog persists the durable, replayable record of a run: the
// ordered deployment log, the verification report, and a fire-and-forget
// insights row in SQLite. The log is an explicit object handed through the
// pipeline, not ambient global state, and appends are serialized so
// concurrent writers leave a consistent final record.
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shipyard/internal/deploy"
	"shipyard/internal/verify"
)

// Log accumulates deployment outcomes for one run. Append-only.
type Log struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	outcomes []deploy.Outcome
}

// NewLog starts an empty run log.
func NewLog(runID string, started time.Time) *Log {
	return &Log{runID: runID, started: started}
}

// Append records one outcome. Safe for concurrent use.
func (l *Log) Append(o deploy.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

// AppendAll records a batch of outcomes in order.
func (l *Log) AppendAll(outcomes []deploy.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcomes...)
}

// Outcomes returns a copy of the recorded outcomes in append order.
func (l *Log) Outcomes() []deploy.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]deploy.Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}

// RunID returns the run identifier the log was opened with.
func (l *Log) RunID() string { return l.runID }

// deploymentLogFile is the on-disk envelope for the deployment log. The
// field set is a stable contract across runs.
type deploymentLogFile struct {
	Version     string           `json:"version"`
	RunID       string           `json:"run_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Total       int              `json:"total_deployments"`
	Deployments []deploy.Outcome `json:"deployments"`
}

// fileVersion is bumped only on incompatible changes to the log format.
const fileVersion = "1.0.0"

// WriteDeploymentLog persists the ordered outcome list as JSON.
func (l *Log) WriteDeploymentLog(path string) error {
	l.mu.Lock()
	outcomes := make([]deploy.Outcome, len(l.outcomes))
	copy(outcomes, l.outcomes)
	l.mu.Unlock()

	envelope := deploymentLogFile{
		Version:     fileVersion,
		RunID:       l.runID,
		Timestamp:   l.started,
		Total:       len(outcomes),
		Deployments: outcomes,
	}
	return writeJSON(path, envelope)
}

// verificationReportFile wraps the aggregate report with the originating
// run's identity so reports can be correlated with their deployment logs.
type verificationReportFile struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Results   verify.Report `json:"verification_results"`
}

// WriteVerificationReport persists the aggregate verification report.
func WriteVerificationReport(path, runID string, started time.Time, report verify.Report) error {
	return writeJSON(path, verificationReportFile{
		RunID:     runID,
		Timestamp: started,
		Results:   report,
	})
}

// ReadDeploymentLog loads a previously written deployment log, for the
// standalone verify command.
func ReadDeploymentLog(path string) (runID string, started time.Time, outcomes []deploy.Outcome, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("read deployment log: %w", err)
	}
	var envelope deploymentLogFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("parse deployment log: %w", err)
	}
	return envelope.RunID, envelope.Timestamp, envelope.Deployments, nil
}

// WriteScript persists the generated command script with execute permission.
func WriteScript(path, script string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create script directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("write command script: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
