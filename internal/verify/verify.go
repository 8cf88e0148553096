// Package verify re-queries the remote store after a deploy pass and
// reports which writes actually landed. Verification runs strictly after
// the whole deploy phase, because remote reads can lag the write; each file
// gets a bounded number of probe attempts separated by a propagation delay.
package verify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"shipyard/internal/deploy"
	"shipyard/internal/remote"
)

// Outcome is the per-file verification result.
type Outcome struct {
	Deployment deploy.Outcome `json:"deployment"`
	Verified   bool           `json:"verified"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
}

// Detail is the per-file entry in the persisted report.
type Detail struct {
	Filename string `json:"filename"`
	Repo     string `json:"repo"`
	Path     string `json:"path"`
	Verified bool   `json:"verified"`
}

// Report aggregates a verification pass. SuccessRate is verified/total,
// defined as 0 for an empty batch.
type Report struct {
	Total       int      `json:"total"`
	Verified    int      `json:"verified"`
	Failed      int      `json:"failed"`
	SuccessRate float64  `json:"success_rate"`
	Details     []Detail `json:"details"`
}

// HasFailures reports whether the run should signal an unhealthy exit.
func (r Report) HasFailures() bool { return r.Failed > 0 }

// Options tune the verifier.
type Options struct {
	// MaxAttempts bounds probes per file. Default 3.
	MaxAttempts int
	// Delay separates probe attempts, covering remote propagation lag.
	// Default 20s.
	Delay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = 20 * time.Second
	}
	return o
}

// Verifier probes the remote store for deployed files.
type Verifier struct {
	store  remote.ContentStore
	logger *zap.Logger
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a verifier. A nil logger is replaced with a no-op logger.
func New(store remote.ContentStore, logger *zap.Logger, opts Options) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		store:  store,
		logger: logger,
		opts:   opts.withDefaults(),
		sleep:  sleepCtx,
	}
}

// VerifyAll probes every accepted deployment and builds the aggregate
// report. Non-accepted outcomes are counted as failed without probing:
// there is nothing on the remote to confirm.
func (v *Verifier) VerifyAll(ctx context.Context, deployments []deploy.Outcome) ([]Outcome, Report) {
	outcomes := make([]Outcome, 0, len(deployments))
	for _, dep := range deployments {
		if dep.Status != deploy.StatusAccepted {
			outcomes = append(outcomes, Outcome{
				Deployment: dep,
				Verified:   false,
				LastError:  "deployment was not accepted",
			})
			continue
		}
		outcomes = append(outcomes, v.verifyOne(ctx, dep))
	}
	return outcomes, buildReport(outcomes)
}

// verifyOne probes one file until it is visible or the attempt budget runs
// out. Presence is the primary signal; for text payloads the remote size is
// also compared against the manifest (binary payloads are re-encoded by the
// store, so their sizes are not comparable).
func (v *Verifier) verifyOne(ctx context.Context, dep deploy.Outcome) Outcome {
	m := dep.Manifest
	out := Outcome{Deployment: dep}

	for attempt := 1; attempt <= v.opts.MaxAttempts; attempt++ {
		out.Attempts = attempt

		info, err := v.store.Stat(ctx, m.TargetRepo, m.TargetPath)
		switch {
		case err == nil:
			if !m.Binary && info.Size != m.SizeBytes {
				out.LastError = "remote size mismatch"
				v.logger.Warn("size mismatch",
					zap.String("path", m.TargetPath),
					zap.Int64("want", m.SizeBytes),
					zap.Int64("got", info.Size))
			} else {
				out.Verified = true
				out.LastError = ""
				return out
			}
		case errors.Is(err, remote.ErrNotFound):
			out.LastError = "not found"
		default:
			out.LastError = err.Error()
		}

		if attempt < v.opts.MaxAttempts {
			if serr := v.sleep(ctx, v.opts.Delay); serr != nil {
				out.LastError = "verification timeout: " + serr.Error()
				return out
			}
		}
	}

	v.logger.Warn("verification failed",
		zap.String("repo", m.TargetRepo),
		zap.String("path", m.TargetPath),
		zap.Int("attempts", out.Attempts),
		zap.String("last_error", out.LastError))
	return out
}

func buildReport(outcomes []Outcome) Report {
	r := Report{Total: len(outcomes)}
	for _, o := range outcomes {
		m := o.Deployment.Manifest
		r.Details = append(r.Details, Detail{
			Filename: m.Filename,
			Repo:     m.TargetRepo,
			Path:     m.TargetPath,
			Verified: o.Verified,
		})
		if o.Verified {
			r.Verified++
		} else {
			r.Failed++
		}
	}
	if r.Total > 0 {
		r.SuccessRate = float64(r.Verified) / float64(r.Total)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
