// Package deploy submits deployment manifests to the remote content store.
// The batch contract is collect-don't-abort: every manifest yields exactly
// one terminal outcome, and a failing file never poisons the rest of the
// batch. Rate-limited writes get a bounded exponential-backoff retry;
// revision conflicts get exactly one fresh-lookup retry.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shipyard/internal/manifest"
	"shipyard/internal/remote"
)

// Status is the terminal state of one deployment attempt.
type Status string

const (
	StatusPrepared Status = "prepared"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

// Item pairs a manifest with the transport payload it describes.
type Item struct {
	Manifest manifest.Manifest
	Payload  manifest.Payload
}

// Outcome is the per-file result of a deployment attempt. Appended to the
// run log, never edited.
type Outcome struct {
	Manifest       manifest.Manifest `json:"manifest"`
	Status         Status            `json:"status"`
	RemoteRevision string            `json:"remote_revision,omitempty"`
	ErrorDetail    string            `json:"error_detail,omitempty"`
}

// Options tune the deployer. Zero values fall back to defaults.
type Options struct {
	// MaxAttempts bounds rate-limit retries per file. Default 3.
	MaxAttempts int
	// BackoffBase is the first retry delay; doubles per attempt. Default 1s.
	BackoffBase time.Duration
	// Concurrency bounds the worker pool. Default 1 (sequential), which is
	// the simplest policy that respects the remote rate limit.
	Concurrency int
	// RequestsPerSecond feeds the token bucket shared across workers.
	// Zero disables client-side throttling.
	RequestsPerSecond float64
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// Deployer pushes items to the remote store.
type Deployer struct {
	store   remote.ContentStore
	logger  *zap.Logger
	opts    Options
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a deployer. A nil logger is replaced with a no-op logger.
func New(store remote.ContentStore, logger *zap.Logger, opts Options) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Deployer{
		store:   store,
		logger:  logger,
		opts:    opts,
		sleep:   sleepCtx,
		limiter: limiter,
	}
}

// DeployAll processes the whole batch and returns one outcome per item, in
// input order. Cancellation of ctx turns every not-yet-started item into an
// error outcome with a timeout detail; in-flight requests run to completion
// or time out on their own.
func (d *Deployer) DeployAll(ctx context.Context, items []Item) []Outcome {
	outcomes := make([]Outcome, len(items))

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{
					Manifest:    item.Manifest,
					Status:      StatusError,
					ErrorDetail: fmt.Sprintf("batch timeout before deploy: %v", err),
				}
				return nil
			}
			outcomes[i] = d.deployOne(ctx, item)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// deployOne runs the full per-file protocol: prior-revision lookup, write,
// conflict re-lookup, rate-limit backoff.
func (d *Deployer) deployOne(ctx context.Context, item Item) Outcome {
	m := item.Manifest
	out := Outcome{Manifest: m, Status: StatusPrepared}
	message := fmt.Sprintf("Deploy: %s - %s", m.Filename, m.Label)

	prior := d.lookupRevision(ctx, m)

	conflictRetried := false
	for attempt := 1; ; attempt++ {
		if err := d.wait(ctx); err != nil {
			out.Status = StatusError
			out.ErrorDetail = fmt.Sprintf("batch timeout: %v", err)
			return out
		}

		rev, err := d.store.Put(ctx, m.TargetRepo, m.TargetPath, item.Payload.Transport, message, prior)
		if err == nil {
			out.Status = StatusAccepted
			out.RemoteRevision = rev
			d.logger.Info("deployed",
				zap.String("repo", m.TargetRepo),
				zap.String("path", m.TargetPath),
				zap.String("revision", rev))
			return out
		}

		var rle *remote.RateLimitError
		if errors.As(err, &rle) {
			if attempt >= d.opts.MaxAttempts {
				out.Status = StatusError
				out.ErrorDetail = fmt.Sprintf("rate limited after %d attempts: %v", attempt, err)
				return out
			}
			delay := d.opts.BackoffBase << (attempt - 1)
			if rle.RetryAfter > delay {
				delay = rle.RetryAfter
			}
			d.logger.Warn("rate limited, backing off",
				zap.String("path", m.TargetPath),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if serr := d.sleep(ctx, delay); serr != nil {
				out.Status = StatusError
				out.ErrorDetail = fmt.Sprintf("batch timeout during backoff: %v", serr)
				return out
			}
			continue
		}

		var ce *remote.ConflictError
		if errors.As(err, &ce) && !conflictRetried {
			// The remote moved under us; refresh the revision once and
			// try again.
			conflictRetried = true
			prior = d.lookupRevision(ctx, m)
			continue
		}

		var se *remote.StatusError
		if errors.As(err, &se) && se.Rejected() {
			out.Status = StatusRejected
			out.ErrorDetail = err.Error()
			d.logger.Warn("remote rejected write", zap.String("path", m.TargetPath), zap.Error(err))
			return out
		}

		out.Status = StatusError
		out.ErrorDetail = err.Error()
		d.logger.Error("deploy failed", zap.String("path", m.TargetPath), zap.Error(err))
		return out
	}
}

// lookupRevision fetches the current revision for an overwrite. Any failure
// here means the file is treated as new and a plain create is attempted;
// the write itself is the authority on whether that was right.
func (d *Deployer) lookupRevision(ctx context.Context, m manifest.Manifest) string {
	if err := d.wait(ctx); err != nil {
		return ""
	}
	info, err := d.store.Stat(ctx, m.TargetRepo, m.TargetPath)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			d.logger.Debug("revision lookup failed, attempting create",
				zap.String("path", m.TargetPath), zap.Error(err))
		}
		return ""
	}
	return info.Revision
}

// wait blocks on the shared token bucket, if one is configured.
func (d *Deployer) wait(ctx context.Context) error {
	if d.limiter == nil {
		return ctx.Err()
	}
	return d.limiter.Wait(ctx)
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

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) map[Status]int {
	counts := make(map[Status]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return counts
}
