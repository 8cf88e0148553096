// Package remote talks to the remote content store. The pipeline treats the
// store as an opaque key/value surface: stat a path to learn its current
// revision, put content at a path, optionally supplying the prior revision
// when overwriting. The concrete implementation targets a GitHub-style
// contents REST API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports that a path does not exist in the target repository.
// The deployer relies on it to choose create over update.
var ErrNotFound = errors.New("remote: path not found")

// RateLimitError reports a rate-limited request. RetryAfter is zero when
// the store gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("remote: rate limited, retry after %s", e.RetryAfter)
	}
	return "remote: rate limited"
}

// ConflictError reports a revision mismatch on overwrite: the file changed
// remotely since the prior revision was read.
type ConflictError struct {
	Repo string
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote: revision conflict at %s/%s", e.Repo, e.Path)
}

// StatusError reports a non-success HTTP status that is neither a rate
// limit nor a conflict. Code distinguishes store-side rejections (4xx)
// from transient server failures (5xx).
type StatusError struct {
	Code int
	Repo string
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s/%s: status %d: %s", e.Repo, e.Path, e.Code, e.Body)
}

// Rejected reports whether the store refused the request outright.
func (e *StatusError) Rejected() bool { return e.Code >= 400 && e.Code < 500 }

// FileInfo describes the remote state of one path.
type FileInfo struct {
	Revision string // store-assigned content revision (blob SHA)
	Size     int64
}

// ContentStore is the minimal surface the pipeline needs from the remote
// store. Implementations must be safe for concurrent use.
type ContentStore interface {
	// Stat returns the current revision of repo/path, or ErrNotFound.
	Stat(ctx context.Context, repo, path string) (FileInfo, error)

	// Put creates or overwrites repo/path with the transport content.
	// priorRevision must carry the current revision when overwriting an
	// existing file; leave it empty for a create. Returns the new revision.
	Put(ctx context.Context, repo, path string, content []byte, message, priorRevision string) (string, error)
}
