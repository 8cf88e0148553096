// Package manifest defines the immutable per-file records that flow through
// the deployment pipeline: the scanned source file, its resolved destination,
// its encoded payload metadata, and the manifest that ties them together.
package manifest

import (
	"path"
	"time"
)

// FileRecord is one item discovered in the source scan. The source path is
// the unique key for the batch. Immutable once read.
type FileRecord struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size_bytes"`
	ModTime time.Time `json:"mtime"`
}

// Destination is the resolved (repository, path) target for a file.
type Destination struct {
	Repo  string `json:"repo"`
	Dir   string `json:"dir"`
	Label string `json:"label"`
}

// RelativePath joins the destination directory with the original filename.
func (d Destination) RelativePath(filename string) string {
	return path.Join(d.Dir, filename)
}

// Encoding names the transport representation of a payload.
type Encoding string

const (
	EncodingText   Encoding = "text"
	EncodingBinary Encoding = "binary"
)

// Payload carries the transport bytes and integrity metadata for one file.
// The digest is computed over the original bytes, not the transport encoding,
// so verification stays encoding-independent.
type Payload struct {
	Encoding  Encoding
	Transport []byte
	Checksum  string // hex SHA-256 of the original bytes
}

// Manifest is the immutable description of one file's planned deployment.
// Created once by Build, never mutated afterwards.
type Manifest struct {
	SourcePath string    `json:"source_file"`
	Filename   string    `json:"filename"`
	TargetRepo string    `json:"target_repo"`
	TargetPath string    `json:"target_path"`
	Label      string    `json:"description"`
	Binary     bool      `json:"is_binary"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clock abstracts the timestamp source so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Build assembles a manifest from a scanned file, its destination and its
// encoded payload. Pure and deterministic given the clock: no I/O.
func Build(rec FileRecord, dst Destination, p Payload, clock Clock) Manifest {
	return Manifest{
		SourcePath: rec.Path,
		Filename:   rec.Name,
		TargetRepo: dst.Repo,
		TargetPath: dst.RelativePath(rec.Name),
		Label:      dst.Label,
		Binary:     p.Encoding == EncodingBinary,
		Checksum:   p.Checksum,
		SizeBytes:  rec.Size,
		CreatedAt:  clock.Now(),
	}
}
