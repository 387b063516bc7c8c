// Package transfer holds the data model shared by the transfer pipeline
// components: the run configuration, the per-file source description, the
// uploaded object record and the error taxonomy.
package transfer

import (
	"path"
	"strings"
)

// Job is the configuration of one pipeline run. It is built once and never
// modified while the run is in progress.
type Job struct {
	// Origin is the base URL that source names are appended to.
	Origin string

	// Files lists source names relative to Origin, in processing order.
	Files []string

	// ChunkSize is the largest byte span downloaded in one request. Files
	// larger than ChunkSize are split into ranges.
	ChunkSize int64

	// Workers bounds every fan-out: sizing, range downloads and uploads.
	Workers int

	// Bucket is the destination bucket URL.
	Bucket string

	// Prefix is prepended to every destination key.
	Prefix string

	// Overwrite disables the skip-on-rerun check.
	Overwrite bool

	// ContinueOnError records a failed file and moves on instead of
	// aborting the run.
	ContinueOnError bool

	// WorkDir is the local directory under which a per-run directory is
	// created.
	WorkDir string
}

// SourceFile is one file of a Job.
type SourceFile struct {
	Name   string // Relative name under the origin
	Stem   string // Name without its archive extension
	Ext    string // Archive extension including the leading dot
	Size   int64  // Resolved byte size, -1 until known
	Prefix string // Destination key prefix, always ending in "/"
}

// NewSourceFile describes name, already split into stem and ext, for job.
func NewSourceFile(job Job, name, stem, ext string) SourceFile {
	return SourceFile{
		Name:   name,
		Stem:   stem,
		Ext:    ext,
		Size:   -1,
		Prefix: DestinationPrefix(job.Prefix, stem),
	}
}

// LocalName is the base file name used for local artifacts of the file.
func (f SourceFile) LocalName() string {
	return path.Base(f.Stem)
}

// DestinationPrefix joins prefix and stem into a key prefix ending in "/".
func DestinationPrefix(prefix, stem string) string {
	p := strings.TrimPrefix(path.Join(prefix, stem), "/")
	return strings.TrimSuffix(p, "/") + "/"
}

// Object is one uploaded destination object.
type Object struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
}
