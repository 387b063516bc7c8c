// Package pipeline runs the chunked transfer of a list of source files from
// an HTTP origin into an object store.
//
// Each file moves through a fixed sequence of states: an existence check of
// its destination prefix, sizing, chunk planning, concurrent range download,
// ordered reassembly, archive expansion, concurrent upload and local
// cleanup. Files are processed one at a time in input order; concurrency
// exists only inside the size, download and upload fan-outs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ligustah/haul/internal/archive"
	"github.com/ligustah/haul/internal/logging"
	"github.com/ligustah/haul/internal/pool"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/transfer"
	"github.com/ligustah/haul/internal/uploader"
	"github.com/ligustah/haul/pkg/chunked"
)

const tracerName = "github.com/ligustah/haul/internal/pipeline"

// Origin sizes and downloads source files.
type Origin interface {
	Size(ctx context.Context, name string) (int64, error)
	DownloadFile(ctx context.Context, name string, size int64, path string) (int64, error)
	DownloadParts(ctx context.Context, file transfer.SourceFile, plan chunked.Plan, dir string) ([]string, error)
}

// Store is the destination object store.
type Store interface {
	Exists(ctx context.Context, prefix string) (bool, error)
	uploader.Store
}

// Archives splits source names into stem and extension and expands
// downloaded archives.
type Archives interface {
	Split(name string) (stem, ext string, err error)
	Expand(ctx context.Context, archivePath, targetDir string) error
}

// Options configures a Pipeline.
type Options struct {
	// Archives handles archive formats. Default: archive.Default().
	Archives Archives

	// Logger receives progress and failure logs. Default: discard.
	Logger *slog.Logger

	// Tracer creates one span per run and per file. Default: the global
	// tracer provider.
	Tracer trace.Tracer

	// Progress is an optional progress reporter for the download phase.
	// Pass the same reporter to the Origin to receive per-part updates.
	Progress *progress.Reporter
}

// Pipeline transfers the files of one Job.
type Pipeline struct {
	job      transfer.Job
	origin   Origin
	store    Store
	archives Archives
	uploader *uploader.Uploader
	opts     Options
	log      *slog.Logger
	tracer   trace.Tracer
}

// New creates a Pipeline for job.
func New(job transfer.Job, origin Origin, store Store, opts Options) *Pipeline {
	if opts.Archives == nil {
		opts.Archives = archive.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if job.Workers <= 0 {
		job.Workers = pool.DefaultLimit
	}

	return &Pipeline{
		job:      job,
		origin:   origin,
		store:    store,
		archives: opts.Archives,
		uploader: uploader.New(store, uploader.Options{
			Workers:  job.Workers,
			Logger:   opts.Logger,
			Progress: opts.Progress,
		}),
		opts:   opts,
		log:    opts.Logger,
		tracer: opts.Tracer,
	}
}

// file is the in-flight state of one source file.
type file struct {
	src    transfer.SourceFile
	result *FileResult
	span   trace.Span
	start  time.Time
}

// Run transfers every file of the job and returns the run report.
//
// Without ContinueOnError the first failing file stops the run and the
// remaining files are left in a non-terminal state. The returned error joins the failures of all
// failed files, or is the context error if the run was cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Files:   make([]FileResult, len(p.job.Files)),
	}
	defer func() { report.Finished = time.Now() }()

	ctx = logging.WithRunID(ctx, report.RunID)
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("haul.run_id", report.RunID),
		attribute.Int("haul.files", len(p.job.Files)),
		attribute.String("haul.bucket", p.job.Bucket),
	))
	defer span.End()

	runDir := filepath.Join(p.job.WorkDir, "run-"+report.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		err = transfer.NewError(transfer.ErrFilesystem, "mkdir", runDir, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	defer p.removeRunDir(ctx, runDir)

	p.log.InfoContext(ctx, "starting transfer",
		"files", len(p.job.Files),
		"bucket", p.job.Bucket,
		"prefix", p.job.Prefix,
		"chunk_size", progress.FormatBytes(p.job.ChunkSize),
		"workers", p.job.Workers,
		"overwrite", p.job.Overwrite,
		"work_dir", runDir,
	)

	files := make([]*file, len(p.job.Files))
	for i, name := range p.job.Files {
		report.Files[i] = FileResult{Name: name, State: Pending, Size: -1}
		files[i] = &file{result: &report.Files[i], start: time.Now()}
	}
	// File spans end when their file reaches a terminal state. Files left
	// unfinished by an early stop end theirs here.
	defer func() {
		for _, f := range files {
			if f.span != nil {
				f.span.End()
			}
		}
	}()

	err := p.run(ctx, files, runDir)
	if err == nil {
		err = report.Err()
	}

	p.log.InfoContext(ctx, "transfer finished",
		"done", report.Count(Done),
		"skipped", report.Count(Skipped),
		"failed", report.Count(Failed),
		"unfinished", report.Unfinished(),
		"elapsed", time.Since(report.Started).Round(time.Millisecond),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

// run drives every file through the pipeline. It returns a non-nil error
// only when the run must stop early.
func (p *Pipeline) run(ctx context.Context, files []*file, runDir string) error {
	// Names, prefixes and the skip check, sequentially in input order.
	var toSize []*file
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.span = p.startFileSpan(ctx, f.result.Name)

		stem, ext, err := p.archives.Split(f.result.Name)
		if err != nil {
			p.transition(ctx, f, Planning)
			if stop := p.fail(ctx, f, err); stop {
				return nil
			}
			continue
		}
		f.src = transfer.NewSourceFile(p.job, f.result.Name, stem, ext)
		f.result.Prefix = f.src.Prefix
		f.span.SetAttributes(attribute.String("haul.prefix", f.src.Prefix))

		if !p.job.Overwrite {
			exists, err := p.store.Exists(ctx, f.src.Prefix)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if stop := p.fail(ctx, f, err); stop {
					return nil
				}
				continue
			}
			if exists {
				p.transition(ctx, f, Skipped)
				p.log.InfoContext(ctx, "destination already populated, skipping", "file", f.src.Name, "prefix", f.src.Prefix)
				continue
			}
		}
		toSize = append(toSize, f)
	}

	if len(toSize) == 0 {
		return nil
	}
	if stop, err := p.resolveSizes(ctx, toSize); stop || err != nil {
		return err
	}

	for _, f := range toSize {
		if f.result.State.Terminal() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.process(ctx, f, runDir); err != nil {
			if ctx.Err() != nil {
				p.fail(ctx, f, ctx.Err())
				return ctx.Err()
			}
			if stop := p.fail(ctx, f, err); stop {
				return nil
			}
		}
	}
	return nil
}

// resolveSizes sizes files concurrently and logs the totals. stop is true
// when a failure ends the run.
func (p *Pipeline) resolveSizes(ctx context.Context, files []*file) (stop bool, err error) {
	for _, f := range files {
		p.transition(ctx, f, Sizing)
	}

	errs := make([]error, len(files))
	size := func(ctx context.Context, i int) error {
		n, err := p.origin.Size(ctx, files[i].src.Name)
		if err != nil {
			errs[i] = err
			return err
		}
		files[i].src.Size = n
		files[i].result.Size = n
		return nil
	}
	if p.job.ContinueOnError {
		pool.RunAll(ctx, len(files), p.job.Workers, size)
	} else {
		pool.Run(ctx, len(files), p.job.Workers, size)
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}

	var total int64
	parts := 0
	for i, f := range files {
		if errs[i] != nil {
			// Sibling cancellations are not failures of their own.
			if errors.Is(errs[i], context.Canceled) {
				continue
			}
			if stop := p.fail(ctx, f, errs[i]); stop {
				return true, nil
			}
			continue
		}
		if f.src.Size < 0 {
			// Never started because a sibling failed.
			continue
		}
		total += f.src.Size
		parts += chunked.PartCount(f.src.Size, p.job.ChunkSize)
	}

	p.log.InfoContext(ctx, "resolved sizes",
		"files", len(files),
		"total_size", progress.FormatBytes(total),
		"parts", parts,
	)
	return false, nil
}

// process moves one sized file from Planning to Done.
func (p *Pipeline) process(ctx context.Context, f *file, runDir string) error {
	ctx = trace.ContextWithSpan(ctx, f.span)
	log := p.log.With("file", f.src.Name)

	p.transition(ctx, f, Planning)
	plan, err := chunked.NewPlan(f.src.Size, p.job.ChunkSize)
	if err != nil {
		return err
	}
	f.result.Parts = plan.Parts()
	f.span.SetAttributes(
		attribute.Int64("haul.size", f.src.Size),
		attribute.Int("haul.parts", plan.Parts()),
	)

	archivePath := filepath.Join(runDir, f.src.LocalName()+f.src.Ext)
	targetDir := filepath.Join(runDir, f.src.LocalName())

	p.transition(ctx, f, Downloading)
	if err := p.download(ctx, f, plan, archivePath, runDir); err != nil {
		return err
	}

	p.transition(ctx, f, Expanding)
	if err := p.archives.Expand(ctx, archivePath, targetDir); err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil {
		return transfer.NewError(transfer.ErrFilesystem, "remove", archivePath, err)
	}

	p.transition(ctx, f, Uploading)
	objects, err := p.uploader.UploadTree(ctx, targetDir, f.src.Prefix)
	if err != nil {
		return err
	}
	f.result.Objects = objects

	p.transition(ctx, f, CleaningUp)
	if err := os.RemoveAll(targetDir); err != nil {
		return transfer.NewError(transfer.ErrFilesystem, "remove", targetDir, err)
	}

	p.transition(ctx, f, Done)
	f.result.Elapsed = time.Since(f.start)
	log.InfoContext(ctx, "transferred",
		"size", progress.FormatBytes(f.src.Size),
		"parts", plan.Parts(),
		"objects", len(objects),
		"prefix", f.src.Prefix,
		"elapsed", f.result.Elapsed.Round(time.Millisecond),
	)
	return nil
}

// download fetches the file to archivePath, through part files and
// reassembly when the plan has more than one range.
func (p *Pipeline) download(ctx context.Context, f *file, plan chunked.Plan, archivePath, runDir string) error {
	if p.opts.Progress != nil {
		p.opts.Progress.Begin(progress.Task{
			Action:     "Downloading",
			Name:       f.src.Name,
			TotalSize:  f.src.Size,
			TotalItems: plan.Parts(),
			ItemSize:   min(p.job.ChunkSize, f.src.Size),
			Workers:    p.job.Workers,
		})
		defer p.opts.Progress.End()
	}

	if plan.Whole() {
		_, err := p.origin.DownloadFile(ctx, f.src.Name, f.src.Size, archivePath)
		return err
	}

	parts, err := p.origin.DownloadParts(ctx, f.src, plan, runDir)
	if err != nil {
		return err
	}

	p.transition(ctx, f, Reassembling)
	if _, err := chunked.Reassemble(archivePath, parts); err != nil {
		for _, part := range parts {
			os.Remove(part)
		}
		if errors.Is(err, chunked.ErrIncomplete) {
			return transfer.NewError(transfer.ErrReassemblyIncomplete, "reassemble", archivePath, err)
		}
		return transfer.NewError(transfer.ErrFilesystem, "reassemble", archivePath, err)
	}
	return nil
}

func (p *Pipeline) startFileSpan(ctx context.Context, name string) trace.Span {
	_, span := p.tracer.Start(ctx, "pipeline.File", trace.WithAttributes(
		attribute.String("haul.file", name),
	))
	return span
}

// transition moves f to state s and records it on the file span. A terminal
// state ends the span.
func (p *Pipeline) transition(ctx context.Context, f *file, s State) {
	from := f.result.State
	if !from.canTransition(s) {
		// Programming error; keep the record honest rather than panic.
		p.log.ErrorContext(ctx, "illegal state transition", "file", f.result.Name, "from", from, "to", s)
	}
	f.result.State = s
	if f.span != nil {
		f.span.AddEvent(s.String())
		if s.Terminal() {
			f.span.End()
			f.span = nil
		}
	}
	p.log.DebugContext(ctx, "state", "file", f.result.Name, "from", from.String(), "to", s.String())
}

// fail marks f failed and reports whether the run must stop.
func (p *Pipeline) fail(ctx context.Context, f *file, err error) bool {
	f.result.FailedAt = f.result.State
	f.result.Err = err
	f.result.Elapsed = time.Since(f.start)
	if f.span != nil {
		f.span.RecordError(err)
		f.span.SetStatus(codes.Error, err.Error())
	}
	p.transition(ctx, f, Failed)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.log.WarnContext(ctx, "transfer interrupted", "file", f.result.Name, "state", f.result.FailedAt.String())
		return true
	}
	p.log.ErrorContext(ctx, "transfer failed",
		"file", f.result.Name,
		"state", f.result.FailedAt.String(),
		"kind", kindName(err),
		"error", err,
	)
	return !p.job.ContinueOnError
}

func kindName(err error) string {
	if kind := transfer.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unknown"
}

// removeRunDir removes the run directory if nothing was left behind.
func (p *Pipeline) removeRunDir(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	if len(entries) > 0 {
		p.log.WarnContext(ctx, "keeping work directory with leftover artifacts", "dir", dir, "entries", len(entries))
		return
	}
	if err := os.Remove(dir); err != nil {
		p.log.WarnContext(ctx, "remove work directory", "dir", dir, "error", err)
	}
}
