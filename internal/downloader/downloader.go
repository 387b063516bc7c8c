package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/pool"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/transfer"
	"github.com/ligustah/haul/pkg/chunked"
)

// DefaultBufferSize is the write buffer used when streaming a response to disk.
const DefaultBufferSize = 10 * 1024 * 1024

// errShortBody is reported when a response ends before the expected length.
var errShortBody = errors.New("downloader: response body shorter than expected")

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel requests for Sizes and DownloadParts.
	// Default: 10
	Workers int

	// BufferSize is the write buffer per download.
	// Default: 10 MiB
	BufferSize int

	// HTTPOptions configures the HTTP client.
	HTTPOptions haulhttp.Options

	// Logger receives per-part debug logs. Default: discard.
	Logger *slog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Downloader fetches source files from an HTTP origin. A file's URL is the
// origin base with the file name appended verbatim.
type Downloader struct {
	origin string
	client *haulhttp.Client
	opts   Options
	log    *slog.Logger
}

// New creates a Downloader for the given origin base URL.
func New(origin string, opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = pool.DefaultLimit
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.HTTPOptions.MaxIdleConnsPerHost == 0 {
		opts.HTTPOptions = haulhttp.DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.HTTPOptions.Logger == nil {
		opts.HTTPOptions.Logger = opts.Logger
	}

	return &Downloader{
		origin: origin,
		client: haulhttp.NewClient(opts.HTTPOptions),
		opts:   opts,
		log:    opts.Logger,
	}
}

// URL returns the origin URL of name.
func (d *Downloader) URL(name string) string {
	return d.origin + name
}

// Size returns the exact byte length of name as reported by a HEAD request.
func (d *Downloader) Size(ctx context.Context, name string) (int64, error) {
	info, err := d.client.Head(ctx, d.URL(name))
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, transfer.NewError(transfer.ErrSizeUnavailable, "size", name, err)
	}
	if info.Size < 0 {
		return 0, transfer.NewError(transfer.ErrSizeUnavailable, "size", name, errors.New("no Content-Length in response"))
	}
	d.log.DebugContext(ctx, "resolved size", "file", name, "size", info.Size)
	return info.Size, nil
}

// Sizes resolves the size of every name concurrently. The result is indexed
// like names. The first failure cancels the remaining requests.
func (d *Downloader) Sizes(ctx context.Context, names []string) ([]int64, error) {
	sizes := make([]int64, len(names))
	err := pool.Run(ctx, len(names), d.opts.Workers, func(ctx context.Context, i int) error {
		size, err := d.Size(ctx, names[i])
		if err != nil {
			return err
		}
		sizes[i] = size
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizes, nil
}

// DownloadFile downloads name in a single request to path. If size is not
// negative the body must be exactly size bytes long; a shorter or longer body
// is an ErrDownloadFailed error and path is removed.
func (d *Downloader) DownloadFile(ctx context.Context, name string, size int64, path string) (int64, error) {
	d.started()

	body, err := d.client.Get(ctx, d.URL(name))
	if err != nil {
		d.failed(0)
		return 0, d.downloadErr(ctx, "download", name, err)
	}
	defer body.Close()

	n, err := d.writeFile(path, body, size)
	if err != nil {
		d.failed(n)
		return n, d.downloadErr(ctx, "download", name, err)
	}

	d.completed()
	d.log.DebugContext(ctx, "downloaded file", "file", name, "path", path, "bytes", n)
	return n, nil
}

// DownloadRange downloads one byte range of name to path. The file at path is
// always written from scratch and is removed if the download fails.
func (d *Downloader) DownloadRange(ctx context.Context, name string, rng chunked.Range, path string) (int64, error) {
	d.started()

	resp, err := d.client.GetRange(ctx, d.URL(name), rng.Start, rng.End)
	if err != nil {
		d.failed(0)
		return 0, d.downloadErr(ctx, "download range", name, fmt.Errorf("part %d: %w", rng.Index, err))
	}
	defer resp.Body.Close()

	n, err := d.writeFile(path, resp.Body, rng.Length())
	if err != nil {
		d.failed(n)
		return n, d.downloadErr(ctx, "download range", name, fmt.Errorf("part %d: %w", rng.Index, err))
	}

	d.completed()
	d.log.DebugContext(ctx, "downloaded part", "file", name, "part", rng.Index, "range", rng.Header(), "bytes", n)
	return n, nil
}

// DownloadParts downloads every range of plan into dir concurrently and
// returns the part paths in index order. Parts are named with
// chunked.PartName. If any range fails the others are cancelled, every part
// file of this plan is removed and the failure is returned.
func (d *Downloader) DownloadParts(ctx context.Context, file transfer.SourceFile, plan chunked.Plan, dir string) ([]string, error) {
	total := plan.Parts()
	paths := make([]string, total)
	for i, rng := range plan.Ranges {
		paths[i] = filepath.Join(dir, chunked.PartName(file.LocalName(), rng.Index, total, file.Ext))
	}

	err := pool.Run(ctx, total, d.opts.Workers, func(ctx context.Context, i int) error {
		_, err := d.DownloadRange(ctx, file.Name, plan.Ranges[i], paths[i])
		return err
	})
	if err != nil {
		for _, p := range paths {
			if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				d.log.WarnContext(ctx, "remove part file", "path", p, "error", rerr)
			}
		}
		return nil, err
	}
	return paths, nil
}

// writeFile streams r into a fresh file at path through the write buffer.
// If want is not negative the body must be exactly want bytes long.
func (d *Downloader) writeFile(path string, r io.Reader, want int64) (n int64, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, transfer.NewError(transfer.ErrFilesystem, "create", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = transfer.NewError(transfer.ErrFilesystem, "close", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriterSize(f, d.opts.BufferSize)
	src := r
	if d.opts.Progress != nil {
		src = &countingReader{r: r, progress: d.opts.Progress}
	}
	if want >= 0 {
		// Read one byte past the range so an oversized body is detected.
		src = io.LimitReader(src, want+1)
	}
	n, err = io.Copy(w, src)
	if err != nil {
		return n, err
	}
	if err := w.Flush(); err != nil {
		return n, transfer.NewError(transfer.ErrFilesystem, "write", path, err)
	}
	if want >= 0 && n != want {
		if n < want {
			return n, fmt.Errorf("%w: got %d of %d bytes", errShortBody, n, want)
		}
		return n, fmt.Errorf("downloader: response body longer than %d bytes", want)
	}
	return n, nil
}

// downloadErr classifies err as a download failure unless the context was
// cancelled or it already carries a filesystem kind.
func (d *Downloader) downloadErr(ctx context.Context, op, name string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, transfer.ErrFilesystem) {
		return err
	}
	return transfer.NewError(transfer.ErrDownloadFailed, op, name, err)
}

func (d *Downloader) started() {
	if d.opts.Progress != nil {
		d.opts.Progress.ItemStarted()
	}
}

func (d *Downloader) completed() {
	if d.opts.Progress != nil {
		d.opts.Progress.ItemCompleted()
	}
}

func (d *Downloader) failed(written int64) {
	if d.opts.Progress != nil {
		d.opts.Progress.ItemFailed(written)
	}
}

// countingReader reports bytes read to a progress reporter.
type countingReader struct {
	r        io.Reader
	progress *progress.Reporter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.progress.BytesWritten(int64(n))
	}
	return n, err
}
