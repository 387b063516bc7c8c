// Package uploader uploads a local directory tree to the destination store
// with bounded concurrency.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ligustah/haul/internal/pool"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/transfer"
)

// Store stores local files at keys and removes them again.
type Store interface {
	Put(ctx context.Context, key, path, contentType string) (transfer.Object, error)
	Delete(ctx context.Context, key string) error
}

// rollbackTimeout bounds the removal of a partial tree after a failed or
// cancelled upload.
const rollbackTimeout = 30 * time.Second

// Options configures an Uploader.
type Options struct {
	// Workers is the number of concurrent uploads.
	// Default: 10
	Workers int

	// Logger receives per-object debug logs. Default: discard.
	Logger *slog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Uploader uploads directory trees through a Store.
type Uploader struct {
	store Store
	opts  Options
	log   *slog.Logger
}

// New creates an Uploader writing to store.
func New(store Store, opts Options) *Uploader {
	if opts.Workers <= 0 {
		opts.Workers = pool.DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{store: store, opts: opts, log: opts.Logger}
}

// localFile is one regular file found under the upload root.
type localFile struct {
	path string
	key  string
	size int64
}

// UploadTree uploads every regular file below root to prefix joined with the
// file's slash-separated path relative to root. Every upload is awaited, also
// after a failure. If any upload failed the objects that did upload are
// deleted again, so a prefix is either complete or empty, and the result is an
// ErrUploadFailed error naming each failing key. On success the uploaded
// objects are returned sorted by key.
func (u *Uploader) UploadTree(ctx context.Context, root, prefix string) ([]transfer.Object, error) {
	files, err := walk(root, prefix)
	if err != nil {
		return nil, transfer.NewError(transfer.ErrFilesystem, "walk", root, err)
	}
	if len(files) == 0 {
		u.log.WarnContext(ctx, "nothing to upload", "root", root, "prefix", prefix)
		return nil, nil
	}

	if u.opts.Progress != nil {
		var total int64
		for _, f := range files {
			total += f.size
		}
		u.opts.Progress.Begin(progress.Task{
			Action:     "Uploading",
			Name:       prefix,
			TotalSize:  total,
			TotalItems: len(files),
			Workers:    u.opts.Workers,
		})
		defer u.opts.Progress.End()
	}

	objects := make([]transfer.Object, len(files))
	errs := pool.RunAll(ctx, len(files), u.opts.Workers, func(ctx context.Context, i int) error {
		obj, err := u.put(ctx, files[i])
		objects[i] = obj
		return err
	})

	if errs != nil {
		var failed []error
		var keys, uploaded []string
		for i, err := range errs {
			if err != nil {
				keys = append(keys, files[i].key)
				failed = append(failed, err)
			} else {
				uploaded = append(uploaded, files[i].key)
			}
		}
		rbErr := u.rollback(ctx, prefix, uploaded)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err := fmt.Errorf("%d of %d objects failed (%s): %w", len(keys), len(files), strings.Join(keys, ", "), errors.Join(failed...))
		if rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return nil, transfer.NewError(transfer.ErrUploadFailed, "upload tree", root, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// rollback deletes the uploaded keys. It runs detached from ctx so that a
// cancelled run still clears what it wrote.
func (u *Uploader) rollback(ctx context.Context, prefix string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	errs := pool.RunAll(ctx, len(keys), u.opts.Workers, func(ctx context.Context, i int) error {
		return u.store.Delete(ctx, keys[i])
	})
	if errs == nil {
		u.log.InfoContext(ctx, "removed partial upload", "prefix", prefix, "objects", len(keys))
		return nil
	}

	var left []string
	for i, err := range errs {
		if err != nil {
			left = append(left, keys[i])
		}
	}
	u.log.WarnContext(ctx, "partial upload left behind", "prefix", prefix, "objects", len(left))
	return fmt.Errorf("rollback left %d objects under %s (%s): %w", len(left), prefix, strings.Join(left, ", "), errors.Join(errs...))
}

func (u *Uploader) put(ctx context.Context, f localFile) (transfer.Object, error) {
	if u.opts.Progress != nil {
		u.opts.Progress.ItemStarted()
	}

	obj, err := u.store.Put(ctx, f.key, f.path, contentType(f.path))
	if err != nil {
		if u.opts.Progress != nil {
			u.opts.Progress.ItemFailed(0)
		}
		u.log.DebugContext(ctx, "upload failed", "key", f.key, "error", err)
		return obj, err
	}

	if u.opts.Progress != nil {
		u.opts.Progress.BytesWritten(obj.Size)
		u.opts.Progress.ItemCompleted()
	}
	u.log.DebugContext(ctx, "uploaded object", "key", f.key, "size", obj.Size, "content_type", obj.ContentType)
	return obj, nil
}

// walk lists the regular files below root with their destination keys.
func walk(root, prefix string) ([]localFile, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var files []localFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, localFile{
			path: path,
			key:  prefix + filepath.ToSlash(rel),
			size: info.Size(),
		})
		return nil
	})
	return files, err
}

// contentType sniffs the MIME type of the file at path.
func contentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
