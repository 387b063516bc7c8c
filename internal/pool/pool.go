// Package pool runs a fixed number of indexed tasks with bounded concurrency.
//
// It is used for the three fan-outs of a transfer: sizing the source files,
// downloading the ranges of one file and uploading, or rolling back, the
// objects of one tree.
package pool

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the concurrency used when a caller passes limit <= 0.
const DefaultLimit = 10

// Run calls fn for every i in [0, n) with at most limit calls in flight.
//
// The first failing call cancels the context handed to the others and no
// further calls are started. Run waits for every started call and returns
// their failures joined with errors.Join. Cancellation errors caused by a
// sibling failure are not reported separately. If the parent context is
// cancelled, its error is returned.
func Run(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	errs := make([]error, n)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			errs[i] = fn(gctx, i)
			return errs[i]
		})
	}
	g.Wait()

	return collect(ctx, errs)
}

// RunAll is like Run but never cancels siblings: every call is made and the
// per-index errors are returned. The result is nil only if all calls
// succeeded or n is zero.
func RunAll(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) []error {
	if n <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var g errgroup.Group
	g.SetLimit(limit)

	errs := make([]error, n)
	failed := false
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			failed = true
			break
		}
	}
	if !failed {
		return nil
	}
	return errs
}

func collect(ctx context.Context, errs []error) error {
	var failures []error
	for _, err := range errs {
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		failures = append(failures, err)
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	// Only cancellations remain: either the parent was cancelled or a
	// worker reported context.Canceled on its own.
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
