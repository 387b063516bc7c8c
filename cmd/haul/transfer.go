package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ligustah/haul/internal/config"
	"github.com/ligustah/haul/internal/downloader"
	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/pipeline"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/store"
	"github.com/ligustah/haul/internal/transfer"
)

// runTransfer downloads every dataset archive, expands it and uploads the
// expanded tree under <prefix>/<stem>/ in the bucket.
func runTransfer(args []string) int {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)

	var opts options
	opts.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: haul transfer [options]

Download dataset archives from an HTTP origin in byte-range chunks, expand
them and upload the expanded files to object storage. Datasets whose
destination prefix is already populated are skipped unless -overwrite is set.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := opts.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	return transferDatasets(ctx, cfg)
}

func transferDatasets(ctx context.Context, cfg config.Config) int {
	log, err := newLogger(os.Stderr, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	bkt, err := store.Open(ctx, cfg.Bucket, store.Options{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
		PartSize: cfg.ChunkSize,
		Logger:   log,
	})
	if err != nil {
		log.ErrorContext(ctx, "open bucket", "bucket", cfg.Bucket, "error", err)
		return ExitStorageError
	}
	defer bkt.Close()

	identity, err := bkt.VerifyCredentials(ctx)
	if err != nil {
		log.ErrorContext(ctx, "no usable credentials for the destination", "bucket", cfg.Bucket, "error", err)
		return ExitStorageError
	}
	if identity != "" {
		log.InfoContext(ctx, "verified credentials", "identity", identity)
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			Output:         os.Stderr,
			UpdateInterval: 5 * time.Second,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	dl := downloader.New(cfg.Origin, downloader.Options{
		Workers:     cfg.Workers,
		HTTPOptions: httpOptions(cfg),
		Logger:      log,
		Progress:    reporter,
	})

	p := pipeline.New(cfg.Job(), dl, bkt, pipeline.Options{
		Logger:   log,
		Progress: reporter,
	})

	report, err := p.Run(ctx)
	if err == nil {
		fmt.Fprintf(os.Stderr, "[haul] Transfer complete: %s\n", report)
		return ExitSuccess
	}

	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "[haul] Transfer interrupted; completed datasets are skipped on the next run")
		return ExitGeneralError
	}
	for _, f := range report.Failed() {
		fmt.Fprintf(os.Stderr, "[haul] FAILED %s while %s: %v\n", f.Name, f.FailedAt, f.Err)
	}
	fmt.Fprintf(os.Stderr, "[haul] %s\n", report)
	return exitCode(report)
}

// exitCode maps a failed run to a process exit code.
func exitCode(report *pipeline.Report) int {
	failed := report.Failed()
	if len(failed) == 0 {
		// The run itself could not start, e.g. the work directory.
		return ExitGeneralError
	}
	for _, f := range failed {
		if !errors.Is(f.Err, transfer.ErrSizeUnavailable) {
			return ExitFilesFailed
		}
	}
	return ExitOriginNotAccess
}

func httpOptions(cfg config.Config) haulhttp.Options {
	opts := haulhttp.DefaultOptions()
	opts.MaxIdleConnsPerHost = cfg.Workers * 2
	opts.Retry = haulhttp.RetryPolicy{
		Attempts:   cfg.Retry.Attempts,
		Backoff:    cfg.Retry.Backoff,
		MaxBackoff: cfg.Retry.MaxBackoff,
	}
	return opts
}
