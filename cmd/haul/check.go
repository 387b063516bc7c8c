package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ligustah/haul/internal/archive"
	"github.com/ligustah/haul/internal/config"
	"github.com/ligustah/haul/internal/store"
	"github.com/ligustah/haul/internal/transfer"
)

// runCheck reports which datasets a transfer would skip because their
// destination prefix is already populated.
func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)

	var opts options
	opts.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: haul check [options]

Report, for each dataset, whether its destination prefix already holds
objects and the dataset would be skipped by 'haul transfer'.

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
	if cfg.Bucket == "" || len(cfg.Datasets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -bucket and -dataset are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	return checkDatasets(ctx, cfg, os.Stdout)
}

func checkDatasets(ctx context.Context, cfg config.Config, out io.Writer) int {
	log, err := newLogger(os.Stderr, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	bkt, err := store.Open(ctx, cfg.Bucket, store.Options{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
		Logger:   log,
	})
	if err != nil {
		log.ErrorContext(ctx, "open bucket", "bucket", cfg.Bucket, "error", err)
		return ExitStorageError
	}
	defer bkt.Close()

	job := cfg.Job()
	archives := archive.Default()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "DATASET\tDESTINATION\tSTATUS")

	code := ExitSuccess
	for _, name := range job.Files {
		stem, ext, err := archives.Split(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\terror: %v\n", name, err)
			if code == ExitSuccess {
				code = ExitFilesFailed
			}
			continue
		}
		f := transfer.NewSourceFile(job, name, stem, ext)

		exists, err := bkt.Exists(ctx, f.Prefix)
		if err != nil {
			if ctx.Err() != nil {
				return ExitGeneralError
			}
			fmt.Fprintf(tw, "%s\t%s\terror: %v\n", name, f.Prefix, err)
			code = ExitStorageError
			continue
		}

		status := "transfer"
		switch {
		case exists && job.Overwrite:
			status = "overwrite"
		case exists:
			status = "skip"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, f.Prefix, status)
	}
	return code
}
