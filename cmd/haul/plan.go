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
	"github.com/ligustah/haul/internal/downloader"
	"github.com/ligustah/haul/internal/pool"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/transfer"
	"github.com/ligustah/haul/pkg/chunked"
)

// runPlan resolves the size of every dataset and prints how it would be
// split, without downloading anything.
func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)

	var opts options
	opts.register(fs)
	ranges := fs.Bool("ranges", false, "Print every byte range")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: haul plan [options]

Resolve the size of each dataset archive and print its chunk plan.
Nothing is downloaded or uploaded.

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
	if cfg.Origin == "" || len(cfg.Datasets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -origin and -dataset are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	return planDatasets(ctx, cfg, os.Stdout, *ranges)
}

func planDatasets(ctx context.Context, cfg config.Config, out io.Writer, showRanges bool) int {
	log, err := newLogger(os.Stderr, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	job := cfg.Job()
	archives := archive.Default()
	dl := downloader.New(cfg.Origin, downloader.Options{
		Workers:     cfg.Workers,
		HTTPOptions: httpOptions(cfg),
		Logger:      log,
	})

	files := make([]transfer.SourceFile, len(job.Files))
	errs := make([]error, len(job.Files))
	for i, name := range job.Files {
		stem, ext, err := archives.Split(name)
		if err != nil {
			errs[i] = err
			continue
		}
		files[i] = transfer.NewSourceFile(job, name, stem, ext)
	}

	pool.RunAll(ctx, len(files), cfg.Workers, func(ctx context.Context, i int) error {
		if errs[i] != nil {
			return nil
		}
		files[i].Size, errs[i] = dl.Size(ctx, files[i].Name)
		return errs[i]
	})
	if ctx.Err() != nil {
		return ExitGeneralError
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSIZE\tPARTS\tDESTINATION")

	var total int64
	parts := 0
	code := ExitSuccess
	fail := func(err error) {
		switch {
		case errors.Is(err, transfer.ErrSizeUnavailable) && code != ExitFilesFailed:
			code = ExitOriginNotAccess
		default:
			code = ExitFilesFailed
		}
	}
	for i, f := range files {
		if errs[i] != nil {
			fmt.Fprintf(tw, "%s\t-\t-\terror: %v\n", job.Files[i], errs[i])
			fail(errs[i])
			continue
		}

		plan, err := chunked.NewPlan(f.Size, job.ChunkSize)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\terror: %v\n", f.Name, progress.FormatBytes(f.Size), err)
			fail(err)
			continue
		}
		total += f.Size
		parts += plan.Parts()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Name, progress.FormatBytes(f.Size), plan.Parts(), f.Prefix)

		if showRanges && !plan.Whole() {
			for _, r := range plan.Ranges {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t\n",
					chunked.PartName(f.LocalName(), r.Index, plan.Parts(), f.Ext),
					progress.FormatBytes(r.Length()),
					r.Header())
			}
		}
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%d\t\n", progress.FormatBytes(total), parts)
	tw.Flush()

	return code
}
