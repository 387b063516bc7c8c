package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ligustah/haul/internal/config"
	"github.com/ligustah/haul/internal/logging"
)

// datasetList collects repeated -dataset flags. Each value may also be a
// comma-separated list.
type datasetList []string

func (d *datasetList) String() string {
	return strings.Join(*d, ",")
}

func (d *datasetList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*d = append(*d, name)
		}
	}
	return nil
}

// options are the flags shared by every command. Zero values leave the
// config file, environment or default in place.
type options struct {
	configPath  string
	origin      string
	datasets    datasetList
	localDir    string
	bucket      string
	prefix      string
	chunkSize   string
	workers     int
	overwrite   bool
	noOverwrite bool
	continueErr bool
	progress    bool
	logLevel    string
	logFormat   string
	region      string
	endpoint    string
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.origin, "origin", "", "Origin base URL; dataset names are appended to it verbatim")
	fs.Var(&o.datasets, "dataset", "Dataset archive name under the origin (repeatable)")
	fs.StringVar(&o.localDir, "local-dir", "", "Local working directory (required)")
	fs.StringVar(&o.bucket, "bucket", "", "Destination bucket name or URL (s3://, file://, mem://)")
	fs.StringVar(&o.prefix, "prefix", "", `Destination key prefix (default "raw")`)
	fs.StringVar(&o.chunkSize, "chunk-size", "", "Largest range per request; a bare number is MiB (default 50)")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent sizes, range downloads and uploads (default 10)")
	fs.BoolVar(&o.overwrite, "overwrite", false, "Transfer datasets whose destination prefix is already populated")
	fs.BoolVar(&o.noOverwrite, "no-overwrite", false, "Skip datasets whose destination prefix is already populated")
	fs.BoolVar(&o.continueErr, "continue-on-error", false, "Record a failed dataset and continue with the next")
	fs.BoolVar(&o.progress, "progress", false, "Show progress output")
	fs.StringVar(&o.logLevel, "log-level", "", "DEBUG, INFO, WARNING or ERROR (default INFO)")
	fs.StringVar(&o.logFormat, "log-format", "", "text or json (default text)")
	fs.StringVar(&o.region, "region", "", "AWS region")
	fs.StringVar(&o.endpoint, "endpoint", "", "Custom S3 endpoint, e.g. a MinIO server")
}

// load layers defaults, the config file, the environment and the flags.
func (o *options) load() (config.Config, error) {
	if o.overwrite && o.noOverwrite {
		return config.Config{}, errors.New("-overwrite and -no-overwrite are mutually exclusive")
	}

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		Origin:          o.origin,
		Datasets:        o.datasets,
		LocalDir:        o.localDir,
		Bucket:          o.bucket,
		Prefix:          o.prefix,
		Workers:         o.workers,
		Overwrite:       o.overwrite,
		ContinueOnError: o.continueErr,
		Progress:        o.progress,
		LogLevel:        o.logLevel,
		LogFormat:       o.logFormat,
		Region:          o.region,
		Endpoint:        o.endpoint,
	}
	if o.chunkSize != "" {
		size, err := config.ParseChunkSize(o.chunkSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid chunk size: %w", err)
		}
		override.ChunkSize = size
	}

	cfg = cfg.Merge(override)
	if o.noOverwrite {
		cfg.Overwrite = false
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	return logging.New(w, cfg.LogLevel, cfg.LogFormat)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[haul] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
