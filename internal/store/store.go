// Package store is the destination object store: an existence check for key
// prefixes and a file upload with a part-size hint, on top of a gocloud.dev
// blob bucket.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs

	"github.com/ligustah/haul/internal/transfer"
)

// DefaultPartSize is the upload buffer, and so the multipart part size,
// used when Options.PartSize is not set.
const DefaultPartSize = 50 * 1024 * 1024

// MinPartSize is the smallest part size S3 accepts for multipart uploads.
const MinPartSize = 5 * 1024 * 1024

// MaxPartSize is the largest part size S3 accepts for multipart uploads.
const MaxPartSize = 5 * 1024 * 1024 * 1024

// Options configures a Bucket.
type Options struct {
	// Region overrides the AWS region from the environment.
	Region string

	// Endpoint is a custom S3 endpoint, e.g. a MinIO server. Path-style
	// addressing is used when it is set.
	Endpoint string

	// PartSize is the writer buffer size. Objects larger than PartSize are
	// uploaded in parts of this size. Values are clamped to
	// [MinPartSize, MaxPartSize].
	// Default: 50MiB
	PartSize int64

	// Logger receives debug logs. Default: discard.
	Logger *slog.Logger
}

// Bucket is an opened destination bucket.
type Bucket struct {
	bucket *blob.Bucket
	name   string
	aws    *aws.Config // nil unless the bucket is on S3
	opts   Options
	log    *slog.Logger
}

// Open opens the bucket at bucketURL. A URL without a scheme is taken as an
// S3 bucket name. s3:// buckets are opened with the AWS SDK default
// credential chain; region and endpoint query parameters are honoured when
// the corresponding option is empty. Any other scheme registered with
// gocloud.dev/blob (mem://, file://) is opened by URL.
func Open(ctx context.Context, bucketURL string, opts Options) (*Bucket, error) {
	if !strings.Contains(bucketURL, "://") {
		bucketURL = "s3://" + bucketURL
	}
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse bucket url: %w", err)
	}

	if u.Scheme != "s3" {
		b, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("store: open bucket: %w", err)
		}
		return NewBucket(b, bucketURL, opts), nil
	}

	if opts.Region == "" {
		opts.Region = u.Query().Get("region")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = u.Query().Get("endpoint")
	}

	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	b, err := s3blob.OpenBucket(ctx, client, u.Host, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bucket: %w", err)
	}

	bucket := NewBucket(b, u.Host, opts)
	bucket.aws = &cfg
	return bucket, nil
}

func loadAWSConfig(ctx context.Context, opts Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("store: load aws config: %w", err)
	}
	if cfg.Region == "" && opts.Endpoint != "" {
		// S3-compatible servers still need a region for request signing.
		cfg.Region = "us-east-1"
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return cfg, nil
}

// NewBucket wraps an already opened blob bucket. name is used in errors and
// in the returned object records.
func NewBucket(b *blob.Bucket, name string, opts Options) *Bucket {
	switch {
	case opts.PartSize <= 0:
		opts.PartSize = DefaultPartSize
	case opts.PartSize < MinPartSize:
		opts.PartSize = MinPartSize
	case opts.PartSize > MaxPartSize:
		opts.PartSize = MaxPartSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bucket{
		bucket: b,
		name:   name,
		opts:   opts,
		log:    opts.Logger,
	}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Close closes the bucket.
func (b *Bucket) Close() error {
	return b.bucket.Close()
}

// Exists reports whether at least one object lives under prefix. prefix is
// normalised to end in "/" so that "data" does not match "database/x".
//
// A failed listing is returned as ErrExistenceCheckFailed; it never reads as
// an absent prefix.
func (b *Bucket) Exists(ctx context.Context, prefix string) (bool, error) {
	prefix = strings.TrimSuffix(strings.TrimPrefix(prefix, "/"), "/") + "/"

	objs, _, err := b.bucket.ListPage(ctx, blob.FirstPageToken, 1, &blob.ListOptions{Prefix: prefix})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, transfer.NewError(transfer.ErrExistenceCheckFailed, "list", b.name+"/"+prefix, b.annotate(err))
	}

	b.log.DebugContext(ctx, "checked prefix", "bucket", b.name, "prefix", prefix, "exists", len(objs) > 0)
	return len(objs) > 0, nil
}

// Put uploads the local file at path to key. The upload is streamed through
// a writer buffer of the configured part size. On failure no object is left
// at key.
func (b *Bucket) Put(ctx context.Context, key, path, contentType string) (transfer.Object, error) {
	obj := transfer.Object{Bucket: b.name, Key: key, ContentType: contentType}

	f, err := os.Open(path)
	if err != nil {
		return obj, transfer.NewError(transfer.ErrFilesystem, "open", path, err)
	}
	defer f.Close()

	// Cancelling the writer context before Close aborts the upload.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		BufferSize:  int(b.opts.PartSize),
		ContentType: contentType,
	})
	if err != nil {
		return obj, b.putErr(ctx, key, err)
	}

	n, err := io.Copy(w, f)
	if err != nil {
		cancel()
		w.Close()
		return obj, b.putErr(ctx, key, err)
	}
	if err := w.Close(); err != nil {
		return obj, b.putErr(ctx, key, err)
	}

	obj.Size = n
	return obj, nil
}

// Delete removes the object at key. A missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.bucket.Delete(ctx, key)
	if err == nil || gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return transfer.NewError(transfer.ErrUploadFailed, "delete", b.name+"/"+key, b.annotate(err))
}

func (b *Bucket) putErr(ctx context.Context, key string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return transfer.NewError(transfer.ErrUploadFailed, "put", b.name+"/"+key, b.annotate(err))
}

// VerifyCredentials checks that usable AWS credentials are configured and
// returns the caller identity ARN. With a custom endpoint only credential
// resolution is checked and the access key id is returned. Buckets not on
// S3 have nothing to verify and return "".
func (b *Bucket) VerifyCredentials(ctx context.Context) (string, error) {
	if b.aws == nil {
		return "", nil
	}

	if b.opts.Endpoint != "" {
		creds, err := b.aws.Credentials.Retrieve(ctx)
		if err != nil {
			return "", fmt.Errorf("store: retrieve credentials: %w", err)
		}
		return creds.AccessKeyID, nil
	}

	out, err := sts.NewFromConfig(*b.aws).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("store: verify credentials: %w", apiError(err))
	}
	return aws.ToString(out.Arn), nil
}

// annotate prefixes err with the gocloud error code and, for S3, the
// service error code.
func (b *Bucket) annotate(err error) error {
	var apiErr smithy.APIError
	if b.bucket.ErrorAs(err, &apiErr) {
		return fmt.Errorf("%s (%s): %w", gcerrors.Code(err), apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", gcerrors.Code(err), err)
}

// apiError prefixes err with the AWS error code when it carries one.
func apiError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
