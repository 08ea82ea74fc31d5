// Package s3 archives the raw search results and listing details of a run
// as one compressed JSON-lines object.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Config configures an Archiver
type Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint points at an S3-compatible service; it enables path-style
	// addressing
	Endpoint    string
	Compression compression.Algorithm
	Now         func() time.Time
}

// Uploader is the part of *manager.Uploader the archiver uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archiver uploads one object per run.
type Archiver struct {
	uploader   Uploader
	config     Config
	compressor compression.Compressor
	logger     *zap.Logger
}

// Open loads the default AWS credential chain and builds an uploader.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Archiver, error) {
	if config.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "s3: load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.Concurrency = 2
	})
	return New(uploader, config, logger)
}

// New creates an archiver around uploader.
func New(uploader Uploader, config Config, logger *zap.Logger) (*Archiver, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Compression == "" {
		config.Compression = compression.Gzip
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: config.Compression, Level: compression.Default})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "s3: compression")
	}
	return &Archiver{
		uploader:   uploader,
		config:     config,
		compressor: comp,
		logger:     logger.With(zap.String("destination", "s3")),
	}, nil
}

// Name identifies the destination in logs.
func (a *Archiver) Name() string { return "s3" }

// Key returns <prefix>/<site>/<yyyy>/<mm>/<dd>/<task>-<unix>.jsonl[.<ext>]
// for a result archived at t.
func (a *Archiver) Key(result *models.Result, t time.Time) string {
	t = t.UTC()
	task := result.UserTelemetry.TaskName
	if task == "" {
		task = "run"
	}
	name := fmt.Sprintf("%s-%d.jsonl", sanitize(task), t.Unix())
	if ext := a.compressor.Algorithm().Extension(); ext != "" {
		name += "." + ext
	}
	return path.Join(strings.Trim(a.config.Prefix, "/"), result.Site, t.Format("2006/01/02"), name)
}

// sanitize keeps a task name usable as one key segment.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ' ':
			return '_'
		case r < 0x20:
			return -1
		default:
			return r
		}
	}, s)
}

// Write uploads the search results followed by the listing details. Runs
// with neither are skipped.
func (a *Archiver) Write(ctx context.Context, result *models.Result) error {
	rows := make([]models.Record, 0, len(result.SearchResults)+len(result.ListingDetails))
	rows = append(rows, result.SearchResults...)
	rows = append(rows, result.ListingDetails...)
	if len(rows) == 0 {
		return nil
	}

	data, err := json.MarshalLines(rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "s3: encode archive")
	}
	body, err := a.compressor.Compress(data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "s3: compress archive")
	}

	key := a.Key(result, a.config.Now())
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return errors.WrapTransport(err, "s3: upload "+key)
	}

	a.logger.Info("archive uploaded",
		zap.String("bucket", a.config.Bucket),
		zap.String("key", key),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(body)))
	return nil
}

// Close is a no-op.
func (a *Archiver) Close() error { return nil }
