// Package jsonl writes run results as line-delimited JSON files, one file
// per artifact, under <dir>/<site>/<unix>/.
package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// File names, without the compression suffix.
const (
	SearchResultsFile   = "search_results.jsonl"
	ListingDetailsFile  = "listing_details.jsonl"
	ListingsFile        = "listings.jsonl"
	TaskTelemetryFile   = "task_telemetry.jsonl"
	UserTelemetryFile   = "user_telemetry.jsonl"
	SearchEnvelopesFile = "search_envelopes.jsonl"
	DetailEnvelopesFile = "detail_envelopes.jsonl"
	ErrorsFile          = "errors.json"
)

// Config configures a Writer
type Config struct {
	// Dir is the root of the output tree
	Dir         string
	Compression compression.Algorithm
	// Now stamps the run directory; defaults to time.Now
	Now func() time.Time
}

// Writer writes each result into its own run directory.
type Writer struct {
	config     Config
	compressor compression.Compressor
	logger     *zap.Logger
}

// New creates a Writer. The root directory is created on first write.
func New(config Config, logger *zap.Logger) (*Writer, error) {
	if config.Dir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "jsonl: output dir is required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{config: config, logger: logger.With(zap.String("destination", "jsonl"))}
	if config.Compression != "" && config.Compression != compression.None {
		comp, err := compression.NewCompressor(&compression.Config{Algorithm: config.Compression, Level: compression.Default})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "jsonl: compression")
		}
		w.compressor = comp
	}
	return w, nil
}

// Name identifies the destination in logs.
func (w *Writer) Name() string { return "jsonl" }

// RunDir returns the directory a result written at t goes to.
func (w *Writer) RunDir(result *models.Result, t time.Time) string {
	return filepath.Join(w.config.Dir, result.Site, strconv.FormatInt(t.Unix(), 10))
}

// Write stores every artifact of result. errors.json is written as an
// indented document and is never compressed.
func (w *Writer) Write(ctx context.Context, result *models.Result) error {
	dir := w.RunDir(result, w.config.Now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "jsonl: create run dir")
	}

	artifacts := []struct {
		name    string
		records []models.Record
	}{
		{SearchResultsFile, result.SearchResults},
		{ListingDetailsFile, result.ListingDetails},
		{ListingsFile, result.Listings},
		{TaskTelemetryFile, result.TaskTelemetry},
		{SearchEnvelopesFile, result.SearchEnvelopes},
		{DetailEnvelopesFile, result.DetailEnvelopes},
	}
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.MarshalLines(a.records)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "jsonl: encode "+a.name)
		}
		if err := w.writeFile(dir, a.name, data); err != nil {
			return err
		}
	}

	users, err := json.MarshalLines([]models.UserTelemetry{result.UserTelemetry})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "jsonl: encode user telemetry")
	}
	if err := w.writeFile(dir, UserTelemetryFile, users); err != nil {
		return err
	}

	errs, err := json.MarshalIndent(result.Errors, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "jsonl: encode errors")
	}
	if err := os.WriteFile(filepath.Join(dir, ErrorsFile), errs, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "jsonl: write errors")
	}

	w.logger.Info("result written",
		zap.String("dir", dir),
		zap.Int("listings", len(result.Listings)))
	return nil
}

func (w *Writer) writeFile(dir, name string, data []byte) error {
	if w.compressor != nil {
		compressed, err := w.compressor.Compress(data)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "jsonl: compress "+name)
		}
		data = compressed
		name += "." + w.compressor.Algorithm().Extension()
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "jsonl: write "+name)
	}
	return nil
}

// Close is a no-op; every Write closes its files.
func (w *Writer) Close() error { return nil }
