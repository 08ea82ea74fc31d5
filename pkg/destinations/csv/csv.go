// Package csv writes the normalized listings of a run as listings.csv.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// FileName is the name of the file written into each run directory.
const FileName = "listings.csv"

// Config configures a Writer
type Config struct {
	Dir string
	Now func() time.Time
}

// Writer writes one CSV file per result, next to the jsonl artifacts.
type Writer struct {
	config Config
	logger *zap.Logger
}

// New creates a Writer
func New(config Config, logger *zap.Logger) (*Writer, error) {
	if config.Dir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "csv: output dir is required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{config: config, logger: logger.With(zap.String("destination", "csv"))}, nil
}

// Name identifies the destination in logs.
func (w *Writer) Name() string { return "csv" }

// Path returns the file a result written at t goes to.
func (w *Writer) Path(result *models.Result, t time.Time) string {
	return filepath.Join(w.config.Dir, result.Site, strconv.FormatInt(t.Unix(), 10), FileName)
}

// Write writes a header of result.Columns followed by one row per listing.
func (w *Writer) Write(ctx context.Context, result *models.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := w.Path(result, w.config.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "csv: create run dir")
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "csv: create file")
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(result.Columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "csv: write header")
	}

	row := make([]string, len(result.Columns))
	for _, listing := range result.Listings {
		for i, col := range result.Columns {
			row[i] = Cell(listing[col])
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "csv: write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "csv: flush")
	}
	w.logger.Debug("listings written", zap.String("path", path), zap.Int("rows", len(result.Listings)))
	return file.Close()
}

// Cell formats a listing value. Lists and objects are written as JSON,
// nil as an empty cell.
func Cell(v interface{}) string {
	switch x := v.(type) {
	case []interface{}, []string, map[string]interface{}, models.Record:
		s, err := json.MarshalString(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return s
	default:
		return models.Key(x)
	}
}

// Close is a no-op.
func (w *Writer) Close() error { return nil }
