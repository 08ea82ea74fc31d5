// Package destinations fans a run result out to every configured sink.
package destinations

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/config"
	"github.com/ajitpratap0/thor/pkg/destinations/csv"
	"github.com/ajitpratap0/thor/pkg/destinations/jsonl"
	"github.com/ajitpratap0/thor/pkg/destinations/kafka"
	"github.com/ajitpratap0/thor/pkg/destinations/mongodb"
	"github.com/ajitpratap0/thor/pkg/destinations/postgres"
	"github.com/ajitpratap0/thor/pkg/destinations/s3"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Destination receives finished run results.
type Destination interface {
	Name() string
	Write(ctx context.Context, result *models.Result) error
	Close() error
}

var (
	_ Destination = (*jsonl.Writer)(nil)
	_ Destination = (*csv.Writer)(nil)
	_ Destination = (*postgres.Store)(nil)
	_ Destination = (*kafka.Publisher)(nil)
	_ Destination = (*mongodb.Store)(nil)
	_ Destination = (*s3.Archiver)(nil)
)

// Set is a group of destinations written together.
type Set struct {
	destinations []Destination
	// Postgres is the listing store when configured; it doubles as the
	// duplicate filter
	Postgres *postgres.Store
	logger   *zap.Logger
}

// NewSet groups destinations.
func NewSet(logger *zap.Logger, destinations ...Destination) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{destinations: destinations, logger: logger.Named("destinations")}
}

// Open builds every destination enabled in cfg. A destination is enabled
// when its connection setting is present. On error the destinations
// opened so far are closed.
func Open(ctx context.Context, cfg config.OutputsConfig, logger *zap.Logger) (*Set, error) {
	set := NewSet(logger)
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "outputs.compression")
	}

	fail := func(err error) (*Set, error) {
		_ = set.Close()
		return nil, err
	}

	if cfg.Dir != "" {
		w, err := jsonl.New(jsonl.Config{Dir: cfg.Dir, Compression: algo}, logger)
		if err != nil {
			return fail(err)
		}
		set.Add(w)
		if cfg.CSV {
			c, err := csv.New(csv.Config{Dir: cfg.Dir}, logger)
			if err != nil {
				return fail(err)
			}
			set.Add(c)
		}
	}

	if cfg.Postgres.URL != "" {
		store, err := postgres.Open(ctx, postgres.Config{URL: cfg.Postgres.URL, Table: cfg.Postgres.Table}, logger)
		if err != nil {
			return fail(err)
		}
		set.Postgres = store
		set.Add(store)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.New(kafka.Config{
			Brokers:       cfg.Kafka.Brokers,
			ListingsTopic: cfg.Kafka.ListingsTopic,
			UsersTopic:    cfg.Kafka.UsersTopic,
		}, logger)
		if err != nil {
			return fail(err)
		}
		set.Add(p)
	}

	if cfg.MongoDB.URI != "" {
		store, err := mongodb.Open(ctx, mongodb.Config{URI: cfg.MongoDB.URI, Database: cfg.MongoDB.Database}, logger)
		if err != nil {
			return fail(err)
		}
		set.Add(store)
	}

	if cfg.S3.Bucket != "" {
		archiveAlgo := algo
		if archiveAlgo == compression.None {
			archiveAlgo = compression.Gzip
		}
		a, err := s3.Open(ctx, s3.Config{
			Bucket:      cfg.S3.Bucket,
			Prefix:      cfg.S3.Prefix,
			Region:      cfg.S3.Region,
			Endpoint:    cfg.S3.Endpoint,
			Compression: archiveAlgo,
		}, logger)
		if err != nil {
			return fail(err)
		}
		set.Add(a)
	}

	return set, nil
}

// Add appends a destination.
func (s *Set) Add(d Destination) {
	s.destinations = append(s.destinations, d)
}

// Names lists the destinations in write order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.destinations))
	for _, d := range s.destinations {
		names = append(names, d.Name())
	}
	return names
}

// Len returns the number of destinations.
func (s *Set) Len() int { return len(s.destinations) }

// Write writes result to every destination. A failing destination does
// not stop the others; all failures are returned joined.
func (s *Set) Write(ctx context.Context, result *models.Result) error {
	var errs []error
	for _, d := range s.destinations {
		if err := d.Write(ctx, result); err != nil {
			s.logger.Error("destination write failed",
				zap.String("destination", d.Name()),
				zap.String("site", result.Site),
				zap.Error(err))
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeInternal, d.Name()))
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination.
func (s *Set) Close() error {
	var errs []error
	for _, d := range s.destinations {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
