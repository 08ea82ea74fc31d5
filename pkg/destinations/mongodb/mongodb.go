// Package mongodb stores the envelope rows of a run, raw search results in
// one collection and raw listing details in another.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Collection names.
const (
	SearchCollection = "thor_search_results"
	DetailCollection = "thor_listing_details"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "thor"

// Config configures a Store
type Config struct {
	URI      string
	Database string
	// Timeout bounds connecting and each insert
	Timeout time.Duration
}

// inserter is the part of *mongo.Collection the store uses.
type inserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// Store writes envelopes with unordered bulk inserts.
type Store struct {
	client  *mongo.Client
	search  inserter
	detail  inserter
	timeout time.Duration
	logger  *zap.Logger
}

// Open connects to config.URI and pings the primary.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	if config.URI == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mongodb: uri is required")
	}
	if config.Database == "" {
		config.Database = DefaultDatabase
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI).SetAppName("thor"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "mongodb: connect")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb: ping")
	}

	db := client.Database(config.Database)
	s := newStore(db.Collection(SearchCollection), db.Collection(DetailCollection), config.Timeout, logger)
	s.client = client
	return s, nil
}

func newStore(search, detail inserter, timeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		search:  search,
		detail:  detail,
		timeout: timeout,
		logger:  logger.With(zap.String("destination", "mongodb")),
	}
}

// Name identifies the destination in logs.
func (s *Store) Name() string { return "mongodb" }

// Write inserts the search and detail envelopes of result.
func (s *Store) Write(ctx context.Context, result *models.Result) error {
	if err := s.insert(ctx, s.search, SearchCollection, result.SearchEnvelopes); err != nil {
		return err
	}
	if err := s.insert(ctx, s.detail, DetailCollection, result.DetailEnvelopes); err != nil {
		return err
	}
	s.logger.Info("envelopes stored",
		zap.String("site", result.Site),
		zap.Int("search", len(result.SearchEnvelopes)),
		zap.Int("detail", len(result.DetailEnvelopes)))
	return nil
}

func (s *Store) insert(ctx context.Context, coll inserter, name string, rows []models.Record) error {
	if len(rows) == 0 {
		return nil
	}
	docs, err := Documents(rows)
	if err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "mongodb: insert into "+name)
	}
	return nil
}

// Documents converts records to BSON documents. Values decoded as JSON
// numbers are stored as numbers rather than strings.
func Documents(rows []models.Record) ([]interface{}, error) {
	docs := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "mongodb: encode envelope")
		}
		var doc bson.M
		if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "mongodb: convert envelope")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
