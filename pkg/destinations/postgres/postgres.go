// Package postgres stores normalized listings in PostgreSQL and answers
// the duplicate check against them.
package postgres

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "thor_listings"

// Config configures a Store
type Config struct {
	URL   string
	Table string
	// MaxConns caps the pool (0 = pgx default)
	MaxConns int32
}

// db is the subset of *pgxpool.Pool the store uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store upserts listings into one table keyed by (site, id).
type Store struct {
	db     db
	pool   *pgxpool.Pool
	table  string
	now    func() time.Time
	logger *zap.Logger
}

// Open connects to the database and creates the table when missing.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	if config.URL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres: url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "postgres: parse url")
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres: ping")
	}

	s := newStore(pool, config.Table, logger)
	s.pool = pool
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newStore(conn db, table string, logger *zap.Logger) *Store {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     conn,
		table:  quoteTable(table),
		now:    time.Now,
		logger: logger.With(zap.String("destination", "postgres")),
	}
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Name identifies the destination in logs.
func (s *Store) Name() string { return "postgres" }

// EnsureSchema creates the listings table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
	site       text        NOT NULL,
	id         text        NOT NULL,
	payload    jsonb       NOT NULL,
	scraped_at timestamptz NOT NULL,
	PRIMARY KEY (site, id)
)`)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "postgres: create table")
	}
	return nil
}

func (s *Store) upsertSQL() string {
	return `INSERT INTO ` + s.table + ` (site, id, payload, scraped_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (site, id) DO UPDATE SET payload = EXCLUDED.payload, scraped_at = EXCLUDED.scraped_at`
}

func (s *Store) existingSQL() string {
	return `SELECT id FROM ` + s.table + ` WHERE site = $1 AND id = ANY($2)`
}

// Write upserts every listing of result in one batch.
func (s *Store) Write(ctx context.Context, result *models.Result) error {
	if len(result.Listings) == 0 {
		return nil
	}

	scrapedAt := s.now().UTC()
	b := &pgx.Batch{}
	for _, listing := range result.Listings {
		id := listing.ID()
		if id == "" {
			continue
		}
		payload, err := json.Marshal(listing)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "postgres: encode listing").WithDetail("id", id)
		}
		b.Queue(s.upsertSQL(), result.Site, id, payload, scrapedAt)
	}

	br := s.db.SendBatch(ctx, b)
	written := 0
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrap(err, errors.ErrorTypeQuery, "postgres: upsert listing")
		}
		written++
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "postgres: close batch")
	}

	s.logger.Info("listings upserted", zap.String("site", result.Site), zap.Int("rows", written))
	return nil
}

// Filter drops candidates whose id is already stored for site. idColumns
// maps candidate columns to stored columns; only the "id" column is
// stored, so other mappings are ignored. More than one candidate column
// mapped to "id" is an error.
func (s *Store) Filter(ctx context.Context, candidates []models.Record, site string, idColumns map[string]string) ([]models.Record, error) {
	column, err := idColumn(idColumns)
	if err != nil {
		return nil, err
	}

	keys := models.UniqueKeys(candidates, column)
	if len(keys) == 0 {
		return candidates, nil
	}

	rows, err := s.db.Query(ctx, s.existingSQL(), site, keys)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres: lookup stored ids")
	}
	stored, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres: read stored ids")
	}

	return Exclude(candidates, column, stored), nil
}

// idColumn returns the candidate column mapped to the stored "id" column,
// defaulting to "id" when nothing maps to it.
func idColumn(idColumns map[string]string) (string, error) {
	var from []string
	for c, to := range idColumns {
		if to == "id" {
			from = append(from, c)
		}
	}
	switch len(from) {
	case 0:
		return "id", nil
	case 1:
		return from[0], nil
	default:
		sort.Strings(from)
		return "", errors.New(errors.ErrorTypeValidation, "postgres: ambiguous id column mapping").
			WithDetail("columns", strings.Join(from, ","))
	}
}

// Exclude returns the records whose column key is not in stored.
func Exclude(records []models.Record, column string, stored []string) []models.Record {
	skip := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		skip[id] = struct{}{}
	}
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if _, ok := skip[models.Key(r[column])]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
