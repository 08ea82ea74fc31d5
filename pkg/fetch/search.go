// Package fetch runs the paced request loops of a scrape: the paginated
// search and the detail fetch. Sites describe their requests through plans;
// the loops own pacing, error recording and the partial-result policy.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/observability"
)

// NoTotal marks a page from a site that does not report a result count.
const NoTotal = -1

// Page is one parsed search response.
type Page struct {
	Items []models.Record
	// Total is the site's result count, or NoTotal
	Total int
	// Problems are per-record decode failures; the page is still used
	Problems []error
}

// SearchPlan describes a site's paginated search.
type SearchPlan interface {
	// Pages is the maximum number of pages to request
	Pages() int
	// Request builds the request for 0-based page given the items fetched so far
	Request(page, fetched int) clients.Request
	// Parse decodes one response body
	Parse(body []byte) (Page, error)
}

// Config configures the fetch loops.
type Config struct {
	// Site labels logs, metrics and spans
	Site    string
	Delay   time.Duration
	Sleeper clients.Sleeper
	Now     func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Sleeper == nil {
		c.Sleeper = clients.TimerSleeper{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Searcher runs a SearchPlan page by page.
type Searcher struct {
	doer   clients.Doer
	config Config
	logger *zap.Logger
}

// NewSearcher creates a Searcher
func NewSearcher(doer clients.Doer, config Config, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		doer:   doer,
		config: config.withDefaults(),
		logger: logger.Named("searcher"),
	}
}

// Search requests pages until one is empty, the reported total is reached
// or the plan runs out of pages. A failed page ends the loop; the items
// gathered so far are returned with the error record. The returned records
// are deduplicated by id.
func (s *Searcher) Search(ctx context.Context, plan SearchPlan) ([]models.Record, []models.ErrorRecord) {
	ctx, span := observability.StartSpan(ctx, observability.SpanSearch, s.config.Site,
		attribute.Int("pages", plan.Pages()))

	var (
		records []models.Record
		errs    []models.ErrorRecord
		fetched int
	)

	pages := plan.Pages()
	for page := 0; page < pages; page++ {
		n := page + 1

		body, err := s.doer.Do(ctx, plan.Request(page, fetched))
		if err != nil {
			desc := fmt.Sprintf("Error on page %d: %v", n, err)
			if errors.IsTimeout(err) {
				desc = fmt.Sprintf("Timeout error on page %d", n)
			}
			errs = append(errs, s.record(err, desc))
			break
		}

		result, err := plan.Parse(body)
		if err != nil {
			errs = append(errs, s.record(err, fmt.Sprintf("Error parsing response JSON on page %d: %v", n, err)))
			break
		}

		for _, problem := range result.Problems {
			errs = append(errs, s.record(problem, problem.Error()))
		}

		records = append(records, result.Items...)
		fetched += len(result.Items)

		s.logger.Info("search page fetched",
			zap.Int("page", n),
			zap.Int("items", len(result.Items)),
			zap.Int("fetched", fetched),
			zap.Int("total", result.Total))

		if len(result.Items) == 0 {
			break
		}
		if result.Total >= 0 && fetched >= result.Total {
			break
		}
		if page+1 < pages {
			if err := s.config.Sleeper.Sleep(ctx, s.config.Delay); err != nil {
				s.logger.Warn("search interrupted", zap.Int("page", n), zap.Error(err))
				break
			}
		}
	}

	records = models.Dedupe(records, "id")
	metrics.RecordsTotal.WithLabelValues(s.config.Site, metrics.StageSearch).Add(float64(len(records)))

	var spanErr error
	if len(errs) > 0 {
		spanErr = fmt.Errorf("%s", errs[0].ErrorDescription)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	observability.End(span, spanErr)

	return records, errs
}

func (s *Searcher) record(err error, desc string) models.ErrorRecord {
	rec := models.NewErrorRecord(err, desc, s.config.Now())
	metrics.ErrorsTotal.WithLabelValues(s.config.Site, rec.ErrorName).Inc()
	s.logger.Warn("search error", zap.String("kind", rec.ErrorName), zap.String("description", desc))
	return rec
}
