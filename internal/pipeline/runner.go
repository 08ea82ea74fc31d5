// Package pipeline runs one scrape of one site for one task and user: the
// access guard, the paced search and detail fetches, deduplication, the
// duplicate filter and the aggregation into normalized listings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/aggregate"
	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/config"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/fetch"
	"github.com/ajitpratap0/thor/pkg/guard"
	"github.com/ajitpratap0/thor/pkg/logger"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/observability"
	"github.com/ajitpratap0/thor/pkg/sites"
)

// Provenance columns stamped on search results and details.
const (
	ColTimestamp      = "thor_timestamp"
	ColWebsite        = "thor_website"
	ColSearchURL      = "thor_search_url"
	ColFullListingURL = "thor_full_listing_url"
	ColListingURL     = "thor_listing_url"
)

const (
	descFilterFailed  = "Error comparing results with stored listings"
	descSessionFailed = "Error creating session"
)

// Runner executes scrape runs. A Runner holds no per-run state and may be
// shared by concurrent runs.
type Runner struct {
	config  *config.Config
	logger  *zap.Logger
	sleeper clients.Sleeper
	now     func() time.Time
	newID   func() string
}

// NewRunner creates a runner. A nil config uses config.Default().
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		config:  cfg,
		logger:  logger.Named("runner"),
		sleeper: clients.TimerSleeper{},
		now:     time.Now,
		newID:   newUUID,
	}
}

// WithSleeper replaces the pacing sleeper.
func (r *Runner) WithSleeper(s clients.Sleeper) *Runner {
	r.sleeper = s
	return r
}

// WithClock replaces the clock used for provenance and error records.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run scrapes adapter's site for task as user. It always returns a fully
// shaped result; a refused session yields an empty one with Disable set.
// A nil filter accepts every result and a nil timer is ignored.
func (r *Runner) Run(ctx context.Context, adapter sites.Adapter, task *models.Task, user *models.User, filter DuplicateFilter, timer ActivityTimer) *models.Result {
	site := adapter.Website()
	if filter == nil {
		filter = AcceptAll
	}
	mapping := adapter.Mapping(task, user)

	result := models.NewResult(site, mapping.Columns())
	result.UserTelemetry = models.NewUserTelemetry(task, user)

	ctx = logger.ContextWith(ctx, result.UserTelemetry.TaskName, site, user.AccountID())
	log := r.logger.With(
		zap.String("site", site),
		zap.String("task", result.UserTelemetry.TaskName),
		zap.String("account", user.AccountID()))
	if timer != nil {
		log.Info("run starting", zap.String("activity", status(timer)))
	}

	started := r.now()
	ctx, span := observability.StartSpan(ctx, observability.SpanRun, site,
		attribute.String("task", result.UserTelemetry.TaskName))
	defer func() {
		metrics.RunDuration.WithLabelValues(site).Observe(r.now().Sub(started).Seconds())
		var err error
		if result.Blocked() {
			err = errors.New(errors.ErrorTypeBlocked, "run blocked")
		}
		span.SetAttributes(attribute.Int("listings", len(result.Listings)))
		observability.End(span, err)
	}()

	session, err := NewSession(r.config, adapter, user, log)
	if err != nil {
		log.Error("session setup failed", zap.Error(err))
		result.Errors.Disable = true
		result.Errors.Append(models.NewErrorRecord(err, fmt.Sprintf("%s: %v", descSessionFailed, err), r.now()))
		return result
	}
	defer session.Close()

	g := guard.New(session, guard.Config{
		Site:       site,
		IPCheckURL: r.config.Guard.IPCheckURL,
		Timeout:    r.config.Guard.Timeout,
	}, log).WithClock(r.now)

	if verdict := g.Check(ctx, user, adapter.Probe()); verdict.Blocked {
		log.Warn("run blocked", zap.String("reason", verdict.Error.ErrorDescription))
		result.Errors.Disable = true
		result.Errors.Append(*verdict.Error)
		return result
	}

	r.scrape(ctx, session, adapter, task, user, filter, mapping, result, log)
	return result
}

// Check runs only the access guard for adapter with user's session.
func (r *Runner) Check(ctx context.Context, adapter sites.Adapter, user *models.User) guard.Verdict {
	site := adapter.Website()
	log := r.logger.With(zap.String("site", site), zap.String("account", user.AccountID()))

	session, err := NewSession(r.config, adapter, user, log)
	if err != nil {
		rec := models.NewErrorRecord(err, fmt.Sprintf("%s: %v", descSessionFailed, err), r.now())
		return guard.Verdict{Blocked: true, Error: &rec}
	}
	defer session.Close()

	return guard.New(session, guard.Config{
		Site:       site,
		IPCheckURL: r.config.Guard.IPCheckURL,
		Timeout:    r.config.Guard.Timeout,
	}, log).WithClock(r.now).Check(ctx, user, adapter.Probe())
}

func (r *Runner) scrape(ctx context.Context, doer clients.Doer, adapter sites.Adapter, task *models.Task, user *models.User,
	filter DuplicateFilter, mapping aggregate.Mapping, result *models.Result, log *zap.Logger) {
	site := adapter.Website()
	searchDelay, detailDelay := r.delays(adapter)
	stamp := envelopeStamp{
		website: site,
		scraped: r.now().Unix(),
		host:    result.UserTelemetry.Host,
		task:    result.UserTelemetry.TaskName,
		user:    result.UserTelemetry.AccountID,
		newID:   r.newID,
	}

	searcher := fetch.NewSearcher(doer, fetch.Config{Site: site, Delay: searchDelay, Sleeper: r.sleeper, Now: r.now}, log)
	raw, errs := searcher.Search(ctx, adapter.SearchPlan(task))
	result.Errors.Append(errs...)
	result.SearchEnvelopes = stamp.wrap(raw, "")

	searchURL := adapter.SearchURL(task)
	searchResults := make([]models.Record, 0, len(raw))
	for _, rec := range raw {
		out := rec.Clone()
		listingURL := adapter.ListingURL(rec)
		out[ColTimestamp] = r.now().Unix()
		out[ColWebsite] = site
		out[ColSearchURL] = searchURL
		out[ColFullListingURL] = listingURL
		out[ColListingURL] = listingURL
		searchResults = append(searchResults, out)
	}
	result.SearchResults = searchResults

	kept, err := filter.Filter(ctx, searchResults, site, compareColumns)
	if err != nil {
		rec := models.NewErrorRecord(err, fmt.Sprintf("%s: %v", descFilterFailed, err), r.now())
		metrics.ErrorsTotal.WithLabelValues(site, rec.ErrorName).Inc()
		log.Warn("duplicate filter failed", zap.Error(err))
		result.Errors.Append(rec)
		kept = nil
	}
	newIDs := models.UniqueKeys(kept, aggregate.IDColumn)
	newResults := models.FilterKeys(searchResults, aggregate.IDColumn, newIDs)
	metrics.RecordsTotal.WithLabelValues(site, metrics.StageNew).Add(float64(len(newIDs)))
	log.Info("search finished",
		zap.Int("results", len(searchResults)),
		zap.Int("new", len(newIDs)),
		zap.Int("errors", len(errs)))

	var details []models.Record
	if len(newIDs) > 0 {
		fetcher := fetch.NewDetailFetcher(doer, fetch.Config{Site: site, Delay: detailDelay, Sleeper: r.sleeper, Now: r.now}, log)
		rawDetails, derrs := fetcher.Fetch(ctx, adapter.DetailPlan(newResults))
		result.Errors.Append(derrs...)
		result.DetailEnvelopes = stamp.wrap(rawDetails, adapter.DetailKey())

		details = models.Dedupe(adapter.NormalizeDetails(rawDetails), aggregate.IDColumn)
		for _, d := range details {
			d[ColTimestamp] = r.now().Unix()
			d[ColWebsite] = site
		}
	}
	if details == nil {
		details = []models.Record{}
	}
	result.ListingDetails = details
	metrics.RecordsTotal.WithLabelValues(site, metrics.StageDetail).Add(float64(len(details)))

	tables := aggregate.Tables{
		aggregate.SearchTable: models.NewTable(searchResults, aggregate.IDColumn),
		aggregate.DetailTable: models.NewTable(details, aggregate.IDColumn),
	}
	tables[aggregate.CustomTable] = adapter.CustomFields(tables[aggregate.SearchTable], tables[aggregate.DetailTable])

	_, span := observability.StartSpan(ctx, observability.SpanAggregate, site, attribute.Int("ids", len(newIDs)))
	listings := aggregate.Aggregate(newIDs, tables, mapping)
	observability.End(span, nil)

	result.Listings = listings
	result.TaskTelemetry = make([]models.Record, 0, len(listings))
	for _, l := range listings {
		result.TaskTelemetry = append(result.TaskTelemetry, l.Clone())
	}

	envelopes := len(result.SearchEnvelopes) + len(result.DetailEnvelopes)
	metrics.RecordsTotal.WithLabelValues(site, metrics.StageListing).Add(float64(len(listings)))
	metrics.RecordsTotal.WithLabelValues(site, metrics.StageEnvelope).Add(float64(envelopes))
	log.Info("run finished",
		zap.Int("listings", len(listings)),
		zap.Int("details", len(details)),
		zap.Int("errors", len(result.Errors.ErrorData)))
}

// delays returns the configured pacing for adapter, falling back to the
// site defaults.
func (r *Runner) delays(adapter sites.Adapter) (search, detail time.Duration) {
	defaults := adapter.Defaults()
	override := r.config.Site(adapter.Name())

	search, detail = defaults.SearchDelay, defaults.DetailDelay
	if override.SearchDelay > 0 {
		search = override.SearchDelay
	}
	if override.DetailDelay > 0 {
		detail = override.DetailDelay
	}
	return search, detail
}
