package fetch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/observability"
)

// DetailPlan describes how a site fetches listing details: one request per
// listing, or a single batched request.
type DetailPlan interface {
	Requests() []clients.Request
	Parse(body []byte) ([]models.Record, error)
}

// DetailFetcher runs a DetailPlan in order with pacing between requests.
type DetailFetcher struct {
	doer   clients.Doer
	config Config
	logger *zap.Logger
}

// NewDetailFetcher creates a DetailFetcher
func NewDetailFetcher(doer clients.Doer, config Config, logger *zap.Logger) *DetailFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailFetcher{
		doer:   doer,
		config: config.withDefaults(),
		logger: logger.Named("detail_fetcher"),
	}
}

// Fetch sends each request, sleeping between consecutive requests. The
// first failure stops the loop and is returned with the records collected
// before it.
func (f *DetailFetcher) Fetch(ctx context.Context, plan DetailPlan) ([]models.Record, []models.ErrorRecord) {
	requests := plan.Requests()
	ctx, span := observability.StartSpan(ctx, observability.SpanDetails, f.config.Site,
		attribute.Int("requests", len(requests)))

	var (
		records []models.Record
		errs    []models.ErrorRecord
	)

	for i, req := range requests {
		if i > 0 {
			if err := f.config.Sleeper.Sleep(ctx, f.config.Delay); err != nil {
				f.logger.Warn("detail fetch interrupted", zap.Int("request", i), zap.Error(err))
				break
			}
		}

		body, err := f.doer.Do(ctx, req)
		if err != nil {
			desc := fmt.Sprintf("Error on page: %v", err)
			if errors.IsTimeout(err) {
				desc = "Timeout error on page"
			}
			errs = append(errs, f.record(err, desc))
			break
		}

		items, err := plan.Parse(body)
		if err != nil {
			errs = append(errs, f.record(err, fmt.Sprintf("Error parsing response JSON: %v", err)))
			break
		}
		records = append(records, items...)

		f.logger.Debug("details fetched", zap.Int("request", i+1), zap.Int("items", len(items)))
	}

	f.logger.Info("detail fetch finished",
		zap.Int("requests", len(requests)),
		zap.Int("records", len(records)),
		zap.Int("errors", len(errs)))

	var spanErr error
	if len(errs) > 0 {
		spanErr = fmt.Errorf("%s", errs[0].ErrorDescription)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	observability.End(span, spanErr)

	return records, errs
}

func (f *DetailFetcher) record(err error, desc string) models.ErrorRecord {
	rec := models.NewErrorRecord(err, desc, f.config.Now())
	metrics.ErrorsTotal.WithLabelValues(f.config.Site, rec.ErrorName).Inc()
	f.logger.Warn("detail error", zap.String("kind", rec.ErrorName), zap.String("description", desc))
	return rec
}
