package pipeline

import (
	"context"

	"github.com/ajitpratap0/thor/pkg/models"
)

// DuplicateFilter removes candidates that were already scraped. idColumns
// maps candidate columns to the columns of the store they are compared with.
type DuplicateFilter interface {
	Filter(ctx context.Context, candidates []models.Record, site string, idColumns map[string]string) ([]models.Record, error)
}

// FilterFunc adapts a function to DuplicateFilter.
type FilterFunc func(ctx context.Context, candidates []models.Record, site string, idColumns map[string]string) ([]models.Record, error)

// Filter calls f.
func (f FilterFunc) Filter(ctx context.Context, candidates []models.Record, site string, idColumns map[string]string) ([]models.Record, error) {
	return f(ctx, candidates, site, idColumns)
}

// AcceptAll treats every candidate as new.
var AcceptAll DuplicateFilter = FilterFunc(func(_ context.Context, candidates []models.Record, _ string, _ map[string]string) ([]models.Record, error) {
	return candidates, nil
})

// compareColumns are the id columns every site is compared on.
var compareColumns = map[string]string{"id": "id"}
