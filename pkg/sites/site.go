// Package sites defines the contract between the scrape pipeline and the
// per-site adapters, and the registry adapters add themselves to.
package sites

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/aggregate"
	"github.com/ajitpratap0/thor/pkg/config"
	"github.com/ajitpratap0/thor/pkg/fetch"
	"github.com/ajitpratap0/thor/pkg/guard"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Endpoint keys accepted in sites.<name>.endpoints.
const (
	EndpointProbe  = "probe"
	EndpointSearch = "search"
	EndpointDetail = "detail"
)

// Defaults are an adapter's pacing and paging defaults.
type Defaults struct {
	SearchDelay time.Duration
	DetailDelay time.Duration
	MaxPages    int
}

// Adapter is everything the pipeline needs to know about one site.
type Adapter interface {
	// Name is the registry name, e.g. "ksl"
	Name() string
	// Website is the thor_website value, e.g. "ksl.com"
	Website() string
	Defaults() Defaults
	// Headers are the session defaults for every request to the site
	Headers() map[string]string

	Probe() guard.Probe

	SearchPlan(task *models.Task) fetch.SearchPlan
	// SearchURL is the thor_search_url value for task
	SearchURL(task *models.Task) string
	// ListingURL is the canonical listing URL of a search result
	ListingURL(rec models.Record) string

	// DetailPlan fetches the details of the new search results
	DetailPlan(newResults []models.Record) fetch.DetailPlan
	// DetailKey is the raw detail column that holds the listing id
	DetailKey() string
	// NormalizeDetails returns flattened copies of raw detail records,
	// each with an id column
	NormalizeDetails(records []models.Record) []models.Record
	CustomFields(search, details *models.Table) *models.Table

	Mapping(task *models.Task, user *models.User) aggregate.Mapping
}

// Options configure an adapter instance.
type Options struct {
	// MaxPages overrides Defaults().MaxPages when positive
	MaxPages int
	// Endpoints replaces the base URL of EndpointProbe, EndpointSearch or
	// EndpointDetail
	Endpoints map[string]string
	Logger    *zap.Logger
}

// OptionsFrom builds adapter options from a site config section.
func OptionsFrom(cfg config.SiteConfig, logger *zap.Logger) Options {
	return Options{
		MaxPages:  cfg.MaxPages,
		Endpoints: cfg.Endpoints,
		Logger:    logger,
	}
}

// Endpoint returns the configured URL for key, or fallback.
func (o Options) Endpoint(key, fallback string) string {
	if v := strings.TrimSpace(o.Endpoints[key]); v != "" {
		return strings.TrimRight(v, "/")
	}
	return fallback
}

// Pages returns MaxPages when set, otherwise fallback.
func (o Options) Pages(fallback int) int {
	if o.MaxPages > 0 {
		return o.MaxPages
	}
	return fallback
}

// Log returns the configured logger or a no-op one.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// ListingColumns is the normalized listing schema in output order.
var ListingColumns = []string{
	"title", "id", "link", "creation_time", "vehicle_condition", "vehicle_color",
	"fuel_type", "paid_off", "make", "model", "year", "number_owners",
	"seller_type", "vehicle_trim", "vin", "listing_photos", "seller_name",
	"location", "location_city", "location_state", "location_country",
	"description", "price", "strikethrough_price", "odometer_unit",
	"odometer_value",
	"thor_timestamp", "thor_website", "thor_mmr", "thor_task", "thor_user",
	"Task", "Host", "Account",
}

// ListingMapping builds the full listing mapping for a site. Columns not
// in sources are null; the provenance literals are filled from task and
// user.
func ListingMapping(website string, task *models.Task, user *models.User, sources map[string]aggregate.Source) aggregate.Mapping {
	literals := map[string]interface{}{
		"thor_website": website,
		"thor_mmr":     false,
		"thor_task":    TaskJSON(task),
		"thor_user":    UserJSON(user),
		"Account":      user.AccountID(),
	}
	if task != nil {
		literals["Task"] = task.TaskName
		literals["Host"] = task.Host
	} else {
		literals["Task"] = ""
		literals["Host"] = ""
	}

	mapping := make(aggregate.Mapping, 0, len(ListingColumns))
	for _, col := range ListingColumns {
		var src aggregate.Source
		if v, ok := literals[col]; ok {
			src = aggregate.Literal(v)
		} else if s, ok := sources[col]; ok {
			src = s
		} else {
			src = aggregate.Null()
		}
		mapping = append(mapping, aggregate.Field{Name: col, Source: src})
	}
	return mapping
}

// TaskJSON renders the task for the thor_task column.
func TaskJSON(task *models.Task) string {
	if task == nil {
		return "{}"
	}
	s, err := json.MarshalString(task)
	if err != nil {
		return "{}"
	}
	return s
}

// UserJSON renders the user for the thor_user column with the proxy
// password masked.
func UserJSON(user *models.User) string {
	if user == nil {
		return "{}"
	}
	s, err := json.MarshalString(user.Redacted())
	if err != nil {
		return "{}"
	}
	return s
}

// Text renders a decoded scalar for string composition; nil is "".
func Text(v interface{}) string {
	return models.Key(v)
}

// BrowserUserAgent is the desktop Chrome identity the sites are sent.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// BrowserHeaders returns the client hint headers matching BrowserUserAgent.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":         BrowserUserAgent,
		"Accept":             "*/*",
		"Accept-Language":    "en-US,en;q=0.9",
		"sec-ch-ua":          `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
	}
}
