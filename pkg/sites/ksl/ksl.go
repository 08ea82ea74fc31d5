// Package ksl scrapes vehicle listings from cars.ksl.com through its
// nextjs API proxy.
package ksl

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/thor/pkg/aggregate"
	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/fetch"
	"github.com/ajitpratap0/thor/pkg/guard"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/sites"
)

const (
	// Name is the registry name
	Name = "ksl"
	// Website is the site identifier stamped on every record
	Website = "ksl.com"

	defaultProbeURL  = "https://cars.ksl.com/nextjs-api/ip"
	defaultSearchURL = "https://cars.ksl.com/nextjs-api/proxy"
	defaultDetailURL = "https://cars.ksl.com/nextjs-api/cars-api"

	listingURLPrefix = "https://cars.ksl.com/listing/"
	perPage          = "96"
)

func init() {
	sites.Register(Name, func(opts sites.Options) sites.Adapter { return New(opts) })
}

// Adapter implements sites.Adapter for KSL Cars.
type Adapter struct {
	opts      sites.Options
	probeURL  string
	searchURL string
	detailURL string
}

var _ sites.Adapter = (*Adapter)(nil)

// New creates a KSL adapter
func New(opts sites.Options) *Adapter {
	return &Adapter{
		opts:      opts,
		probeURL:  opts.Endpoint(sites.EndpointProbe, defaultProbeURL),
		searchURL: opts.Endpoint(sites.EndpointSearch, defaultSearchURL),
		detailURL: opts.Endpoint(sites.EndpointDetail, defaultDetailURL),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Website() string { return Website }

// Defaults has no detail delay: details arrive in one batched request.
func (a *Adapter) Defaults() sites.Defaults {
	return sites.Defaults{
		SearchDelay: 3 * time.Second,
		MaxPages:    10,
	}
}

func (a *Adapter) Headers() map[string]string {
	h := sites.BrowserHeaders()
	h["priority"] = "u=1, i"
	h["sec-fetch-site"] = "same-origin"
	return h
}

func (a *Adapter) Probe() guard.Probe {
	return guard.Probe{
		Request: clients.Request{URL: a.probeURL},
		Keys:    []string{"data.ipAddress"},
	}
}

func (a *Adapter) SearchPlan(task *models.Task) fetch.SearchPlan {
	return &searchPlan{
		url:   a.searchURL,
		task:  task,
		pages: a.opts.Pages(a.Defaults().MaxPages),
	}
}

func (a *Adapter) SearchURL(task *models.Task) string {
	return task.Term(models.TermSearchURL)
}

func (a *Adapter) ListingURL(rec models.Record) string {
	return listingURLPrefix + rec.ID()
}

func (a *Adapter) DetailPlan(newResults []models.Record) fetch.DetailPlan {
	ids := make([]interface{}, 0, len(newResults))
	seen := map[string]bool{}
	for _, r := range newResults {
		key := r.ID()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, r["id"])
	}
	return &detailPlan{url: a.detailURL, ids: ids}
}

func (a *Adapter) DetailKey() string { return "id" }

func (a *Adapter) NormalizeDetails(records []models.Record) []models.Record {
	return models.FlattenAll(records)
}

var customColumns = []string{"photo", "makeYear", "make", "model", "trim", "city", "state"}

// CustomFields composes title, location and photo ids from the details.
// It is empty unless the details carry every column it reads.
func (a *Adapter) CustomFields(_, details *models.Table) *models.Table {
	for _, col := range append([]string{"id"}, customColumns...) {
		if !details.HasColumn(col) {
			return models.NewTable(nil, "id")
		}
	}

	rows := make([]models.Record, 0, details.Len())
	for _, r := range details.Rows() {
		title := strings.TrimSpace(strings.Join([]string{
			sites.Text(r["makeYear"]), sites.Text(r["make"]), sites.Text(r["model"]), sites.Text(r["trim"]),
		}, " "))

		var location interface{}
		city, okCity := r["city"].(string)
		state, okState := r["state"].(string)
		if okCity && okState {
			location = city + ", " + state
		}

		rows = append(rows, models.Record{
			"id":       r["id"],
			"title":    title,
			"location": location,
			"images":   photoIDs(r["photo"]),
		})
	}
	return models.NewTable(rows, "id")
}

func photoIDs(v interface{}) interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	ids := make([]interface{}, 0, len(list))
	for _, item := range list {
		if photo, ok := item.(map[string]interface{}); ok {
			ids = append(ids, photo["id"])
		}
	}
	return ids
}

func (a *Adapter) Mapping(task *models.Task, user *models.User) aggregate.Mapping {
	results := func(col string) aggregate.Source { return aggregate.From(aggregate.SearchTable, col) }
	details := func(col string) aggregate.Source { return aggregate.From(aggregate.DetailTable, col) }
	custom := func(col string) aggregate.Source { return aggregate.From(aggregate.CustomTable, col) }

	return sites.ListingMapping(Website, task, user, map[string]aggregate.Source{
		"title":               custom("title"),
		"link":                results("thor_listing_url"),
		"creation_time":       results("createTime"),
		"vehicle_condition":   details("exteriorCondition"),
		"vehicle_color":       details("exteriorColor"),
		"fuel_type":           results("fuel"),
		"paid_off":            results("titleType"),
		"make":                results("make"),
		"model":               results("model"),
		"year":                results("makeYear"),
		"seller_type":         results("sellerType"),
		"vehicle_trim":        results("trim"),
		"vin":                 results("vin"),
		"listing_photos":      custom("images"),
		"seller_name":         results("firstName"),
		"location":            custom("location"),
		"location_city":       results("city"),
		"location_state":      results("state"),
		"description":         details("description"),
		"price":               results("price"),
		"strikethrough_price": results("previousLowPrice"),
		"odometer_value":      results("mileage"),
		"thor_timestamp":      results("thor_timestamp"),
	})
}

// searchPlan posts searchByUrlParams queries through the nextjs proxy.
type searchPlan struct {
	url   string
	task  *models.Task
	pages int
}

func (p *searchPlan) Pages() int { return p.pages }

// params is the flat key/value list searchByUrlParams expects.
func (p *searchPlan) params(page int) []interface{} {
	t := p.task
	params := []interface{}{
		"perPage", perPage,
		"page", strconv.Itoa(page + 1),
		"make", t.Term(models.TermMake),
		"model", t.Term(models.TermModel),
	}
	if trim := t.Term(models.TermTrim); trim != "" {
		params = append(params, "trim", trim)
	}
	return append(params,
		"yearTo", t.Term(models.TermMaxYear),
		"yearFrom", t.Term(models.TermMinYear),
		"mileageTo", t.Term(models.TermMaxMiles),
		"fuel", t.Term(models.TermFuelType),
		"includeFacetCounts", "0",
		"es_query_group", nil,
	)
}

func (p *searchPlan) Request(page, _ int) clients.Request {
	return clients.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"x-ddm-event-accept-language": "en-US",
			"x-ddm-event-ip-address":      "undefined",
			"x-ddm-event-user-agent":      "[object Object]",
		},
		Body: map[string]interface{}{
			"endpoint": "/classifieds/cars/search/searchByUrlParams",
			"options": map[string]interface{}{
				"method": "POST",
				"headers": map[string]interface{}{
					"Content-Type":                "application/json",
					"User-Agent":                  "cars-node",
					"X-App-Source":                "frontline",
					"X-DDM-EVENT-USER-AGENT":      eventUserAgent,
					"X-DDM-EVENT-ACCEPT-LANGUAGE": "en-US",
					"X-MEMBER-ID":                 nil,
					"cookie":                      "",
				},
				"body": p.params(page),
			},
		},
	}
}

var eventUserAgent = map[string]interface{}{
	"ua":      sites.BrowserUserAgent,
	"browser": map[string]interface{}{"name": "Chrome", "version": "126.0.0.0", "major": "126"},
	"engine":  map[string]interface{}{"name": "Blink", "version": "126.0.0.0"},
	"os":      map[string]interface{}{"name": "Windows", "version": "10"},
	"device":  map[string]interface{}{},
	"cpu":     map[string]interface{}{"architecture": "amd64"},
}

func (p *searchPlan) Parse(body []byte) (fetch.Page, error) {
	var doc map[string]interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return fetch.Page{}, errors.Wrap(err, errors.ErrorTypeJSONDecode, "decode search page")
	}
	v, ok := models.Path(doc, "data.items")
	if !ok {
		return fetch.Page{}, errors.New(errors.ErrorTypeKey, "missing data.items")
	}
	list, ok := v.([]interface{})
	if !ok {
		return fetch.Page{}, errors.New(errors.ErrorTypeKey, "data.items is not a list")
	}
	countRaw, ok := models.Path(doc, "data.count")
	if !ok {
		return fetch.Page{}, errors.New(errors.ErrorTypeKey, "missing data.count")
	}
	count, ok := models.Int64(countRaw)
	if !ok {
		return fetch.Page{}, errors.New(errors.ErrorTypeKey, "data.count is not a number")
	}

	items := make([]models.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			items = append(items, models.Flatten(m))
		}
	}
	return fetch.Page{Items: items, Total: int(count)}, nil
}

// detailPlan fetches every new listing in one cars-api search.
type detailPlan struct {
	url string
	ids []interface{}
}

func (p *detailPlan) Requests() []clients.Request {
	if len(p.ids) == 0 {
		return nil
	}
	return []clients.Request{{
		Method: http.MethodPost,
		URL:    p.url,
		Headers: map[string]string{
			"Content-Type": "text/plain;charset=UTF-8",
			"Referer":      "https://cars.ksl.com/",
		},
		Body: map[string]interface{}{
			"endpoint": "/search",
			"request": map[string]interface{}{
				"method": "POST",
				"body": map[string]interface{}{
					"data": map[string]interface{}{
						"type": "search",
						"attributes": map[string]interface{}{
							"query": map[string]interface{}{"id": p.ids},
							"nav":   map[string]interface{}{"page": 1, "perPage": len(p.ids)},
						},
					},
				},
			},
		},
	}}
}

// Parse returns the attributes object of each listing in data.
func (p *detailPlan) Parse(body []byte) ([]models.Record, error) {
	var doc map[string]interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeJSONDecode, "decode details")
	}
	v, ok := doc["data"]
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "missing data")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "data is not a list")
	}

	records := make([]models.Record, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if attrs, ok := m["attributes"].(map[string]interface{}); ok {
			records = append(records, models.Record(attrs))
		}
	}
	return records, nil
}
