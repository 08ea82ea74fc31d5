// Package autotrader scrapes used-vehicle listings from the Autotrader
// lsc REST endpoints.
package autotrader

import (
	"net/url"
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
	Name = "autotrader"
	// Website is the site identifier stamped on every record
	Website = "autotrader.com"

	defaultProbeURL  = "https://www.autotrader.com/rest/lsc/modelinfo/457775"
	defaultSearchURL = "https://www.autotrader.com/rest/lsc/listing"
	defaultDetailURL = "https://www.autotrader.com/rest/lsc/listing/id"

	listingURLPrefix = "https://www.autotrader.com/cars-for-sale/vehicle/"
	pageSize         = 100
	pixallID         = "fS84p6V6wpKLFEWKTMNdzW8G"
)

// searchTerms maps query parameters to the task terms that fill them.
var searchTerms = []struct {
	param string
	term  string
}{
	{"endYear", models.TermMaxYear},
	{"mileage", models.TermMaxMiles},
	{"modelCode", models.TermModel},
	{"startYear", models.TermMinYear},
	{"trimCode", models.TermTrim},
	{"driveGroup", models.TermDrive},
	{"fuelTypeGroup", models.TermFuelType},
	{"makeCode", models.TermMake},
}

func init() {
	sites.Register(Name, func(opts sites.Options) sites.Adapter { return New(opts) })
}

// Adapter implements sites.Adapter for Autotrader.
type Adapter struct {
	opts      sites.Options
	probeURL  string
	searchURL string
	detailURL string
}

var _ sites.Adapter = (*Adapter)(nil)

// New creates an Autotrader adapter
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

func (a *Adapter) Defaults() sites.Defaults {
	return sites.Defaults{
		SearchDelay: 3 * time.Second,
		DetailDelay: 2 * time.Second,
		MaxPages:    3,
	}
}

func (a *Adapter) Headers() map[string]string {
	h := sites.BrowserHeaders()
	h["Content-Type"] = "application/json"
	h["priority"] = "u=1, i"
	h["sec-fetch-site"] = "same-origin"
	return h
}

func (a *Adapter) Probe() guard.Probe {
	return guard.Probe{
		Request: clients.Request{URL: a.probeURL},
		Keys:    []string{"title"},
	}
}

func (a *Adapter) SearchPlan(task *models.Task) fetch.SearchPlan {
	terms := url.Values{}
	for _, st := range searchTerms {
		if v := task.Term(st.term); v != "" {
			terms.Set(st.param, v)
		}
	}
	return &searchPlan{
		url:   a.searchURL,
		terms: terms,
		pages: a.opts.Pages(a.Defaults().MaxPages),
	}
}

// SearchURL is empty: searches are built from task terms, not a saved URL.
func (a *Adapter) SearchURL(*models.Task) string { return "" }

func (a *Adapter) ListingURL(rec models.Record) string {
	return listingURLPrefix + rec.ID()
}

func (a *Adapter) DetailPlan(newResults []models.Record) fetch.DetailPlan {
	return &detailPlan{base: a.detailURL, ids: models.UniqueKeys(newResults, "id")}
}

func (a *Adapter) DetailKey() string { return "id" }

func (a *Adapter) NormalizeDetails(records []models.Record) []models.Record {
	return models.FlattenAll(records)
}

// CustomFields derives the location string from the search results and the
// creation time and photo URLs from the details, merged by id.
func (a *Adapter) CustomFields(search, details *models.Table) *models.Table {
	var (
		rows  []models.Record
		index = map[string]models.Record{}
	)
	row := func(id string) models.Record {
		if r, ok := index[id]; ok {
			return r
		}
		r := models.Record{"id": id}
		index[id] = r
		rows = append(rows, r)
		return r
	}

	if search.HasColumn("owner.location.address.city") && search.HasColumn("owner.location.address.state") {
		for _, r := range search.Rows() {
			id := r.ID()
			if id == "" {
				continue
			}
			city, okCity := r["owner.location.address.city"].(string)
			state, okState := r["owner.location.address.state"].(string)
			if okCity && okState {
				row(id)["location"] = city + ", " + state
			} else {
				row(id)["location"] = nil
			}
		}
	}

	if details.HasColumn("lastModified") && details.HasColumn("images.sources") {
		for _, r := range details.Rows() {
			id := r.ID()
			if id == "" {
				continue
			}
			out := row(id)
			out["creation_time"] = unixSeconds(r["lastModified"])
			out["images"] = photoURLs(r["images.sources"])
		}
	}

	return models.NewTable(rows, "id")
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// unixSeconds parses an ISO 8601 timestamp. Timestamps without a zone are
// read as local time.
func unixSeconds(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Unix()
		}
	}
	return nil
}

func photoURLs(v interface{}) interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	urls := make([]interface{}, 0, len(list))
	for _, item := range list {
		if photo, ok := item.(map[string]interface{}); ok {
			urls = append(urls, photo["src"])
		}
	}
	return urls
}

func (a *Adapter) Mapping(task *models.Task, user *models.User) aggregate.Mapping {
	results := func(col string) aggregate.Source { return aggregate.From(aggregate.SearchTable, col) }
	custom := func(col string) aggregate.Source { return aggregate.From(aggregate.CustomTable, col) }

	return sites.ListingMapping(Website, task, user, map[string]aggregate.Source{
		"title":             results("title"),
		"link":              results("thor_listing_url"),
		"creation_time":     custom("creation_time"),
		"vehicle_condition": results("listingType"),
		"vehicle_color":     results("color.exteriorColorSimple"),
		"fuel_type":         results("fuelType.name"),
		"paid_off":          results("financingTypePSX"),
		"make":              results("makeCode"),
		"model":             results("modelCode"),
		"year":              results("year"),
		"seller_type":       results("owner.privateSeller"),
		"vehicle_trim":      results("trim.name"),
		"vin":               results("vin"),
		"listing_photos":    custom("images"),
		"seller_name":       results("owner.name"),
		"location":          custom("location"),
		"location_city":     results("owner.location.address.city"),
		"location_state":    results("owner.location.address.state"),
		"description":       aggregate.From(aggregate.DetailTable, "fullDescription"),
		"price":             results("pricingDetail.salePrice"),
		"odometer_unit":     results("mileage.label"),
		"odometer_value":    results("mileage.value"),
		"thor_timestamp":    results("thor_timestamp"),
	})
}

type searchPlan struct {
	url   string
	terms url.Values
	pages int
}

func (p *searchPlan) Pages() int { return p.pages }

func (p *searchPlan) Request(page, fetched int) clients.Request {
	params := url.Values{}
	for k, v := range p.terms {
		params[k] = v
	}
	params.Set("firstRecord", strconv.Itoa(fetched))
	params.Set("newSearch", strconv.FormatBool(page == 0))
	params.Set("sortBy", "datelistedDESC")
	params.Set("searchRadius", "0")
	params.Set("zip", "63025")
	params.Set("state", "MO")
	params.Set("city", "Eureka")
	params.Set("dma", "[object Object]")
	params.Set("listingType", "USED")
	params.Set("channel", "ATC")
	params.Set("relevanceConfig", "relevance-v3")
	params.Set("pixallId", pixallID)
	params.Set("stats", "year,derivedprice")
	params.Set("numRecords", strconv.Itoa(pageSize))

	return clients.Request{URL: p.url, Params: params}
}

func (p *searchPlan) Parse(body []byte) (fetch.Page, error) {
	doc, err := decode(body)
	if err != nil {
		return fetch.Page{}, err
	}
	items, err := listings(doc)
	if err != nil {
		return fetch.Page{}, err
	}
	total, ok := models.Int64(doc["totalResultCount"])
	if !ok {
		return fetch.Page{}, errors.New(errors.ErrorTypeKey, "missing totalResultCount")
	}
	return fetch.Page{Items: models.FlattenAll(items), Total: int(total)}, nil
}

type detailPlan struct {
	base string
	ids  []string
}

func (p *detailPlan) Requests() []clients.Request {
	reqs := make([]clients.Request, len(p.ids))
	for i, id := range p.ids {
		reqs[i] = clients.Request{URL: p.base + "/" + url.PathEscape(id)}
	}
	return reqs
}

func (p *detailPlan) Parse(body []byte) ([]models.Record, error) {
	doc, err := decode(body)
	if err != nil {
		return nil, err
	}
	return listings(doc)
}

func decode(body []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeJSONDecode, "decode response")
	}
	return doc, nil
}

func listings(doc map[string]interface{}) ([]models.Record, error) {
	v, ok := doc["listings"]
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "missing listings")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "listings is not a list")
	}
	records := make([]models.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, models.Record(m))
		}
	}
	return records, nil
}
