// Package craigslist scrapes vehicle postings from the Craigslist sapi and
// rapi JSON endpoints.
package craigslist

import (
	"net/url"
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
	Name = "craigslist"
	// Website is the site identifier stamped on every record
	Website = "craigslist.com"

	defaultProbeURL  = "https://sapi.craigslist.org/web/v8/postings/search"
	defaultSearchURL = "https://sapi.craigslist.org/web/v8/postings/search/full"
	defaultDetailURL = "https://rapi.craigslist.org/web/v8/postings"

	cookie = "cl_b=4|5411c775aa66ff242fc29367d82280f3412d3b62|17197899267o-9M; cl_tocmode="
)

// PostalCodes are the search regions, one page each.
var PostalCodes = []string{"67207", "20009", "93728"}

func init() {
	sites.Register(Name, func(opts sites.Options) sites.Adapter { return New(opts) })
}

// Adapter implements sites.Adapter for Craigslist.
type Adapter struct {
	opts      sites.Options
	probeURL  string
	searchURL string
	detailURL string
}

var _ sites.Adapter = (*Adapter)(nil)

// New creates a Craigslist adapter
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
		SearchDelay: 2 * time.Second,
		DetailDelay: 800 * time.Millisecond,
		MaxPages:    len(PostalCodes),
	}
}

func (a *Adapter) Headers() map[string]string {
	h := sites.BrowserHeaders()
	h["Cookie"] = cookie
	h["Origin"] = "https://wichita.craigslist.org"
	h["Referer"] = "https://wichita.craigslist.org/"
	h["sec-fetch-site"] = "same-site"
	return h
}

func (a *Adapter) Probe() guard.Probe {
	return guard.Probe{
		Request: clients.Request{
			URL: a.probeURL,
			Params: url.Values{
				"cc":         {"US"},
				"batchSize":  {"1"},
				"area_id":    {"99"},
				"lang":       {"en"},
				"searchPath": {"cta"},
				"startIndex": {"0"},
			},
		},
		Keys: []string{"data.items"},
	}
}

func (a *Adapter) SearchPlan(task *models.Task) fetch.SearchPlan {
	postals := PostalCodes
	if n := a.opts.Pages(len(PostalCodes)); n < len(postals) {
		postals = postals[:n]
	}
	return &searchPlan{
		url:     a.searchURL,
		query:   task.Term(models.TermSearchText),
		postals: postals,
	}
}

func (a *Adapter) SearchURL(task *models.Task) string {
	return task.Term(models.TermSearchText)
}

func (a *Adapter) ListingURL(rec models.Record) string {
	link, _ := rec["Link"].(string)
	return link
}

func (a *Adapter) DetailPlan(newResults []models.Record) fetch.DetailPlan {
	return &detailPlan{base: a.detailURL, results: newResults}
}

func (a *Adapter) DetailKey() string { return "postingId" }

// NormalizeDetails flattens detail items: location becomes dotted
// columns, attributes become one column per postingAttributeKey, the
// autoVinData tree becomes category.attribute columns and image refs
// become CDN URLs.
func (a *Adapter) NormalizeDetails(records []models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, raw := range records {
		rec := models.Flatten(raw)
		rec["id"] = rec["postingId"]
		if _, ok := rec["attributes"]; ok {
			models.ExpandPairs(rec, "attributes", "postingAttributeKey", "value")
		}
		if _, ok := rec["autoVinData"]; ok {
			models.ExpandTree(rec, "autoVinData")
		}
		if _, ok := rec["images"]; ok {
			rec["images"] = rewriteImages(rec["images"])
		}
		out = append(out, rec)
	}
	return out
}

func rewriteImages(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	urls := make([]string, 0, len(list))
	for _, ref := range list {
		if s, ok := ref.(string); ok {
			urls = append(urls, ImageURL(s))
		}
	}
	return urls
}

// CustomFields is empty: every Craigslist column comes from the search
// results or the details.
func (a *Adapter) CustomFields(_, _ *models.Table) *models.Table {
	return models.NewTable(nil, "id")
}

func (a *Adapter) Mapping(task *models.Task, user *models.User) aggregate.Mapping {
	details := func(col string) aggregate.Source { return aggregate.From(aggregate.DetailTable, col) }
	results := func(col string) aggregate.Source { return aggregate.From(aggregate.SearchTable, col) }

	return sites.ListingMapping(Website, task, user, map[string]aggregate.Source{
		"title":             details("title"),
		"link":              details("url"),
		"creation_time":     details("postedDate"),
		"vehicle_condition": details("condition"),
		"vehicle_color":     details("auto_paint"),
		"fuel_type":         details("auto_fuel_type"),
		"paid_off":          details("auto_title_status"),
		"make":              details("auto_make_model"),
		"model":             details("auto_make_model"),
		"year":              details("auto_year"),
		"seller_type":       details("categoryAbbr"),
		"vin":               details("auto_vin"),
		"listing_photos":    details("images"),
		"seller_name":       results("locationDescription"),
		"location":          details("location.description"),
		"location_city":     details("location.area"),
		"description":       details("body"),
		"price":             details("price"),
		"odometer_value":    details("auto_miles"),
		"thor_timestamp":    results("thor_timestamp"),
	})
}

// searchPlan walks the postal code regions, one page each.
type searchPlan struct {
	url     string
	query   string
	postals []string
}

func (p *searchPlan) Pages() int { return len(p.postals) }

func (p *searchPlan) Request(page, _ int) clients.Request {
	return clients.Request{
		URL: p.url,
		Params: url.Values{
			"batch":            {"99-0-360-1-0"},
			"bundleDuplicates": {"1"},
			"cc":               {"US"},
			"lang":             {"en"},
			"postal":           {p.postals[page]},
			"query":            {p.query},
			"searchPath":       {"cta"},
			"search_distance":  {"1000"},
			"sort":             {"date"},
		},
		Headers: map[string]string{
			"cache-control": "no-cache",
			"pragma":        "no-cache",
		},
	}
}

func (p *searchPlan) Parse(body []byte) (fetch.Page, error) {
	records, problems, err := Decode(body)
	if err != nil {
		return fetch.Page{}, err
	}
	return fetch.Page{Items: records, Total: fetch.NoTotal, Problems: problems}, nil
}

// detailPlan requests each new posting from rapi.
type detailPlan struct {
	base    string
	results []models.Record
}

func (p *detailPlan) Requests() []clients.Request {
	reqs := make([]clients.Request, 0, len(p.results))
	for _, r := range p.results {
		area := sites.Text(r["AreaName"])
		sub := sites.Text(r["SubAreaName"])
		if sub == "" {
			sub = "-"
		}
		cat := sites.Text(r["CategoryCode"])

		reqs = append(reqs, clients.Request{
			URL: p.base + "/" + url.PathEscape(area) + "/" + url.PathEscape(sub) + "/" + url.PathEscape(cat) + "/" + url.PathEscape(r.ID()),
			Params: url.Values{
				"categoryAbbr": {cat},
				"cc":           {"US"},
				"hostname":     {area},
				"lang":         {"en"},
				"subareaAbbr":  {sub},
			},
		})
	}
	return reqs
}

func (p *detailPlan) Parse(body []byte) ([]models.Record, error) {
	var doc map[string]interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeJSONDecode, "decode posting")
	}
	v, ok := models.Path(doc, "data.items")
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "missing data.items")
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeKey, "data.items is not a list")
	}

	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, models.Record(m))
		}
	}
	return records, nil
}
