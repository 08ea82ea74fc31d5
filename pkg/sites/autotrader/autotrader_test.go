package autotrader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/thor/pkg/aggregate"
	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/fetch"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/sites"
)

var task = &models.Task{
	TaskName: "f250",
	Host:     "h1",
	SearchTerms: map[string]string{
		models.TermMake:    "FORD",
		models.TermModel:   "F250",
		models.TermMinYear: "1999",
		models.TermDrive:   "",
	},
}

func TestSearchPlan(t *testing.T) {
	a := New(sites.Options{})
	plan := a.SearchPlan(task)
	assert.Equal(t, 3, plan.Pages())

	first := plan.Request(0, 0)
	assert.Equal(t, defaultSearchURL, first.URL)
	assert.Equal(t, "FORD", first.Params.Get("makeCode"))
	assert.Equal(t, "F250", first.Params.Get("modelCode"))
	assert.Equal(t, "1999", first.Params.Get("startYear"))
	assert.NotContains(t, first.Params, "driveGroup", "empty terms are not sent")
	assert.NotContains(t, first.Params, "endYear")
	assert.Equal(t, "true", first.Params.Get("newSearch"))
	assert.Equal(t, "0", first.Params.Get("firstRecord"))
	assert.Equal(t, "100", first.Params.Get("numRecords"))
	assert.Equal(t, "63025", first.Params.Get("zip"))
	assert.Equal(t, "[object Object]", first.Params.Get("dma"))
	assert.Equal(t, pixallID, first.Params.Get("pixallId"))

	next := plan.Request(1, 100)
	assert.Equal(t, "false", next.Params.Get("newSearch"))
	assert.Equal(t, "100", next.Params.Get("firstRecord"))
	assert.Equal(t, "0", first.Params.Get("firstRecord"), "requests do not share params")

	assert.Equal(t, 1, New(sites.Options{MaxPages: 1}).SearchPlan(task).Pages())
}

func TestDefaults(t *testing.T) {
	d := New(sites.Options{}).Defaults()
	assert.Equal(t, 3*time.Second, d.SearchDelay)
	assert.Equal(t, 2*time.Second, d.DetailDelay)
	assert.Equal(t, 3, d.MaxPages)
}

func TestParseSearch(t *testing.T) {
	plan := New(sites.Options{}).SearchPlan(task)

	page, err := plan.Parse([]byte(`{"totalResultCount":2,"listings":[
		{"id":701,"title":"2001 Ford F-250","owner":{"name":"Bob's","location":{"address":{"city":"Eureka","state":"MO"}}}},
		{"id":702,"title":"2002 Ford F-250"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Eureka", page.Items[0]["owner.location.address.city"])
	assert.Equal(t, "Bob's", page.Items[0]["owner.name"])

	_, err = plan.Parse([]byte(`{"listings":[]}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeKey))
	_, err = plan.Parse([]byte(`{"totalResultCount":0}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeKey))
	_, err = plan.Parse([]byte(`Access Denied`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeJSONDecode))
}

func TestDetailPlan(t *testing.T) {
	a := New(sites.Options{})
	plan := a.DetailPlan([]models.Record{{"id": json.Number("701")}, {"id": json.Number("702")}, {"id": json.Number("701")}})

	reqs := plan.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, defaultDetailURL+"/701", reqs[0].URL)
	assert.Equal(t, defaultDetailURL+"/702", reqs[1].URL)

	recs, err := plan.Parse([]byte(`{"listings":[{"id":701,"images":{"sources":[{"src":"a.jpg"}]}}]}`))
	require.NoError(t, err)
	norm := a.NormalizeDetails(recs)
	require.Len(t, norm, 1)
	assert.Contains(t, norm[0], "images.sources")
}

func TestCustomFields(t *testing.T) {
	a := New(sites.Options{})
	search := models.NewTable([]models.Record{
		{"id": json.Number("701"), "owner.location.address.city": "Eureka", "owner.location.address.state": "MO"},
		{"id": json.Number("702"), "owner.location.address.city": "Ballwin"},
	}, "id")
	details := models.NewTable([]models.Record{
		{"id": json.Number("701"), "lastModified": "2024-06-28T14:00:00Z", "images.sources": []interface{}{
			map[string]interface{}{"src": "https://img/1.jpg"},
			map[string]interface{}{"src": "https://img/2.jpg"},
		}},
		{"id": json.Number("703"), "lastModified": "garbage", "images.sources": nil},
	}, "id")

	custom := a.CustomFields(search, details)
	require.Equal(t, 3, custom.Len())

	loc, _ := custom.Lookup("701", "location")
	assert.Equal(t, "Eureka, MO", loc)
	created, _ := custom.Lookup("701", "creation_time")
	assert.Equal(t, time.Date(2024, 6, 28, 14, 0, 0, 0, time.UTC).Unix(), created)
	images, _ := custom.Lookup("701", "images")
	assert.Equal(t, []interface{}{"https://img/1.jpg", "https://img/2.jpg"}, images)

	loc, ok := custom.Lookup("702", "location")
	assert.True(t, ok)
	assert.Nil(t, loc, "missing state gives no location")

	created, ok = custom.Lookup("703", "creation_time")
	assert.True(t, ok)
	assert.Nil(t, created)

	assert.Equal(t, 0, a.CustomFields(nil, nil).Len())
}

func TestMapping(t *testing.T) {
	a := New(sites.Options{})
	search := []models.Record{{
		"id": json.Number("701"), "title": "2001 Ford F-250", "thor_listing_url": listingURLPrefix + "701",
		"owner.location.address.city": "Eureka", "owner.location.address.state": "MO",
		"pricingDetail.salePrice": json.Number("15999"), "mileage.value": json.Number("201000"), "mileage.label": "mi",
	}}
	details := []models.Record{{"id": json.Number("701"), "fullDescription": "7.3 diesel"}}

	tables := aggregate.Tables{
		aggregate.SearchTable: models.NewTable(search, "id"),
		aggregate.DetailTable: models.NewTable(details, "id"),
	}
	tables[aggregate.CustomTable] = a.CustomFields(tables[aggregate.SearchTable], tables[aggregate.DetailTable])

	rows := aggregate.Aggregate([]string{"701"}, tables, a.Mapping(task, nil))
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "2001 Ford F-250", row["title"])
	assert.Equal(t, "https://www.autotrader.com/cars-for-sale/vehicle/701", row["link"])
	assert.Equal(t, "Eureka, MO", row["location"])
	assert.Equal(t, "7.3 diesel", row["description"])
	assert.Equal(t, json.Number("15999"), row["price"])
	assert.Equal(t, "mi", row["odometer_unit"])
	assert.Nil(t, row["creation_time"], "no detail timestamps")
	assert.Equal(t, Website, row["thor_website"])
	assert.Equal(t, "f250", row["Task"])
}

func TestSearchPaginationOverHTTP(t *testing.T) {
	const total = 30
	var firsts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first, _ := strconv.Atoi(r.URL.Query().Get("firstRecord"))
		firsts = append(firsts, r.URL.Query().Get("firstRecord"))

		items := make([]string, 0, 10)
		for i := first; i < first+10 && i < total; i++ {
			items = append(items, fmt.Sprintf(`{"id":%d}`, 1000+i))
		}
		fmt.Fprintf(w, `{"totalResultCount":%d,"listings":[%s]}`, total, strings.Join(items, ","))
	}))
	defer srv.Close()

	a := New(sites.Options{MaxPages: 10, Endpoints: map[string]string{sites.EndpointSearch: srv.URL}})
	session, err := clients.NewSession(&clients.SessionConfig{Site: Website, Timeout: 5 * time.Second, Headers: a.Headers()}, nil)
	require.NoError(t, err)
	defer session.Close()

	sleeps := 0
	sleeper := clients.SleeperFunc(func(context.Context, time.Duration) error { sleeps++; return nil })
	searcher := fetch.NewSearcher(session, fetch.Config{Site: Website, Sleeper: sleeper}, zaptest.NewLogger(t))

	records, errs := searcher.Search(context.Background(), a.SearchPlan(task))
	assert.Len(t, records, total)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"0", "10", "20"}, firsts)
	assert.Equal(t, 2, sleeps)
}
