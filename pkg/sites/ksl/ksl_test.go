package ksl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	TaskName: "ksl-f250",
	Host:     "h2",
	SearchTerms: map[string]string{
		models.TermSearchURL: "https://cars.ksl.com/v2/search/make/Ford/model/F-250",
		models.TermMake:      "Ford",
		models.TermModel:     "F-250",
		models.TermMinYear:   "1999",
		models.TermMaxYear:   "2003",
		models.TermMaxMiles:  "250000",
		models.TermFuelType:  "Diesel",
	},
}

func TestSearchPlanBody(t *testing.T) {
	a := New(sites.Options{})
	plan := a.SearchPlan(task)
	assert.Equal(t, 10, plan.Pages())

	req := plan.Request(1, 96)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, defaultSearchURL, req.URL)
	assert.Equal(t, "application/json", req.Headers["Content-Type"])

	body := req.Body.(map[string]interface{})
	assert.Equal(t, "/classifieds/cars/search/searchByUrlParams", body["endpoint"])
	options := body["options"].(map[string]interface{})
	assert.Equal(t, "POST", options["method"])
	assert.Equal(t, []interface{}{
		"perPage", "96",
		"page", "2",
		"make", "Ford",
		"model", "F-250",
		"yearTo", "2003",
		"yearFrom", "1999",
		"mileageTo", "250000",
		"fuel", "Diesel",
		"includeFacetCounts", "0",
		"es_query_group", nil,
	}, options["body"])

	withTrim := &models.Task{SearchTerms: map[string]string{models.TermTrim: "Lariat"}}
	params := a.SearchPlan(withTrim).Request(0, 0).Body.(map[string]interface{})["options"].(map[string]interface{})["body"].([]interface{})
	assert.Equal(t, []interface{}{"trim", "Lariat"}, params[8:10])
	assert.Equal(t, "1", params[3])
}

func TestParseSearch(t *testing.T) {
	plan := New(sites.Options{}).SearchPlan(task)

	page, err := plan.Parse([]byte(`{"data":{"count":2,"items":[
		{"id":9001,"make":"Ford","dealer":{"name":"Lot 7"}},
		{"id":9002,"make":"Ford"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Lot 7", page.Items[0]["dealer.name"])

	_, err = plan.Parse([]byte(`{"data":{"count":2}}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeKey))
	_, err = plan.Parse([]byte(`{"data":{"items":[]}}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeKey))
	_, err = plan.Parse([]byte(`<html>`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeJSONDecode))
}

func TestDetailPlan(t *testing.T) {
	a := New(sites.Options{})
	assert.Nil(t, a.DetailPlan(nil).Requests())

	plan := a.DetailPlan([]models.Record{{"id": json.Number("9001")}, {"id": json.Number("9002")}, {"id": json.Number("9001")}})
	reqs := plan.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, defaultDetailURL, reqs[0].URL)
	assert.Equal(t, "text/plain;charset=UTF-8", reqs[0].Headers["Content-Type"])

	encoded, err := json.Marshal(reqs[0].Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &body))
	ids, _ := models.Path(body, "request.body.data.attributes.query.id")
	assert.Equal(t, []interface{}{float64(9001), float64(9002)}, ids)
	perPage, _ := models.Path(body, "request.body.data.attributes.nav.perPage")
	assert.Equal(t, float64(2), perPage)

	recs, err := plan.Parse([]byte(`{"data":[{"id":"x","attributes":{"id":9001,"dealer":{"city":"Provo"}}},{"id":"y"}]}`))
	require.NoError(t, err)
	norm := a.NormalizeDetails(recs)
	require.Len(t, norm, 1, "items without attributes are skipped")
	assert.Equal(t, "Provo", norm[0]["dealer.city"])

	_, err = plan.Parse([]byte(`{"errors":[]}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeKey))
}

func TestCustomFields(t *testing.T) {
	a := New(sites.Options{})
	details := models.NewTable([]models.Record{{
		"id": json.Number("9001"), "makeYear": json.Number("2001"), "make": "Ford", "model": "F-250", "trim": "",
		"city": "Provo", "state": "UT",
		"photo": []interface{}{map[string]interface{}{"id": "p1"}, map[string]interface{}{"id": "p2"}},
	}}, "id")

	custom := a.CustomFields(nil, details)
	require.Equal(t, 1, custom.Len())
	title, _ := custom.Lookup("9001", "title")
	assert.Equal(t, "2001 Ford F-250", title)
	loc, _ := custom.Lookup("9001", "location")
	assert.Equal(t, "Provo, UT", loc)
	images, _ := custom.Lookup("9001", "images")
	assert.Equal(t, []interface{}{"p1", "p2"}, images)

	partial := models.NewTable([]models.Record{{"id": json.Number("9001"), "make": "Ford"}}, "id")
	assert.Equal(t, 0, a.CustomFields(nil, partial).Len(), "details missing columns give no custom fields")
	assert.Equal(t, 0, a.CustomFields(nil, nil).Len())
}

func TestMapping(t *testing.T) {
	a := New(sites.Options{})
	search := []models.Record{{
		"id": json.Number("9001"), "thor_listing_url": a.ListingURL(models.Record{"id": json.Number("9001")}),
		"createTime": "2024-06-01T10:00:00Z", "fuel": "Diesel", "price": json.Number("18500"),
		"mileage": json.Number("180000"), "firstName": "Dee",
	}}
	details := []models.Record{{
		"id": json.Number("9001"), "description": "clean title", "exteriorColor": "White",
		"makeYear": json.Number("2001"), "make": "Ford", "model": "F-250", "trim": "XLT",
		"city": "Provo", "state": "UT", "photo": []interface{}{},
	}}

	tables := aggregate.Tables{
		aggregate.SearchTable: models.NewTable(search, "id"),
		aggregate.DetailTable: models.NewTable(details, "id"),
	}
	tables[aggregate.CustomTable] = a.CustomFields(tables[aggregate.SearchTable], tables[aggregate.DetailTable])

	rows := aggregate.Aggregate([]string{"9001"}, tables, a.Mapping(task, nil))
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "2001 Ford F-250 XLT", row["title"])
	assert.Equal(t, "https://cars.ksl.com/listing/9001", row["link"])
	assert.Equal(t, "Provo, UT", row["location"])
	assert.Equal(t, "White", row["vehicle_color"])
	assert.Equal(t, "clean title", row["description"])
	assert.Equal(t, "Dee", row["seller_name"])
	assert.Nil(t, row["odometer_unit"])
	assert.Nil(t, row["number_owners"])
	assert.Equal(t, Website, row["thor_website"])
	assert.Equal(t, "https://cars.ksl.com/v2/search/make/Ford/model/F-250", a.SearchURL(task))
}

func TestSearchOverHTTP(t *testing.T) {
	const total = 150
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if err := json.Unmarshal(data, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		params, _ := models.Path(body, "options.body")
		page := params.([]interface{})[3].(string)
		pages = append(pages, page)

		if page == "1" {
			fmt.Fprintf(w, `{"data":{"count":%d,"items":[%s]}}`, total, items(1, 96))
			return
		}
		fmt.Fprintf(w, `{"data":{"count":%d,"items":[%s]}}`, total, items(97, 150))
	}))
	defer srv.Close()

	a := New(sites.Options{Endpoints: map[string]string{sites.EndpointSearch: srv.URL}})
	session, err := clients.NewSession(&clients.SessionConfig{Site: Website, Timeout: 5 * time.Second, Headers: a.Headers()}, nil)
	require.NoError(t, err)
	defer session.Close()

	searcher := fetch.NewSearcher(session, fetch.Config{Site: Website, Sleeper: clients.NoSleep}, zaptest.NewLogger(t))
	records, errs := searcher.Search(context.Background(), a.SearchPlan(task))
	assert.Empty(t, errs)
	assert.Len(t, records, total)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func items(from, to int) string {
	out := ""
	for i := from; i <= to; i++ {
		if i > from {
			out += ","
		}
		out += fmt.Sprintf(`{"id":%d}`, i)
	}
	return out
}
