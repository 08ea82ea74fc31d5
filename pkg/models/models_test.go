package models

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int64(7781234567), "7781234567"},
		{7, "7"},
		{float64(7), "7"},
		{12.5, "12.5"},
		{json.Number("7781234567"), "7781234567"},
		{true, "true"},
		{[]int{1}, "[1]"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T/%v", tt.in, tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.in))
		})
	}

	assert.Equal(t, Key(int64(42)), Key(json.Number("42")))
}

func TestInt64(t *testing.T) {
	n, ok := Int64(json.Number("100"))
	require.True(t, ok)
	assert.Equal(t, int64(100), n)

	n, ok = Int64(float64(5))
	require.True(t, ok)
	assert.Equal(t, int64(5), n)

	_, ok = Int64(1.5)
	assert.False(t, ok)
	_, ok = Int64("x")
	assert.False(t, ok)
	_, ok = Int64(nil)
	assert.False(t, ok)
}

func TestInt64RejectsUnrepresentableFloats(t *testing.T) {
	for _, v := range []interface{}{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		-float64(math.MinInt64),
		-2e19,
		1e300,
		json.Number("1e19"),
		json.Number("-1e300"),
	} {
		_, ok := Int64(v)
		assert.False(t, ok, "%v", v)
	}

	n, ok := Int64(float64(math.MinInt64))
	require.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), n)

	n, ok = Int64(json.Number("7e9"))
	require.True(t, ok)
	assert.Equal(t, int64(7000000000), n)
}

func TestDedupe(t *testing.T) {
	records := []Record{
		{"id": json.Number("1"), "v": "a"},
		{"id": "2", "v": "b"},
		{"id": int64(1), "v": "c"},
		{"v": "no id"},
		{"id": "3", "v": "d"},
		{"v": "no id again"},
		{"id": 2, "v": "e"},
	}

	got := Dedupe(records, "id")
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[0]["v"])
	assert.Equal(t, "b", got[1]["v"])
	assert.Equal(t, "no id", got[2]["v"])
	assert.Equal(t, "d", got[3]["v"])
}

func TestDedupeProperties(t *testing.T) {
	unique := []Record{{"id": "a"}, {"id": "b"}, {"id": "c"}}
	assert.Equal(t, unique, Dedupe(unique, "id"), "identity on unique input")

	var records []Record
	for i := 0; i < 50; i++ {
		records = append(records, Record{"id": i % 7, "seq": i})
	}
	got := Dedupe(records, "id")

	seen := map[string]bool{}
	for _, r := range got {
		k := Key(r["id"])
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
		assert.Less(t, r["seq"].(int), 7, "first occurrence kept")
	}
	assert.Len(t, got, 7)
	assert.Empty(t, Dedupe(nil, "id"))
}

func TestUniqueKeys(t *testing.T) {
	records := []Record{
		{"id": "9"}, {"id": ""}, {"id": int64(3)}, {}, {"id": json.Number("9")}, {"id": "4"},
	}
	assert.Equal(t, []string{"9", "3", "4"}, UniqueKeys(records, "id"))
	assert.Empty(t, UniqueKeys(nil, "id"))
}

func TestFilterKeys(t *testing.T) {
	records := []Record{{"id": "1"}, {"id": "2"}, {"id": "3"}}
	got := FilterKeys(records, "id", []string{"3", "1"})
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0]["id"])
	assert.Equal(t, "3", got[1]["id"])
}

func TestTable(t *testing.T) {
	tbl := NewTable([]Record{
		{"id": json.Number("10"), "title": "first"},
		{"id": "10", "title": "second"},
		{"id": "11", "price": 900},
	}, "id")

	v, ok := tbl.Lookup("10", "title")
	require.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = tbl.Lookup("11", "title")
	assert.False(t, ok)
	_, ok = tbl.Lookup("12", "title")
	assert.False(t, ok)

	assert.True(t, tbl.HasColumn("price"))
	assert.False(t, tbl.HasColumn("vin"))
	assert.Equal(t, 3, tbl.Len())

	var empty *Table
	_, ok = empty.Lookup("10", "title")
	assert.False(t, ok)
	assert.False(t, empty.HasColumn("id"))
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.Rows())
}

func TestFlatten(t *testing.T) {
	in := Record{
		"id": "1",
		"owner": map[string]interface{}{
			"name": "Dealer",
			"location": map[string]interface{}{
				"address": map[string]interface{}{"city": "Eureka"},
			},
		},
		"photos": []interface{}{"a", "b"},
		"empty":  map[string]interface{}{},
	}

	got := Flatten(in)
	assert.Equal(t, Record{
		"id":                          "1",
		"owner.name":                  "Dealer",
		"owner.location.address.city": "Eureka",
		"photos":                      []interface{}{"a", "b"},
	}, got)
	assert.Contains(t, in, "owner", "input untouched")
}

func TestExpandPairs(t *testing.T) {
	r := Record{
		"id": "1",
		"attributes": []interface{}{
			map[string]interface{}{"postingAttributeKey": "auto_year", "value": "2015"},
			map[string]interface{}{"postingAttributeKey": "auto_miles", "value": "120000"},
			map[string]interface{}{"value": "orphan"},
			"junk",
		},
	}
	ExpandPairs(r, "attributes", "postingAttributeKey", "value")

	assert.Equal(t, Record{"id": "1", "auto_year": "2015", "auto_miles": "120000"}, r)

	missing := Record{"id": "2"}
	ExpandPairs(missing, "attributes", "postingAttributeKey", "value")
	assert.Equal(t, Record{"id": "2"}, missing)
}

func TestExpandTree(t *testing.T) {
	r := Record{
		"autoVinData": []interface{}{
			[]interface{}{"engine", []interface{}{
				[]interface{}{"cylinders", "8"},
				[]interface{}{"fuel", "diesel"},
			}},
			[]interface{}{"body", []interface{}{
				[]interface{}{"doors", json.Number("4")},
				[]interface{}{"bad"},
			}},
			[]interface{}{"broken"},
		},
	}
	ExpandTree(r, "autoVinData")

	assert.Equal(t, Record{
		"engine.cylinders": "8",
		"engine.fuel":      "diesel",
		"body.doors":       json.Number("4"),
	}, r)
}

func TestNewErrorRecord(t *testing.T) {
	now := time.Date(2024, 8, 5, 14, 3, 9, 0, time.Local)
	rec := NewErrorRecord(errors.New(errors.ErrorTypeKey, "missing data.items"), "Error parsing response JSON on page 1: boom", now)

	assert.Equal(t, "KeyError", rec.ErrorName)
	assert.Equal(t, "2024-08-05 14:03:09", rec.ErrorTime)

	data, err := json.Marshal(ErrorDescriptor{Disable: true, ErrorData: []ErrorRecord{rec}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Disable":true,"error_data":[{"ErrorName":"KeyError","ErrorTime":"2024-08-05 14:03:09","ErrorDescription":"Error parsing response JSON on page 1: boom"}]}`, string(data))
}

func TestUserHelpers(t *testing.T) {
	u := &User{
		AccountInfo: AccountInfo{AccountID: "acct-1"},
		ProxyInfo:   ProxyInfo{ProxyIp: "203.0.113.7", ProxyPassword: "hunter2"},
	}
	assert.True(t, u.HasProxy())
	assert.Equal(t, "****", u.Redacted().ProxyInfo.ProxyPassword)
	assert.Equal(t, "hunter2", u.ProxyInfo.ProxyPassword)

	var nilUser *User
	assert.False(t, nilUser.HasProxy())
	assert.Equal(t, "", nilUser.AccountID())

	task := &Task{TaskName: "F250", Host: "worker-3", SearchTerms: map[string]string{TermMake: "Ford"}}
	assert.Equal(t, "Ford", task.Term(TermMake))
	assert.Equal(t, "", task.Term(TermModel))
	assert.Equal(t, UserTelemetry{TaskName: "F250", Host: "worker-3", AccountID: "acct-1"}, NewUserTelemetry(task, u))
}

func TestNewResultShape(t *testing.T) {
	r := NewResult("ksl.com", []string{"id"})
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"search_results", "listing_details", "listings", "task_telemetry"} {
		assert.Equal(t, []interface{}{}, decoded[key], key)
	}
	assert.False(t, r.Blocked())
}

func TestPath(t *testing.T) {
	doc := map[string]interface{}{
		"data": map[string]interface{}{
			"items": []interface{}{1},
			"count": nil,
		},
	}

	v, ok := Path(doc, "data.items")
	require.True(t, ok)
	assert.Equal(t, []interface{}{1}, v)

	v, ok = Path(doc, "data.count")
	assert.True(t, ok, "present but null")
	assert.Nil(t, v)

	_, ok = Path(doc, "data.missing")
	assert.False(t, ok)
	_, ok = Path(doc, "data.items.0")
	assert.False(t, ok)
	_, ok = Path("scalar", "data")
	assert.False(t, ok)
}
