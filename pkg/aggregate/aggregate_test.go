package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

func testMapping() Mapping {
	return Mapping{
		{Name: "title", Source: From(CustomTable, "title")},
		{Name: "id", Source: From(SearchTable, "listing_id")},
		{Name: "price", Source: From(SearchTable, "price")},
		{Name: "description", Source: From(DetailTable, "description")},
		{Name: "number_owners", Source: Null()},
		{Name: "thor_website", Source: Literal("ksl.com")},
		{Name: "thor_mmr", Source: Literal(false)},
	}
}

func TestAggregate(t *testing.T) {
	tables := Tables{
		SearchTable: models.NewTable([]models.Record{
			{"id": json.Number("1"), "price": json.Number("12500")},
			{"id": json.Number("2"), "price": json.Number("9000")},
			{"id": json.Number("1"), "price": json.Number("1")},
		}, "id"),
		DetailTable: models.NewTable([]models.Record{
			{"id": "2", "description": "clean title"},
		}, "id"),
		CustomTable: models.NewTable([]models.Record{
			{"id": int64(1), "title": "2019 Ford F-150 XLT"},
		}, "id"),
	}

	got := Aggregate([]string{"1", "2"}, tables, testMapping())
	require.Len(t, got, 2)

	assert.Equal(t, models.Record{
		"title":         "2019 Ford F-150 XLT",
		"id":            json.Number("1"),
		"price":         json.Number("12500"),
		"description":   nil,
		"number_owners": nil,
		"thor_website":  "ksl.com",
		"thor_mmr":      false,
	}, got[0])

	assert.Nil(t, got[1]["title"])
	assert.Equal(t, "clean title", got[1]["description"])
	assert.Equal(t, json.Number("2"), got[1]["id"])
}

func TestAggregateKeepsSourceIDValue(t *testing.T) {
	tables := Tables{
		DetailTable: models.NewTable([]models.Record{
			{"id": int64(7000000005), "description": "detail only"},
		}, "id"),
		CustomTable: models.NewTable([]models.Record{
			{"id": "8", "title": "custom only"},
		}, "id"),
	}

	got := Aggregate([]string{"7000000005", "8", "9"}, tables, testMapping())
	require.Len(t, got, 3)
	assert.Equal(t, int64(7000000005), got[0]["id"])
	assert.Equal(t, "8", got[1]["id"])
	assert.Equal(t, "9", got[2]["id"], "ids absent from every table keep the join key")
	assert.Equal(t, "7000000005", got[0].ID(), "joins still use the string key")
}

func TestAggregateNullSafety(t *testing.T) {
	tests := []struct {
		name   string
		tables Tables
	}{
		{"nil tables", nil},
		{"no tables", Tables{}},
		{"nil table", Tables{SearchTable: nil, DetailTable: nil}},
		{"empty tables", Tables{
			SearchTable: models.NewTable(nil, "id"),
			DetailTable: models.NewTable([]models.Record{}, "id"),
			CustomTable: models.NewTable(nil, "id"),
		}},
		{"rows without the column", Tables{
			SearchTable: models.NewTable([]models.Record{{"id": "1"}}, "id"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []models.Record
			require.NotPanics(t, func() {
				got = Aggregate([]string{"1", "7"}, tt.tables, testMapping())
			})
			require.Len(t, got, 2)
			for _, rec := range got {
				assert.Len(t, rec, len(testMapping()))
				assert.Nil(t, rec["title"])
				assert.Nil(t, rec["price"])
				assert.Nil(t, rec["description"])
			}
		})
	}
}

func TestAggregateLiteralPassthrough(t *testing.T) {
	task := `{"TaskName":"nightly"}`
	mapping := Mapping{
		{Name: "id", Source: Literal("not-an-id")},
		{Name: "thor_task", Source: Literal(task)},
		{Name: "Host", Source: Literal("worker-3")},
	}

	ids := []string{"a", "b", "c"}
	got := Aggregate(ids, nil, mapping)
	require.Len(t, got, len(ids))
	for i, rec := range got {
		assert.Equal(t, ids[i], rec["id"], "id is always the current id")
		assert.Equal(t, task, rec["thor_task"])
		assert.Equal(t, "worker-3", rec["Host"])
	}
}

func TestAggregateNoIDs(t *testing.T) {
	got := Aggregate(nil, nil, testMapping())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMappingColumns(t *testing.T) {
	assert.Equal(t,
		[]string{"title", "id", "price", "description", "number_owners", "thor_website", "thor_mmr"},
		testMapping().Columns())
	assert.Equal(t, "details", DetailTable.String())
}
