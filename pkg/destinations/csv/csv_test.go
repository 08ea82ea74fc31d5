package csv

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

func TestWrite(t *testing.T) {
	now := time.Unix(1719835200, 0)
	w, err := New(Config{Dir: t.TempDir(), Now: func() time.Time { return now }}, nil)
	require.NoError(t, err)

	result := models.NewResult("craigslist.com", []string{"title", "id", "price", "listing_photos", "vin"})
	result.Listings = []models.Record{
		{"title": `Ford "F-250", 7.3`, "id": "7781", "price": int64(9500), "listing_photos": []interface{}{"a.jpg", "b.jpg"}, "vin": nil},
	}
	require.NoError(t, w.Write(context.Background(), result))

	f, err := os.Open(w.Path(result, now))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, result.Columns, rows[0])
	assert.Equal(t, []string{`Ford "F-250", 7.3`, "7781", "9500", `["a.jpg","b.jpg"]`, ""}, rows[1])
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{json.Number("15999"), "15999"},
		{int64(7), "7"},
		{float64(2.5), "2.5"},
		{map[string]interface{}{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Cell(tt.in))
	}
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
