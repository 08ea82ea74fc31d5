package jsonl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

var runTime = time.Unix(1719835200, 0)

func sampleResult() *models.Result {
	r := models.NewResult("ksl.com", []string{"title", "id"})
	r.SearchResults = []models.Record{{"id": json.Number("1")}, {"id": json.Number("2")}}
	r.Listings = []models.Record{{"title": "2001 Ford F-250", "id": "1"}}
	r.TaskTelemetry = []models.Record{{"title": "2001 Ford F-250", "id": "1"}}
	r.UserTelemetry = models.UserTelemetry{TaskName: "t", Host: "h", AccountID: "a"}
	r.Errors.Append(models.ErrorRecord{ErrorName: "Timeout", ErrorTime: "2024-07-01 12:00:00", ErrorDescription: "Timeout error on page 2"})
	return r
}

func lines(data []byte) [][]byte {
	return bytes.Split(bytes.TrimSpace(data), []byte("\n"))
}

func TestWritePlain(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dir: dir, Now: func() time.Time { return runTime }}, nil)
	require.NoError(t, err)
	defer w.Close()

	result := sampleResult()
	require.NoError(t, w.Write(context.Background(), result))

	runDir := filepath.Join(dir, "ksl.com", "1719835200")
	assert.Equal(t, runDir, w.RunDir(result, runTime))

	data, err := os.ReadFile(filepath.Join(runDir, SearchResultsFile))
	require.NoError(t, err)
	assert.Len(t, lines(data), 2)

	data, err = os.ReadFile(filepath.Join(runDir, UserTelemetryFile))
	require.NoError(t, err)
	var ut models.UserTelemetry
	require.NoError(t, json.Unmarshal(lines(data)[0], &ut))
	assert.Equal(t, result.UserTelemetry, ut)

	data, err = os.ReadFile(filepath.Join(runDir, ErrorsFile))
	require.NoError(t, err)
	var desc models.ErrorDescriptor
	require.NoError(t, json.Unmarshal(data, &desc))
	assert.False(t, desc.Disable)
	require.Len(t, desc.ErrorData, 1)
	assert.Equal(t, "Timeout", desc.ErrorData[0].ErrorName)

	data, err = os.ReadFile(filepath.Join(runDir, DetailEnvelopesFile))
	require.NoError(t, err)
	assert.Empty(t, data, "empty artifacts still get a file")
}

func TestWriteCompressed(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dir: dir, Compression: compression.Gzip, Now: func() time.Time { return runTime }}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), sampleResult()))

	runDir := filepath.Join(dir, "ksl.com", "1719835200")
	data, err := os.ReadFile(filepath.Join(runDir, ListingsFile+".gz"))
	require.NoError(t, err)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	plain, err := comp.Decompress(data)
	require.NoError(t, err)

	var listing map[string]interface{}
	require.NoError(t, json.Unmarshal(lines(plain)[0], &listing))
	assert.Equal(t, "2001 Ford F-250", listing["title"])

	_, err = os.Stat(filepath.Join(runDir, ErrorsFile))
	assert.NoError(t, err, "errors.json is not compressed")
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Dir: t.TempDir(), Compression: "rar"}, nil)
	assert.Error(t, err)
}

func TestWriteCancelled(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, sampleResult()), context.Canceled)
}
