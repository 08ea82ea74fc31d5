package metrics

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	site := "metrics-test.example"

	ObserveRequest(site, nil, 0)
	ObserveRequest(site, context.DeadlineExceeded, 0)
	ObserveRequest(site, io.EOF, 0)
	ObserveRequest(site, io.EOF, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequests.WithLabelValues(site, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequests.WithLabelValues(site, OutcomeTimeout)))
	assert.Equal(t, 2.0, testutil.ToFloat64(HTTPRequests.WithLabelValues(site, OutcomeError)))
}

func TestWriteTextfile(t *testing.T) {
	BlockedTotal.WithLabelValues("textfile-test.example").Inc()

	path := filepath.Join(t.TempDir(), "thor.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `thor_blocked_total{site="textfile-test.example"} 1`))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("run")
	assert.Equal(t, "run", timer.Name())
	first := timer.Stop()
	assert.GreaterOrEqual(t, timer.Stop(), first)
}
