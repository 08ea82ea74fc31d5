// Package metrics exposes thor's Prometheus collectors.
//
// Every collector is registered on the default registry through promauto and
// labelled by site, so a process that scrapes several sites reports each one
// separately. A one-shot CLI run has no scrape endpoint, so WriteTextfile
// dumps the registry in the text exposition format for the node-exporter
// textfile collector.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("ksl.com")
//	body, err := session.Do(ctx, req)
//	metrics.ObserveRequest("ksl.com", err, timer.Stop())
//	metrics.RecordsTotal.WithLabelValues("ksl.com", metrics.StageSearch).Add(float64(len(items)))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/thor/pkg/errors"
)

// Record stages.
const (
	StageSearch   = "search"
	StageNew      = "new"
	StageDetail   = "detail"
	StageListing  = "listing"
	StageEnvelope = "envelope"
)

// Request outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	// HTTPRequests counts upstream requests by outcome.
	// Labels: site, outcome (ok/timeout/error)
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thor_http_requests_total",
			Help: "Total number of upstream HTTP requests",
		},
		[]string{"site", "outcome"},
	)

	// HTTPRequestDuration tracks upstream request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thor_http_request_duration_seconds",
			Help:    "Upstream HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"site"},
	)

	// RecordsTotal counts records produced at each pipeline stage.
	//
	// Example:
	//	metrics.RecordsTotal.WithLabelValues("craigslist.com", metrics.StageDetail).Add(12)
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thor_records_total",
			Help: "Total number of records produced per stage",
		},
		[]string{"site", "stage"},
	)

	// ErrorsTotal counts error records by upstream error name.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thor_errors_total",
			Help: "Total number of error records",
		},
		[]string{"site", "kind"},
	)

	// BlockedTotal counts runs refused by the access guard.
	BlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thor_blocked_total",
			Help: "Total number of runs stopped by the access guard",
		},
		[]string{"site"},
	)

	// RunDuration tracks whole-run wall time in seconds.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thor_run_duration_seconds",
			Help:    "Wall time of a full scrape run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"site"},
	)
)

// ObserveRequest records one upstream request and its latency.
func ObserveRequest(site string, err error, d time.Duration) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.IsTimeout(err):
		outcome = OutcomeTimeout
	default:
		outcome = OutcomeError
	}
	HTTPRequests.WithLabelValues(site, outcome).Inc()
	HTTPRequestDuration.WithLabelValues(site).Observe(d.Seconds())
}

// WriteTextfile writes the default gatherer to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
