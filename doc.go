// Package thor acquires vehicle listings from online marketplaces and
// normalizes them into one listing schema.
//
// A run takes a task (search terms such as make, model and year range) and
// a user (an account, optionally behind a proxy) and drives one site
// through the same stages:
//
//  1. Access guard: confirm the proxy is in effect and the site still
//     serves the session. A blocked run stops here and is reported with
//     Disable set.
//  2. Search: page through the site's search endpoint and dedupe the hits.
//  3. Duplicate filter: drop listings that an earlier run already stored.
//  4. Details: fetch the detail payload of each new listing.
//  5. Aggregate: join search and detail records by id and map them onto
//     the listing columns.
//
// # Quick Start
//
//	adapter, _ := sites.New("ksl", sites.OptionsFrom(cfg.Site("ksl"), log))
//	runner := pipeline.NewRunner(cfg, log)
//	result := runner.Run(ctx, adapter, task, user, pipeline.AcceptAll, pipeline.NewProcessTimer())
//
//	set, _ := destinations.Open(ctx, cfg.Outputs, log)
//	defer set.Close()
//	_ = set.Write(ctx, result)
//
// # Key Packages
//
//	pkg/sites          - Site adapters (craigslist, autotrader, ksl) and their registry
//	pkg/clients        - HTTP sessions with proxies, HTTP/2 and rate limiting
//	pkg/guard          - Proxy and block detection
//	pkg/fetch          - Paginated search and detail fetching
//	pkg/aggregate      - Join and column mapping of search and detail records
//	pkg/destinations   - jsonl, csv, PostgreSQL, Kafka, MongoDB and S3 sinks
//	pkg/config         - YAML configuration with environment substitution
//	pkg/errors         - Structured error handling
//	pkg/logger         - Structured logging
//	pkg/metrics        - Prometheus collectors
//	pkg/observability  - OpenTelemetry tracing
//
// The thor command in cmd/thor wires these together; see "thor run --help".
package thor
