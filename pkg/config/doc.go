// Package config loads thor's process configuration.
//
// Configuration is a single YAML document. Any value may reference the
// environment with ${VAR_NAME} or ${VAR_NAME:-fallback}:
//
//	log:
//	  level: info
//	http:
//	  timeout: 30s
//	  http2: true
//	sites:
//	  craigslist:
//	    search_delay: 2s
//	    endpoints:
//	      search: https://sapi.craigslist.org/web/v8/postings/search/full
//	outputs:
//	  dir: ./out
//	  compression: zstd
//	  postgres:
//	    url: ${THOR_POSTGRES_URL}
//
// Task and user descriptors are read with the same Load function, so they
// may be written in YAML or JSON.
package config
