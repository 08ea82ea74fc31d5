package models

// Result is everything one run produces.
type Result struct {
	// Site is the site identifier, e.g. "ksl.com"
	Site string `json:"site"`

	SearchResults  []Record `json:"search_results"`
	ListingDetails []Record `json:"listing_details"`
	Listings       []Record `json:"listings"`
	// TaskTelemetry is a copy of Listings for the telemetry stream
	TaskTelemetry []Record      `json:"task_telemetry"`
	UserTelemetry UserTelemetry `json:"user_telemetry"`

	Errors ErrorDescriptor `json:"errors"`
	// Columns is the listing column order
	Columns []string `json:"columns"`

	SearchEnvelopes []Record `json:"search_envelopes"`
	DetailEnvelopes []Record `json:"detail_envelopes"`
}

// NewResult returns an empty, fully shaped result for site.
func NewResult(site string, columns []string) *Result {
	return &Result{
		Site:            site,
		SearchResults:   []Record{},
		ListingDetails:  []Record{},
		Listings:        []Record{},
		TaskTelemetry:   []Record{},
		Errors:          ErrorDescriptor{ErrorData: []ErrorRecord{}},
		Columns:         columns,
		SearchEnvelopes: []Record{},
		DetailEnvelopes: []Record{},
	}
}

// Blocked reports whether the run was refused by the site.
func (r *Result) Blocked() bool {
	return r != nil && r.Errors.Disable
}
