package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/logger"
)

// Config is the root configuration of a thor process.
type Config struct {
	// Log configures the global zap logger
	Log logger.Config `yaml:"log" json:"log"`

	// HTTP configures every site session
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Guard configures the access guard that runs before each scrape
	Guard GuardConfig `yaml:"guard" json:"guard"`

	// Sites holds per-site overrides keyed by registered site name
	Sites map[string]SiteConfig `yaml:"sites" json:"sites"`

	// Outputs selects where run results are written
	Outputs OutputsConfig `yaml:"outputs" json:"outputs"`

	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// HTTPConfig contains session transport settings.
type HTTPConfig struct {
	// Timeout bounds each request, including reading the body
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	// HTTP2 enables HTTP/2 on the transport
	HTTP2 bool `yaml:"http2" json:"http2"`
	// RateLimit caps requests per second per session (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst is the limiter burst size
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// UserAgent overrides the site default User-Agent when set
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// GuardConfig contains access guard settings.
type GuardConfig struct {
	// IPCheckURL returns the caller's public IP as plain text
	IPCheckURL string `yaml:"ip_check_url" json:"ip_check_url"`
	// Timeout bounds the identity check
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SiteConfig overrides a site adapter's defaults. Zero values keep the
// adapter default.
type SiteConfig struct {
	SearchDelay time.Duration     `yaml:"search_delay" json:"search_delay"`
	DetailDelay time.Duration     `yaml:"detail_delay" json:"detail_delay"`
	MaxPages    int               `yaml:"max_pages" json:"max_pages"`
	Endpoints   map[string]string `yaml:"endpoints" json:"endpoints"`
}

// OutputsConfig selects destinations. A destination is enabled when its
// connection setting is present.
type OutputsConfig struct {
	// Dir is the root of the jsonl and csv output tree; empty disables both
	Dir string `yaml:"dir" json:"dir"`
	// Compression applies to jsonl files and s3 archives
	Compression string `yaml:"compression" json:"compression"`
	// CSV also writes listings.csv next to the jsonl files
	CSV bool `yaml:"csv" json:"csv"`

	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	MongoDB  MongoDBConfig  `yaml:"mongodb" json:"mongodb"`
	S3       S3Config       `yaml:"s3" json:"s3"`
}

// PostgresConfig configures the listing store and duplicate filter.
type PostgresConfig struct {
	URL   string `yaml:"url" json:"url"`
	Table string `yaml:"table" json:"table"`
}

// KafkaConfig configures the telemetry publisher.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers" json:"brokers"`
	ListingsTopic string   `yaml:"listings_topic" json:"listings_topic"`
	UsersTopic    string   `yaml:"users_topic" json:"users_topic"`
}

// MongoDBConfig configures the envelope store.
type MongoDBConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Database string `yaml:"database" json:"database"`
}

// S3Config configures the raw archive upload.
type S3Config struct {
	Bucket   string `yaml:"bucket" json:"bucket"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// ObservabilityConfig contains metrics and tracing settings.
type ObservabilityConfig struct {
	// MetricsFile receives a Prometheus textfile after each run when set
	MetricsFile string        `yaml:"metrics_file" json:"metrics_file"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	// Exporter is "none" or "stdout"
	Exporter     string  `yaml:"exporter" json:"exporter"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Default returns a configuration that scrapes with conservative timeouts and
// writes nothing.
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		HTTP: HTTPConfig{
			Timeout:     30 * time.Second,
			DialTimeout: 10 * time.Second,
			HTTP2:       true,
			RateBurst:   1,
		},
		Guard: GuardConfig{
			IPCheckURL: "https://icanhazip.com",
			Timeout:    10 * time.Second,
		},
		Sites: map[string]SiteConfig{},
		Outputs: OutputsConfig{
			Compression: "none",
			Postgres:    PostgresConfig{Table: "thor_listings"},
			Kafka: KafkaConfig{
				ListingsTopic: "thor.listings",
				UsersTopic:    "thor.users",
			},
			MongoDB: MongoDBConfig{Database: "thor"},
			S3:      S3Config{Prefix: "raw"},
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Exporter:     "none",
				ServiceName:  "thor",
				SamplingRate: 1,
			},
		},
	}
}

// LoadFile reads path over Default, applies overlays in order and
// validates the result. An empty path starts from Default alone.
func LoadFile(path string, overlays ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := Load(path, cfg); err != nil {
			return nil, err
		}
	}
	for _, overlay := range overlays {
		overlay(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.DialTimeout < 0 {
		return fmt.Errorf("http.dial_timeout cannot be negative")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http.rate_burst must be positive when rate_limit is set")
	}
	if c.Guard.IPCheckURL == "" {
		return fmt.Errorf("guard.ip_check_url is required")
	}
	if c.Guard.Timeout <= 0 {
		return fmt.Errorf("guard.timeout must be positive")
	}
	for name, site := range c.Sites {
		if site.SearchDelay < 0 || site.DetailDelay < 0 {
			return fmt.Errorf("sites.%s: delays cannot be negative", name)
		}
		if site.MaxPages < 0 {
			return fmt.Errorf("sites.%s: max_pages cannot be negative", name)
		}
	}
	if _, err := compression.ParseAlgorithm(c.Outputs.Compression); err != nil {
		return fmt.Errorf("outputs.compression: %w", err)
	}
	if len(c.Outputs.Kafka.Brokers) > 0 && c.Outputs.Kafka.ListingsTopic == "" {
		return fmt.Errorf("outputs.kafka.listings_topic is required when brokers are set")
	}
	if c.Outputs.S3.Bucket != "" && c.Outputs.S3.Region == "" {
		return fmt.Errorf("outputs.s3.region is required when bucket is set")
	}
	switch c.Observability.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("observability.tracing.exporter must be none or stdout, got %q", c.Observability.Tracing.Exporter)
	}
	return nil
}

// Site returns the overrides for name, or a zero SiteConfig.
func (c *Config) Site(name string) SiteConfig {
	if c.Sites == nil {
		return SiteConfig{}
	}
	return c.Sites[name]
}

// IsRateLimited returns true if rate limiting is enabled
func (h *HTTPConfig) IsRateLimited() bool {
	return h.RateLimit > 0
}
