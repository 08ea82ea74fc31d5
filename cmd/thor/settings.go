package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/thor/pkg/config"
)

// envBindings maps config keys to the environment variables that override
// them. Connection strings are typically injected this way rather than
// written into thor.yaml.
var envBindings = map[string]string{
	"log.level":                      "THOR_LOG_LEVEL",
	"outputs.dir":                    "THOR_OUTPUTS_DIR",
	"outputs.compression":            "THOR_OUTPUTS_COMPRESSION",
	"outputs.postgres.url":           "THOR_POSTGRES_URL",
	"outputs.kafka.brokers":          "THOR_KAFKA_BROKERS",
	"outputs.mongodb.uri":            "THOR_MONGODB_URI",
	"outputs.s3.bucket":              "THOR_S3_BUCKET",
	"outputs.s3.region":              "THOR_S3_REGION",
	"outputs.s3.endpoint":            "THOR_S3_ENDPOINT",
	"observability.metrics_file":     "THOR_METRICS_FILE",
	"observability.tracing.exporter": "THOR_TRACING_EXPORTER",
	"guard.ip_check_url":             "THOR_IP_CHECK_URL",
	"http.user_agent":                "THOR_USER_AGENT",
	"http.rate_limit":                "THOR_RATE_LIMIT",
}

// flagBindings maps command line flags onto config keys.
var flagBindings = map[string]string{
	"out":       "outputs.dir",
	"log-level": "log.level",
}

// newViper returns a viper instance reading THOR_* variables and the
// flags in flags that are bound to config keys.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("THOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}
	return v, nil
}

// loadConfig reads path (when set) over the defaults, applies environment
// and flag overrides from v, then validates the result.
func loadConfig(path string, v *viper.Viper) (*config.Config, error) {
	return config.LoadFile(path, func(cfg *config.Config) { overlay(v, cfg) })
}

func overlay(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}

	str("log.level", &cfg.Log.Level)
	str("outputs.dir", &cfg.Outputs.Dir)
	str("outputs.compression", &cfg.Outputs.Compression)
	str("outputs.postgres.url", &cfg.Outputs.Postgres.URL)
	str("outputs.mongodb.uri", &cfg.Outputs.MongoDB.URI)
	str("outputs.s3.bucket", &cfg.Outputs.S3.Bucket)
	str("outputs.s3.region", &cfg.Outputs.S3.Region)
	str("outputs.s3.endpoint", &cfg.Outputs.S3.Endpoint)
	str("observability.metrics_file", &cfg.Observability.MetricsFile)
	str("observability.tracing.exporter", &cfg.Observability.Tracing.Exporter)
	str("guard.ip_check_url", &cfg.Guard.IPCheckURL)
	str("http.user_agent", &cfg.HTTP.UserAgent)

	if v.IsSet("outputs.kafka.brokers") {
		var brokers []string
		for _, b := range strings.Split(v.GetString("outputs.kafka.brokers"), ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) > 0 {
			cfg.Outputs.Kafka.Brokers = brokers
		}
	}
	if v.IsSet("http.rate_limit") {
		if rate := v.GetFloat64("http.rate_limit"); rate > 0 {
			cfg.HTTP.RateLimit = rate
		}
	}
}
