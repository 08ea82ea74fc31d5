package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/thor/pkg/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	v, err := newViper(nil)
	require.NoError(t, err)

	cfg, err := loadConfig("", v)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Outputs.Dir)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("THOR_POSTGRES_URL", "postgres://thor@db/thor")
	t.Setenv("THOR_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("THOR_RATE_LIMIT", "2.5")

	path := writeConfig(t, `
outputs:
  dir: /var/lib/thor
  postgres:
    url: postgres://ignored
`)
	v, err := newViper(nil)
	require.NoError(t, err)

	cfg, err := loadConfig(path, v)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/thor", cfg.Outputs.Dir)
	assert.Equal(t, "postgres://thor@db/thor", cfg.Outputs.Postgres.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Outputs.Kafka.Brokers)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimit, 0.001)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("out", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--out", "/tmp/thor", "--log-level", "debug"}))

	v, err := newViper(flags)
	require.NoError(t, err)

	cfg, err := loadConfig("", v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/thor", cfg.Outputs.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
outputs:
  compression: rar
`)
	v, err := newViper(nil)
	require.NoError(t, err)

	_, err = loadConfig(path, v)
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("THOR_POSTGRES_URL", "postgres://thor@db/thor")
	path := writeConfig(t, `
http:
  timeout: 9s
`)
	file := filepath.Join(t.TempDir(), "effective.yaml")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path, "--file", file, "--out", "/srv/thor"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), file)

	cfg, err := config.LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "postgres://thor@db/thor", cfg.Outputs.Postgres.URL)
	assert.Equal(t, "/srv/thor", cfg.Outputs.Dir)
}

func TestConfigCommandRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
outputs:
  compression: rar
`)
	file := filepath.Join(t.TempDir(), "effective.yaml")

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "--config", path, "--file", file})
	require.Error(t, root.Execute())
	assert.NoFileExists(t, file)
}

func TestListCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"list"})
	require.NoError(t, root.Execute())

	for _, site := range []string{"autotrader", "craigslist", "ksl"} {
		assert.Contains(t, out.String(), site)
	}
}
