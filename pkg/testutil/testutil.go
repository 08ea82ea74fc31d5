// Package testutil provides helpers shared by thor's package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestContext returns a context that is cancelled after 30 seconds or when
// the test finishes, whichever comes first.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// RequireEnv returns the value of the environment variable name, skipping
// the test when it is unset. Integration tests against live services use
// it to stay opt-in.
func RequireEnv(t *testing.T, name string) string {
	t.Helper()
	value := os.Getenv(name)
	if value == "" {
		t.Skipf("%s not set", name)
	}
	return value
}
