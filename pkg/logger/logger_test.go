package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestWithContext(t *testing.T) {
	ctx := ContextWith(context.Background(), "Nightly F250", "ksl.com", "acct-9")

	assert.Equal(t, "Nightly F250", ctx.Value(TaskKey))
	assert.Equal(t, "ksl.com", ctx.Value(SiteKey))
	assert.Equal(t, "acct-9", ctx.Value(AccountKey))
	assert.NotNil(t, WithContext(ctx))
}
