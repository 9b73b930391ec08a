package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("test-logger", "debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger.SugaredLogger)

	_, err = NewLogger("test-logger", "loud", "console")
	assert.Error(t, err)

	_, err = NewLogger("test-logger", "info", "xml")
	assert.Error(t, err)
}

func TestWithRequestIDAndSearch(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := Wrap(zap.New(core)).WithRequestID("req-1").WithSearch("abc")

	logger.Infow("searching", "results", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request-id"])
	assert.Equal(t, "abc", fields["search-fingerprint"])
	assert.Equal(t, int64(3), fields["results"])
}

func TestContextRoundTrip(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := Wrap(zap.New(core)).AttachToContext(context.Background())

	FromContext(ctx).Info("hello")
	assert.Equal(t, 1, logs.Len())

	// A bare context still yields a usable logger.
	FromContext(context.Background()).Info("dropped")
	assert.Equal(t, 1, logs.Len())

	FromContextOr(context.Background(), FromContext(ctx)).Info("fallback")
	assert.Equal(t, 2, logs.Len())
}
