package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/logging"
)

type emptySource struct{}

func (emptySource) GetEntities(context.Context, []uuid.UUID) ([]domain.EntityDetail, error) {
	return nil, nil
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var fromHandler logging.Logger
	handler := LoggingMiddleware(logging.Wrap(zap.New(core)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromHandler = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/entities", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	require.NotNil(t, fromHandler.SugaredLogger)
	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request-id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
}

func TestLoggingMiddlewareGeneratesRequestID(t *testing.T) {
	handler := LoggingMiddleware(logging.NewNopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestDataLoaderMiddleware(t *testing.T) {
	var found bool
	handler := DataLoaderMiddleware(emptySource{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		found = EntityLoaderFromContext(r.Context()) != nil
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, found)
	assert.Nil(t, EntityLoaderFromContext(context.Background()))
}
