package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/gopti/gopti/internal/api/middleware"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func collectCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			return sum.DataPoints
		}
	}
	return nil
}

func TestNewHTTPMetrics(t *testing.T) {
	setupTestMeter(t)
	m, err := middleware.NewHTTPMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestHTTPMetrics_CountsByRoute(t *testing.T) {
	reader := setupTestMeter(t)
	m, err := middleware.NewHTTPMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Delete("/v1/admin/feature-flags/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, key := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/v1/admin/feature-flags/"+key, http.NoBody))
	}

	points := collectCounter(t, reader, "http.server.request.total")
	require.Len(t, points, 1, "one series per route pattern")
	assert.Equal(t, int64(3), points[0].Value)

	route, ok := points[0].Attributes.Value(attribute.Key("http.route"))
	require.True(t, ok)
	assert.Equal(t, "/v1/admin/feature-flags/{key}", route.AsString())
}

func TestHTTPMetrics_FlagsErrors(t *testing.T) {
	reader := setupTestMeter(t)
	m, err := middleware.NewHTTPMetrics()
	require.NoError(t, err)

	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"title":"Validation error"}`))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/solve", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	points := collectCounter(t, reader, "http.server.request.total")
	require.Len(t, points, 1)
	isErr, ok := points[0].Attributes.Value(attribute.Key("error"))
	require.True(t, ok)
	assert.True(t, isErr.AsBool())
	status, _ := points[0].Attributes.Value(attribute.Key("http.response.status_code"))
	assert.Equal(t, "400", status.AsString())
}

func TestHTTPMetrics_DefaultStatusCode(t *testing.T) {
	setupTestMeter(t)
	m, err := middleware.NewHTTPMetrics()
	require.NoError(t, err)

	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
}
