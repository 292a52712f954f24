package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/travel"
)

var query = travel.Query{
	Origin:      geo.Coordinate{Lat: -33.8568, Lng: 151.2153},
	Destination: geo.Coordinate{Lat: -33.8523, Lng: 151.2108},
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Cost_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/matrix/foot-walking", r.URL.Path)
		assert.Equal(t, "mock123", r.Header.Get("Authorization"))

		var body matrixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, [][]float64{{151.2153, -33.8568}, {151.2108, -33.8523}}, body.Locations)
		assert.Equal(t, []int{0}, body.Sources)
		assert.Equal(t, []int{1}, body.Destinations)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"durations":[[512.7]],"distances":[[711.2]]}`))
	})

	cost, err := client.Cost(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 512, cost.Seconds)
	assert.InDelta(t, 711.2, cost.DistanceMeters, 1e-9)
	assert.Equal(t, ProviderName, cost.Attribution.Provider)
	assert.Equal(t, Profile, cost.Attribution.Profile)
}

func TestClient_Cost_NullCellIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"durations":[[null]]}`))
	})

	_, err := client.Cost(context.Background(), query)
	assert.ErrorIs(t, err, travel.ErrMalformedResponse)
}

func TestClient_Geometry_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/directions/foot-walking", r.URL.Path)
		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":812.4,"duration":601.9},"geometry":"_p~iF~ps|U_ulLnnqC"}]}`))
	})

	geom, err := client.Geometry(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC", geom.Polyline)
	assert.Equal(t, 601, geom.Seconds)
	assert.InDelta(t, 812.4, geom.DistanceMeters, 1e-9)
}

func TestClient_Geometry_NoRoutes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[]}`))
	})

	_, err := client.Geometry(context.Background(), query)
	assert.ErrorIs(t, err, travel.ErrNoRoute)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantCode string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":0,"message":"quota"}}`, travel.ErrRateLimitExceeded, "RATE_LIMIT"},
		{"forbidden", http.StatusForbidden, `{"error":{"code":0,"message":"denied"}}`, travel.ErrProviderUnavailable, "FORBIDDEN"},
		{"route not found", http.StatusBadRequest, `{"error":{"code":2009,"message":"Route could not be found"}}`, travel.ErrNoRoute, "NO_ROUTE"},
		{"bad request", http.StatusBadRequest, `{"error":{"code":2003,"message":"bad parameter"}}`, travel.ErrMalformedResponse, "HTTP_400"},
		{"server error", http.StatusBadGateway, `{"error":{"code":0,"message":"upstream"}}`, travel.ErrProviderUnavailable, "SERVER_502"},
		{"unparseable body", http.StatusInternalServerError, `<html>oops</html>`, travel.ErrProviderUnavailable, "HTTP_500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Cost(context.Background(), query)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var terr *travel.Error
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.wantCode, terr.Code)
			assert.Equal(t, ProviderName, terr.Provider)
		})
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"durations":`))
	})

	_, err := client.Cost(context.Background(), query)
	assert.ErrorIs(t, err, travel.ErrMalformedResponse)
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientConfig{APIKey: "k", BaseURL: url, HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})
	_, err := client.Cost(context.Background(), query)
	assert.ErrorIs(t, err, travel.ErrProviderUnavailable)
}

func TestClient_FallbackDecoratorAbsorbsFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	p := travel.NewFallbackCost(client, travel.FallbackConfig{Logger: zerolog.Nop()})

	cost, err := p.Cost(context.Background(), travel.Query{Origin: query.Origin, Destination: query.Destination, WalkingSpeed: 1.35})
	require.NoError(t, err)
	assert.True(t, cost.Attribution.Fallback)
	assert.Equal(t, travel.StraightLineName, cost.Attribution.Provider)
}
