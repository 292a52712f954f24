// Package openrouteservice implements walking cost and geometry providers backed
// by the OpenRouteService matrix and directions APIs.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/travel"
)

const (
	// ProviderName identifies this provider in cache keys, health and metrics.
	ProviderName = "openrouteservice"

	// Profile is the ORS routing profile used for every request.
	Profile = "foot-walking"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultMatrixTimeout bounds a cost lookup.
	DefaultMatrixTimeout = 5 * time.Second

	// DefaultDirectionsTimeout bounds a geometry lookup.
	DefaultDirectionsTimeout = 8 * time.Second
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL overrides the API base URL (optional).
	BaseURL string

	// HTTPClient overrides the transport (optional).
	// If nil, a resilient client registered with Registry is used.
	HTTPClient HTTPDoer

	// MatrixTimeout and DirectionsTimeout bound individual lookups.
	MatrixTimeout     time.Duration
	DirectionsTimeout time.Duration

	// RatePerSecond paces outbound requests (optional).
	RatePerSecond float64

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an OpenRouteService client. It satisfies both travel.CostProvider
// and travel.GeometryProvider.
type Client struct {
	apiKey            string
	baseURL           string
	httpClient        HTTPDoer
	matrixTimeout     time.Duration
	directionsTimeout time.Duration
	logger            zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	matrixTimeout := cfg.MatrixTimeout
	if matrixTimeout == 0 {
		matrixTimeout = DefaultMatrixTimeout
	}
	directionsTimeout := cfg.DirectionsTimeout
	if directionsTimeout == 0 {
		directionsTimeout = DefaultDirectionsTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = directionsTimeout
		clientCfg.RatePerSecond = cfg.RatePerSecond
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:            cfg.APIKey,
		baseURL:           baseURL,
		httpClient:        httpClient,
		matrixTimeout:     matrixTimeout,
		directionsTimeout: directionsTimeout,
		logger:            cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Cost returns the walking duration and distance from the ORS matrix API.
func (c *Client) Cost(ctx context.Context, q travel.Query) (travel.Cost, error) {
	ctx, cancel := context.WithTimeout(ctx, c.matrixTimeout)
	defer cancel()

	body := matrixRequest{
		Locations:    [][]float64{lngLat(q.Origin.Lng, q.Origin.Lat), lngLat(q.Destination.Lng, q.Destination.Lat)},
		Sources:      []int{0},
		Destinations: []int{1},
		Metrics:      []string{"duration", "distance"},
		Units:        "m",
	}

	var resp matrixResponse
	if err := c.post(ctx, "/v2/matrix/"+Profile, body, &resp); err != nil {
		return travel.Cost{}, err
	}

	if len(resp.Durations) < 1 || len(resp.Durations[0]) < 1 || resp.Durations[0][0] == nil {
		return travel.Cost{}, malformed("matrix response has no duration")
	}
	cost := travel.Cost{
		Seconds:     int(*resp.Durations[0][0]),
		Attribution: c.attribution(),
	}
	if len(resp.Distances) > 0 && len(resp.Distances[0]) > 0 && resp.Distances[0][0] != nil {
		cost.DistanceMeters = *resp.Distances[0][0]
	}
	return cost, nil
}

// Geometry returns the walking path from the ORS directions API. ORS encodes
// geometry at precision 5, which is passed through unchanged.
func (c *Client) Geometry(ctx context.Context, q travel.Query) (travel.Geometry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.directionsTimeout)
	defer cancel()

	body := directionsRequest{
		Coordinates:  [][]float64{lngLat(q.Origin.Lng, q.Origin.Lat), lngLat(q.Destination.Lng, q.Destination.Lat)},
		Instructions: false,
		Geometry:     true,
		Units:        "m",
	}

	var resp directionsResponse
	if err := c.post(ctx, "/v2/directions/"+Profile, body, &resp); err != nil {
		return travel.Geometry{}, err
	}
	if len(resp.Routes) == 0 {
		return travel.Geometry{}, &travel.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      travel.ErrNoRoute,
		}
	}
	route := resp.Routes[0]
	if route.Geometry == "" {
		return travel.Geometry{}, malformed("route has no geometry")
	}

	return travel.Geometry{
		Polyline:       route.Geometry,
		Seconds:        int(route.Summary.Duration),
		DistanceMeters: route.Summary.Distance,
		Attribution:    c.attribution(),
	}, nil
}

func (c *Client) attribution() travel.Attribution {
	return travel.Attribution{Provider: ProviderName, Mode: travel.ModeWalking, Profile: Profile}
}

// post sends a JSON body and decodes a successful JSON response into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().Str("path", path).Msg("requesting openrouteservice")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &travel.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", travel.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return malformed("decoding response: " + err.Error())
	}
	return nil
}

// handleErrorResponse maps ORS error responses to travel errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr errorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		return &travel.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      travel.ErrProviderUnavailable,
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &travel.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded",
			Err:      travel.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &travel.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied, check API key configuration",
			Err:      travel.ErrProviderUnavailable,
		}
	case statusCode == http.StatusNotFound || orsErr.Error.Code == errorCodeRouteNotFound:
		return &travel.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      travel.ErrNoRoute,
		}
	case statusCode >= 500:
		return &travel.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      travel.ErrProviderUnavailable,
		}
	default:
		return &travel.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  orsErr.Error.Message,
			Err:      travel.ErrMalformedResponse,
		}
	}
}

func malformed(msg string) error {
	return &travel.Error{
		Provider: ProviderName,
		Code:     "MALFORMED",
		Message:  msg,
		Err:      travel.ErrMalformedResponse,
	}
}

// lngLat builds a GeoJSON-ordered position.
func lngLat(lng, lat float64) []float64 {
	return []float64{lng, lat}
}
