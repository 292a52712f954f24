// Package mapbox implements walking cost and geometry providers backed by the
// Mapbox Matrix and Directions APIs.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/pkg/polyline"
)

const (
	// ProviderName identifies this provider in cache keys, health and metrics.
	ProviderName = "mapbox"

	// Profile is the Mapbox routing profile used for every request.
	Profile = "walking"

	// DefaultBaseURL is the Mapbox API base URL.
	DefaultBaseURL = "https://api.mapbox.com"

	DefaultMatrixTimeout     = 5 * time.Second
	DefaultDirectionsTimeout = 8 * time.Second

	// geometryPrecision is the precision Mapbox returns for polyline6.
	geometryPrecision = 6
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Mapbox client.
type ClientConfig struct {
	// AccessToken is the Mapbox access token (required).
	AccessToken string

	BaseURL           string
	HTTPClient        HTTPDoer
	MatrixTimeout     time.Duration
	DirectionsTimeout time.Duration
	RatePerSecond     float64
	Registry          *resilience.Registry
	Logger            zerolog.Logger
}

// Client is a Mapbox client satisfying travel.CostProvider and
// travel.GeometryProvider.
type Client struct {
	token             string
	baseURL           string
	httpClient        HTTPDoer
	matrixTimeout     time.Duration
	directionsTimeout time.Duration
	logger            zerolog.Logger
}

// NewClient creates a new Mapbox client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		token:             cfg.AccessToken,
		baseURL:           cfg.BaseURL,
		httpClient:        cfg.HTTPClient,
		matrixTimeout:     cfg.MatrixTimeout,
		directionsTimeout: cfg.DirectionsTimeout,
		logger:            cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.matrixTimeout == 0 {
		c.matrixTimeout = DefaultMatrixTimeout
	}
	if c.directionsTimeout == 0 {
		c.directionsTimeout = DefaultDirectionsTimeout
	}
	if c.httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = c.directionsTimeout
		clientCfg.RatePerSecond = cfg.RatePerSecond
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		c.httpClient = resilience.NewClient(clientCfg)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Cost returns the walking duration and distance from the Matrix API.
func (c *Client) Cost(ctx context.Context, q travel.Query) (travel.Cost, error) {
	ctx, cancel := context.WithTimeout(ctx, c.matrixTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("annotations", "duration,distance")

	var resp matrixResponse
	path := "/directions-matrix/v1/mapbox/" + Profile + "/" + coordinates(q.Origin, q.Destination)
	if err := c.get(ctx, path, params, &resp); err != nil {
		return travel.Cost{}, err
	}

	if len(resp.Durations) < 1 || len(resp.Durations[0]) < 2 || resp.Durations[0][1] == nil {
		return travel.Cost{}, malformed("unexpected matrix response shape")
	}
	cost := travel.Cost{
		Seconds:     int(*resp.Durations[0][1]),
		Attribution: attribution(),
	}
	if len(resp.Distances) > 0 && len(resp.Distances[0]) >= 2 && resp.Distances[0][1] != nil {
		cost.DistanceMeters = *resp.Distances[0][1]
	}
	return cost, nil
}

// Geometry returns the walking path from the Directions API, re-encoded at
// precision 5.
func (c *Client) Geometry(ctx context.Context, q travel.Query) (travel.Geometry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.directionsTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("geometries", "polyline6")
	params.Set("overview", "full")
	params.Set("steps", "false")

	var resp directionsResponse
	path := "/directions/v5/mapbox/" + Profile + "/" + coordinates(q.Origin, q.Destination)
	if err := c.get(ctx, path, params, &resp); err != nil {
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
	encoded, err := polyline.Reencode(route.Geometry, geometryPrecision, polyline.DefaultPrecision)
	if err != nil || encoded == "" {
		return travel.Geometry{}, malformed("route geometry is not a valid polyline6")
	}

	return travel.Geometry{
		Polyline:       encoded,
		Seconds:        int(route.Duration),
		DistanceMeters: route.Distance,
		Attribution:    attribution(),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("access_token", c.token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("path", path).Msg("requesting mapbox")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &travel.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach mapbox",
			Err:      fmt.Errorf("%w: %w", travel.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	var envelope apiStatus
	_ = json.Unmarshal(body, &envelope)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &travel.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "API rate limit exceeded", Err: travel.ErrRateLimitExceeded}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &travel.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: "access token rejected", Err: travel.ErrProviderUnavailable}
	case resp.StatusCode >= 500:
		return &travel.Error{Provider: ProviderName, Code: fmt.Sprintf("SERVER_%d", resp.StatusCode), Message: "mapbox is temporarily unavailable", Err: travel.ErrProviderUnavailable}
	case envelope.Code == "NoRoute" || envelope.Code == "NoSegment":
		return &travel.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: envelope.Message, Err: travel.ErrNoRoute}
	case resp.StatusCode != http.StatusOK:
		return &travel.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: envelope.Message, Err: travel.ErrMalformedResponse}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return malformed("decoding response: " + err.Error())
	}
	return nil
}

func attribution() travel.Attribution {
	return travel.Attribution{Provider: ProviderName, Mode: travel.ModeWalking, Profile: Profile}
}

func malformed(msg string) error {
	return &travel.Error{Provider: ProviderName, Code: "MALFORMED", Message: msg, Err: travel.ErrMalformedResponse}
}

// coordinates formats origin and destination as "lng,lat;lng,lat".
func coordinates(origin, dest geo.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lng, origin.Lat, dest.Lng, dest.Lat)
}
