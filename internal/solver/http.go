package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gopti/gopti/internal/provider/resilience"
)

const (
	// BackendName identifies the HTTP routing backend in health reports.
	BackendName = "routing-backend"

	// callGrace is added to the model time limit to bound the whole HTTP exchange.
	callGrace = 2 * time.Second

	// DefaultProbeTimeout bounds the startup health probe.
	DefaultProbeTimeout = 3 * time.Second
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPBackendConfig configures an HTTP routing backend.
type HTTPBackendConfig struct {
	// URL is the backend base URL (required).
	URL string

	// HTTPClient overrides the transport (optional).
	HTTPClient HTTPDoer

	// Registry receives health updates when HTTPClient is nil (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// HTTPBackend submits models as JSON to POST {url}/v1/solve.
type HTTPBackend struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewHTTPBackend creates an HTTP backend client.
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(BackendName)
		// Each call carries its own deadline derived from the model time limit.
		clientCfg.Timeout = 30 * time.Second
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the backend name.
func (b *HTTPBackend) Name() string {
	return BackendName
}

type solveRequest struct {
	*Model
	TimeLimitMs int64 `json:"timeLimitMs"`
}

// Solve submits m and decodes the assignment. The call is detached from the
// caller's cancellation and bounded only by the model time limit plus a grace
// period.
func (b *HTTPBackend) Solve(ctx context.Context, m *Model) (*Assignment, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.TimeLimit+callGrace)
	defer cancel()

	payload, err := json.Marshal(solveRequest{Model: m, TimeLimitMs: m.TimeLimit.Milliseconds()})
	if err != nil {
		return nil, fmt.Errorf("marshaling model: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/solve", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	b.logger.Debug().
		Int("nodes", len(m.Nodes)).
		Int("disjunctions", len(m.Disjunctions)).
		Dur("time_limit", m.TimeLimit).
		Msg("submitting routing model")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Backend: BackendName, Op: "solve", Err: fmt.Errorf("%w: %w", ErrBackendUnavailable, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Backend: BackendName, Op: "solve", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Backend: BackendName,
			Op:      "solve",
			Err:     fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode),
		}
	}

	var out Assignment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Backend: BackendName, Op: "solve", Err: fmt.Errorf("%w: %w", ErrMalformedAssignment, err)}
	}
	switch out.Status {
	case StatusSuccess, StatusInfeasible, StatusTimeout:
	default:
		return nil, &Error{
			Backend: BackendName,
			Op:      "solve",
			Err:     fmt.Errorf("%w: unknown status %q", ErrMalformedAssignment, out.Status),
		}
	}
	return &out, nil
}

// Probe checks GET {url}/healthz.
func (b *HTTPBackend) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health probe returned %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// ResolveConfig describes how to resolve the startup capability.
type ResolveConfig struct {
	URL        string
	Disabled   bool
	HTTPClient HTTPDoer
	Registry   *resilience.Registry
	Logger     zerolog.Logger
}

// Resolve decides once whether the optimal scheduler can run.
func Resolve(ctx context.Context, cfg ResolveConfig) Capability {
	switch {
	case cfg.Disabled:
		return Unavailable("disabled by configuration")
	case cfg.URL == "":
		return Unavailable("SOLVER_URL not set")
	}

	backend := NewHTTPBackend(HTTPBackendConfig{
		URL:        cfg.URL,
		HTTPClient: cfg.HTTPClient,
		Registry:   cfg.Registry,
		Logger:     cfg.Logger,
	})
	if err := backend.Probe(ctx); err != nil {
		cfg.Logger.Warn().Err(err).Str("url", cfg.URL).Msg("routing backend probe failed, optimal scheduler disabled")
		return Unavailable(err.Error())
	}
	cfg.Logger.Info().Str("url", cfg.URL).Msg("routing backend available")
	return Available(backend)
}
