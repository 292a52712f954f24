package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/api"
	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/auth"
	"github.com/gopti/gopti/internal/catalog"
	"github.com/gopti/gopti/internal/featureflags"
	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/metrics"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/scheduler"
	"github.com/gopti/gopti/internal/solver"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/trip"
)

const testSigningKey = "router-test-signing-key-0123456789abcdef"

func testCatalog(t *testing.T) *catalog.InMemoryRepository {
	t.Helper()
	repo := catalog.NewInMemoryRepository()
	repo.PutVenue(catalog.Venue{
		ID:       "town-hall",
		Name:     "Sydney Town Hall",
		Position: geo.Coordinate{Lat: -33.8731, Lng: 151.2062},
	})
	require.NoError(t, repo.PutEvent(catalog.Event{
		ID:              "organ-recital",
		VenueID:         "town-hall",
		Name:            "Organ Recital",
		MinDwellMinutes: 20,
	}))
	require.NoError(t, repo.AddSession(catalog.Session{
		EventID: "organ-recital",
		Start:   time.Date(2025, 6, 11, 8, 30, 0, 0, time.UTC),
		End:     time.Date(2025, 6, 11, 9, 30, 0, 0, time.UTC),
	}))
	return repo
}

func testJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "gopti",
		Audience:   "gopti-admin",
	})
	require.NoError(t, err)
	return svc
}

type routerOpts struct {
	debugSolve bool
	admin      bool
	solver     func(context.Context, trip.Request, scheduler.SolveOptions) (*scheduler.Result, error)
	database   error
}

type solverFunc func(context.Context, trip.Request, scheduler.SolveOptions) (*scheduler.Result, error)

func (f solverFunc) Solve(ctx context.Context, req trip.Request, opts scheduler.SolveOptions) (*scheduler.Result, error) {
	return f(ctx, req, opts)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, opts routerOpts) (http.Handler, *featureflags.Service) {
	t.Helper()

	repo := testCatalog(t)
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Logger:       zerolog.Nop(),
		DefaultFlags: featureflags.DefaultFlags(opts.debugSolve),
	})
	svc := scheduler.NewService(scheduler.ServiceConfig{
		Candidates: repo,
		Capability: solver.Unavailable("SOLVER_URL is not set"),
		Cost:       travel.StraightLine{},
		Geometry:   travel.StraightLine{},
		Flags:      flags,
		Logger:     zerolog.Nop(),
	})

	cfg := api.RouterConfig{
		Version:        "test",
		BuildTime:      "2025-01-01T00:00:00Z",
		Logger:         zerolog.Nop(),
		MetricsHandler: metrics.New().Handler(),
		Solver:         svc,
		Capability:     svc,
		Catalog:        repo,
		Flags:          flags,
		Providers:      resilience.NewRegistry(),
	}
	if opts.solver != nil {
		cfg.Solver = solverFunc(opts.solver)
	}
	if opts.admin {
		cfg.Authorizer = testJWT(t)
	}
	if opts.database != nil {
		dbErr := opts.database
		cfg.Database = pingFunc(func(context.Context) error { return dbErr })
	}
	return api.NewRouter(cfg), flags
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewReader([]byte(raw))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func solveBody() map[string]any {
	return map[string]any{
		"start":   map[string]any{"lat": -33.86, "lng": 151.21, "time": "2025-06-11T08:00:00Z"},
		"endTime": "2025-06-11T12:00:00Z",
		"events":  []map[string]any{{"id": "organ-recital"}},
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	rec := do(t, router, http.MethodGet, "/v1/ops/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("degraded without solver backend", func(t *testing.T) {
		router, _ := newTestRouter(t, routerOpts{})
		rec := do(t, router, http.MethodGet, "/v1/ops/ready", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		health := decode[models.Health](t, rec)
		assert.Equal(t, models.HealthStatusDegraded, health.Status)
		assert.Equal(t, "none", health.Details["solver"])
	})

	t.Run("database down", func(t *testing.T) {
		router, _ := newTestRouter(t, routerOpts{database: errors.New("connection refused")})
		rec := do(t, router, http.MethodGet, "/v1/ops/ready", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		health := decode[models.Health](t, rec)
		assert.Equal(t, models.HealthStatusFail, health.Status)
		assert.Equal(t, string(models.HealthStatusFail), health.Details["database"])
	})
}

func TestSystemStatus(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	rec := do(t, router, http.MethodGet, "/v1/ops/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.False(t, status.Solver.Available)
	assert.Equal(t, "SOLVER_URL is not set", status.Solver.Reason)
	assert.Empty(t, status.Providers)
	assert.Equal(t, false, status.Flags[featureflags.FlagOptimalSolverDisabled])
}

func TestListEvents(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	t.Run("lists sessions", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/v1/events?date=2025-06-11", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		list := decode[models.EventListResponse](t, rec)
		assert.Equal(t, "2025-06-11", list.Date)
		require.Len(t, list.Events, 1)
		assert.Equal(t, "organ-recital", list.Events[0].EventID)
		assert.Equal(t, "Sydney Town Hall", list.Events[0].Venue.Name)
	})

	t.Run("empty day", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/v1/events?date=2025-06-12", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[models.EventListResponse](t, rec).Events)
	})

	for _, path := range []string{"/v1/events", "/v1/events?date=11-06-2025"} {
		rec := do(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		problem := decode[models.Problem](t, rec)
		require.Len(t, problem.Errors, 1)
		assert.Equal(t, "date", problem.Errors[0].Field)
	}
}

func TestSolve(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	rec := do(t, router, http.MethodPost, "/v1/solve", solveBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[models.SolveResponse](t, rec)
	require.Len(t, res.Route, 1)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, "organ-recital", res.Route[0].EventID)
	assert.Equal(t, 20*60, res.Route[0].DwellSec)
	assert.Equal(t, scheduler.SolverGreedy, res.Metrics.Solver)
	assert.Equal(t, scheduler.FallbackUnavailable, res.Metrics.FallbackReason)
	assert.Equal(t, 1, res.Metrics.Visited)
}

func TestSolve_DropsUnknownEvent(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	body := solveBody()
	body["events"] = []map[string]any{{"id": "organ-recital", "dwell_min": 30}, {"id": "ghost"}}

	rec := do(t, router, http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[models.SolveResponse](t, rec)
	require.Len(t, res.Route, 1)
	assert.Equal(t, 30*60, res.Route[0].DwellSec)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "ghost", res.Dropped[0].EventID)
	assert.Equal(t, string(scheduler.ReasonNoSessions), res.Dropped[0].Reason)
}

func TestSolve_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		header     []string
		solver     func(context.Context, trip.Request, scheduler.SolveOptions) (*scheduler.Result, error)
		wantStatus int
		wantType   string
	}{
		{
			name:       "malformed json",
			body:       `{"start":`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeMalformedBody,
		},
		{
			name:       "validation",
			body:       map[string]any{"events": []any{}},
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name: "zero walking speed",
			body: func() map[string]any {
				b := solveBody()
				b["walkingSpeed"] = 0
				return b
			}(),
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "wrong content type",
			body:       `start=1`,
			header:     []string{"Content-Type", "application/x-www-form-urlencoded"},
			wantStatus: http.StatusUnsupportedMediaType,
			wantType:   models.ProblemTypeUnsupportedType,
		},
		{
			name: "catalog down",
			body: solveBody(),
			solver: func(context.Context, trip.Request, scheduler.SolveOptions) (*scheduler.Result, error) {
				return nil, errors.Join(scheduler.ErrCatalogUnavailable, errors.New("dial tcp: refused"))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   models.ProblemTypeUnavailable,
		},
		{
			name: "unexpected",
			body: solveBody(),
			solver: func(context.Context, trip.Request, scheduler.SolveOptions) (*scheduler.Result, error) {
				return nil, errors.New("boom")
			},
			wantStatus: http.StatusInternalServerError,
			wantType:   models.ProblemTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, routerOpts{solver: tt.solver})

			rec := do(t, router, http.MethodPost, "/v1/solve", tt.body, tt.header...)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, models.ProblemContentType, rec.Header().Get("Content-Type"))

			problem := decode[models.Problem](t, rec)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/v1/solve", problem.Instance)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), problem.TraceID)
		})
	}
}

func TestDebugSolve(t *testing.T) {
	t.Run("hidden while flag is off", func(t *testing.T) {
		router, _ := newTestRouter(t, routerOpts{})
		rec := do(t, router, http.MethodPost, "/v1/debug/solve", solveBody())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns nodes", func(t *testing.T) {
		router, _ := newTestRouter(t, routerOpts{debugSolve: true})
		rec := do(t, router, http.MethodPost, "/v1/debug/solve", solveBody())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode[models.DebugSolveResponse](t, rec)
		assert.Len(t, res.Route, 1)
		require.Len(t, res.Nodes, 3, "depot, one session, sink")
		assert.Equal(t, "organ-recital", res.Nodes[1].EventID)
		assert.Nil(t, res.MatrixMeta, "greedy runs carry no matrix")
	})
}

func TestAdminRoutes_NotMountedWithoutAuthorizer(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})
	rec := do(t, router, http.MethodGet, "/v1/admin/feature-flags", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminFeatureFlags(t *testing.T) {
	router, flags := newTestRouter(t, routerOpts{admin: true})

	token, _, err := testJWT(t).IssueToken("ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	bearer := []string{"Authorization", "Bearer " + token}

	t.Run("requires token", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/v1/admin/feature-flags", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lists flags", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/v1/admin/feature-flags", nil, bearer...)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[models.FeatureFlagList](t, rec)
		require.Len(t, list.Flags, 2)
		assert.Equal(t, featureflags.FlagDebugSolveEnabled, list.Flags[0].Key)
	})

	t.Run("updates a flag", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/v1/admin/feature-flags/"+featureflags.FlagOptimalSolverDisabled,
			map[string]any{"value": true}, bearer...)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, flags.IsOptimalSolverDisabled(context.Background()))
		assert.Equal(t, "ops@example.com", decode[models.FeatureFlag](t, rec).UpdatedBy)
	})

	t.Run("rejects unknown flag", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/v1/admin/feature-flags/nope", map[string]any{"value": true}, bearer...)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects non boolean", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/v1/admin/feature-flags/"+featureflags.FlagDebugSolveEnabled,
			map[string]any{"value": "yes"}, bearer...)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resets a flag", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagOptimalSolverDisabled, nil, bearer...)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, flags.IsOptimalSolverDisabled(context.Background()))
	})

	t.Run("invalidates cache", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/v1/admin/feature-flags/invalidate", nil, bearer...)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestRequestIDEchoed(t *testing.T) {
	router, _ := newTestRouter(t, routerOpts{})
	rec := do(t, router, http.MethodGet, "/v1/ops/health", nil, "X-Request-Id", "req_client-1")
	assert.Equal(t, "req_client-1", rec.Header().Get("X-Request-Id"))
}
