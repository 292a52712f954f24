// Package handler provides HTTP handlers for the gopti API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gopti/gopti/internal/api/models"
	"github.com/gopti/gopti/internal/api/response"
	"github.com/gopti/gopti/internal/featureflags"
	"github.com/gopti/gopti/internal/provider/resilience"
	"github.com/gopti/gopti/internal/solver"
)

// readyTimeout bounds dependency checks on the readiness probe.
const readyTimeout = 2 * time.Second

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CapabilityReporter exposes the solver capability resolved at startup.
type CapabilityReporter interface {
	Capability() solver.Capability
}

// ProviderHealthSource lists outbound provider health.
type ProviderHealthSource interface {
	AllHealth() []*resilience.ProviderHealth
}

// FlagLister lists feature flags.
type FlagLister interface {
	ListFlags(ctx context.Context) []featureflags.Flag
}

// OpsConfig holds the dependencies of OpsHandler. Any of them may be nil.
type OpsConfig struct {
	Version   string
	BuildTime string
	Database  Pinger
	Cache     Pinger
	Solver    CapabilityReporter
	Providers ProviderHealthSource
	Flags     FlagLister
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   h.now().UTC(),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails only when a configured
// store is unreachable; a missing optimization backend degrades the service
// to greedy scheduling but keeps it ready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := models.HealthStatusOK
	details := map[string]any{}

	for _, sub := range h.subsystems(ctx) {
		details[sub.Name] = sub.Status
		if sub.Status == models.HealthStatusFail {
			status = models.HealthStatusFail
		}
	}
	if h.cfg.Solver != nil {
		capability := h.cfg.Solver.Capability()
		details["solver"] = capability.Name()
		if !capability.Available() && status == models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    h.now().UTC(),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - solver, subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	out := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       h.now().UTC(),
		Subsystems: h.subsystems(ctx),
		Providers:  []models.ProviderStatus{},
	}

	degrade := func() {
		if out.Status == models.HealthStatusOK {
			out.Status = models.HealthStatusDegraded
		}
	}

	for _, sub := range out.Subsystems {
		if sub.Status == models.HealthStatusFail {
			out.Status = models.HealthStatusFail
		}
	}

	if h.cfg.Solver != nil {
		capability := h.cfg.Solver.Capability()
		out.Solver = models.SolverStatus{
			Available: capability.Available(),
			Backend:   capability.Name(),
			Reason:    capability.Reason(),
		}
		if !capability.Available() {
			degrade()
		}
	}

	if h.cfg.Providers != nil {
		for _, p := range h.cfg.Providers.AllHealth() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        providerStatus(p),
				CircuitState:  p.CircuitState.String(),
				LastSuccessAt: p.LastSuccessAt,
				LastFailureAt: p.LastFailureAt,
				Message:       p.LastError,
			}
			if ps.Status != models.HealthStatusOK {
				degrade()
			}
			out.Providers = append(out.Providers, ps)
		}
	}

	if h.cfg.Flags != nil {
		out.Flags = make(map[string]any)
		for _, f := range h.cfg.Flags.ListFlags(ctx) {
			out.Flags[f.Key] = f.Value
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	subs := []models.SubsystemStatus{}
	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		sub := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := p.Ping(ctx); err != nil {
			sub.Status = models.HealthStatusFail
			sub.Detail = err.Error()
		}
		subs = append(subs, sub)
	}
	check("database", h.cfg.Database)
	check("cache", h.cfg.Cache)
	return subs
}

func providerStatus(p *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case p.IsUnhealthy():
		return models.HealthStatusFail
	case p.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
