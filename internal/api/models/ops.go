package models

import "time"

// Health is the liveness and readiness document.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    time.Time      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports subsystems and outbound providers.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       time.Time         `json:"time"`
	Solver     SolverStatus      `json:"solver"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	Flags      map[string]any    `json:"flags,omitempty"`
}

// SolverStatus describes the optimization capability resolved at startup.
type SolverStatus struct {
	Available bool   `json:"available"`
	Backend   string `json:"backend"`
	Reason    string `json:"reason,omitempty"`
}

// SubsystemStatus is the state of an internal dependency.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// ProviderStatus is the circuit-breaker view of an outbound provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time   `json:"lastFailureAt,omitempty"`
	Message       string       `json:"message,omitempty"`
}
