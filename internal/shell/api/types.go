package api

import (
	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/shell/scheduler"
)

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Version   string           `json:"version"`
	Scheduler scheduler.Status `json:"scheduler"`
	Settings  domain.Settings  `json:"settings"`
	OutputDir string           `json:"output_dir,omitempty"`
	LastRun   *domain.Run      `json:"last_run,omitempty"`
}

// RunListResponse is one page of run history.
type RunListResponse struct {
	Runs   []domain.Run `json:"runs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
