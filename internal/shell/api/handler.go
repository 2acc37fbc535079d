// Package api provides the HTTP control API of the backup service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/shell/backup"
	"github.com/artpar/d2c/internal/shell/scheduler"
	"github.com/artpar/d2c/internal/shell/store"
)

// =============================================================================
// Collaborators
// =============================================================================

// Backup runs and previews backups.
type Backup interface {
	Run(ctx context.Context, trigger domain.RunTrigger) (*domain.Run, error)
	Preview(ctx context.Context) (*backup.Preview, error)
	Config() backup.Config
}

// Scheduler controls scheduled runs.
type Scheduler interface {
	Start() error
	Stop() error
	Reload() error
	Status() scheduler.Status
}

// Engine reports whether the container engine answered its last check.
type Engine interface {
	Healthy() (bool, string)
}

// Config wires the handler.
type Config struct {
	Backup    Backup
	Scheduler Scheduler
	Store     store.Store
	Engine    Engine       // optional
	Metrics   http.Handler // optional, served at /metrics
	OutputDir string
	Version   string
	Logger    *slog.Logger
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	backup    Backup
	scheduler Scheduler
	store     store.Store
	engine    Engine
	metrics   http.Handler
	outputDir string
	version   string
	logger    *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		backup:    cfg.Backup,
		scheduler: cfg.Scheduler,
		store:     cfg.Store,
		engine:    cfg.Engine,
		metrics:   cfg.Metrics,
		outputDir: cfg.OutputDir,
		version:   cfg.Version,
		logger:    l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/status", h.handleStatus)
			r.Get("/preview", h.handlePreview)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.handleListRuns)
				r.Post("/", h.handleTriggerRun)
				r.Get("/{id}", h.handleGetRun)
			})

			r.Route("/scheduler", func(r chi.Router) {
				r.Get("/", h.handleSchedulerStatus)
				r.Post("/start", h.handleSchedulerStart)
				r.Post("/stop", h.handleSchedulerStop)
				r.Post("/reload", h.handleSchedulerReload)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	ready := true

	if h.engine != nil {
		if ok, msg := h.engine.Healthy(); ok {
			checks["docker"] = "ok"
		} else {
			checks["docker"] = "failed: " + msg
			ready = false
		}
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Status Handlers
// =============================================================================

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:   h.version,
		Scheduler: h.scheduler.Status(),
		Settings:  h.backup.Config().Settings,
		OutputDir: h.outputDir,
	}

	last, err := h.store.LatestRun(r.Context())
	switch {
	case err == nil:
		resp.LastRun = last
	case !isNotFound(err):
		h.logger.Error("failed to read latest run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read run history", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.backup.Preview(r.Context())
	if err != nil {
		if errors.Is(err, backup.ErrSnapshotFailed) {
			h.writeError(w, http.StatusBadGateway, err.Error(), "engine_unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer", "validation_error")
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "offset must be an integer", "validation_error")
			return
		}
		opts.Offset = n
	}
	opts = opts.Normalize()

	runs, err := h.store.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	h.writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Limit: opts.Limit, Offset: opts.Offset})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// handleTriggerRun runs a backup synchronously. A run that started is
// returned even when it failed; its success field tells the outcome.
func (h *Handler) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.backup.Run(r.Context(), domain.RunTriggerAPI)
	if run == nil {
		h.logger.Error("failed to start run", "error", err)
		h.writeError(w, http.StatusInternalServerError, errString(err), "run_failed")
		return
	}
	if err != nil {
		h.logger.Warn("triggered run failed", "run_id", run.ID, "error", err)
	}
	h.writeJSON(w, http.StatusCreated, run)
}

// =============================================================================
// Scheduler Handlers
// =============================================================================

func (h *Handler) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.schedulerCommand(w, h.scheduler.Start())
}

func (h *Handler) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.schedulerCommand(w, h.scheduler.Stop())
}

func (h *Handler) handleSchedulerReload(w http.ResponseWriter, r *http.Request) {
	h.schedulerCommand(w, h.scheduler.Reload())
}

func (h *Handler) schedulerCommand(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, h.scheduler.Status())
	case errors.Is(err, scheduler.ErrInvalidExpression):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_schedule")
	case errors.Is(err, scheduler.ErrNoLoader):
		h.writeError(w, http.StatusNotImplemented, err.Error(), "reload_unsupported")
	case errors.Is(err, scheduler.ErrClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), "scheduler_closed")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error(), "scheduler_error")
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
