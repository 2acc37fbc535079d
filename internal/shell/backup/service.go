// Package backup runs the snapshot to compose pipeline and records each run.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/d2c/internal/core/assemble"
	"github.com/artpar/d2c/internal/core/compose"
	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/core/filter"
	"github.com/artpar/d2c/internal/shell/output"
	"github.com/artpar/d2c/internal/shell/store"
)

// =============================================================================
// Service Errors
// =============================================================================

var (
	// ErrSnapshotFailed is returned when the container engine cannot be read.
	ErrSnapshotFailed = errors.New("snapshot failed")

	// ErrDocumentsFailed is returned when at least one document was not written.
	ErrDocumentsFailed = errors.New("one or more documents failed")
)

// =============================================================================
// Collaborators
// =============================================================================

// SnapshotSource provides the host's container and network records.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// Config is the part of the configuration a run depends on.
type Config struct {
	Settings  domain.Settings
	Assemble  assemble.Options
	Retention int
}

// DefaultConfig returns default settings, global dependencies and the
// default history retention.
func DefaultConfig() Config {
	return Config{
		Settings:  domain.DefaultSettings(),
		Assemble:  assemble.DefaultOptions(),
		Retention: store.DefaultRetention,
	}
}

// =============================================================================
// Service
// =============================================================================

// Service executes backup runs one at a time.
type Service struct {
	source  SnapshotSource
	writer  *output.Writer
	store   store.Store
	metrics *Metrics
	now     func() time.Time
	logger  *slog.Logger

	runMu sync.Mutex

	cfgMu sync.RWMutex
	cfg   Config
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records every run on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a backup service. st may be nil to skip run history.
func NewService(source SnapshotSource, writer *output.Writer, st store.Store, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source: source,
		writer: writer,
		store:  st,
		now:    time.Now,
		cfg:    cfg,
		logger: logger.With("component", "backup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration used by later runs.
func (s *Service) SetConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// =============================================================================
// Run
// =============================================================================

// Run takes a snapshot and writes one document per group. Concurrent calls
// are serialized. The returned run is always non-nil once started; the error
// reports a failed snapshot, failed documents or a history write failure.
func (s *Service) Run(ctx context.Context, trigger domain.RunTrigger) (*domain.Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cfg := s.Config()
	run, err := domain.NewRun(trigger, s.now())
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("run_id", run.ID, "trigger", string(trigger))
	logger.Info("backup run started")

	if s.store != nil {
		if err := s.store.CreateRun(ctx, run); err != nil {
			return run, fmt.Errorf("record run: %w", err)
		}
	}

	runErr := s.execute(ctx, run, cfg, logger)

	message := fmt.Sprintf("wrote %d of %d documents", len(run.Files), run.DocumentCount)
	if runErr != nil {
		message = runErr.Error()
	}
	if err := run.Finish(runErr == nil, message, s.now()); err != nil {
		return run, err
	}

	result := ResultSuccess
	switch {
	case errors.Is(runErr, ErrDocumentsFailed) && len(run.Files) > 0:
		result = ResultPartial
	case runErr != nil:
		result = ResultFailure
	}
	s.metrics.observe(result, len(run.Files), run.FailedDocuments, run.SkippedCount, *run.FinishedAt, run.Duration())

	if s.store != nil {
		// History survives a cancelled run context.
		if err := s.recordFinish(context.WithoutCancel(ctx), run, cfg.Retention, logger); err != nil {
			return run, errors.Join(runErr, fmt.Errorf("record run: %w", err))
		}
	}

	logger.Info("backup run finished",
		"result", result,
		"containers", run.ContainerCount,
		"skipped", run.SkippedCount,
		"documents", run.DocumentCount,
		"failed", run.FailedDocuments,
		"dir", run.OutputDir,
		"duration", run.Duration(),
	)
	return run, runErr
}

// recordFinish stores the finished run and applies retention in one
// transaction.
func (s *Service) recordFinish(ctx context.Context, run *domain.Run, keep int, logger *slog.Logger) error {
	var removed int
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		n, err := tx.PruneRuns(ctx, keep)
		removed = n
		return err
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Debug("pruned run history", "removed", removed)
	}
	return nil
}

func (s *Service) execute(ctx context.Context, run *domain.Run, cfg Config, logger *slog.Logger) error {
	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		logger.Error("snapshot failed", "error", err)
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	plan := BuildPlan(snapshot, cfg)
	run.ContainerCount = plan.ContainerCount
	run.SkippedCount = len(plan.Rejected)
	run.DocumentCount = len(plan.Documents)
	run.FailedDocuments = len(plan.RenderFailures)

	for _, r := range plan.Rejected {
		logger.Warn("container skipped", "container", r.ID, "name", r.Name, "reason", r.Reason)
	}
	for _, f := range plan.RenderFailures {
		logger.Error("document render failed", "file", f.Filename, "error", f.Err)
	}
	logger.Debug("filter summary",
		"labels_removed", plan.Labels.RemovedCount, "labels_ratio", plan.Labels.RemovedRatio,
		"env_removed", plan.Env.RemovedCount, "env_ratio", plan.Env.RemovedRatio)

	if len(plan.Rendered) > 0 {
		written, err := s.writer.Write(ctx, run.StartedAt, plan.Rendered)
		run.OutputDir = written.Dir
		run.Files = written.Written
		run.FailedDocuments += len(written.Failed)
		if err != nil {
			run.FailedDocuments += len(plan.Rendered) - len(written.Written) - len(written.Failed)
			return err
		}
	}

	if run.FailedDocuments > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDocumentsFailed, run.FailedDocuments, run.DocumentCount)
	}
	return nil
}

// =============================================================================
// Preview
// =============================================================================

// PreviewDocument is one rendered document with its compose check outcome.
type PreviewDocument struct {
	Filename string           `json:"filename"`
	Content  string           `json:"content"`
	Services []string         `json:"services"`
	Valid    bool             `json:"valid"`
	Error    string           `json:"error,omitempty"`
	Summary  *compose.Summary `json:"-"`
}

// Preview is the result of a dry run.
type Preview struct {
	ContainerCount int               `json:"container_count"`
	Rejected       []Rejected        `json:"rejected,omitempty"`
	Documents      []PreviewDocument `json:"documents"`
	Labels         filter.Summary    `json:"labels"`
	Env            filter.Summary    `json:"env"`
}

// Preview renders every document in memory and loads each through the
// compose loader. Nothing is written and no run is recorded.
func (s *Service) Preview(ctx context.Context) (*Preview, error) {
	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	plan := BuildPlan(snapshot, s.Config())

	preview := &Preview{
		ContainerCount: plan.ContainerCount,
		Rejected:       plan.Rejected,
		Documents:      make([]PreviewDocument, 0, len(plan.Rendered)+len(plan.RenderFailures)),
		Labels:         plan.Labels,
		Env:            plan.Env,
	}
	for _, doc := range plan.Rendered {
		pd := PreviewDocument{Filename: doc.Filename, Content: string(doc.Content)}
		summary, err := compose.Check(doc.Filename, doc.Content)
		if err != nil {
			pd.Error = err.Error()
		} else {
			pd.Valid = true
			pd.Summary = summary
			for _, svc := range summary.Services {
				pd.Services = append(pd.Services, svc.Name)
			}
		}
		preview.Documents = append(preview.Documents, pd)
	}
	for _, f := range plan.RenderFailures {
		preview.Documents = append(preview.Documents, PreviewDocument{Filename: f.Filename, Error: f.Err.Error()})
	}
	return preview, nil
}
