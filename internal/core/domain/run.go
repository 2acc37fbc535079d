package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrRunNotFound        = errors.New("run not found")
	ErrRunTriggerInvalid  = errors.New("invalid run trigger")
	ErrRunAlreadyFinished = errors.New("run already finished")
)

// =============================================================================
// Run Trigger
// =============================================================================

// RunTrigger records what started a backup run.
type RunTrigger string

const (
	RunTriggerStartup  RunTrigger = "startup"
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerManual   RunTrigger = "manual"
)

// IsValid checks if the trigger is known.
func (t RunTrigger) IsValid() bool {
	switch t {
	case RunTriggerStartup, RunTriggerSchedule, RunTriggerAPI, RunTriggerManual:
		return true
	default:
		return false
	}
}

// =============================================================================
// Run
// =============================================================================

// Run is the history entry of one backup execution.
type Run struct {
	ID              string     `json:"id"`
	Trigger         RunTrigger `json:"trigger"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	OutputDir       string     `json:"output_dir,omitempty"`
	ContainerCount  int        `json:"container_count"`
	SkippedCount    int        `json:"skipped_count"`
	DocumentCount   int        `json:"document_count"`
	FailedDocuments int        `json:"failed_documents"`
	Files           []string   `json:"files,omitempty"`
}

// NewRun starts a run record.
func NewRun(trigger RunTrigger, now time.Time) (*Run, error) {
	if !trigger.IsValid() {
		return nil, ErrRunTriggerInvalid
	}
	return &Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now.UTC(),
	}, nil
}

// Finish marks the run complete. A run finishes exactly once.
func (r *Run) Finish(success bool, message string, now time.Time) error {
	if r.FinishedAt != nil {
		return ErrRunAlreadyFinished
	}
	t := now.UTC()
	r.FinishedAt = &t
	r.Success = success
	r.Message = message
	return nil
}

// Duration returns the run's wall time, zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
