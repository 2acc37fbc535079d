// Package scheduler decides when backups run. It is a small state machine
// {stopped, running, reloading} whose transitions are applied one at a time
// by a single loop goroutine reading a command channel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Service Errors
// =============================================================================

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scheduler closed")

	// ErrNoLoader is returned by Reload when no configuration loader is set.
	ErrNoLoader = errors.New("no configuration loader")
)

// =============================================================================
// Types
// =============================================================================

// State is the scheduler's lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateRunning   State = "running"
	StateReloading State = "reloading"
)

// Config is the trigger configuration.
type Config struct {
	// Expression is "once", "manual", or a 5/6-field cron expression.
	Expression string `json:"expression"`
	// Timezone evaluates cron expressions; empty means UTC.
	Timezone string `json:"timezone"`
}

// Runner executes one backup.
type Runner interface {
	Run(ctx context.Context, trigger domain.RunTrigger) (*domain.Run, error)
}

// Loader re-reads configuration on Reload. It returns the new trigger
// configuration and is expected to apply any other settings itself.
type Loader func(ctx context.Context) (Config, error)

// Status is a snapshot of the scheduler for the control API.
type Status struct {
	State      State      `json:"state"`
	Mode       Mode       `json:"mode"`
	Expression string     `json:"expression"`
	Timezone   string     `json:"timezone"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdReload
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdStop:
		return "stop"
	default:
		return "reload"
	}
}

type command struct {
	kind  commandKind
	reply chan error
}

// =============================================================================
// Service
// =============================================================================

// Service schedules backup runs.
type Service struct {
	runner Runner
	loader Loader
	logger *slog.Logger

	cmds chan command

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // loop goroutine
	jobs   sync.WaitGroup // in-flight runs

	// Owned by the loop goroutine; mu guards reads from other goroutines.
	mu      sync.RWMutex
	state   State
	cfg     Config
	cron    *cron.Cron
	lastErr error
}

// NewService creates a stopped scheduler. loader may be nil when reloading
// is not supported. The loop goroutine starts immediately; call Close to
// release it.
func NewService(runner Runner, cfg Config, loader Loader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		runner: runner,
		loader: loader,
		logger: logger.With("component", "scheduler"),
		cmds:   make(chan command),
		state:  StateStopped,
		cfg:    cfg,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.loop()
	return s
}

// Start moves a stopped scheduler to running. Starting a running scheduler
// is a no-op.
func (s *Service) Start() error { return s.send(cmdStart) }

// Stop moves a running scheduler to stopped and waits for an in-flight
// scheduled run to finish.
func (s *Service) Stop() error { return s.send(cmdStop) }

// Reload re-reads configuration through the loader and reapplies it. A
// running scheduler returns to running with the new trigger; a stopped one
// stays stopped. An invalid configuration leaves the old one in place.
func (s *Service) Reload() error { return s.send(cmdReload) }

// Close stops the scheduler and its loop goroutine.
func (s *Service) Close() {
	_ = s.Stop()
	s.cancel()
	s.wg.Wait()
	s.jobs.Wait()
}

// Status returns the current state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:      s.state,
		Mode:       ModeOf(s.cfg.Expression),
		Expression: s.cfg.Expression,
		Timezone:   s.cfg.Timezone,
	}
	if s.cron != nil {
		if entries := s.cron.Entries(); len(entries) > 0 && !entries[0].Next.IsZero() {
			next := entries[0].Next
			st.NextRun = &next
		}
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Service) send(kind commandKind) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{kind: kind, reply: reply}:
	case <-s.ctx.Done():
		return ErrClosed
	}
	return <-reply
}

// =============================================================================
// State Machine
// =============================================================================

func (s *Service) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.halt()
			return
		case cmd := <-s.cmds:
			err := s.handle(cmd.kind)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			if err != nil {
				s.logger.Error("scheduler command failed", "command", cmd.kind.String(), "error", err)
			}
			cmd.reply <- err
		}
	}
}

func (s *Service) handle(kind commandKind) error {
	switch kind {
	case cmdStart:
		if s.currentState() == StateRunning {
			return nil
		}
		return s.activate(s.currentConfig())

	case cmdStop:
		if s.currentState() == StateStopped {
			return nil
		}
		s.halt()
		s.setState(StateStopped)
		s.logger.Info("scheduler stopped")
		return nil

	case cmdReload:
		if s.loader == nil {
			return ErrNoLoader
		}
		previous := s.currentState()
		s.setState(StateReloading)

		cfg, err := s.loader(s.ctx)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			s.setState(previous)
			return fmt.Errorf("reload: %w", err)
		}

		old := s.currentConfig()
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		s.logger.Info("configuration reloaded", "old_expression", old.Expression, "expression", cfg.Expression, "timezone", cfg.Timezone)

		if previous != StateRunning {
			s.setState(StateStopped)
			return nil
		}
		if old == cfg {
			s.setState(StateRunning)
			return nil
		}
		s.halt()
		// A reload into once mode does not run again.
		if ModeOf(cfg.Expression) == ModeOnce {
			s.setState(StateRunning)
			return nil
		}
		return s.activate(cfg)
	}
	return nil
}

// activate installs the trigger for cfg and enters running. On error the
// scheduler is stopped.
func (s *Service) activate(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		s.setState(StateStopped)
		return err
	}

	switch ModeOf(cfg.Expression) {
	case ModeManual:
		s.logger.Info("manual mode, no scheduled runs")

	case ModeOnce:
		s.logger.Info("once mode, running a single backup")
		s.dispatch(domain.RunTriggerStartup)

	case ModeCron:
		loc, _ := LoadLocation(cfg.Timezone)
		sched, _ := ParseSchedule(cfg.Expression, loc)

		logger := cronLogger{s.logger}
		c := cron.New(cron.WithLocation(loc), cron.WithLogger(logger))
		job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(
			cron.FuncJob(func() { s.execute(domain.RunTriggerSchedule) }),
		)
		c.Schedule(sched, job)
		c.Start()

		s.mu.Lock()
		s.cron = c
		s.mu.Unlock()

		next := sched.Next(time.Now().In(loc))
		s.logger.Info("cron schedule installed", "expression", cfg.Expression, "timezone", loc.String(), "next_run", next)
	}

	s.setState(StateRunning)
	return nil
}

// halt removes the cron trigger and waits for its in-flight job.
func (s *Service) halt() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) dispatch(trigger domain.RunTrigger) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.execute(trigger)
	}()
}

func (s *Service) execute(trigger domain.RunTrigger) {
	run, err := s.runner.Run(s.ctx, trigger)
	if err != nil {
		s.logger.Error("scheduled backup failed", "trigger", string(trigger), "error", err)
		return
	}
	s.logger.Debug("scheduled backup done", "trigger", string(trigger), "run_id", run.ID)
}

func (s *Service) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) currentConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// =============================================================================
// Cron Logging
// =============================================================================

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
