package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

type countingRunner struct {
	mu       sync.Mutex
	triggers []domain.RunTrigger
	calls    atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, trigger domain.RunTrigger) (*domain.Run, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.calls.Add(1)
	return domain.NewRun(trigger, time.Now())
}

func (r *countingRunner) seen() []domain.RunTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunTrigger(nil), r.triggers...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, cfg Config, loader Loader) (*Service, *countingRunner) {
	t.Helper()
	runner := &countingRunner{}
	svc := NewService(runner, cfg, loader, testLogger())
	t.Cleanup(svc.Close)
	return svc, runner
}

// =============================================================================
// Schedule Parsing Tests
// =============================================================================

func TestModeOf(t *testing.T) {
	assert.Equal(t, ModeOnce, ModeOf("once"))
	assert.Equal(t, ModeManual, ModeOf(" Manual "))
	assert.Equal(t, ModeCron, ModeOf("0 2 * * *"))
	assert.Equal(t, ModeCron, ModeOf(""))
}

func TestParseSchedule_Fields(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	from := time.Date(2026, 10, 17, 12, 0, 0, 0, loc)

	five, err := ParseSchedule("30 2 * * *", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 2, 30, 0, 0, loc), five.Next(from))

	six, err := ParseSchedule("15 30 2 * * *", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 2, 30, 15, 0, loc), six.Next(from))

	daily, err := ParseSchedule("@daily", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, loc), daily.Next(from))
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"", "once", "* * *", "1 2 3 4 5 6 7", "61 * * * *", "not a cron"} {
		_, err := ParseSchedule(expr, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidExpression, expr)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Expression: "manual"}.Validate())
	assert.NoError(t, Config{Expression: "0 3 * * 0", Timezone: "Asia/Shanghai"}.Validate())
	assert.Error(t, Config{Expression: "manual", Timezone: "Mars/Olympus"}.Validate())
	assert.ErrorIs(t, Config{Expression: "bad"}.Validate(), ErrInvalidExpression)
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestService_StartsStopped(t *testing.T) {
	svc, runner := newTestService(t, Config{Expression: "manual"}, nil)

	assert.Equal(t, StateStopped, svc.Status().State)
	assert.Zero(t, runner.calls.Load())
}

func TestService_ManualMode(t *testing.T) {
	svc, runner := newTestService(t, Config{Expression: "manual"}, nil)

	require.NoError(t, svc.Start())
	status := svc.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, ModeManual, status.Mode)
	assert.Nil(t, status.NextRun)
	assert.Zero(t, runner.calls.Load())
}

func TestService_OnceMode(t *testing.T) {
	svc, runner := newTestService(t, Config{Expression: "once"}, nil)

	require.NoError(t, svc.Start())
	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.RunTrigger{domain.RunTriggerStartup}, runner.seen())

	// A second start is a no-op.
	require.NoError(t, svc.Start())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestService_CronMode(t *testing.T) {
	svc, runner := newTestService(t, Config{Expression: "* * * * * *"}, nil)

	require.NoError(t, svc.Start())
	status := svc.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, ModeCron, status.Mode)
	require.NotNil(t, status.NextRun)

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, domain.RunTriggerSchedule, runner.seen()[0])

	require.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.Status().State)
	assert.Nil(t, svc.Status().NextRun)

	stoppedAt := runner.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, stoppedAt, runner.calls.Load())
}

func TestService_StartInvalidExpression(t *testing.T) {
	svc, _ := newTestService(t, Config{Expression: "every day"}, nil)

	err := svc.Start()
	assert.ErrorIs(t, err, ErrInvalidExpression)
	status := svc.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.NotEmpty(t, status.LastError)
}

func TestService_StopWhenStopped(t *testing.T) {
	svc, _ := newTestService(t, Config{Expression: "manual"}, nil)
	assert.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.Status().State)
}

// =============================================================================
// Reload Tests
// =============================================================================

func TestService_ReloadWithoutLoader(t *testing.T) {
	svc, _ := newTestService(t, Config{Expression: "manual"}, nil)
	assert.ErrorIs(t, svc.Reload(), ErrNoLoader)
}

func TestService_ReloadSwitchesTrigger(t *testing.T) {
	next := Config{Expression: "0 4 * * *", Timezone: "Asia/Tokyo"}
	var states []State
	var svc *Service
	loader := func(ctx context.Context) (Config, error) {
		states = append(states, svc.Status().State)
		return next, nil
	}
	svc, _ = newTestService(t, Config{Expression: "manual"}, loader)
	require.NoError(t, svc.Start())

	require.NoError(t, svc.Reload())

	// The loader observes the reloading state.
	assert.Equal(t, []State{StateReloading}, states)

	status := svc.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, ModeCron, status.Mode)
	assert.Equal(t, "Asia/Tokyo", status.Timezone)
	require.NotNil(t, status.NextRun)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 4, status.NextRun.In(tokyo).Hour())
}

func TestService_ReloadWhileStopped(t *testing.T) {
	loader := func(ctx context.Context) (Config, error) {
		return Config{Expression: "*/5 * * * *"}, nil
	}
	svc, _ := newTestService(t, Config{Expression: "manual"}, loader)

	require.NoError(t, svc.Reload())
	status := svc.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Equal(t, "*/5 * * * *", status.Expression)
}

func TestService_ReloadInvalidKeepsOld(t *testing.T) {
	loader := func(ctx context.Context) (Config, error) {
		return Config{Expression: "61 * * * *"}, nil
	}
	svc, _ := newTestService(t, Config{Expression: "0 1 * * *"}, loader)
	require.NoError(t, svc.Start())

	err := svc.Reload()
	assert.ErrorIs(t, err, ErrInvalidExpression)

	status := svc.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, "0 1 * * *", status.Expression)
	assert.NotNil(t, status.NextRun)
}

func TestService_ReloadLoaderError(t *testing.T) {
	boom := errors.New("config unreadable")
	loader := func(ctx context.Context) (Config, error) { return Config{}, boom }
	svc, _ := newTestService(t, Config{Expression: "manual"}, loader)
	require.NoError(t, svc.Start())

	assert.ErrorIs(t, svc.Reload(), boom)
	assert.Equal(t, StateRunning, svc.Status().State)
}

func TestService_ClosedRejectsCommands(t *testing.T) {
	svc := NewService(&countingRunner{}, Config{Expression: "manual"}, nil, testLogger())
	svc.Close()

	assert.ErrorIs(t, svc.Start(), ErrClosed)
}
