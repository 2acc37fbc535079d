package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type mockPinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *mockPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *mockPinger) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *mockPinger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// =============================================================================
// Test Configuration
// =============================================================================

func TestDefaultEngineMonitorConfig(t *testing.T) {
	config := DefaultEngineMonitorConfig()

	assert.Equal(t, 30*time.Second, config.Interval)
	assert.Equal(t, 5*time.Second, config.Timeout)
}

func TestNewEngineMonitor_DefaultConfig(t *testing.T) {
	m := NewEngineMonitor(&mockPinger{}, EngineMonitorConfig{}, nil, nil)

	assert.Equal(t, 30*time.Second, m.config.Interval)
	assert.Equal(t, 5*time.Second, m.config.Timeout)
}

func TestEngineMonitor_UnhealthyBeforeFirstCheck(t *testing.T) {
	m := NewEngineMonitor(&mockPinger{}, EngineMonitorConfig{}, nil, nil)

	ok, msg := m.Healthy()

	assert.False(t, ok)
	assert.Equal(t, "not checked yet", msg)
	assert.True(t, m.LastChecked().IsZero())
}

// =============================================================================
// Test Checks
// =============================================================================

func TestEngineMonitor_CheckTracksTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	pinger := &mockPinger{}
	m := NewEngineMonitor(pinger, EngineMonitorConfig{}, reg, nil)

	require.True(t, m.Check(context.Background()))
	ok, msg := m.Healthy()
	assert.True(t, ok)
	assert.Empty(t, msg)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.up))

	pinger.setErr(errors.New("connection refused"))
	require.False(t, m.Check(context.Background()))
	ok, msg = m.Healthy()
	assert.False(t, ok)
	assert.Equal(t, "connection refused", msg)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.up))
	assert.False(t, m.LastChecked().IsZero())
}

func TestEngineMonitor_RegistersGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMonitor(&mockPinger{}, EngineMonitorConfig{}, reg, nil)
	m.Check(context.Background())

	count, err := testutil.GatherAndCount(reg, "d2c_engine_up")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// Test Lifecycle
// =============================================================================

func TestEngineMonitor_StartChecksImmediately(t *testing.T) {
	pinger := &mockPinger{}
	m := NewEngineMonitor(pinger, EngineMonitorConfig{Interval: time.Hour}, nil, nil)

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool {
		ok, _ := m.Healthy()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestEngineMonitor_TicksOnInterval(t *testing.T) {
	pinger := &mockPinger{}
	m := NewEngineMonitor(pinger, EngineMonitorConfig{Interval: 10 * time.Millisecond}, nil, nil)

	m.Start()
	assert.Eventually(t, func() bool { return pinger.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	m.Stop()

	calls := pinger.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, pinger.callCount())
}

func TestEngineMonitor_StopWithoutStart(t *testing.T) {
	m := NewEngineMonitor(&mockPinger{}, EngineMonitorConfig{}, nil, nil)

	m.Stop()
}

func TestEngineMonitor_Restart(t *testing.T) {
	m := NewEngineMonitor(&mockPinger{}, EngineMonitorConfig{Interval: 10 * time.Millisecond}, nil, nil)

	m.Start()
	m.Stop()
	m.Start()
	m.Stop()
}
