// Package workers contains background workers for d2c.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger checks that the container engine answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineMonitorConfig configures the engine monitor worker.
type EngineMonitorConfig struct {
	// Interval is the time between pings.
	// Default: 30 seconds.
	Interval time.Duration

	// Timeout bounds a single ping.
	// Default: 5 seconds.
	Timeout time.Duration
}

// DefaultEngineMonitorConfig returns the default configuration.
func DefaultEngineMonitorConfig() EngineMonitorConfig {
	return EngineMonitorConfig{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// EngineMonitor periodically pings the engine and remembers the outcome for
// readiness checks. The engine is reported unhealthy until the first ping.
type EngineMonitor struct {
	pinger Pinger
	config EngineMonitorConfig
	logger *slog.Logger
	up     prometheus.Gauge

	mu      sync.RWMutex
	healthy bool
	message string
	checked time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngineMonitor creates an engine monitor. A nil registerer skips gauge
// registration.
func NewEngineMonitor(pinger Pinger, config EngineMonitorConfig, reg prometheus.Registerer, logger *slog.Logger) *EngineMonitor {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	up := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "d2c",
		Name:      "engine_up",
		Help:      "Whether the last container engine ping succeeded.",
	})
	if reg != nil {
		reg.MustRegister(up)
	}

	return &EngineMonitor{
		pinger:  pinger,
		config:  config,
		logger:  logger.With("component", "engine_monitor"),
		up:      up,
		message: "not checked yet",
	}
}

// Start begins pinging in the background. The first ping runs immediately.
func (m *EngineMonitor) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.run()

	m.logger.Info("engine monitor started", "interval", m.config.Interval)
}

// Stop waits for an in-flight ping to finish.
func (m *EngineMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("engine monitor stopped")
}

func (m *EngineMonitor) run() {
	defer m.wg.Done()

	m.Check(m.ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Check(m.ctx)
		}
	}
}

// Check pings the engine once and records the result.
func (m *EngineMonitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	wasHealthy, first := m.healthy, m.checked.IsZero()
	m.checked = time.Now()
	if err != nil {
		m.healthy = false
		m.message = err.Error()
		m.up.Set(0)
		if wasHealthy || first {
			m.logger.Warn("container engine unreachable", "error", err)
		}
		return false
	}

	m.healthy = true
	m.message = ""
	m.up.Set(1)
	if !wasHealthy {
		m.logger.Info("container engine reachable")
	}
	return true
}

// Healthy reports the last ping outcome and, when unhealthy, its error text.
func (m *EngineMonitor) Healthy() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy, m.message
}

// LastChecked returns when the last ping finished.
func (m *EngineMonitor) LastChecked() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checked
}
