// Package health tracks whether the civic backend is reachable and runs a
// callback when it comes back after an outage.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds monitor configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Pinger probes the backend. A nil error means reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecoverFunc is called once each time the backend transitions from
// offline back to online.
type RecoverFunc func(ctx context.Context)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Status is a point-in-time view of the monitor.
type Status struct {
	Online      bool      `json:"online"`
	FailCount   int       `json:"fail_count"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Monitor runs periodic backend probes. The backend is considered online
// until FailThreshold consecutive probes fail.
type Monitor struct {
	pinger Pinger
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	online    bool
	failCount int
	checkedAt time.Time
	lastErr   string

	onRecover RecoverFunc
	onMetrics MetricsRecordFunc
}

// New creates a new Monitor.
func New(pinger Pinger, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Monitor{
		pinger: pinger,
		cfg:    cfg,
		logger: logger,
		online: true,
	}
}

// SetRecoverFunc configures the callback run on offline → online.
func (m *Monitor) SetRecoverFunc(fn RecoverFunc) {
	m.onRecover = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Start runs the probe loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check probes the backend once and applies the state transition.
func (m *Monitor) Check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.pinger.Ping(pctx)
	cancel()
	success := err == nil

	if m.onMetrics != nil {
		m.onMetrics(success)
	}

	m.mu.Lock()
	wasOnline := m.online
	m.checkedAt = time.Now().UTC()
	if success {
		m.failCount = 0
		m.lastErr = ""
		m.online = true
	} else {
		m.failCount++
		m.lastErr = err.Error()
		if m.failCount >= m.cfg.FailThreshold {
			m.online = false
		}
	}
	count := m.failCount
	m.mu.Unlock()

	switch {
	case success && !wasOnline:
		m.logger.Info("health: backend recovered")
		if m.onRecover != nil {
			m.onRecover(ctx)
		}
	case !success && wasOnline && count == m.cfg.FailThreshold:
		m.logger.Warn("health: backend unreachable",
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	case !success:
		m.logger.Debug("health: probe failed", zap.Int("fail_count", count), zap.Error(err))
	}
}

// Online reports whether the backend is currently considered reachable.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Online:      m.online,
		FailCount:   m.failCount,
		LastChecked: m.checkedAt,
		LastError:   m.lastErr,
	}
}
