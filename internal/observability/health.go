// Package observability monitors the keeper's external dependencies: the
// RPC endpoint, the price feed, and the local state directory. The agent
// keeps running through degraded dependencies; the monitor makes the
// degradation visible instead of silent.
package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/solana"
)

// ComponentStatus represents the health status of a component.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck is a function that checks component health.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the health report for a single component.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Latency     time.Duration   `json:"latency_ms"`
}

// SystemHealth is the aggregate health of the whole agent.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     time.Duration              `json:"uptime"`
}

// Alert is emitted when a component's status changes.
type Alert struct {
	Level     string    `json:"level"` // info|warn|critical
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// HealthMonitor checks all registered components periodically.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	results   map[string]ComponentHealth
	startTime time.Time
	interval  time.Duration
	alertCh   chan Alert
	stopCh    chan struct{}
	stopped   sync.Once
}

// NewHealthMonitor creates a monitor that checks components at the given
// interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		interval:  interval,
		alertCh:   make(chan Alert, 64),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a named health check. Must be called before Start.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start begins the periodic check loop. Blocks until ctx is cancelled or
// Stop is called.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

// Stop signals the monitor to cease periodic checks.
func (m *HealthMonitor) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
}

// Check runs all registered checks synchronously and returns the aggregate.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.runChecks(ctx)
	return m.snapshot()
}

// Alerts returns a read-only channel of status-transition alerts.
func (m *HealthMonitor) Alerts() <-chan Alert {
	return m.alertCh
}

func (m *HealthMonitor) runChecks(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	newResults := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		start := time.Now()
		result := fn(ctx)
		result.Name = name
		result.LastChecked = time.Now()
		result.Latency = time.Since(start)
		newResults[name] = result
	}

	m.mu.Lock()
	oldResults := m.results
	m.results = newResults
	m.mu.Unlock()

	for name, cur := range newResults {
		prev, existed := oldResults[name]
		if !existed || prev.Status != cur.Status {
			m.emitAlert(name, cur)
		}
	}
}

func (m *HealthMonitor) emitAlert(name string, h ComponentHealth) {
	var level string
	switch h.Status {
	case StatusUnhealthy:
		level = "critical"
	case StatusDegraded:
		level = "warn"
	default:
		level = "info"
	}

	msg := h.Message
	if msg == "" {
		msg = "status changed to " + string(h.Status)
	}

	// Non-blocking send; drop if the channel is full.
	select {
	case m.alertCh <- Alert{Level: level, Component: name, Message: msg, Timestamp: time.Now()}:
	default:
	}
}

func (m *HealthMonitor) snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if statusSeverity(h.Status) > statusSeverity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
	}
}

func statusSeverity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}

// ---------------------------------------------------------------------------
// Keeper dependency checks
// ---------------------------------------------------------------------------

// RPCCheck reports whether the chain RPC endpoint answers.
func RPCCheck(chain solana.Client) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := chain.Health(ctx); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// PriceCheck reports whether the price feed returns a usable SOL price.
// A zero price is degraded, not unhealthy: the agent runs on without it,
// skipping valuation-dependent decisions.
func PriceCheck(prices price.Source) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		quotes := prices.GetPrices(ctx, price.AssetSOL)
		if quotes[price.AssetSOL].IsZero() {
			return ComponentHealth{Status: StatusDegraded, Message: "sol price unavailable"}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// StateDirCheck reports whether the local state directory is writable.
// Unwritable state means the ledgers cannot persist, which breaks the
// at-most-once guarantee, so this one is unhealthy rather than degraded.
func StateDirCheck(dir string) HealthCheck {
	return func(_ context.Context) ComponentHealth {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		probe := filepath.Join(dir, ".writecheck")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: fmt.Sprintf("state dir not writable: %v", err)}
		}
		os.Remove(probe)
		return ComponentHealth{Status: StatusHealthy}
	}
}
