package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

// Manager fronts the prometheus backend. With metrics disabled every
// instrument it hands out is a no-op, so callers never branch on config.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	backend *PrometheusMetrics
	state   atomic.Value
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (*Manager, error) {
	metricsConfig := config.GetConfig().Metrics
	if metricsConfig == nil {
		metricsConfig = &types.MetricsConfig{}
	}

	managerCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
	}
	m.state.Store(ManagerStateStopped)

	if metricsConfig.Enabled {
		backend, err := NewPrometheusMetrics(logger, metricsConfig)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to initialize metrics manager")
		}
		m.backend = backend
	}

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if m.backend != nil {
		if err := m.backend.Start(); err != nil {
			m.setState(ManagerStateStopped)
			return types.WrapError(types.ErrMetricsStartFailed, err.Error())
		}
	}

	m.setState(ManagerStateRunning)
	m.logger.Info("Metrics manager started", zap.Bool("enabled", m.backend != nil))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(ManagerStateStopped)
		m.cancel()
	}()

	if m.backend != nil {
		if err := m.backend.Stop(); err != nil {
			m.logger.Error("Error during metrics manager shutdown", zap.Error(err))
		}
	}

	m.logger.Info("Metrics manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == ManagerStateRunning
}

func (m *Manager) RegisterRoutes(router types.HTTPRouter) {
	if m.backend != nil {
		m.backend.RegisterRoutes(router)
	}
}

func (m *Manager) Counter(name string, labels map[string]string) types.Counter {
	if m.backend == nil {
		return noopCounter{}
	}
	return m.backend.Counter(name, labels)
}

func (m *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if m.backend == nil {
		return noopGauge{}
	}
	return m.backend.Gauge(name, labels)
}

func (m *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if m.backend == nil {
		return noopHistogram{}
	}
	return m.backend.Histogram(name, buckets, labels)
}

func (m *Manager) GetStats() types.MetricsStats {
	if m.backend == nil {
		return types.MetricsStats{LastUpdate: time.Now()}
	}
	return m.backend.GetStats()
}

func (m *Manager) getState() ManagerState {
	return m.state.Load().(ManagerState)
}

func (m *Manager) setState(newState ManagerState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to ManagerState) bool {
	return m.state.CompareAndSwap(from, to)
}

type noopCounter struct{}

func (noopCounter) Inc()          {}
func (noopCounter) Add(_ float64) {}
func (noopCounter) Get() float64  { return 0 }

type noopGauge struct{}

func (noopGauge) Set(_ float64) {}
func (noopGauge) Inc()          {}
func (noopGauge) Dec()          {}
func (noopGauge) Add(_ float64) {}
func (noopGauge) Get() float64  { return 0 }

type noopHistogram struct{}

func (noopHistogram) Observe(_ float64)           {}
func (noopHistogram) ObserveDuration(_ time.Time) {}
func (noopHistogram) GetCount() uint64            { return 0 }

// NewNop returns a manager with metrics disabled, for tests and CLI paths.
func NewNop(logger types.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{ctx: ctx, cancel: cancel, logger: logger}
	m.state.Store(ManagerStateStopped)
	return m
}
