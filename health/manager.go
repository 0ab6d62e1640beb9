package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	service      types.ServiceInfo
	logger       types.Logger
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) *Manager {
	cfg := config.GetConfig()
	managerCtx, cancel := context.WithCancel(ctx)

	checkTimeout := 5 * time.Second
	if cfg.Health != nil && cfg.Health.CheckTimeout > 0 {
		checkTimeout = cfg.Health.CheckTimeout
	}

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		service:      types.ServiceInfo{Name: cfg.Name, Version: cfg.Version},
		logger:       logger,
		checkers:     make(map[string]types.HealthChecker),
		startTime:    time.Now(),
		checkTimeout: checkTimeout,
	}
	manager.state.Store(StateStopped)

	return manager
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	var g errgroup.Group
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		g.Go(func() error {
			result := hm.executeCheck(checkCtx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return hm.buildReport(results)
}

func (hm *Manager) Start() error {
	if !hm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	hm.startTime = time.Now()
	hm.setState(StateRunning)

	hm.logger.Info("Health manager started")
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	hm.setState(StateStopped)
	hm.cancel()

	hm.logger.Info("Health manager stopped")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.getState() == StateRunning
}

func (hm *Manager) getState() State {
	return hm.state.Load().(State)
}

func (hm *Manager) setState(newState State) bool {
	currentState := hm.getState()
	return hm.state.CompareAndSwap(currentState, newState)
}

func (hm *Manager) transitionState(from, to State) bool {
	return hm.state.CompareAndSwap(from, to)
}

func (hm *Manager) RegisterRoutes(router types.HTTPRouter) {
	config := &types.RouteConfig{
		Timeout:             5 * time.Second,
		DisabledMiddlewares: []string{"auth", "rate_limit"},
	}

	router.Add("GET", "/version", hm.handleVersion, config)
	router.Add("GET", "/health", hm.handleHealth, config)
}

func (hm *Manager) handleVersion(ctx *types.RequestCtx) {
	utils.WriteJSON(ctx.RequestCtx, fasthttp.StatusOK, Build(hm.service.Version))
}

func (hm *Manager) handleHealth(ctx *types.RequestCtx) {
	if !hm.IsRunning() {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusServiceUnavailable, "Service is not running", utils.CodeInternalError, nil)
		return
	}

	report := hm.Check(ctx.Context())

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}
	utils.WriteJSON(ctx.RequestCtx, status, report)
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()
	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("Health check panicked: %v", r),
				}
			}
		}()
		resultChan <- checker(ctx)
	}()

	var result types.HealthCheck
	select {
	case result = <-resultChan:
	case <-hm.ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health manager shutting down"}
	case <-ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health check timeout"}
		hm.logger.Warn("Health check timeout", zap.String("checker", name))
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)
	return result
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	summary := types.HealthSummary{Total: len(results)}

	overallStatus := types.StatusHealthy
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
			overallStatus = types.StatusUnhealthy
		default:
			summary.Unknown++
			if overallStatus == types.StatusHealthy {
				overallStatus = types.StatusUnknown
			}
		}
	}

	return types.HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime).Round(time.Second).String(),
		Service:   hm.service,
		Checks:    results,
		Summary:   summary,
	}
}
