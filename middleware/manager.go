package middleware

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/ratelimit"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const MaxMiddlewares = 64

type State int32

const (
	StateStopped State = iota
	StateRunning
)

// Manager orders middlewares by weight and runs the subset a route enables.
// Chains are compiled once per distinct enabled set.
type Manager struct {
	config             types.ConfigManager
	logger             types.Logger
	metrics            types.MetricsManager
	keys               *apikey.Manager
	limiter            *ratelimit.SlidingWindow
	orderedMiddlewares []types.MiddlewareEntry
	nameToIndex        map[string]int
	defaultEnabledMask uint64
	middlewareMap      map[string]*types.MiddlewareEntry
	mu                 sync.Mutex
	masks              sync.Map
	compiledChains     sync.Map
	initialized        int32
	state              atomic.Value
}

type compiledChain func(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig)

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, keys *apikey.Manager, limiter *ratelimit.SlidingWindow) *Manager {
	m := &Manager{
		config:        config,
		logger:        logger,
		metrics:       metrics,
		keys:          keys,
		limiter:       limiter,
		nameToIndex:   make(map[string]int),
		middlewareMap: make(map[string]*types.MiddlewareEntry),
	}
	m.state.Store(StateStopped)
	return m
}

// RegisterMiddlewares builds every middleware enabled in config and freezes
// the chain order.
func (m *Manager) RegisterMiddlewares() error {
	cfg := m.config.GetConfig().Middlewares
	if cfg == nil || !cfg.Enabled {
		m.logger.Info("Middlewares disabled")
		return m.finalizeConfiguration()
	}

	candidates := []struct {
		item  *types.MiddlewareItemConfig
		build func() types.Middleware
	}{
		{cfg.Recovery, func() types.Middleware { return NewRecoveryMiddleware(m.config, m.logger, m.metrics) }},
		{cfg.Logging, func() types.Middleware { return NewLoggingMiddleware(m.config, m.logger, m.metrics) }},
		{cfg.Metadata, func() types.Middleware { return NewMetadataMiddleware(m.config, m.logger) }},
		{cfg.CORS, func() types.Middleware { return NewCORSMiddleware(m.config, m.logger) }},
		{cfg.Auth, func() types.Middleware { return NewAuthMiddleware(m.config, m.logger, m.metrics, m.keys) }},
		{cfg.RateLimit, func() types.Middleware { return NewRateLimitMiddleware(m.config, m.logger, m.metrics, m.limiter) }},
		{cfg.Compression, func() types.Middleware { return NewCompressionMiddleware(m.config, m.logger) }},
	}

	for _, c := range candidates {
		if c.item == nil || !c.item.Enabled {
			continue
		}

		mw := c.build()
		if err := m.Register(mw); err != nil {
			return err
		}
		m.logger.Info("Middleware registered", zap.String("name", mw.Name()), zap.Int("weight", mw.Weight()))
	}

	return m.finalizeConfiguration()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareInvalidType
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.ErrMiddlewareFinalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.middlewareMap) >= MaxMiddlewares {
		return types.NewErrorf("maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	name := middleware.Name()
	m.middlewareMap[name] = &types.MiddlewareEntry{
		Name:       name,
		Middleware: middleware,
		Weight:     middleware.Weight(),
	}
	return nil
}

func (m *Manager) finalizeConfiguration() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.ErrMiddlewareFinalized
	}

	weights := make(map[int]string, len(m.middlewareMap))
	for name, entry := range m.middlewareMap {
		if existing, exists := weights[entry.Weight]; exists {
			return types.Errorf(types.ErrMiddlewareOrderInvalid, "duplicate weight %d for middlewares '%s' and '%s'",
				entry.Weight, existing, name)
		}
		weights[entry.Weight] = name
	}

	m.orderedMiddlewares = make([]types.MiddlewareEntry, 0, len(m.middlewareMap))
	for _, entry := range m.middlewareMap {
		m.orderedMiddlewares = append(m.orderedMiddlewares, *entry)
	}

	sort.Slice(m.orderedMiddlewares, func(i, j int) bool {
		return m.orderedMiddlewares[i].Weight < m.orderedMiddlewares[j].Weight
	})

	m.nameToIndex = make(map[string]int, len(m.orderedMiddlewares))
	m.defaultEnabledMask = 0
	for i, entry := range m.orderedMiddlewares {
		m.nameToIndex[entry.Name] = i
		m.defaultEnabledMask |= 1 << uint(i)
	}

	m.middlewareMap = nil
	atomic.StoreInt32(&m.initialized, 1)

	return nil
}

// Names returns the registered middleware names in execution order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		names[i] = entry.Name
	}
	return names
}

func (m *Manager) Execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if config.Protected() && !m.Enforces(types.MiddlewareAuth, config) {
		m.logger.Error("Protected route reached without auth middleware", zap.ByteString("path", ctx.Path()))
		utils.CreateUnauthorizedResponse(ctx.RequestCtx, utils.CodeAuthenticationRequired, "API key required")
		return
	}

	if atomic.LoadInt32(&m.initialized) == 0 {
		handler(ctx)
		return
	}

	mask := m.routeMask(config)
	if mask == 0 {
		handler(ctx)
		return
	}

	m.chain(mask)(ctx, handler, config)
}

// Enforces reports whether the named middleware runs for the route.
func (m *Manager) Enforces(name string, config *types.RouteConfig) bool {
	if atomic.LoadInt32(&m.initialized) == 0 {
		return false
	}

	index, exists := m.nameToIndex[name]
	if !exists {
		return false
	}
	return m.routeMask(config)&(1<<uint(index)) != 0
}

func (m *Manager) routeMask(config *types.RouteConfig) uint64 {
	if config == nil || (len(config.Middlewares) == 0 && len(config.DisabledMiddlewares) == 0) {
		return m.defaultEnabledMask
	}

	if cached, ok := m.masks.Load(config); ok {
		return cached.(uint64)
	}

	mask := m.defaultEnabledMask
	for _, name := range config.Middlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask |= 1 << uint(index)
		}
	}
	for _, name := range config.DisabledMiddlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask &^= 1 << uint(index)
		}
	}

	m.masks.Store(config, mask)
	return mask
}

func (m *Manager) chain(mask uint64) compiledChain {
	if cached, ok := m.compiledChains.Load(mask); ok {
		return cached.(compiledChain)
	}

	active := make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		if mask&(1<<uint(i)) != 0 {
			active = append(active, entry.Middleware)
		}
	}

	compiled := compileChain(active)
	actual, _ := m.compiledChains.LoadOrStore(mask, compiled)
	return actual.(compiledChain)
}

func compileChain(middlewares []types.Middleware) compiledChain {
	return func(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
		index := 0

		var next func(*types.RequestCtx)
		next = func(ctx *types.RequestCtx) {
			if index >= len(middlewares) {
				handler(ctx)
				return
			}

			mw := middlewares[index]
			index++
			mw.Handle(ctx, next, config)
		}

		next(ctx)
	}
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServiceIsRunning
	}
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServiceIsNotRunning
	}
	m.logger.Info("Middleware manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}
