package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

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

const defaultShutdownTimeout = 10 * time.Second

type FastHTTPServer struct {
	logger          types.Logger
	middlewares     types.MiddlewareManager
	router          *FastHTTPRouter
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	state           atomic.Value
	shutdownTimeout time.Duration
	serveErr        chan error
}

func NewHTTPServer(config types.ConfigManager, logger types.Logger, middlewares types.MiddlewareManager, router *FastHTTPRouter) *FastHTTPServer {
	httpConfig := config.GetConfig().Server.HTTP

	shutdownTimeout := defaultShutdownTimeout
	if httpConfig.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(httpConfig.ShutdownTimeout) * time.Second
	}

	server := &FastHTTPServer{
		logger:          logger,
		middlewares:     middlewares,
		router:          router,
		httpConfig:      httpConfig,
		shutdownTimeout: shutdownTimeout,
		serveErr:        make(chan error, 1),
	}

	server.state.Store(StateStopped)

	return server
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := h.VerifyRoutes(); err != nil {
		h.setState(StateStopped)
		return err
	}

	h.server = &fasthttp.Server{
		Handler:                      h.Handler(),
		Name:                         "sai-org-registry",
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize:           h.httpConfig.MaxRequestBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "listen %s: %v", addr, err)
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.serveErr <- err
		}
	}()

	h.setState(StateRunning)
	h.logger.Info("HTTP server started successfully", zap.String("address", listener.Addr().String()))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer h.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("Server stop timeout, some connections may not have closed gracefully", zap.Error(err))
		return nil
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr is the bound listener address, useful when the port is 0.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Errors reports a serve loop failure after Start returned.
func (h *FastHTTPServer) Errors() <-chan error {
	return h.serveErr
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) {
	h.state.Store(newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

// VerifyRoutes finalizes pending routes and fails when a route that needs a
// validated key would run without the auth middleware.
func (h *FastHTTPServer) VerifyRoutes() error {
	if err := h.router.FinalizePendingRoutes(); err != nil {
		return types.WrapError(err, "failed to finalize routes")
	}

	var unguarded []string
	for _, route := range h.router.Routes() {
		if route.Config.Protected() && !h.guarded(route.Config) {
			unguarded = append(unguarded, route.Method+" "+route.Path)
		}
	}

	if len(unguarded) > 0 {
		return types.Errorf(types.ErrRouteUnprotected, "%s", strings.Join(unguarded, ", "))
	}
	return nil
}

func (h *FastHTTPServer) guarded(config *types.RouteConfig) bool {
	return h.middlewares != nil && h.middlewares.Enforces(types.MiddlewareAuth, config)
}

// Handler dispatches a request to its route through the middleware chain.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		method := string(fctx.Method())
		info, params := h.router.Lookup(method, string(fctx.Path()))

		if info == nil {
			if method == fasthttp.MethodOptions {
				h.execute(types.NewRequestCtx(fctx), func(*types.RequestCtx) {}, &types.RouteConfig{})
				return
			}
			h.execute(types.NewRequestCtx(fctx), notFound, &types.RouteConfig{})
			return
		}

		for name, value := range params {
			fctx.SetUserValue(name, value)
		}

		if info.Config != nil && info.Config.Timeout > 0 {
			timeout := info.Config.Timeout
			fasthttp.TimeoutWithCodeHandler(func(inner *fasthttp.RequestCtx) {
				deadline, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()

				ctx := types.NewRequestCtx(inner)
				ctx.SetContext(deadline)
				h.execute(ctx, info.Handler, info.Config)
			}, timeout, "Request timeout", fasthttp.StatusServiceUnavailable)(fctx)
			return
		}

		h.execute(types.NewRequestCtx(fctx), info.Handler, info.Config)
	}
}

func (h *FastHTTPServer) execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if h.middlewares != nil {
		h.middlewares.Execute(ctx, handler, config)
		return
	}

	if config.Protected() {
		h.logger.Error("Protected route reached without auth middleware", zap.ByteString("path", ctx.Path()))
		utils.CreateUnauthorizedResponse(ctx.RequestCtx, utils.CodeAuthenticationRequired, "API key required")
		return
	}
	handler(ctx)
}

func notFound(ctx *types.RequestCtx) {
	utils.WriteError(ctx.RequestCtx, fasthttp.StatusNotFound, "Not found", utils.CodeNotFound, nil)
}
