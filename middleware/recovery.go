package middleware

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

type RecoveryMiddleware struct {
	logger         types.Logger
	metrics        types.MetricsManager
	recoveryConfig *RecoveryConfig
	weight         int
}

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

func NewRecoveryMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	recoveryConfig := &RecoveryConfig{StackTrace: true}
	item := config.GetConfig().Middlewares.Recovery
	loadParams(item, recoveryConfig, logger, "recovery")

	return &RecoveryMiddleware{
		logger:         logger,
		metrics:        metrics,
		recoveryConfig: recoveryConfig,
		weight:         weightOf(item, 10),
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

func (r *RecoveryMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logPanic(rec, ctx)

			if r.metrics != nil {
				r.metrics.Counter("http_panics_total", map[string]string{"middleware": "recovery"}).Inc()
			}

			ctx.Response.Reset()
			utils.WriteError(ctx.RequestCtx, 500, "Internal server error", utils.CodeInternalError, nil)
		}
	}()

	next(ctx)
}

func (r *RecoveryMiddleware) logPanic(rec interface{}, ctx *types.RequestCtx) {
	fields := []zap.Field{
		zap.Any("panic", rec),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", ctx.RemoteIP().String()),
	}

	if requestID := ctx.RequestID(); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if r.recoveryConfig.StackTrace {
		fields = append(fields, zap.String("stack", stackTrace()))
	}

	r.logger.Error("Recovered from panic", fields...)
}

func stackTrace() string {
	buf := make([]byte, 4096)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) || len(buf) >= 65536 {
			return utils.BytesToString(buf[:n])
		}
		buf = make([]byte, len(buf)*4)
	}
}
