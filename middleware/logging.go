package middleware

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/types"
)

const maxLoggedBody = 1000

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

var requestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	ips           *ipResolver
	weight        int
}

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
	LogBody    bool   `json:"log_body"`
}

func NewLoggingMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	loggingConfig := &LoggingConfig{LogLevel: "info"}
	item := config.GetConfig().Middlewares.Logging
	loadParams(item, loggingConfig, logger, "logging")

	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		ips:           newIPResolver(config, logger),
		weight:        weightOf(item, 20),
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	start := time.Now()

	l.logRequest(ctx)
	next(ctx)
	l.logResponse(ctx, time.Since(start))

	if l.metrics != nil {
		method := string(ctx.Method())
		status := strconv.Itoa(ctx.Response.StatusCode())
		l.metrics.Counter("http_requests_total", map[string]string{"method": method, "status": status}).Inc()
		l.metrics.Histogram("http_request_duration_seconds", requestDurationBuckets, map[string]string{"method": method}).ObserveDuration(start)
	}
}

func (l *LoggingMiddleware) logRequest(ctx *types.RequestCtx) {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", l.ips.ClientIP(ctx.RequestCtx)),
		zap.ByteString("user_agent", ctx.UserAgent()),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}

	if requestID := ctx.RequestID(); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if l.loggingConfig.LogHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	l.logWithLevel("Request started", fields...)
}

func (l *LoggingMiddleware) logResponse(ctx *types.RequestCtx, duration time.Duration) {
	status := ctx.Response.StatusCode()
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", status),
		zap.Duration("duration", duration),
	}

	if requestID := ctx.RequestID(); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if client, ok := apikey.FromRequest(ctx); ok {
		fields = append(fields, zap.String("key_id", client.KeyID))
	}

	if l.loggingConfig.LogBody {
		if body := ctx.Response.Body(); len(body) > maxLoggedBody {
			fields = append(fields, zap.ByteString("response", body[:maxLoggedBody]), zap.Int("response_body_truncated", len(body)))
		} else if len(body) > 0 {
			fields = append(fields, zap.ByteString("response", body))
		}
	}

	switch {
	case status >= 500:
		l.logger.Error("Request completed", fields...)
	case status >= 400:
		l.logger.Warn("Request completed", fields...)
	default:
		l.logWithLevel("Request completed", fields...)
	}
}

func sanitizeHeaders(ctx *types.RequestCtx) map[string]string {
	sanitized := make(map[string]string, 16)

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			sanitized[name] = "[REDACTED]"
			return
		}
		sanitized[name] = string(value)
	})

	return sanitized
}

func (l *LoggingMiddleware) logWithLevel(msg string, fields ...zap.Field) {
	switch l.loggingConfig.LogLevel {
	case "debug":
		l.logger.Debug(msg, fields...)
	case "warn":
		l.logger.Warn(msg, fields...)
	case "error":
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}
