package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/ratelimit"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const (
	ClientTypeAPIClient = "api_client"
	ClientTypeIP        = "ip_address"

	retryAfterSeconds = "60"
)

type RateLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	limiter         *ratelimit.SlidingWindow
	rateLimitConfig *RateLimitConfig
	bypass          map[string]struct{}
	ips             *ipResolver
	weight          int
	nowFunc         func() time.Time
}

type RateLimitConfig struct {
	RequestsPerMinute int      `json:"requests_per_minute"`
	BypassPaths       []string `json:"bypass_paths"`
}

func NewRateLimitMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, limiter *ratelimit.SlidingWindow) *RateLimitMiddleware {
	rateLimitConfig := &RateLimitConfig{
		RequestsPerMinute: ratelimit.DefaultRequestsPerMinute,
		BypassPaths:       []string{"/health", "/health/", "/version"},
	}
	item := config.GetConfig().Middlewares.RateLimit
	loadParams(item, rateLimitConfig, logger, "rate_limit")

	if rateLimitConfig.RequestsPerMinute <= 0 {
		rateLimitConfig.RequestsPerMinute = ratelimit.DefaultRequestsPerMinute
	}

	bypass := make(map[string]struct{}, len(rateLimitConfig.BypassPaths))
	for _, path := range rateLimitConfig.BypassPaths {
		bypass[path] = struct{}{}
	}

	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow()
	}

	return &RateLimitMiddleware{
		logger:          logger,
		metrics:         metrics,
		limiter:         limiter,
		rateLimitConfig: rateLimitConfig,
		bypass:          bypass,
		ips:             newIPResolver(config, logger),
		weight:          weightOf(item, 60),
		nowFunc:         time.Now,
	}
}

func (r *RateLimitMiddleware) Name() string { return "rate_limit" }
func (r *RateLimitMiddleware) Weight() int  { return r.weight }

func (r *RateLimitMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	if _, skip := r.bypass[string(ctx.Path())]; skip {
		next(ctx)
		return
	}

	now := r.nowFunc()
	r.limiter.MaybeCleanup(now)

	identifier, clientType, limit := r.resolve(ctx)
	decision := r.limiter.Allow(identifier, now, limit)

	header := &ctx.Response.Header
	header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset, 10))

	if !decision.Allowed {
		r.logger.Warn("Rate limit exceeded",
			zap.String("identifier", identifier),
			zap.String("client_type", clientType),
			zap.Int("limit", decision.Limit))

		if r.metrics != nil {
			r.metrics.Counter("rate_limit_rejections_total", map[string]string{"client_type": clientType}).Inc()
		}

		header.Set("Retry-After", retryAfterSeconds)
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusTooManyRequests, "Rate limit exceeded", utils.CodeRateLimitExceeded,
			map[string]interface{}{
				"limit":       decision.Limit,
				"window":      "1 minute",
				"client_type": clientType,
			})
		return
	}

	next(ctx)

	// handlers may reset the response, so headers are reapplied
	header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset, 10))
}

func (r *RateLimitMiddleware) resolve(ctx *types.RequestCtx) (string, string, int) {
	if client, ok := apikey.FromRequest(ctx); ok {
		limit := r.rateLimitConfig.RequestsPerMinute
		if client.RateLimit > 0 {
			limit = client.RateLimit
		}
		return ratelimit.ClientIdentifier(client.KeyID), ClientTypeAPIClient, limit
	}

	return ratelimit.IPIdentifier(r.ips.ClientIP(ctx.RequestCtx)), ClientTypeIP, r.rateLimitConfig.RequestsPerMinute
}
