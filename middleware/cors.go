package middleware

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

type CORSMiddleware struct {
	logger            types.Logger
	corsConfig        *CORSConfig
	weight            int
	allowsAll         bool
	allowedOriginsMap map[string]bool
	wildcardDomains   []string
	allowedMethods    string
	allowedHeaders    string
	exposedHeaders    string
	maxAge            string
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(config types.ConfigManager, logger types.Logger) *CORSMiddleware {
	corsConfig := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "X-Request-ID"},
		MaxAge:         86400,
	}
	item := config.GetConfig().Middlewares.CORS
	loadParams(item, corsConfig, logger, "cors")

	c := &CORSMiddleware{
		logger:     logger,
		corsConfig: corsConfig,
		weight:     weightOf(item, 40),
	}
	c.precompile()

	return c
}

func (c *CORSMiddleware) Name() string { return "cors" }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		next(ctx)
		return
	}

	if !c.isOriginAllowed(origin) {
		c.logger.Warn("CORS request blocked",
			zap.String("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":false,"message":"Origin not allowed","error_code":"CORS_POLICY_VIOLATION","details":{}}`)
		return
	}

	c.setOriginHeaders(ctx, origin)

	if string(ctx.Method()) == fasthttp.MethodOptions {
		ctx.Response.Header.Set("Access-Control-Allow-Methods", c.allowedMethods)
		ctx.Response.Header.Set("Access-Control-Allow-Headers", c.allowedHeaders)
		ctx.Response.Header.Set("Access-Control-Max-Age", c.maxAge)
		ctx.Response.Header.Set("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		ctx.SetBody(nil)
		return
	}

	ctx.Response.Header.Add("Vary", "Origin")
	next(ctx)
}

func (c *CORSMiddleware) setOriginHeaders(ctx *types.RequestCtx, origin string) {
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	} else {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
	}

	if c.exposedHeaders != "" {
		ctx.Response.Header.Set("Access-Control-Expose-Headers", c.exposedHeaders)
	}

	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (c *CORSMiddleware) isOriginAllowed(origin string) bool {
	if c.allowsAll || c.allowedOriginsMap[origin] {
		return true
	}

	host := origin
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}

	for _, domain := range c.wildcardDomains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (c *CORSMiddleware) precompile() {
	c.allowedOriginsMap = make(map[string]bool, len(c.corsConfig.AllowedOrigins))

	for _, origin := range c.corsConfig.AllowedOrigins {
		switch {
		case origin == "*":
			c.allowsAll = true
		case strings.HasPrefix(origin, "*."):
			c.wildcardDomains = append(c.wildcardDomains, strings.TrimPrefix(origin, "*."))
		default:
			c.allowedOriginsMap[origin] = true
		}
	}

	c.allowedMethods = strings.Join(c.corsConfig.AllowedMethods, ", ")
	c.allowedHeaders = strings.Join(c.corsConfig.AllowedHeaders, ", ")
	c.exposedHeaders = strings.Join(c.corsConfig.ExposedHeaders, ", ")
	c.maxAge = strconv.Itoa(c.corsConfig.MaxAge)
}
