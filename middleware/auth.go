package middleware

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const DefaultAPIKeyHeader = "X-API-Key"

// AuthMiddleware validates the API key header against the route's
// permissions. A key is optional unless the route requires auth, but a key
// that is present must always be valid.
type AuthMiddleware struct {
	logger     types.Logger
	metrics    types.MetricsManager
	keys       *apikey.Manager
	authConfig *AuthConfig
	ips        *ipResolver
	weight     int
}

type AuthConfig struct {
	Header string `json:"header"`
}

func NewAuthMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, keys *apikey.Manager) *AuthMiddleware {
	authConfig := &AuthConfig{Header: DefaultAPIKeyHeader}
	item := config.GetConfig().Middlewares.Auth
	loadParams(item, authConfig, logger, "auth")

	if authConfig.Header == "" {
		authConfig.Header = DefaultAPIKeyHeader
	}

	return &AuthMiddleware{
		logger:     logger,
		metrics:    metrics,
		keys:       keys,
		authConfig: authConfig,
		ips:        newIPResolver(config, logger),
		weight:     weightOf(item, 50),
	}
}

func (a *AuthMiddleware) Name() string { return types.MiddlewareAuth }
func (a *AuthMiddleware) Weight() int  { return a.weight }

func (a *AuthMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), config *types.RouteConfig) {
	if string(ctx.Method()) == fasthttp.MethodOptions {
		next(ctx)
		return
	}

	raw := string(ctx.Request.Header.Peek(a.authConfig.Header))
	required := config != nil && config.AuthRequired

	if raw == "" {
		if required {
			a.reject("missing")
			utils.CreateUnauthorizedResponse(ctx.RequestCtx, utils.CodeAuthenticationRequired, "API key required")
			return
		}
		next(ctx)
		return
	}

	var permissions []apikey.Permission
	if config != nil {
		permissions = make([]apikey.Permission, len(config.Permissions))
		for i, p := range config.Permissions {
			permissions[i] = apikey.Permission(p)
		}
	}

	client, err := a.keys.Validate(raw, a.ips.ClientIP(ctx.RequestCtx), permissions...)
	if err != nil {
		a.handleError(ctx, err, config)
		return
	}

	apikey.WithClient(ctx, client)
	next(ctx)
}

func (a *AuthMiddleware) handleError(ctx *types.RequestCtx, err error, config *types.RouteConfig) {
	var permErr *apikey.PermissionError

	switch {
	case errors.As(err, &permErr):
		missing := make([]string, len(permErr.Missing))
		for i, p := range permErr.Missing {
			missing[i] = string(p)
		}

		a.logger.Warn("API key lacks permissions",
			zap.ByteString("path", ctx.Path()),
			zap.Strings("missing_permissions", missing))
		a.reject("forbidden")

		utils.WriteError(ctx.RequestCtx, fasthttp.StatusForbidden, "Insufficient permissions", utils.CodeInsufficientPermission,
			map[string]interface{}{
				"missing_permissions":  missing,
				"required_permissions": config.Permissions,
			})

	case errors.Is(err, apikey.ErrUnknownPermission):
		a.logger.Error("Route declares unknown permission", zap.ByteString("path", ctx.Path()), zap.Error(err))
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusInternalServerError, "Internal server error", utils.CodeInternalError, nil)

	default:
		a.logger.Warn("API key rejected",
			zap.ByteString("path", ctx.Path()),
			zap.String("client_ip", a.ips.ClientIP(ctx.RequestCtx)),
			zap.String("reason", err.Error()))
		a.reject("invalid")

		utils.CreateUnauthorizedResponse(ctx.RequestCtx, utils.CodeInvalidAPIKey, "Invalid API key")
	}
}

func (a *AuthMiddleware) reject(reason string) {
	if a.metrics != nil {
		a.metrics.Counter("auth_rejections_total", map[string]string{"reason": reason}).Inc()
	}
}
