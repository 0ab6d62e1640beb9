package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

func named(name string, hits map[string]int) types.FastHTTPHandler {
	return func(ctx *types.RequestCtx) {
		hits[name]++
		ctx.SetBodyString(name)
	}
}

func TestRouterStaticAndParams(t *testing.T) {
	r := NewFastHTTPRouter()
	hits := map[string]int{}

	r.GET("/api/v1/people", named("list", hits))
	r.GET("/api/v1/people/search", named("search", hits))
	r.GET("/api/v1/people/{id}", named("get", hits))
	r.DELETE("/api/v1/people/{id}", named("delete", hits))
	require.NoError(t, r.FinalizePendingRoutes())

	info, params := r.Lookup("GET", "/api/v1/people/")
	require.NotNil(t, info)
	assert.Empty(t, params)

	info, params = r.Lookup("GET", "/api/v1/people/search")
	require.NotNil(t, info)
	assert.Empty(t, params, "static segment wins over parameter")

	info, params = r.Lookup("GET", "/api/v1/people/42")
	require.NotNil(t, info)
	assert.Equal(t, map[string]string{"id": "42"}, params)

	info, _ = r.Lookup("PUT", "/api/v1/people/42")
	assert.Nil(t, info)

	info, _ = r.Lookup("GET", "/api/v1/people/42/extra")
	assert.Nil(t, info)

	info, _ = r.Lookup("BREW", "/api/v1/people")
	assert.Nil(t, info)
}

func TestRouterBuilderConfig(t *testing.T) {
	r := NewFastHTTPRouter()

	admin := r.Group("/admin").RequireAuth().WithPermissions("admin")
	admin.GET("/api-keys", func(*types.RequestCtx) {})
	admin.DELETE("/api-keys/{key_id}", func(*types.RequestCtx) {}).WithoutMiddlewares("compression")

	r.GET("/health", func(*types.RequestCtx) {}).WithoutMiddlewares("auth", "rate_limit")

	info, _ := r.Lookup("GET", "/admin/api-keys")
	assert.Nil(t, info, "builder routes register on finalize")

	require.NoError(t, r.FinalizePendingRoutes())

	info, _ = r.Lookup("GET", "/admin/api-keys")
	require.NotNil(t, info)
	assert.True(t, info.Config.AuthRequired)
	assert.Equal(t, []string{"admin"}, info.Config.Permissions)

	info, params := r.Lookup("DELETE", "/admin/api-keys/key_abc")
	require.NotNil(t, info)
	assert.Equal(t, "key_abc", params["key_id"])
	assert.True(t, info.Config.Disables("compression"))

	info, _ = r.Lookup("GET", "/health")
	require.NotNil(t, info)
	assert.False(t, info.Config.AuthRequired)
	assert.True(t, info.Config.Disables("rate_limit"))

	routes := r.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "/admin/api-keys", routes[0].Path)
}

func TestServerHandler(t *testing.T) {
	r := NewFastHTTPRouter()
	hits := map[string]int{}
	r.GET("/api/v1/people/{id}", func(ctx *types.RequestCtx) {
		hits["get"]++
		ctx.SetBodyString(ctx.Param("id"))
	})
	require.NoError(t, r.FinalizePendingRoutes())

	cfg := config.NewStatic(config.NewLoader().Defaults())
	srv := NewHTTPServer(cfg, logger.NewNop(), nil, r)
	handler := srv.Handler()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/api/v1/people/7")
	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "7", string(ctx.Response.Body()))
	assert.Equal(t, 1, hits["get"])

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/nowhere")
	handler(ctx)

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"error_code":"NOT_FOUND"`)
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Server.HTTP.Host = "127.0.0.1"
	cfg.Server.HTTP.Port = 0

	srv := NewHTTPServer(config.NewStatic(cfg), logger.NewNop(), nil, NewFastHTTPRouter())

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.NotEmpty(t, srv.Addr())
	assert.ErrorIs(t, srv.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Stop(), types.ErrServerNotRunning)
}

type authlessManager struct{ executed int }

func (m *authlessManager) Start() error                             { return nil }
func (m *authlessManager) Stop() error                              { return nil }
func (m *authlessManager) IsRunning() bool                          { return true }
func (m *authlessManager) RegisterMiddlewares() error               { return nil }
func (m *authlessManager) Register(types.Middleware) error          { return nil }
func (m *authlessManager) Enforces(string, *types.RouteConfig) bool { return false }
func (m *authlessManager) Execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, _ *types.RouteConfig) {
	m.executed++
	handler(ctx)
}

func TestVerifyRoutesRejectsUnguardedProtectedRoutes(t *testing.T) {
	cfg := config.NewStatic(config.NewLoader().Defaults())

	cases := []struct {
		name        string
		middlewares types.MiddlewareManager
	}{
		{"no middleware manager", nil},
		{"auth not enforced", &authlessManager{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewFastHTTPRouter()
			r.GET("/health", func(*types.RequestCtx) {})
			r.Group("/admin").RequireAuth().WithPermissions("admin").POST("/api-keys", func(*types.RequestCtx) {})

			srv := NewHTTPServer(cfg, logger.NewNop(), tc.middlewares, r)

			err := srv.VerifyRoutes()
			require.ErrorIs(t, err, types.ErrRouteUnprotected)
			assert.Contains(t, err.Error(), "POST /admin/api-keys")
			assert.NotContains(t, err.Error(), "/health")

			assert.ErrorIs(t, srv.Start(), types.ErrRouteUnprotected)
			assert.False(t, srv.IsRunning())
		})
	}
}

func TestServerHandlerRefusesProtectedRouteWithoutManager(t *testing.T) {
	r := NewFastHTTPRouter()
	called := false
	r.Add("POST", "/admin/api-keys", func(*types.RequestCtx) { called = true }, &types.RouteConfig{
		AuthRequired: true,
		Permissions:  []string{"admin"},
	})

	srv := NewHTTPServer(config.NewStatic(config.NewLoader().Defaults()), logger.NewNop(), nil, r)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/admin/api-keys")
	srv.Handler()(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"error_code":"AUTHENTICATION_REQUIRED"`)
}
