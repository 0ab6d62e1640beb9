package server

import (
	"github.com/saiset-co/sai-org-registry/types"
)

// GroupBuilder shares a path prefix and route settings. Settings apply to
// routes created after they are set.
type GroupBuilder struct {
	router *FastHTTPRouter
	prefix string
	config *types.RouteConfig
}

func (gb *GroupBuilder) WithMiddlewares(names ...string) types.GroupBuilder {
	gb.config.Middlewares = append(gb.config.Middlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithoutMiddlewares(names ...string) types.GroupBuilder {
	gb.config.DisabledMiddlewares = append(gb.config.DisabledMiddlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithPermissions(permissions ...string) types.GroupBuilder {
	gb.config.Permissions = append(gb.config.Permissions, permissions...)
	return gb
}

func (gb *GroupBuilder) RequireAuth() types.GroupBuilder {
	gb.config.AuthRequired = true
	return gb
}

func (gb *GroupBuilder) Route(method, path string, handler types.FastHTTPHandler) types.RouteBuilder {
	rb := gb.router.route(method, gb.prefix+path, handler)

	rb.config.Middlewares = append(rb.config.Middlewares, gb.config.Middlewares...)
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, gb.config.DisabledMiddlewares...)
	rb.config.Permissions = append(rb.config.Permissions, gb.config.Permissions...)
	rb.config.AuthRequired = gb.config.AuthRequired
	rb.config.Timeout = gb.config.Timeout

	return rb
}

func (gb *GroupBuilder) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("GET", path, handler)
}

func (gb *GroupBuilder) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("POST", path, handler)
}

func (gb *GroupBuilder) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("PUT", path, handler)
}

func (gb *GroupBuilder) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("DELETE", path, handler)
}

func (gb *GroupBuilder) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: gb.router,
		prefix: gb.prefix + prefix,
		config: &types.RouteConfig{
			Middlewares:         append([]string(nil), gb.config.Middlewares...),
			DisabledMiddlewares: append([]string(nil), gb.config.DisabledMiddlewares...),
			Permissions:         append([]string(nil), gb.config.Permissions...),
			AuthRequired:        gb.config.AuthRequired,
			Timeout:             gb.config.Timeout,
		},
	}
}
