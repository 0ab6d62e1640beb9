package types

import (
	"time"
)

type HTTPServer interface {
	LifecycleManager
}

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	Group(prefix string) GroupBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	Lookup(method, path string) (*RouteInfo, map[string]string)
	Routes() []RouteDefinition
}

type RouteBuilder interface {
	WithMiddlewares(names ...string) RouteBuilder
	WithoutMiddlewares(names ...string) RouteBuilder
	WithPermissions(permissions ...string) RouteBuilder
	RequireAuth() RouteBuilder
	WithTimeout(duration time.Duration) RouteBuilder
}

type GroupBuilder interface {
	WithMiddlewares(names ...string) GroupBuilder
	WithoutMiddlewares(names ...string) GroupBuilder
	WithPermissions(permissions ...string) GroupBuilder
	RequireAuth() GroupBuilder
	Route(method, path string, handler FastHTTPHandler) RouteBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	Group(prefix string) GroupBuilder
}

type RouteConfig struct {
	Middlewares         []string
	DisabledMiddlewares []string
	Permissions         []string
	AuthRequired        bool
	Timeout             time.Duration
}

func (rc *RouteConfig) Disables(name string) bool {
	if rc == nil {
		return false
	}
	for _, disabled := range rc.DisabledMiddlewares {
		if disabled == name {
			return true
		}
	}
	return false
}

// Protected reports whether the route may only run behind the auth middleware.
func (rc *RouteConfig) Protected() bool {
	return rc != nil && (rc.AuthRequired || len(rc.Permissions) > 0)
}

type RouteInfo struct {
	Handler FastHTTPHandler
	Config  *RouteConfig
}

type RouteDefinition struct {
	Method string
	Path   string
	Config *RouteConfig
}
