package types

const MiddlewareAuth = "auth"

type MiddlewareManager interface {
	LifecycleManager
	RegisterMiddlewares() error
	Register(middleware Middleware) error
	Execute(ctx *RequestCtx, handler FastHTTPHandler, config *RouteConfig)
	Enforces(name string, config *RouteConfig) bool
}

type Middleware interface {
	Handle(ctx *RequestCtx, next func(*RequestCtx), config *RouteConfig)
	Name() string
	Weight() int
}

type MiddlewareEntry struct {
	Name       string
	Middleware Middleware
	Weight     int
}
