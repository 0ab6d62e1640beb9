package server

import (
	"time"

	"github.com/saiset-co/sai-org-registry/types"
)

const maxMiddlewareSliceSize = 100

type RouteBuilder struct {
	router  *FastHTTPRouter
	method  string
	path    string
	handler types.FastHTTPHandler
	config  *types.RouteConfig
}

func (rb *RouteBuilder) WithMiddlewares(names ...string) types.RouteBuilder {
	rb.config.Middlewares = append(rb.config.Middlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithoutMiddlewares(names ...string) types.RouteBuilder {
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, names...)
	return rb
}

// WithPermissions lists the permissions an API key needs for this route.
func (rb *RouteBuilder) WithPermissions(permissions ...string) types.RouteBuilder {
	rb.config.Permissions = append(rb.config.Permissions, permissions...)
	return rb
}

func (rb *RouteBuilder) RequireAuth() types.RouteBuilder {
	rb.config.AuthRequired = true
	return rb
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

func (rb *RouteBuilder) finalize() error {
	if len(rb.config.Middlewares) > maxMiddlewareSliceSize || len(rb.config.DisabledMiddlewares) > maxMiddlewareSliceSize {
		return types.ErrMiddlewareOrderInvalid
	}

	configCopy := &types.RouteConfig{
		Middlewares:         append([]string(nil), rb.config.Middlewares...),
		DisabledMiddlewares: append([]string(nil), rb.config.DisabledMiddlewares...),
		Permissions:         append([]string(nil), rb.config.Permissions...),
		AuthRequired:        rb.config.AuthRequired,
		Timeout:             rb.config.Timeout,
	}

	rb.router.Add(rb.method, rb.path, rb.handler, configCopy)
	return nil
}
