package types

import (
	"context"

	"github.com/valyala/fasthttp"
)

const (
	UserValueAPIClient = "api_client"
	UserValueRequestID = "request_id"
)

type FastHTTPHandler func(ctx *RequestCtx)

// RequestCtx carries a fasthttp request through the middleware chain and handlers.
type RequestCtx struct {
	*fasthttp.RequestCtx
	ctx context.Context
}

func NewRequestCtx(ctx *fasthttp.RequestCtx) *RequestCtx {
	return &RequestCtx{RequestCtx: ctx, ctx: context.Background()}
}

// Context is passed to storage and cache calls made by handlers. It does not
// depend on the fasthttp server, so handlers also run on a bare RequestCtx.
func (c *RequestCtx) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *RequestCtx) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Param returns a path parameter captured by the router.
func (c *RequestCtx) Param(name string) string {
	if v, ok := c.UserValue(name).(string); ok {
		return v
	}
	return ""
}

func (c *RequestCtx) RequestID() string {
	if v, ok := c.UserValue(UserValueRequestID).(string); ok {
		return v
	}
	return string(c.Request.Header.Peek("X-Request-ID"))
}
