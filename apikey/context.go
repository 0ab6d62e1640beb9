package apikey

import (
	"github.com/saiset-co/sai-org-registry/types"
)

// FromRequest returns the client attached by the auth middleware.
func FromRequest(ctx *types.RequestCtx) (*ClientInfo, bool) {
	info, ok := ctx.UserValue(types.UserValueAPIClient).(*ClientInfo)
	return info, ok && info != nil
}

func WithClient(ctx *types.RequestCtx, info *ClientInfo) {
	ctx.SetUserValue(types.UserValueAPIClient, info)
}
