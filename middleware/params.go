package middleware

import (
	"net/netip"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

func loadParams[T any](item *types.MiddlewareItemConfig, target *T, logger types.Logger, name string) {
	if item == nil || item.Params == nil {
		return
	}

	if err := utils.UnmarshalConfig(item.Params, target); err != nil {
		logger.Error("Failed to unmarshal middleware config", zap.String("middleware", name), zap.Error(err))
	}
}

func weightOf(item *types.MiddlewareItemConfig, fallback int) int {
	if item == nil || item.Weight == 0 {
		return fallback
	}
	return item.Weight
}

// ipResolver derives the client address. Forwarding headers are honoured
// only when the socket peer is a trusted proxy, otherwise any caller could
// pick the address that whitelists and rate limits see.
type ipResolver struct {
	trusted []netip.Prefix
}

func newIPResolver(config types.ConfigManager, logger types.Logger) *ipResolver {
	r := &ipResolver{}

	auth := config.GetConfig().Auth
	if auth == nil {
		return r
	}

	for _, entry := range auth.TrustedProxies {
		prefix, err := parseProxy(entry)
		if err != nil {
			logger.Error("Invalid trusted proxy", zap.String("proxy", entry), zap.Error(err))
			continue
		}
		r.trusted = append(r.trusted, prefix)
	}

	return r
}

func parseProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		return prefix.Masked(), err
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (r *ipResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket address unless the peer is trusted. Behind a
// trusted peer X-Real-IP wins, then the nearest untrusted X-Forwarded-For hop.
func (r *ipResolver) ClientIP(ctx *fasthttp.RequestCtx) string {
	remote := ctx.RemoteIP().String()

	peer, ok := netip.AddrFromSlice(ctx.RemoteIP())
	if !ok || !r.isTrusted(peer) {
		return remote
	}

	if ip := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP"))); ip != "" {
		if addr, err := netip.ParseAddr(ip); err == nil {
			return addr.Unmap().String()
		}
	}

	hops := strings.Split(string(ctx.Request.Header.Peek("X-Forwarded-For")), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !r.isTrusted(addr) {
			return addr.Unmap().String()
		}
	}

	return remote
}
