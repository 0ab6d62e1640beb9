package handlers

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

func (h *Handlers) cacheStats(ctx *types.RequestCtx) {
	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusOK, map[string]interface{}{
		"cache":        h.memo.CacheStats(),
		"invalidation": h.invalidator.Stats(),
	})
}

func (h *Handlers) cacheTag(ctx *types.RequestCtx) {
	name := ctx.Param("name")
	info, ok := h.invalidator.TagInfo(name)
	if !ok {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusNotFound, "Tag not found", utils.CodeNotFound,
			map[string]interface{}{"tag": name})
		return
	}
	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusOK, info)
}

func (h *Handlers) cacheClear(ctx *types.RequestCtx) {
	before := h.memo.CacheStats().Entries
	h.memo.ClearCache()

	h.logger.Info("Cache cleared via admin route", zap.Int("entries", before))
	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusOK, map[string]interface{}{
		"cleared":         true,
		"entries_removed": before,
	})
}
