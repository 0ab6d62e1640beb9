package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

type createdKey struct {
	APIKey string         `json:"api_key"`
	Key    apikey.KeyView `json:"key"`
	Notice string         `json:"notice"`
}

func (h *Handlers) listKeys(ctx *types.RequestCtx) {
	keys := h.keys.List()
	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusOK, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

func (h *Handlers) createKey(ctx *types.RequestCtx) {
	var req apikey.GenerateRequest
	if !decode(h, ctx, &req) {
		return
	}

	raw, keyID, err := h.keys.Generate(ctx.Context(), req)
	if err != nil {
		if errors.Is(err, apikey.ErrUnknownPermission) || errors.Is(err, types.ErrValidationFailed) {
			utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, err.Error(), utils.CodeValidationError, nil)
			return
		}
		h.fail(ctx, err)
		return
	}

	view, _ := h.keys.Get(keyID)
	if client, ok := apikey.FromRequest(ctx); ok {
		h.logger.Info("API key created by admin",
			zap.String("key_id", keyID),
			zap.String("created_by", client.KeyID))
	}

	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusCreated, createdKey{
		APIKey: raw,
		Key:    view,
		Notice: "Store this key now, it cannot be shown again",
	})
}

func (h *Handlers) revokeKey(ctx *types.RequestCtx) {
	keyID := ctx.Param("key_id")
	if !h.keys.RevokeByID(keyID) {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusNotFound, "API key not found", utils.CodeNotFound,
			map[string]interface{}{"key_id": keyID})
		return
	}

	if _, err := h.keys.Flush(ctx.Context()); err != nil {
		h.logger.Warn("Revocation not persisted yet, will retry", zap.String("key_id", keyID), zap.Error(err))
	}

	utils.WriteSuccess(ctx.RequestCtx, fasthttp.StatusOK, map[string]interface{}{
		"key_id":  keyID,
		"revoked": true,
	})
}
