package utils

import (
	"github.com/valyala/fasthttp"
)

const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeInvalidAPIKey          = "INVALID_API_KEY"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSIONS"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeInternalError          = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, err := Marshal(payload)
	if err != nil {
		CreateErrorResponse(ctx)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func WriteSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	WriteJSON(ctx, status, SuccessResponse{Success: true, Data: data})
}

// WriteError renders the error envelope. A nil details map is written as {}.
func WriteError(ctx *fasthttp.RequestCtx, status int, message, code string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}

	setNoCache(ctx)
	WriteJSON(ctx, status, ErrorResponse{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Details:   details,
	})
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType("application/json")
	setNoCache(ctx)

	ctx.SetBodyString(`{"success":false,"message":"An unexpected error occurred","error_code":"INTERNAL_ERROR","details":{}}`)
}

func CreateUnauthorizedResponse(ctx *fasthttp.RequestCtx, code, message string) {
	ctx.Response.Header.Set("WWW-Authenticate", "ApiKey")
	WriteError(ctx, fasthttp.StatusUnauthorized, message, code, nil)
}

func setNoCache(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		ctx.Response.Header.SetBytesV("X-Request-ID", requestID)
	}
}
