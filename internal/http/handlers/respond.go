package handlers

import (
	"net/http"

	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// Every response is {success, message, data?}. Failures add code,
// requestId and optional details.

func requestIDFrom(ctx *gin.Context) string {
	if v, ok := ctx.Get(middlewares.CtxRequestID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ctx.GetHeader("X-Request-Id")
}

func RespondOK(ctx *gin.Context, status int, message string, data any) {
	body := gin.H{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	ctx.JSON(status, body)
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	body := gin.H{
		"success": false,
		"message": message,
		"code":    code,
	}
	if id := requestIDFrom(ctx); id != "" {
		body["requestId"] = id
	}
	if details != nil {
		body["details"] = details
	}
	ctx.JSON(status, body)
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}
