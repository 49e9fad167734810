package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/beststore/accounts/internal/account"
	"github.com/beststore/accounts/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

// RespondValidation renders field violations as details.fields, a map of
// field name to message.
func RespondValidation(ctx *gin.Context, ve *account.ValidationError) {
	RespondBadRequest(ctx, "Validation failed", gin.H{"fields": ve.Map()})
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// respondServiceError maps the account error taxonomy onto HTTP. Anything
// outside it is logged and answered with an opaque 500.
func respondServiceError(ctx *gin.Context, log *slog.Logger, err error) {
	if ve, ok := account.IsValidation(err); ok {
		RespondValidation(ctx, ve)
		return
	}

	switch {
	case errors.Is(err, account.ErrUnauthorized):
		RespondUnAuthorized(ctx, "unauthorized", "Email or password is incorrect, or the session is no longer valid.")
	case errors.Is(err, account.ErrNotFound):
		RespondNotFound(ctx, "No account matches that email.")
	case errors.Is(err, account.ErrInvalidToken):
		RespondBadRequest(ctx, "Wrong or expired token", gin.H{"fields": gin.H{"token": "Wrong or expired token"}})
	default:
		log.ErrorContext(ctx.Request.Context(), "request failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong")
	}
}
