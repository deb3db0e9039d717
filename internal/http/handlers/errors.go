package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/geocoder89/labshare/internal/provisioning"
	"github.com/gin-gonic/gin"
)

// ErrorMapper turns domain errors into envelopes. Database error text is only
// exposed when Debug is set.
type ErrorMapper struct {
	Debug bool
	Log   *slog.Logger
}

func (m ErrorMapper) logger() *slog.Logger {
	if m.Log == nil {
		return slog.Default()
	}
	return m.Log
}

func (m ErrorMapper) Respond(ctx *gin.Context, err error, fallback string) {
	var verr *provisioning.ValidationError
	var txErr *provisioning.TransactionError
	var cfgErr *auth.ConfigurationError

	switch {
	case errors.As(err, &verr):
		fields := make([]FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, FieldError{
				Field:   f.Field,
				Rule:    f.Rule,
				Param:   f.Param,
				Message: validationMessage(f.Rule, f.Param),
			})
		}
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": fields})

	case errors.Is(err, user.ErrEmailTaken):
		RespondError(ctx, http.StatusBadRequest, "duplicate_email", "Email is already in use.", nil)

	case errors.Is(err, organization.ErrInstitutionNotFound):
		RespondNotFound(ctx, "Institution not found")

	case errors.Is(err, organization.ErrNotFound):
		RespondNotFound(ctx, "Organization not found")

	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")

	case errors.As(err, &cfgErr):
		m.logger().ErrorContext(ctx.Request.Context(), "configuration error", "err", err)
		RespondInternal(ctx, fallback)

	case errors.As(err, &txErr):
		m.logger().ErrorContext(ctx.Request.Context(), "transaction failed",
			"state", txErr.State, "err", txErr.Err, "rollback_err", txErr.RollbackErr)
		var details any
		if m.Debug {
			details = gin.H{"state": txErr.State, "database": txErr.Err.Error()}
		}
		RespondError(ctx, http.StatusInternalServerError, "transaction_failed", fallback, details)

	default:
		m.logger().ErrorContext(ctx.Request.Context(), "request failed", "err", err)
		var details any
		if m.Debug {
			details = gin.H{"error": err.Error()}
		}
		RespondError(ctx, http.StatusInternalServerError, "internal_error", fallback, details)
	}
}
