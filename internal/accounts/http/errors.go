package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/pkg/accountsdk"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// writeServiceError maps service and validation errors to responses.
// Anything unrecognised is logged and answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		accountsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrInactiveAccount):
		accountsdk.ErrInactiveUser.WriteError(w)
	case errors.Is(err, service.ErrUnauthenticated):
		writeInvalidToken(w)
	case errors.Is(err, service.ErrForbidden):
		accountsdk.ErrForbiddenFields.WriteError(w)
	case errors.Is(err, service.ErrInvalidToken):
		accountsdk.ErrInvalidResetToken.WriteError(w)
	case errors.Is(err, service.ErrUserNotFound):
		accountsdk.ErrUserNotFound.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		accountsdk.ErrEmailTaken.WriteError(w)
	case errors.Is(err, service.ErrSignUpDisabled):
		accountsdk.ErrSignUpDisabled.WriteError(w)
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrWeakPassword),
		errors.Is(err, domain.ErrEmptyPassword):
		accountsdk.NewAPIError(http.StatusUnprocessableEntity, accountsdk.ErrorCodeInvalidRequest, err.Error()).WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("err", err))
		accountsdk.ErrServerError.WriteError(w)
	}
}

func writeBadRequest(w http.ResponseWriter, desc string) {
	accountsdk.NewAPIError(http.StatusBadRequest, accountsdk.ErrorCodeInvalidRequest, desc).WriteError(w)
}
