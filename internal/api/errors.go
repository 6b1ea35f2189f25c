package api

import (
	"errors"
	"net/http"

	"github.com/mondominator/opsdec/internal/authcore"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/store"
)

// statusForError maps a service-layer sentinel error to the HTTP status
// spec.md's error handling design assigns it. Self-protection and conflict
// errors both map to 400, not 409, per that design.
func statusForError(err error) int {
	switch {
	case errors.Is(err, authcore.ErrValidation),
		errors.Is(err, authcore.ErrRefreshRequired),
		errors.Is(err, authcore.ErrDuplicateUsername),
		errors.Is(err, authcore.ErrCannotRemoveAdmin),
		errors.Is(err, authcore.ErrCannotDeactivateSelf),
		errors.Is(err, authcore.ErrCannotDeleteSelf):
		return http.StatusBadRequest

	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrAccountDisabled),
		errors.Is(err, authcore.ErrRefreshTokenBad),
		errors.Is(err, authcore.ErrRegistrationClosed),
		errors.Is(err, cryptokit.ErrTokenExpired),
		errors.Is(err, cryptokit.ErrTokenMalformed),
		errors.Is(err, cryptokit.ErrTokenInvalid):
		return http.StatusUnauthorized

	case errors.Is(err, imagecache.ErrSchemeNotAllowed),
		errors.Is(err, errProxyHostNotAllowed):
		return http.StatusForbidden

	case errors.Is(err, authcore.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
