// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"codeberg.org/oliverandrich/model-judge/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// Error writes a translated {"error": ...} body with the given status.
func Error(c echo.Context, code int, messageID string) error {
	return c.JSON(code, map[string]string{
		"error": i18n.T(c.Request().Context(), messageID),
	})
}

// BadRequest writes a 400 response.
func BadRequest(c echo.Context, messageID string) error {
	return Error(c, http.StatusBadRequest, messageID)
}

// Unauthorized writes a 401 response.
func Unauthorized(c echo.Context) error {
	return Error(c, http.StatusUnauthorized, "error_unauthorized")
}

// NotFound writes a 404 response.
func NotFound(c echo.Context, messageID string) error {
	return Error(c, http.StatusNotFound, messageID)
}

// InternalServerError writes a 500 response.
func InternalServerError(c echo.Context) error {
	return Error(c, http.StatusInternalServerError, "error_internal")
}

// passwordError writes the first password rule violation, if err is one.
func passwordError(c echo.Context, err error) (bool, error) {
	var verr *auth.PasswordValidationError
	if !errors.As(err, &verr) {
		return false, nil
	}

	first := verr.First()
	msg := i18n.TData(c.Request().Context(), "error_password_"+first.Code, first.Data)
	return true, c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
