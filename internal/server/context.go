// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"errors"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/model-judge/internal/appcontext"
	"codeberg.org/oliverandrich/model-judge/internal/handlers"
	"codeberg.org/oliverandrich/model-judge/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// requireUser resolves the bearer token and wraps the Echo context with
// the authenticated user. Requests without a valid token get 401.
func requireUser(svc *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return handlers.Unauthorized(c)
			}

			user, err := svc.Authenticate(c.Request().Context(), token)
			if errors.Is(err, auth.ErrUnauthorized) {
				return handlers.Unauthorized(c)
			}
			if err != nil {
				slog.Error("authenticate_failed", "error", err)
				return handlers.InternalServerError(c)
			}

			return next(&appcontext.Context{Context: c, User: user})
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
