// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"codeberg.org/oliverandrich/model-judge/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for account management.
type AuthHandlers struct {
	auth        *auth.Service
	frontendURL string
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, frontendURL string) *AuthHandlers {
	return &AuthHandlers{
		auth:        svc,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// SignupRequest is the request body for creating an account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ForgotPasswordRequest is the request body for requesting a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the request body for setting a new password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func message(c echo.Context, code int, messageID string) error {
	return c.JSON(code, map[string]string{
		"message": i18n.T(c.Request().Context(), messageID),
	})
}

// Signup creates an unverified account and sends the verification email.
func (h *AuthHandlers) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}

	_, err := h.auth.Register(c.Request().Context(), auth.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if ok, werr := passwordError(c, err); ok {
			return werr
		}
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			return BadRequest(c, "error_required_fields")
		case errors.Is(err, auth.ErrInvalidEmail):
			return BadRequest(c, "error_invalid_email")
		case errors.Is(err, auth.ErrUserExists):
			return Error(c, http.StatusConflict, "error_email_taken")
		}
		slog.Error("signup_failed", "error", err)
		return InternalServerError(c)
	}

	return message(c, http.StatusCreated, "signup_success")
}

// VerifyEmail consumes a verification link and redirects to the frontend.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	_, err := h.auth.VerifyEmail(c.Request().Context(), c.QueryParam("token"))
	if errors.Is(err, auth.ErrInvalidToken) {
		return BadRequest(c, "error_invalid_token")
	}
	if err != nil {
		slog.Error("verify_failed", "error", err)
		return InternalServerError(c)
	}

	return c.Redirect(http.StatusSeeOther, h.frontendURL+"/index.html?verified=1")
}

// Login checks the credentials and returns a bearer token.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return BadRequest(c, "error_invalid_credentials")
	}

	result, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Error(c, http.StatusUnauthorized, "error_invalid_credentials")
	case errors.Is(err, auth.ErrEmailNotVerified):
		return Error(c, http.StatusForbidden, "error_email_not_verified")
	case err != nil:
		slog.Error("login_error", "error", err)
		return InternalServerError(c)
	}

	return c.JSON(http.StatusOK, LoginResponse{
		Token: result.Token,
		Name:  result.User.Name,
		Email: result.User.Email,
	})
}

// ForgotPassword sends a reset link. The response does not reveal whether the account exists.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}

	if strings.TrimSpace(req.Email) != "" {
		if err := h.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
			slog.Error("forgot_password_failed", "error", err)
		}
	}

	return message(c, http.StatusOK, "forgot_password_sent")
}

// ResetPassword sets a new password from a reset link.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}
	if req.Token == "" {
		return BadRequest(c, "error_invalid_token")
	}

	err := h.auth.ResetPassword(c.Request().Context(), req.Token, req.Password)
	if err != nil {
		if ok, werr := passwordError(c, err); ok {
			return werr
		}
		if errors.Is(err, auth.ErrInvalidToken) {
			return BadRequest(c, "error_invalid_token")
		}
		slog.Error("reset_password_failed", "error", err)
		return InternalServerError(c)
	}

	return message(c, http.StatusOK, "password_reset_success")
}
