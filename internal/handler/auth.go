package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/middleware"
	"github.com/iliyamo/fitback/internal/service"
)

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler { return &AuthHandler{Auth: a} }

const msgResetRequested = "Si el email existe, recibirás instrucciones para resetear tu contraseña"

// Register: POST /auth/registro.  The caller is logged in straight away even
// though the email is still unverified.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	s, err := h.Auth.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Usuario,
		Profile:  req.profile(),
	})
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusCreated, "Usuario registrado exitosamente", newSessionView(s))
}

// Login: POST /auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	s, err := h.Auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Login exitoso", newSessionView(s))
}

// Logout: POST /auth/logout.  Stateless; the client drops its token.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.Auth.Logout(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Logout exitoso", nil)
}

// RefreshToken: POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	s, err := h.Auth.RefreshToken(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Token renovado exitosamente", newSessionView(s))
}

// VerifyToken: GET /auth/verificar-token.  Echoes the identity behind a
// valid bearer token.
func (h *AuthHandler) VerifyToken(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	u, err := h.Auth.CurrentUser(c.Request().Context(), id.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Token válido", echo.Map{"usuario": newUserView(u)})
}

// ForgotPassword: POST /auth/forgot-password.  The answer is the same
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	if err := h.Auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, msgResetRequested, nil)
}

// ResetPassword: POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	if err := h.Auth.ResetPassword(c.Request().Context(), req.Token, req.NuevaPassword); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Contraseña restablecida exitosamente", nil)
}

// VerifyEmail: GET /auth/verificar-email/:token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	owner, err := h.Auth.VerifyEmail(c.Request().Context(), c.Param("token"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Email verificado exitosamente", echo.Map{
		"email":           owner.Email,
		"usuario":         owner.Username,
		"emailVerificado": true,
	})
}

// ResendVerification: POST /auth/reenviar-verificacion.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.Auth.ResendVerification(c.Request().Context(), id.UserID); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Email de verificación enviado", nil)
}

// EmailAvailable: POST /auth/verificar-email-disponible.
func (h *AuthHandler) EmailAvailable(c echo.Context) error {
	var req emailRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	free, err := h.Auth.EmailAvailable(c.Request().Context(), req.Email)
	if err != nil {
		return serviceError(c, err)
	}
	msg := "Email disponible"
	if !free {
		msg = "El email ya está registrado"
	}
	return ok(c, http.StatusOK, msg, echo.Map{"disponible": free})
}

// UsernameAvailable: POST /auth/verificar-username-disponible.
func (h *AuthHandler) UsernameAvailable(c echo.Context) error {
	var req usernameRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	free, err := h.Auth.UsernameAvailable(c.Request().Context(), req.Usuario)
	if err != nil {
		return serviceError(c, err)
	}
	msg := "Nombre de usuario disponible"
	if !free {
		msg = "El nombre de usuario ya está en uso"
	}
	return ok(c, http.StatusOK, msg, echo.Map{"disponible": free})
}
