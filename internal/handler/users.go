package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/middleware"
	"github.com/iliyamo/fitback/internal/service"
)

// UserHandler serves /api/usuarios.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(u *service.UserService) *UserHandler { return &UserHandler{Users: u} }

func callerID(c echo.Context) uint64 {
	id, _ := middleware.CurrentIdentity(c)
	return id.UserID
}

// Profile: GET /usuarios/perfil.
func (h *UserHandler) Profile(c echo.Context) error {
	u, err := h.Users.Profile(c.Request().Context(), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Perfil obtenido exitosamente", newUserView(u))
}

// UpdateProfile: PUT /usuarios/perfil.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	u, err := h.Users.UpdateProfile(c.Request().Context(), callerID(c), req.profile())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Perfil actualizado exitosamente", newUserView(u))
}

// CompleteProfile: PUT /usuarios/completar-perfil.
func (h *UserHandler) CompleteProfile(c echo.Context) error {
	var req completeProfileRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	u, err := h.Users.CompleteProfile(c.Request().Context(), callerID(c), req.profile())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Perfil completado exitosamente", newUserView(u))
}

// ChangePassword: PUT /usuarios/cambiar-password.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if handled, err := bind(c, &req); handled {
		return err
	}
	if err := h.Users.ChangePassword(c.Request().Context(), callerID(c), req.PasswordActual, req.PasswordNueva); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Contraseña cambiada exitosamente", nil)
}

// DeleteAccount: DELETE /usuarios/eliminar-cuenta.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	if err := h.Users.DeleteAccount(c.Request().Context(), callerID(c)); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Cuenta eliminada exitosamente", nil)
}

// Stats: GET /usuarios/estadisticas.
func (h *UserHandler) Stats(c echo.Context) error {
	s, err := h.Users.Stats(c.Request().Context(), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Estadísticas obtenidas exitosamente", statsView{
		FechaRegistro:   s.CreatedAt,
		UltimaActividad: s.LastActivityAt,
		EmailVerificado: s.EmailVerified,
		EsPremium:       s.IsPremium,
		PerfilCompleto:  s.ProfileComplete,
		DiasRegistrado:  s.DaysRegistered,
	})
}

// List: GET /usuarios?pagina=&limite= (admin).
func (h *UserHandler) List(c echo.Context) error {
	page, okPage := queryInt(c, "pagina", 1, 1, 1<<20)
	limit, okLimit := queryInt(c, "limite", service.DefaultPageSize, 1, service.MaxPageSize)
	if !okPage || !okLimit {
		return fail(c, http.StatusBadRequest, string(service.KindValidation), "Parámetros de consulta inválidos")
	}
	p, err := h.Users.List(c.Request().Context(), page, limit)
	if err != nil {
		return serviceError(c, err)
	}
	out := pageView{Usuarios: make([]userView, 0, len(p.Users)), Total: p.Total, Pagina: p.Page, TotalPaginas: p.TotalPages}
	for _, u := range p.Users {
		out.Usuarios = append(out.Usuarios, newUserView(u))
	}
	return ok(c, http.StatusOK, "Usuarios obtenidos exitosamente", out)
}

// Get: GET /usuarios/:id (admin).
func (h *UserHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, string(service.KindValidation), "ID de usuario inválido")
	}
	u, err := h.Users.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, "Usuario obtenido exitosamente", newUserView(u))
}

// queryInt parses an optional integer query parameter within [min, max].
func queryInt(c echo.Context, name string, def, min, max int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}
