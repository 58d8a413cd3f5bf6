package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/handler"
)

// RegisterUsers registers /usuarios.  Every route requires a bearer token;
// the listing and lookup by id are restricted to admins.
func RegisterUsers(api *echo.Group, u *handler.UserHandler, g Guards) {
	l := g.Limits
	users := api.Group("/usuarios", g.Bearer)

	// ---- Own account ----
	users.GET("/perfil", u.Profile)
	users.PUT("/perfil", u.UpdateProfile)
	users.PUT("/completar-perfil", u.CompleteProfile)
	users.PUT("/cambiar-password", u.ChangePassword, g.Limiter.Limit(l.PasswordChange, msgPasswordLimited))
	users.DELETE("/eliminar-cuenta", u.DeleteAccount, g.Limiter.Limit(l.DeleteAccount, msgDeleteLimited))
	users.GET("/estadisticas", u.Stats)

	// ---- Admin ----
	admin := []echo.MiddlewareFunc{g.Admin}
	if g.Cache != nil {
		admin = append(admin, g.Cache)
	}
	users.GET("", u.List, admin...)
	users.GET("/", u.List, admin...)
	users.GET("/:id", u.Get, admin...)
}
