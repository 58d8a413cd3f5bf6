package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireAdmin lets through only callers whose bearer email is in the
// allowlist.  It must run after BearerAuth.  An empty allowlist closes the
// admin routes.
func RequireAdmin(emails []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allowed[e] = true
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "NO_TOKEN", "Token de acceso requerido")
			}
			if !allowed[strings.ToLower(id.Email)] {
				return deny(c, http.StatusForbidden, "FORBIDDEN", "Acceso restringido a administradores")
			}
			return next(c)
		}
	}
}
