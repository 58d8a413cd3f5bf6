package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/handler"
	"github.com/iliyamo/fitback/internal/middleware"
)

// Guards bundles the middleware shared by the route groups.
type Guards struct {
	Bearer  echo.MiddlewareFunc  // BearerAuth
	Admin   echo.MiddlewareFunc  // RequireAdmin, applied after Bearer
	Limiter *middleware.RateLimiter
	Limits  config.RateLimitConfig
	Cache   echo.MiddlewareFunc // response cache for admin listings, nil disables
}

const (
	msgLoginLimited    = "Demasiados intentos de login. Por favor intenta de nuevo en 15 minutos."
	msgRegisterLimited = "Demasiados registros desde esta IP. Intenta de nuevo en 1 hora."
	msgRecoveryLimited = "Demasiados intentos de recuperación de contraseña. Intenta de nuevo en 1 hora."
	msgPasswordLimited = "Demasiados intentos de cambio de contraseña. Intenta de nuevo en 1 hora."
	msgDeleteLimited   = "Demasiados intentos de eliminación de cuenta. Intenta de nuevo mañana."
	msgGeneralLimited  = "Demasiadas peticiones. Intenta de nuevo más tarde."
)

// RegisterRoutes registers routes that do not require authentication.  At
// the moment that is only the health check.
func RegisterRoutes(api *echo.Group, env string) {
	api.GET("/health", handler.Health(env))
}

// RegisterAuth registers /auth.  Every route passes the general limiter;
// credential and recovery endpoints get their own tighter bucket as well.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler, g Guards) {
	l := g.Limits
	auth := api.Group("/auth", g.Limiter.Limit(l.AuthGeneral, msgGeneralLimited))

	auth.POST("/registro", a.Register, g.Limiter.Limit(l.Register, msgRegisterLimited))
	auth.POST("/login", a.Login, g.Limiter.Limit(l.Login, msgLoginLimited))
	auth.POST("/logout", a.Logout, g.Bearer)
	auth.POST("/refresh-token", a.RefreshToken, g.Bearer)
	auth.GET("/verificar-token", a.VerifyToken, g.Bearer)

	auth.POST("/forgot-password", a.ForgotPassword, g.Limiter.Limit(l.Recovery, msgRecoveryLimited))
	auth.POST("/reset-password", a.ResetPassword, g.Limiter.Limit(l.Recovery, msgRecoveryLimited))

	auth.GET("/verificar-email/:token", a.VerifyEmail)
	auth.POST("/reenviar-verificacion", a.ResendVerification, g.Bearer)

	auth.POST("/verificar-email-disponible", a.EmailAvailable)
	auth.POST("/verificar-username-disponible", a.UsernameAvailable)
}
