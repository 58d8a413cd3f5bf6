package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/handler"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/middleware"
	"github.com/iliyamo/fitback/internal/router"
	"github.com/iliyamo/fitback/internal/service"
	"github.com/iliyamo/fitback/internal/utils"
)

const bodyLimit = "10M"

// services is what the HTTP layer needs from the rest of the app.
type services struct {
	auth   *service.AuthService
	users  *service.UserService
	tokens *utils.TokenIssuer
	redis  *redis.Client // optional
}

// newEcho builds the HTTP server: global middleware, error handler and all
// routes under /api.
func newEcho(cfg config.Config, log logging.Logger, s services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log, cfg.IsDevelopment())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		echomw.SecureWithConfig(echomw.SecureConfig{
			XSSProtection:      "1; mode=block",
			ContentTypeNosniff: "nosniff",
			XFrameOptions:      "DENY",
			HSTSMaxAge:         31536000,
		}),
		echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestedWith},
		}),
		echomw.BodyLimit(bodyLimit),
		middleware.RequestLog(log),
	)

	guards := router.Guards{
		Bearer:  middleware.BearerAuth(s.tokens),
		Admin:   middleware.RequireAdmin(cfg.AdminEmails),
		Limiter: middleware.NewRateLimiter(cfg.RateLimit, s.redis, log),
		Limits:  cfg.RateLimit,
		Cache:   middleware.NewRedisCache(cfg.Cache, s.redis),
	}
	api := e.Group("/api")
	router.RegisterRoutes(api, cfg.Env)
	router.RegisterAuth(api, handler.NewAuthHandler(s.auth), guards)
	router.RegisterUsers(api, handler.NewUserHandler(s.users), guards)
	return e
}
