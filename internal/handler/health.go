package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is stamped at build time with -ldflags "-X ...handler.Version=...".
var Version = "dev"

// Health reports liveness for load balancers and monitoring.
func Health(env string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return ok(c, http.StatusOK, "FitBack API funcionando correctamente", echo.Map{
			"timestamp": time.Now().UTC(),
			"entorno":   env,
			"version":   Version,
		})
	}
}
