package middleware

import "github.com/labstack/echo/v4"

// deny aborts the request with the standard failure envelope.
func deny(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"message": message,
		"error":   code,
	})
}
