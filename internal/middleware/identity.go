package middleware

// identity.go keeps the authenticated identity in the echo context.  BearerAuth
// writes it; handlers, the admin gate and the rate limiter read it.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/utils"
)

const identityKey = "identity"

func setIdentity(c echo.Context, id utils.Identity) { c.Set(identityKey, id) }

// CurrentIdentity returns the identity stored by BearerAuth.
func CurrentIdentity(c echo.Context) (utils.Identity, bool) {
	id, ok := c.Get(identityKey).(utils.Identity)
	return id, ok && id.UserID != 0
}

// userID returns the caller's id for keying, or "anon" before authentication.
func userID(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
