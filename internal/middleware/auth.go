package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/utils"
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*utils.Claims, error)
}

// BearerAuth validates the `Authorization: Bearer <token>` header and stores
// the token's identity in the context (see CurrentIdentity).  Each failure
// gets its own error code so clients know whether to log in again or fix
// the request.
func BearerAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return deny(c, http.StatusUnauthorized, "NO_TOKEN", "Token de acceso requerido")
			}
			claims, err := v.Verify(raw)
			switch {
			case errors.Is(err, utils.ErrTokenExpired):
				return deny(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expirado")
			case errors.Is(err, utils.ErrTokenSignatureInvalid):
				return deny(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Firma del token inválida")
			case err != nil:
				return deny(c, http.StatusUnauthorized, "MALFORMED_TOKEN", "Token malformado")
			}
			setIdentity(c, claims.Identity())
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
