package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/service"
)

// Envelope is the shape of every response body.
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Errores []FieldError `json:"errores,omitempty"`
	Detalle string       `json:"detalle,omitempty"`
}

// FieldError reports one invalid request field.
type FieldError struct {
	Campo   string `json:"campo"`
	Mensaje string `json:"mensaje"`
}

const (
	msgInvalidInput = "Datos de entrada inválidos"
	msgBadJSON      = "JSON malformado en el cuerpo de la petición"
	msgInternal     = "Error interno del servidor"
)

func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Envelope{Success: false, Message: message, Error: code})
}

// invalid writes a 400 with one entry per failing field.
func invalid(c echo.Context, err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]FieldError, 0, len(keys))
	for _, k := range keys {
		out = append(out, FieldError{Campo: k, Mensaje: verrs[k].Error()})
	}
	return c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Message: msgInvalidInput,
		Error:   string(service.KindValidation),
		Errores: out,
	})
}

// validatable is implemented by every request DTO.
type validatable interface {
	Validate() error
}

// bind decodes the body into req and validates it.  On failure the 400
// response has already been written and handled is true.
func bind(c echo.Context, req validatable) (handled bool, err error) {
	if err := c.Bind(req); err != nil {
		return true, fail(c, http.StatusBadRequest, string(service.KindValidation), msgBadJSON)
	}
	if n, ok := req.(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := req.Validate(); err != nil {
		return true, invalid(c, err)
	}
	return false, nil
}

func statusOf(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindInvalidToken, service.KindEmailExists,
		service.KindUsernameExists, service.KindAlreadyVerified, service.KindInvalidPassword:
		return http.StatusBadRequest
	case service.KindInvalidCredentials, service.KindTokenExpired,
		service.KindMalformedToken, service.KindInvalidSignature:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// serviceError writes the envelope for a failed service call.  Internal
// errors are returned to echo so the central error handler logs them.
func serviceError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) || se.Kind == service.KindInternal {
		return err
	}
	return fail(c, statusOf(se.Kind), string(se.Kind), se.Message)
}

// ErrorHandler turns errors that escaped the handlers into the envelope.
// Details of unexpected failures are only exposed when debug is set.
func ErrorHandler(log logging.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		env := Envelope{Success: false, Message: msgInternal, Error: string(service.KindInternal)}
		status := http.StatusInternalServerError

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he) && he.Code < 500:
			status = he.Code
			env.Error, env.Message = httpErrorText(c, he)
		default:
			log.Error(c.Request().Context(), "unhandled error", "method", c.Request().Method,
				"uri", c.Request().RequestURI, "error", err)
			if debug {
				env.Detalle = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, env)
		}
		if err != nil {
			log.Error(c.Request().Context(), "write error response", "error", err)
		}
	}
}

func httpErrorText(c echo.Context, he *echo.HTTPError) (code, message string) {
	switch he.Code {
	case http.StatusNotFound:
		return "NOT_FOUND", fmt.Sprintf("Ruta %s no encontrada", c.Request().URL.Path)
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED", "Método no permitido"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE", "El cuerpo de la petición es demasiado grande"
	case http.StatusUnauthorized:
		return "NO_TOKEN", "Token de acceso requerido"
	case http.StatusTooManyRequests:
		return string(service.KindRateLimited), "Demasiadas peticiones. Intenta de nuevo más tarde."
	default:
		return string(service.KindValidation), http.StatusText(he.Code)
	}
}
