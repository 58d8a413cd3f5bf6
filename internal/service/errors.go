// Package service implements the account flows: registration, login, token
// refresh, email verification, password reset and the profile/admin
// operations behind /usuarios.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.  Handlers map each kind to an HTTP
// status and echo it back as the envelope's error code.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindTokenExpired       Kind = "TOKEN_EXPIRED"
	KindMalformedToken     Kind = "MALFORMED_TOKEN"
	KindInvalidSignature   Kind = "INVALID_SIGNATURE"
	KindNotFound           Kind = "NOT_FOUND"
	KindEmailExists        Kind = "EMAIL_EXISTS"
	KindUsernameExists     Kind = "USERNAME_EXISTS"
	KindAlreadyVerified    Kind = "ALREADY_VERIFIED"
	KindInvalidPassword    Kind = "INVALID_PASSWORD"
	KindRateLimited        Kind = "RATE_LIMIT_EXCEEDED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error is a domain failure with a client-facing message.  Err, when set, is
// the underlying cause and is never shown to clients outside development.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// internal wraps an unexpected failure.
func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: msgInternal, Err: err}
}

// KindOf returns the kind of err, or KindInternal for anything that is not a
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Client-facing messages.
const (
	msgInternal           = "Error interno del servidor"
	msgInvalidCredentials = "Credenciales inválidas"
	msgInvalidToken       = "Token inválido o expirado"
	msgUserNotFound       = "Usuario no encontrado"
	msgEmailExists        = "El email ya está registrado"
	msgUsernameExists     = "El nombre de usuario ya está en uso"
	msgAlreadyVerified    = "El email ya está verificado"
	msgWrongPassword      = "La contraseña actual es incorrecta"
	msgSamePassword       = "La nueva contraseña debe ser diferente a la actual"
	msgPasswordTooLong    = "La contraseña no puede superar 72 bytes"
	msgIncompleteProfile  = "Debe proporcionar todos los campos del perfil"
	msgEmptyPatch         = "Debe proporcionar al menos un campo para actualizar"
)
