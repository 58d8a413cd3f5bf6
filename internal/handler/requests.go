package handler

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/utils"
)

const passwordSpecials = "@$!%*?&"

// strongPassword requires a lowercase letter, an uppercase letter, a digit
// and one of @$!%*?&.
func strongPassword(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !(lower && upper && digit && special) {
		return errors.New("La contraseña debe contener al menos: 1 minúscula, 1 mayúscula, 1 número y 1 carácter especial (@, $, !, %, *, ?, &)")
	}
	return nil
}

// maxBytes bounds the encoded length; bcrypt rejects anything over 72 bytes.
func maxBytes(n int, msg string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return errors.New(msg)
		}
		return nil
	}
}

func passwordRules(field string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(field + " es requerida"),
		validation.Length(8, 128).Error(field + " debe tener entre 8 y 128 caracteres"),
		validation.By(maxBytes(utils.MaxPasswordBytes, field+" no puede superar 72 bytes")),
		validation.By(strongPassword),
	}
}

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("El email es requerido"),
		validation.Length(0, 320).Error("Email demasiado largo (máximo 320 caracteres)"),
		is.Email.Error("Formato de email inválido"),
	}
}

func usernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("El nombre de usuario es requerido"),
		validation.Length(3, 60).Error("El nombre de usuario debe tener entre 3 y 60 caracteres"),
		is.Alphanumeric.Error("El nombre de usuario solo puede contener letras y números"),
	}
}

var goals = []interface{}{model.GoalLoseWeight, model.GoalMaintain, model.GoalTone}

// profileFields carries the optional profile attributes accepted by
// registration and the profile routes.
type profileFields struct {
	Edad        *int     `json:"edad"`
	AlturaCm    *float64 `json:"altura_cm"`
	PesoActual  *float64 `json:"peso_actual"`
	PesoDeseado *float64 `json:"peso_deseado"`
	Sexo        *bool    `json:"sexo"`
	Objetivo    *string  `json:"objetivo"`
}

// between bounds an optional numeric field; zero counts as provided and out
// of range.
func between(min, max interface{}, msg string) []validation.Rule {
	return []validation.Rule{
		validation.NilOrNotEmpty.Error(msg),
		validation.Min(min).Error(msg),
		validation.Max(max).Error(msg),
	}
}

func (p *profileFields) rules() []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&p.Edad, between(18, 100, "La edad debe estar entre 18 y 100")...),
		validation.Field(&p.AlturaCm, between(100.0, 250.0, "La altura debe estar entre 100 y 250 cm")...),
		validation.Field(&p.PesoActual, between(30.0, 150.0, "El peso debe estar entre 30 y 150 kg")...),
		validation.Field(&p.PesoDeseado, between(30.0, 150.0, "El peso deseado debe estar entre 30 y 150 kg")...),
		validation.Field(&p.Objetivo,
			validation.NilOrNotEmpty.Error(msgGoal),
			validation.In(goals...).Error(msgGoal),
		),
	}
}

const msgGoal = "El objetivo debe ser: bajar peso, mantener o tonificar"

func (p *profileFields) profile() model.Profile {
	return model.Profile{
		Age:            p.Edad,
		HeightCm:       p.AlturaCm,
		WeightKg:       p.PesoActual,
		TargetWeightKg: p.PesoDeseado,
		Sex:            p.Sexo,
		Goal:           p.Objetivo,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Usuario  string `json:"usuario"`
	// Username is accepted as an alias of usuario.
	Username string `json:"username"`
	profileFields
}

func (r *registerRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	if r.Usuario == "" {
		r.Usuario = r.Username
	}
	r.Usuario = strings.TrimSpace(r.Usuario)
}

func (r registerRequest) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&r.Email, emailRules()...),
		validation.Field(&r.Password, passwordRules("La contraseña")...),
		validation.Field(&r.Usuario, usernameRules()...),
	}
	rules = append(rules, r.profileFields.rules()...)
	return validation.ValidateStruct(&r, rules...)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) normalize() { r.Email = strings.TrimSpace(r.Email) }

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required.Error("El email es requerido"), is.Email.Error("Formato de email inválido")),
		validation.Field(&r.Password, validation.Required.Error("La contraseña es requerida")),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r *emailRequest) normalize() { r.Email = strings.TrimSpace(r.Email) }

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Email, emailRules()...))
}

type usernameRequest struct {
	Usuario  string `json:"usuario"`
	Username string `json:"username"`
}

func (r *usernameRequest) normalize() {
	if r.Usuario == "" {
		r.Usuario = r.Username
	}
	r.Usuario = strings.TrimSpace(r.Usuario)
}

func (r usernameRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Usuario, usernameRules()...))
}

type resetPasswordRequest struct {
	Token         string `json:"token"`
	NuevaPassword string `json:"nuevaPassword"`
}

func (r *resetPasswordRequest) normalize() { r.Token = strings.TrimSpace(r.Token) }

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required.Error("El token es requerido")),
		validation.Field(&r.NuevaPassword, passwordRules("La nueva contraseña")...),
	)
}

type changePasswordRequest struct {
	PasswordActual string `json:"passwordActual"`
	PasswordNueva  string `json:"passwordNueva"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PasswordActual, validation.Required.Error("La contraseña actual es requerida")),
		validation.Field(&r.PasswordNueva, passwordRules("La nueva contraseña")...),
	)
}

type updateProfileRequest struct {
	profileFields
}

func (r updateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r.profileFields, r.profileFields.rules()...)
}

type completeProfileRequest struct {
	profileFields
}

func (r completeProfileRequest) Validate() error {
	p := &r.profileFields
	rules := p.rules()
	rules = append(rules,
		validation.Field(&p.Edad, validation.NotNil.Error("La edad es requerida")),
		validation.Field(&p.AlturaCm, validation.NotNil.Error("La altura es requerida")),
		validation.Field(&p.PesoActual, validation.NotNil.Error("El peso actual es requerido")),
		validation.Field(&p.PesoDeseado, validation.NotNil.Error("El peso deseado es requerido")),
		validation.Field(&p.Sexo, validation.NotNil.Error("El sexo es requerido")),
		validation.Field(&p.Objetivo, validation.NotNil.Error("El objetivo es requerido")),
	)
	return validation.ValidateStruct(p, rules...)
}
