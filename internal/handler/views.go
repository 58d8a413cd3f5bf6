package handler

import (
	"time"

	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/service"
)

// userView is the public representation of a user.  The password hash has
// no field here on purpose.
type userView struct {
	ID                   uint64     `json:"id"`
	Email                string     `json:"email"`
	Usuario              string     `json:"usuario"`
	Edad                 *int       `json:"edad"`
	AlturaCm             *float64   `json:"altura_cm"`
	PesoKg               *float64   `json:"peso_kg"`
	PesoDeseadoKg        *float64   `json:"peso_deseado_kg"`
	Sexo                 *bool      `json:"sexo"`
	IMC                  *float64   `json:"imc"`
	Objetivo             *string    `json:"objetivo"`
	EmailVerificado      bool       `json:"email_verificado"`
	EsPremium            bool       `json:"es_premium"`
	FechaCreacion        time.Time  `json:"fecha_creacion"`
	FechaUltimaActividad *time.Time `json:"fecha_ultima_actividad"`
}

func newUserView(u model.User) userView {
	return userView{
		ID:                   u.ID,
		Email:                u.Email,
		Usuario:              u.Username,
		Edad:                 u.Age,
		AlturaCm:             u.HeightCm,
		PesoKg:               u.WeightKg,
		PesoDeseadoKg:        u.TargetWeightKg,
		Sexo:                 u.Sex,
		IMC:                  u.BMI,
		Objetivo:             u.Goal,
		EmailVerificado:      u.EmailVerified,
		EsPremium:            u.IsPremium,
		FechaCreacion:        u.CreatedAt,
		FechaUltimaActividad: u.LastActivityAt,
	}
}

type sessionView struct {
	Usuario  userView  `json:"usuario"`
	Token    string    `json:"token"`
	ExpiraEn time.Time `json:"expiraEn"`
}

func newSessionView(s service.Session) sessionView {
	return sessionView{Usuario: newUserView(s.User), Token: s.Token.Token, ExpiraEn: s.Token.ExpiresAt}
}

type statsView struct {
	FechaRegistro   time.Time  `json:"fechaRegistro"`
	UltimaActividad *time.Time `json:"ultimaActividad"`
	EmailVerificado bool       `json:"emailVerificado"`
	EsPremium       bool       `json:"esPremium"`
	PerfilCompleto  bool       `json:"perfilCompleto"`
	DiasRegistrado  int        `json:"diasRegistrado"`
}

type pageView struct {
	Usuarios     []userView `json:"usuarios"`
	Total        int64      `json:"total"`
	Pagina       int        `json:"pagina"`
	TotalPaginas int        `json:"totalPaginas"`
}
