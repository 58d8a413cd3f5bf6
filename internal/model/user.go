package model

import (
	"math"
	"time"
)

// User mirrors a row of the `usuarios` table.  Profile attributes are filled
// progressively after registration, so every one of them is nullable.
// PasswordHash never leaves the service layer; handlers build their own
// response types without it.
type User struct {
	ID             uint64     // usuarios.id
	Email          string     // usuarios.email (unique)
	Username       string     // usuarios.usuario (unique)
	PasswordHash   string     // usuarios.hash_contrasena
	Age            *int       // usuarios.edad
	HeightCm       *float64   // usuarios.altura_cm
	WeightKg       *float64   // usuarios.peso_kg
	TargetWeightKg *float64   // usuarios.peso_deseado_kg
	Sex            *bool      // usuarios.sexo (true = male)
	BMI            *float64   // usuarios.imc, derived from height and weight
	Goal           *string    // usuarios.objetivo
	EmailVerified  bool       // usuarios.email_verificado
	IsPremium      bool       // usuarios.es_premium
	CreatedAt      time.Time  // usuarios.fecha_creacion
	LastActivityAt *time.Time // usuarios.fecha_ultima_actividad
}

// Goals accepted for usuarios.objetivo.
const (
	GoalLoseWeight = "bajar peso"
	GoalMaintain   = "mantener"
	GoalTone       = "tonificar"
)

// Goals lists every accepted goal value.
var Goals = []string{GoalLoseWeight, GoalMaintain, GoalTone}

// ComputeBMI returns weight / height² rounded to two decimals, or nil when
// either input is unknown or not positive.
func ComputeBMI(heightCm, weightKg *float64) *float64 {
	if heightCm == nil || weightKg == nil || *heightCm <= 0 || *weightKg <= 0 {
		return nil
	}
	m := *heightCm / 100
	v := math.Round(*weightKg/(m*m)*100) / 100
	return &v
}

// Profile is the editable subset of User.  A nil field means "not provided".
type Profile struct {
	Age            *int
	HeightCm       *float64
	WeightKg       *float64
	TargetWeightKg *float64
	Sex            *bool
	Goal           *string
}

// Apply copies every provided field of p onto u and recomputes the BMI.
func (u *User) Apply(p Profile) {
	if p.Age != nil {
		u.Age = p.Age
	}
	if p.HeightCm != nil {
		u.HeightCm = p.HeightCm
	}
	if p.WeightKg != nil {
		u.WeightKg = p.WeightKg
	}
	if p.TargetWeightKg != nil {
		u.TargetWeightKg = p.TargetWeightKg
	}
	if p.Sex != nil {
		u.Sex = p.Sex
	}
	if p.Goal != nil {
		u.Goal = p.Goal
	}
	u.BMI = ComputeBMI(u.HeightCm, u.WeightKg)
}

// Profile returns the editable part of u.
func (u *User) Profile() Profile {
	return Profile{
		Age:            u.Age,
		HeightCm:       u.HeightCm,
		WeightKg:       u.WeightKg,
		TargetWeightKg: u.TargetWeightKg,
		Sex:            u.Sex,
		Goal:           u.Goal,
	}
}

// ProfileComplete reports whether every profile attribute has been filled.
func (u *User) ProfileComplete() bool {
	return u.Age != nil && u.HeightCm != nil && u.WeightKg != nil &&
		u.TargetWeightKg != nil && u.Sex != nil && u.Goal != nil
}

// UserStats summarises an account for the statistics endpoint.
type UserStats struct {
	CreatedAt       time.Time
	LastActivityAt  *time.Time
	EmailVerified   bool
	IsPremium       bool
	ProfileComplete bool
	DaysRegistered  int
}

// StatsAt builds the account summary relative to now.
func (u *User) StatsAt(now time.Time) UserStats {
	days := int(now.Sub(u.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return UserStats{
		CreatedAt:       u.CreatedAt,
		LastActivityAt:  u.LastActivityAt,
		EmailVerified:   u.EmailVerified,
		IsPremium:       u.IsPremium,
		ProfileComplete: u.ProfileComplete(),
		DaysRegistered:  days,
	}
}
