package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/model"
)

// UserStore is the credential store used by the services.
type UserStore interface {
	Create(ctx context.Context, u *model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	MarkEmailVerified(ctx context.Context, id uint64) error
	TouchLastActivity(ctx context.Context, id uint64, at time.Time) error
	UpdateProfile(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepo is the MySQL UserStore over the `usuarios` table.
type UserRepo struct{ DB database.DBTX }

func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,usuario,hash_contrasena,edad,altura_cm,peso_kg,peso_deseado_kg,sexo,imc,objetivo," +
	"email_verificado,es_premium,fecha_creacion,fecha_ultima_actividad"

// NormalizeEmail lowercases and trims an address the way it is stored.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u and returns its id.  Uniqueness of email and username is
// enforced by the table; a duplicate is reported as ErrEmailExists or
// ErrUsernameExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO usuarios (email,usuario,hash_contrasena,edad,altura_cm,peso_kg,peso_deseado_kg,sexo,imc,objetivo,email_verificado,es_premium) "+
			"VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		NormalizeEmail(u.Email), strings.TrimSpace(u.Username), u.PasswordHash,
		u.Age, u.HeightCm, u.WeightKg, u.TargetWeightKg, u.Sex, u.BMI, u.Goal,
		u.EmailVerified, u.IsPremium)
	if err != nil {
		if key, ok := duplicateKey(err); ok {
			if key == "uq_usuarios_usuario" {
				return 0, ErrUsernameExists
			}
			return 0, ErrEmailExists
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM usuarios WHERE email=? LIMIT 1", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM usuarios WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM usuarios WHERE email=? LIMIT 1", NormalizeEmail(email))
}

func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM usuarios WHERE usuario=? LIMIT 1", strings.TrimSpace(username))
}

func (r *UserRepo) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.execOne(ctx, "UPDATE usuarios SET hash_contrasena=? WHERE id=?", hash, id)
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uint64) error {
	return r.execOne(ctx, "UPDATE usuarios SET email_verificado=TRUE WHERE id=?", id)
}

func (r *UserRepo) TouchLastActivity(ctx context.Context, id uint64, at time.Time) error {
	return r.execOne(ctx, "UPDATE usuarios SET fecha_ultima_actividad=? WHERE id=?", at.UTC(), id)
}

// UpdateProfile writes every profile column of u, including the derived BMI.
func (r *UserRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	return r.execOne(ctx,
		"UPDATE usuarios SET edad=?,altura_cm=?,peso_kg=?,peso_deseado_kg=?,sexo=?,imc=?,objetivo=? WHERE id=?",
		u.Age, u.HeightCm, u.WeightKg, u.TargetWeightKg, u.Sex, u.BMI, u.Goal, u.ID)
}

// Delete removes the user; its verification tokens go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	return r.execOne(ctx, "DELETE FROM usuarios WHERE id=?", id)
}

// execOne runs a single-row statement and reports ErrNotFound when no row
// matched.  The DSN enables clientFoundRows, so an UPDATE that leaves the row
// unchanged still counts.
func (r *UserRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of users, newest first.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM usuarios ORDER BY fecha_creacion DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM usuarios").Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var (
		u                           model.User
		age                         sql.NullInt64
		height, weight, target, bmi sql.NullFloat64
		sex                         sql.NullBool
		goal                        sql.NullString
		lastActivity                sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &age, &height, &weight, &target,
		&sex, &bmi, &goal, &u.EmailVerified, &u.IsPremium, &u.CreatedAt, &lastActivity)
	if err != nil {
		return model.User{}, err
	}
	if age.Valid {
		v := int(age.Int64)
		u.Age = &v
	}
	u.HeightCm = nullFloat(height)
	u.WeightKg = nullFloat(weight)
	u.TargetWeightKg = nullFloat(target)
	u.BMI = nullFloat(bmi)
	if sex.Valid {
		u.Sex = &sex.Bool
	}
	if goal.Valid {
		u.Goal = &goal.String
	}
	if lastActivity.Valid {
		u.LastActivityAt = &lastActivity.Time
	}
	return u, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
