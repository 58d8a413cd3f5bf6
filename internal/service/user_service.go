package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/notify"
	"github.com/iliyamo/fitback/internal/repository"
	"github.com/iliyamo/fitback/internal/utils"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// UserService backs the profile and admin routes.
type UserService struct {
	db     database.Transactor
	repos  repository.Manager
	hasher *utils.PasswordHasher
	notify *Notifier
	log    logging.Logger
	now    func() time.Time
}

func NewUserService(db database.Transactor, repos repository.Manager, hasher *utils.PasswordHasher,
	n *Notifier, log logging.Logger) *UserService {
	return &UserService{db: db, repos: repos, hasher: hasher, notify: n, log: log.With("component", "users"), now: time.Now}
}

func (s *UserService) users() repository.UserStore { return s.repos.Users(s.db.Conn()) }

func (s *UserService) get(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, newError(KindNotFound, msgUserNotFound)
		}
		return model.User{}, internal(err)
	}
	return u, nil
}

// Profile returns the caller's own account.
func (s *UserService) Profile(ctx context.Context, id uint64) (model.User, error) {
	return s.get(ctx, id)
}

// Get returns any account (admin).
func (s *UserService) Get(ctx context.Context, id uint64) (model.User, error) {
	return s.get(ctx, id)
}

// UpdateProfile applies the provided fields and recomputes the BMI.
func (s *UserService) UpdateProfile(ctx context.Context, id uint64, p model.Profile) (model.User, error) {
	if p == (model.Profile{}) {
		return model.User{}, newError(KindValidation, msgEmptyPatch)
	}
	return s.saveProfile(ctx, id, p)
}

// CompleteProfile sets every profile attribute at once.
func (s *UserService) CompleteProfile(ctx context.Context, id uint64, p model.Profile) (model.User, error) {
	if p.Age == nil || p.HeightCm == nil || p.WeightKg == nil || p.TargetWeightKg == nil || p.Sex == nil || p.Goal == nil {
		return model.User{}, newError(KindValidation, msgIncompleteProfile)
	}
	return s.saveProfile(ctx, id, p)
}

func (s *UserService) saveProfile(ctx context.Context, id uint64, p model.Profile) (model.User, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	u.Apply(p)
	if err := s.users().UpdateProfile(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, newError(KindNotFound, msgUserNotFound)
		}
		return model.User{}, internal(err)
	}
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
// Bearer tokens issued before the change stay valid until they expire.
func (s *UserService) ChangePassword(ctx context.Context, id uint64, current, next string) error {
	u, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return newError(KindInvalidPassword, msgWrongPassword)
	}
	if current == next {
		return newError(KindValidation, msgSamePassword)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return hashFailure(err)
	}
	if err := s.users().UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal(err)
	}
	s.log.Info(ctx, "password changed", "user_id", id)
	s.notify.Send(ctx, notify.New(notify.KindPasswordChanged, u.Email, u.Username, "", ""))
	return nil
}

// DeleteAccount removes the user and, by cascade, its verification tokens.
func (s *UserService) DeleteAccount(ctx context.Context, id uint64) error {
	if err := s.users().Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal(err)
	}
	s.log.Info(ctx, "account deleted", "user_id", id)
	return nil
}

// Stats summarises the caller's account.
func (s *UserService) Stats(ctx context.Context, id uint64) (model.UserStats, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return model.UserStats{}, err
	}
	return u.StatsAt(s.now()), nil
}

// Page is one page of the admin user listing.
type Page struct {
	Users      []model.User
	Total      int64
	Page       int
	TotalPages int
}

// List returns page (1-based) of all accounts, newest first.
func (s *UserService) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	users, err := s.users().List(ctx, limit, (page-1)*limit)
	if err != nil {
		return Page{}, internal(err)
	}
	total, err := s.users().Count(ctx)
	if err != nil {
		return Page{}, internal(err)
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Page{Users: users, Total: total, Page: page, TotalPages: pages}, nil
}
