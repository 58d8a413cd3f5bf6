package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/notify"
	"github.com/iliyamo/fitback/internal/repository"
	"github.com/iliyamo/fitback/internal/utils"
)

// AuthOptions are the tunables of the auth flows.
type AuthOptions struct {
	VerificationTTL            time.Duration
	ResetTTL                   time.Duration
	SendVerificationOnRegister bool
	PublicBaseURL              string
}

// AuthService orchestrates credentials, bearer tokens and the verification
// token ledger.
type AuthService struct {
	db     database.Transactor
	repos  repository.Manager
	hasher *utils.PasswordHasher
	tokens *utils.TokenIssuer
	notify *Notifier
	log    logging.Logger
	opts   AuthOptions
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(db database.Transactor, repos repository.Manager, hasher *utils.PasswordHasher,
	tokens *utils.TokenIssuer, n *Notifier, log logging.Logger, opts AuthOptions) *AuthService {
	return &AuthService{
		db:     db,
		repos:  repos,
		hasher: hasher,
		tokens: tokens,
		notify: n,
		log:    log.With("component", "auth"),
		opts:   opts,
		now:    time.Now,
	}
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	Profile  model.Profile
}

// Session is a user together with a freshly issued bearer token.
type Session struct {
	User  model.User
	Token utils.IssuedToken
}

func identityOf(u model.User) utils.Identity {
	return utils.Identity{UserID: u.ID, Email: u.Email, Username: u.Username, EmailVerified: u.EmailVerified}
}

func (s *AuthService) issue(u model.User) (Session, error) {
	tok, err := s.tokens.IssueDefault(identityOf(u))
	if err != nil {
		return Session{}, internal(err)
	}
	return Session{User: u, Token: tok}, nil
}

// Register creates the account and, when enabled, its email verification
// token in one transaction.  Duplicate email or username is detected by the
// unique keys on insert, so there is no check-then-insert window.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, hashFailure(err)
	}
	u := model.User{
		Email:        repository.NormalizeEmail(in.Email),
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: hash,
	}
	u.Apply(in.Profile)

	var rawToken string
	err = s.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		id, err := s.repos.Users(tx).Create(ctx, &u)
		if err != nil {
			return err
		}
		u.ID = id
		if !s.opts.SendVerificationOnRegister {
			return nil
		}
		rawToken, err = s.repos.Tokens(tx).Create(ctx, id, model.TokenEmailVerification, s.opts.VerificationTTL)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return Session{}, newError(KindEmailExists, msgEmailExists)
	case errors.Is(err, repository.ErrUsernameExists):
		return Session{}, newError(KindUsernameExists, msgUsernameExists)
	case err != nil:
		return Session{}, internal(err)
	}

	// Re-read for server-assigned columns; fall back to what was inserted.
	if stored, err := s.repos.Users(s.db.Conn()).GetByID(ctx, u.ID); err == nil {
		u = stored
	} else {
		u.CreatedAt = s.now().UTC()
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	if rawToken != "" {
		s.notify.Send(ctx, notify.New(notify.KindEmailVerification, u.Email, u.Username, rawToken, s.verifyLink(rawToken)))
	}
	return s.issue(u)
}

// Login checks the credentials.  Unknown email and wrong password produce the
// same error, and both run one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repos.Users(s.db.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return Session{}, internal(err)
		}
		s.hasher.Verify(password, s.dummy())
		return Session{}, newError(KindInvalidCredentials, msgInvalidCredentials)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return Session{}, newError(KindInvalidCredentials, msgInvalidCredentials)
	}

	now := s.now().UTC()
	if err := s.repos.Users(s.db.Conn()).TouchLastActivity(ctx, u.ID, now); err != nil {
		s.log.Warn(ctx, "update last activity failed", "user_id", u.ID, "error", err)
	} else {
		u.LastActivityAt = &now
	}
	return s.issue(u)
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("fitback-dummy-password")
	})
	return s.dummyHash
}

// RefreshToken issues a new bearer token for the holder of a valid one.  The
// user is reloaded so the new token carries the current verification state.
func (s *AuthService) RefreshToken(ctx context.Context, id utils.Identity) (Session, error) {
	u, err := s.CurrentUser(ctx, id.UserID)
	if err != nil {
		return Session{}, err
	}
	return s.issue(u)
}

// Logout acknowledges a logout.  Bearer tokens are stateless, so nothing is
// revoked; the client discards its token.
func (s *AuthService) Logout(ctx context.Context, id utils.Identity) error {
	s.log.Info(ctx, "user logged out", "user_id", id.UserID)
	return nil
}

// CurrentUser loads the account a bearer token names.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.repos.Users(s.db.Conn()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, newError(KindNotFound, msgUserNotFound)
		}
		return model.User{}, internal(err)
	}
	return u, nil
}

// RequestPasswordReset emails a reset token when email belongs to an account.
// The outcome is never reported so callers cannot discover accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repos.Users(s.db.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Error(ctx, "password reset lookup failed", "error", err)
		}
		return nil
	}
	raw, err := s.createToken(ctx, u.ID, model.TokenPasswordReset, s.opts.ResetTTL)
	if err != nil {
		s.log.Error(ctx, "password reset token not created", "user_id", u.ID, "error", err)
		return nil
	}
	s.notify.Send(ctx, notify.New(notify.KindPasswordReset, u.Email, u.Username, raw, s.opts.PublicBaseURL+"/api/auth/reset-password"))
	return nil
}

// ResetPassword sets a new password for the owner of a valid reset token and
// consumes the token.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	owner, err := s.validate(ctx, token, model.TokenPasswordReset)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return hashFailure(err)
	}
	err = s.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		// Consume first: a concurrent use of the same token fails here and
		// rolls back untouched.
		if err := s.repos.Tokens(tx).Consume(ctx, token); err != nil {
			return err
		}
		return s.repos.Users(tx).UpdatePassword(ctx, owner.UserID, hash)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindInvalidToken, msgInvalidToken)
		}
		return internal(err)
	}
	s.log.Info(ctx, "password reset", "user_id", owner.UserID)
	s.notify.Send(ctx, notify.New(notify.KindPasswordChanged, owner.Email, owner.Username, "", s.opts.PublicBaseURL))
	return nil
}

// VerifyEmail marks the owner of a valid verification token as verified and
// consumes the token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (model.TokenOwner, error) {
	owner, err := s.validate(ctx, token, model.TokenEmailVerification)
	if err != nil {
		return model.TokenOwner{}, err
	}
	err = s.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		if err := s.repos.Tokens(tx).Consume(ctx, token); err != nil {
			return err
		}
		return s.repos.Users(tx).MarkEmailVerified(ctx, owner.UserID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TokenOwner{}, newError(KindInvalidToken, msgInvalidToken)
		}
		return model.TokenOwner{}, internal(err)
	}
	owner.EmailVerified = true
	s.log.Info(ctx, "email verified", "user_id", owner.UserID)
	return owner, nil
}

// ResendVerification replaces the user's verification token and mails it again.
func (s *AuthService) ResendVerification(ctx context.Context, userID uint64) error {
	u, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return newError(KindAlreadyVerified, msgAlreadyVerified)
	}
	raw, err := s.createToken(ctx, u.ID, model.TokenEmailVerification, s.opts.VerificationTTL)
	if err != nil {
		return internal(err)
	}
	s.notify.Send(ctx, notify.New(notify.KindEmailVerification, u.Email, u.Username, raw, s.verifyLink(raw)))
	return nil
}

// EmailAvailable reports whether no account uses email.
func (s *AuthService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	exists, err := s.repos.Users(s.db.Conn()).EmailExists(ctx, email)
	if err != nil {
		return false, internal(err)
	}
	return !exists, nil
}

// UsernameAvailable reports whether no account uses username.
func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	exists, err := s.repos.Users(s.db.Conn()).UsernameExists(ctx, username)
	if err != nil {
		return false, internal(err)
	}
	return !exists, nil
}

// PurgeExpiredTokens removes expired and used verification tokens.
func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.repos.Tokens(s.db.Conn()).Purge(ctx, s.now())
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}

func (s *AuthService) createToken(ctx context.Context, userID uint64, typ model.TokenType, ttl time.Duration) (string, error) {
	var raw string
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		var err error
		raw, err = s.repos.Tokens(tx).Create(ctx, userID, typ, ttl)
		return err
	})
	return raw, err
}

func (s *AuthService) validate(ctx context.Context, token string, typ model.TokenType) (model.TokenOwner, error) {
	if strings.TrimSpace(token) == "" {
		return model.TokenOwner{}, newError(KindInvalidToken, msgInvalidToken)
	}
	owner, err := s.repos.Tokens(s.db.Conn()).Validate(ctx, token, typ)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TokenOwner{}, newError(KindInvalidToken, msgInvalidToken)
		}
		return model.TokenOwner{}, internal(err)
	}
	return owner, nil
}

// hashFailure maps a hashing error.  Only an over-long password is the
// caller's fault.
func hashFailure(err error) *Error {
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return newError(KindValidation, msgPasswordTooLong)
	}
	return internal(err)
}

func (s *AuthService) verifyLink(raw string) string {
	return s.opts.PublicBaseURL + "/api/auth/verificar-email/" + raw
}
