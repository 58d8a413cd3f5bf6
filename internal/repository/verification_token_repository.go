package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/utils"
)

// TokenLedger stores single-use verification tokens.  Callers only ever see
// raw tokens; lookups go through their SHA-256 digest.
type TokenLedger interface {
	Create(ctx context.Context, userID uint64, typ model.TokenType, ttl time.Duration) (string, error)
	Validate(ctx context.Context, raw string, typ model.TokenType) (model.TokenOwner, error)
	Consume(ctx context.Context, raw string) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// VerificationTokenRepo is the MySQL TokenLedger over `tokens_verificacion`.
type VerificationTokenRepo struct {
	DB  database.DBTX
	now func() time.Time
}

func NewVerificationTokenRepo(db database.DBTX) *VerificationTokenRepo {
	return &VerificationTokenRepo{DB: db, now: time.Now}
}

// Create supersedes any unused token of the same type for userID and stores a
// fresh one expiring ttl from now.  It runs two statements, so callers bind
// the repo to a transaction.
func (r *VerificationTokenRepo) Create(ctx context.Context, userID uint64, typ model.TokenType, ttl time.Duration) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	raw, err := utils.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if _, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens_verificacion WHERE usuario_id=? AND tipo=? AND usado=FALSE",
		userID, string(typ)); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO tokens_verificacion (usuario_id,token_hash,tipo,expira_en,usado) VALUES (?,?,?,?,FALSE)",
		userID, utils.HashToken(raw), string(typ), r.now().UTC().Add(ttl)); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return raw, nil
}

// Validate returns the token's owner if raw names an unused, unexpired token
// of type typ.  Every failing predicate yields ErrNotFound.
func (r *VerificationTokenRepo) Validate(ctx context.Context, raw string, typ model.TokenType) (model.TokenOwner, error) {
	var (
		o   model.TokenOwner
		tip string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT t.id,t.tipo,t.expira_en,u.id,u.email,u.usuario,u.email_verificado "+
			"FROM tokens_verificacion t JOIN usuarios u ON u.id=t.usuario_id "+
			"WHERE t.token_hash=? AND t.tipo=? AND t.usado=FALSE AND t.expira_en>? LIMIT 1",
		utils.HashToken(raw), string(typ), r.now().UTC()).
		Scan(&o.TokenID, &tip, &o.ExpiresAt, &o.UserID, &o.Email, &o.Username, &o.EmailVerified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TokenOwner{}, ErrNotFound
		}
		return model.TokenOwner{}, fmt.Errorf("db error: %w", err)
	}
	o.Type = model.TokenType(tip)
	return o, nil
}

// Consume deletes the token.  ErrNotFound means another request consumed it
// first; callers must roll back whatever the token was authorizing.
func (r *VerificationTokenRepo) Consume(ctx context.Context, raw string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens_verificacion WHERE token_hash=?", utils.HashToken(raw))
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

// Purge deletes expired and used tokens and returns how many went.  It only
// touches rows no request can use any more, so it may run alongside traffic.
func (r *VerificationTokenRepo) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens_verificacion WHERE expira_en<? OR usado=TRUE", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
