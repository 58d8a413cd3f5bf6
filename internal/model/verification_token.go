package model

import "time"

// TokenType tags what a verification token authorizes.
type TokenType string

const (
	TokenEmailVerification      TokenType = "email_verification"
	TokenPasswordReset          TokenType = "password_reset"
	TokenFirstLoginVerification TokenType = "first_login_verification"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenEmailVerification, TokenPasswordReset, TokenFirstLoginVerification:
		return true
	}
	return false
}

// VerificationToken models a row of `tokens_verificacion`.  Only the SHA-256
// digest of the opaque token is stored; the raw value goes to the user by
// email and is never persisted.
type VerificationToken struct {
	ID        uint64    // tokens_verificacion.id
	UserID    uint64    // tokens_verificacion.usuario_id
	TokenHash string    // tokens_verificacion.token_hash
	Type      TokenType // tokens_verificacion.tipo
	ExpiresAt time.Time // tokens_verificacion.expira_en
	Used      bool      // tokens_verificacion.usado
	CreatedAt time.Time // tokens_verificacion.fecha_creacion
}

// TokenOwner is what a successful ledger validation returns: the token row
// joined with the identity of its owner.
type TokenOwner struct {
	TokenID       uint64
	Type          TokenType
	ExpiresAt     time.Time
	UserID        uint64
	Email         string
	Username      string
	EmailVerified bool
}
